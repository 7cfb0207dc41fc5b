package wire

import (
	"errors"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/rr"
)

// ErrTooManyQuestions is FORMERR territory: this codec only accepts QDCOUNT<=1.
var ErrTooManyQuestions = errors.New("wire: more than one question")

// MessageReader parses one DNS message: header, the single question (if
// any), an EDNS pass over Additional, and an in-order RR iterator across
// Answer/Authority/Additional via GetRR.
type MessageReader struct {
	b        *buffer
	Header   Header
	Question Question
	HasQ     bool
	EDNS     *EDNS

	anRemain, nsRemain, arRemain int
	section                      dnsenum.DNSSection
}

// NewMessageReader parses data's header and question and prepares the RR
// iterator. It does not itself return FORMERR for QDCOUNT>1 — callers in
// the server/resolver decide the RCODE; ErrTooManyQuestions signals it.
func NewMessageReader(data []byte) (*MessageReader, error) {
	b := getBuffer()
	b.load(data)

	r := &MessageReader{b: b}
	if err := r.Header.read(b); err != nil {
		putBuffer(b)
		return nil, err
	}

	if r.Header.QDCount > 1 {
		putBuffer(b)
		return nil, ErrTooManyQuestions
	}
	if r.Header.QDCount == 1 {
		if err := r.Question.read(b); err != nil {
			putBuffer(b)
			return nil, err
		}
		r.HasQ = true
	}

	r.anRemain = int(r.Header.ANCount)
	r.nsRemain = int(r.Header.NSCount)
	r.arRemain = int(r.Header.ARCount)
	r.section = dnsenum.SectionAnswer

	r.scanEDNS()
	return r, nil
}

// FullRCode reconstructs the complete RCode, combining the header's
// 4-bit nibble with the EDNS OPT's extended RCode byte (RFC 6891
// section 6.1.3) when EDNS is present. Without EDNS, the header nibble
// is the whole RCode.
func (r *MessageReader) FullRCode() dnsenum.RCode {
	if r.EDNS == nil {
		return r.Header.RCode
	}
	return dnsenum.RCode(uint16(r.EDNS.ExtendedRCode)<<4 | uint16(r.Header.RCode))
}

// Close returns the reader's scratch buffer to the pool. Safe to call
// more than once.
func (r *MessageReader) Close() {
	if r.b != nil {
		putBuffer(r.b)
		r.b = nil
	}
}

// scanEDNS walks a throwaway clone of the cursor to find the last
// Additional record without disturbing GetRR's real iteration, per
// spec's "EDNS pass skips to the last additional RR".
func (r *MessageReader) scanEDNS() {
	scratch := &buffer{buf: r.b.buf, pos: r.b.pos}
	total := int(r.Header.ANCount) + int(r.Header.NSCount) + int(r.Header.ARCount)
	var last *Record
	for i := 0; i < total; i++ {
		rec, err := readRecord(scratch)
		if err != nil {
			return
		}
		if i >= int(r.Header.ANCount)+int(r.Header.NSCount) {
			last = rec
		}
	}
	if last == nil || last.RR.Type() != dnsenum.TypeOPT {
		return
	}
	u, ok := last.RR.(*rr.Unknown)
	var raw []byte
	if ok {
		raw = u.Data
	}
	r.EDNS = ednsFromEnvelope(uint16(last.Class), last.TTL, raw)
}

// GetRR yields the next record across Answer/Authority/Additional in
// order, with its section derived from the remaining-count cursors. It
// returns ok=false once every section is exhausted.
func (r *MessageReader) GetRR() (rec *Record, section dnsenum.DNSSection, ok bool, err error) {
	for r.section <= dnsenum.SectionAdditional {
		var remain *int
		switch r.section {
		case dnsenum.SectionAnswer:
			remain = &r.anRemain
		case dnsenum.SectionAuthority:
			remain = &r.nsRemain
		case dnsenum.SectionAdditional:
			remain = &r.arRemain
		default:
			return nil, 0, false, nil
		}
		if *remain == 0 {
			r.section++
			continue
		}
		rec, err = readRecord(r.b)
		*remain--
		if err != nil {
			return nil, r.section, false, err
		}
		return rec, r.section, true, nil
	}
	return nil, 0, false, nil
}

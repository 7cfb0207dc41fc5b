package wire

import (
	"errors"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
)

// ErrOutOfSpace is returned by PutRR when the record wouldn't fit the
// writer's byte budget. The writer's position, counts and compression
// trie are guaranteed unchanged from their state before the call.
var ErrOutOfSpace = errors.New("wire: out of space")

// ErrSectionOrder is returned by PutRR when sections are written out of
// RFC 1035 order (Answer after Authority/Additional, or Authority after
// Additional).
var ErrSectionOrder = errors.New("wire: sections must be written in order")

// MessageWriter composes one DNS message under a byte budget, emitting
// records in section order and compressing names against a trie of
// previously-written suffixes.
type MessageWriter struct {
	b    *buffer
	trie *compressionTrie

	NoCompress bool
	MaxSize    int

	Header   Header
	Question Question

	current        dnsenum.DNSSection
	questionEndPos int
	questionTrie   map[string]int

	edns         *EDNS
	ednsWritten  bool
}

// NewMessageWriter starts a message for the given question, id and RD
// bit. maxSize bounds the body (512 without EDNS, the negotiated UDP
// payload size with it); edns may be nil.
func NewMessageWriter(id uint16, rd bool, q Question, maxSize int, edns *EDNS) (*MessageWriter, error) {
	b := getBuffer()
	w := &MessageWriter{
		b:        b,
		trie:     newCompressionTrie(),
		MaxSize:  maxSize,
		Question: q,
		current:  dnsenum.SectionQuestion,
		edns:     edns,
	}
	w.Header.ID = id
	w.Header.RecursionDesired = rd
	w.Header.Response = true
	w.Header.QDCount = 1

	// Reserve the 12-byte header; patched in Serialize once counts are final.
	if err := w.b.writeU16(0); err != nil {
		return nil, err
	}
	if err := w.b.writeU16(0); err != nil {
		return nil, err
	}
	if err := w.b.writeU16(1); err != nil {
		return nil, err
	}
	if err := w.b.writeU16(0); err != nil {
		return nil, err
	}
	if err := w.b.writeU16(0); err != nil {
		return nil, err
	}
	if err := w.b.writeU16(0); err != nil {
		return nil, err
	}
	if err := w.Question.write(w.b, w.trie); err != nil {
		putBuffer(b)
		return nil, err
	}
	w.questionEndPos = w.b.position()
	w.questionTrie = make(map[string]int, len(w.trie.offsets))
	for k, v := range w.trie.offsets {
		w.questionTrie[k] = v
	}
	return w, nil
}

// Close returns the writer's scratch buffer to the pool.
func (w *MessageWriter) Close() {
	if w.b != nil {
		putBuffer(w.b)
		w.b = nil
	}
}

func (w *MessageWriter) trieArg() *compressionTrie {
	if w.NoCompress {
		return nil
	}
	return w.trie
}

// PutRR appends one record to section. On ErrOutOfSpace the writer's
// state (position, section counts, compression trie) is restored to
// exactly what it was before the call, so the caller may flush the
// current message and retry on a fresh one.
func (w *MessageWriter) PutRR(section dnsenum.DNSSection, owner dnsname.Name, ttl uint32, class dnsenum.DNSClass, record rr.RRGen) error {
	if section < w.current {
		return ErrSectionOrder
	}

	startPos := w.b.position()
	var trieBackup map[string]int
	if !w.NoCompress {
		trieBackup = make(map[string]int, len(w.trie.offsets))
		for k, v := range w.trie.offsets {
			trieBackup[k] = v
		}
	}

	_, err := writeRecord(w.b, &Record{Owner: owner, Class: class, TTL: ttl, RR: record}, w.trieArg())
	if err == nil && w.b.position() > w.MaxSize {
		err = ErrOutOfSpace
	}
	if err != nil {
		w.b.seek(startPos)
		if !w.NoCompress {
			w.trie.offsets = trieBackup
		}
		if errors.Is(err, ErrEndOfBuffer) {
			return ErrOutOfSpace
		}
		return err
	}

	w.current = section
	switch section {
	case dnsenum.SectionAnswer:
		w.Header.ANCount++
	case dnsenum.SectionAuthority:
		w.Header.NSCount++
	case dnsenum.SectionAdditional:
		w.Header.ARCount++
	}
	return nil
}

// ResetRRs clears every RR written so far, leaving only the header and
// question — used by the authoritative server on out-of-space to answer
// with TC=1 and no records (§4.4 step 11).
func (w *MessageWriter) ResetRRs() {
	w.b.seek(w.questionEndPos)
	w.Header.ANCount, w.Header.NSCount, w.Header.ARCount = 0, 0, 0
	w.current = dnsenum.SectionQuestion
	if !w.NoCompress {
		fresh := make(map[string]int, len(w.questionTrie))
		for k, v := range w.questionTrie {
			fresh[k] = v
		}
		w.trie.offsets = fresh
	}
	w.ednsWritten = false
}

// Serialize finalizes the message: if EDNS is enabled and no OPT has
// been emitted yet, it appends one to Additional. If that doesn't fit,
// the message is truncated to header+question, TC is set, AA cleared,
// and EDNS is emitted once more (which always fits in that much room).
func (w *MessageWriter) Serialize() ([]byte, error) {
	if w.edns != nil {
		// The header only carries the low 4 bits of RCode; the rest
		// rides in the OPT record's extended RCode byte (RFC 6891
		// section 6.1.3). Derived here, generically, rather than at
		// each call site that sets Header.RCode.
		w.edns.ExtendedRCode = uint8(w.Header.RCode >> 4)
	}
	if w.edns != nil && !w.ednsWritten {
		if err := w.putOPT(); err != nil {
			w.ResetRRs()
			w.Header.Truncated = true
			w.Header.AuthoritativeAnswer = false
			if err := w.putOPT(); err != nil {
				return nil, err
			}
		}
	}

	end := w.b.position()
	w.b.seek(0)
	if err := w.Header.write(w.b); err != nil {
		return nil, err
	}
	w.b.seek(end)

	out := make([]byte, end)
	copy(out, w.b.bytes()[:end])
	return out, nil
}

func (w *MessageWriter) putOPT() error {
	udpSize := uint16(w.MaxSize)
	if udpSize == 0 {
		udpSize = 512
	}
	rec := &rr.Unknown{TypeCode: dnsenum.TypeOPT, Data: w.edns.encodeOptions()}
	startPos := w.b.position()
	if err := w.b.writeName(dnsname.Root(), nil); err != nil {
		return err
	}
	if err := w.b.writeU16(uint16(dnsenum.TypeOPT)); err != nil {
		return err
	}
	if err := w.b.writeU16(udpSize); err != nil {
		return err
	}
	if err := w.b.writeU32(w.edns.ttlWord()); err != nil {
		return err
	}
	if err := w.b.writeU16(uint16(len(rec.Data))); err != nil {
		return err
	}
	if err := w.b.writeBytes(rec.Data); err != nil {
		return err
	}
	if w.b.position() > w.MaxSize && w.MaxSize > 0 {
		w.b.seek(startPos)
		return ErrOutOfSpace
	}
	w.Header.ARCount++
	w.ednsWritten = true
	return nil
}

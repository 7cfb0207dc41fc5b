package wire

import (
	"errors"
	"net"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
)

// ErrRDATA is returned when an RR's RDATA doesn't fit its declared RDLENGTH.
var ErrRDATA = errors.New("wire: malformed RDATA")

// Question is the single entry the reader accepts in the question section.
type Question struct {
	Name  dnsname.Name
	QType dnsenum.DNSType
	Class dnsenum.DNSClass
}

func (q *Question) read(b *buffer) error {
	var err error
	if q.Name, err = b.readName(); err != nil {
		return err
	}
	t, err := b.readU16()
	if err != nil {
		return err
	}
	q.QType = dnsenum.DNSType(t)
	c, err := b.readU16()
	if err != nil {
		return err
	}
	q.Class = dnsenum.DNSClass(c)
	return nil
}

func (q *Question) write(b *buffer, trie *compressionTrie) error {
	if err := b.writeName(q.Name, trie); err != nil {
		return err
	}
	if err := b.writeU16(uint16(q.QType)); err != nil {
		return err
	}
	return b.writeU16(uint16(q.Class))
}

// Record is one resource record: its owner/class/ttl envelope plus the
// RRGen payload from the record-type registry.
type Record struct {
	Owner dnsname.Name
	Class dnsenum.DNSClass
	TTL   uint32
	RR    rr.RRGen
}

// wireReadXfr drives RRGen.Transfer to populate a record's fields from
// the wire, tracking how many RDATA bytes remain so Blob(v, -1) can size
// itself (RRSIG signatures, Unknown's raw payload).
type wireReadXfr struct {
	b          *buffer
	rdataStart int
	rdataLen   int
}

func (x *wireReadXfr) remaining() int { return x.rdataLen - (x.b.position() - x.rdataStart) }

func (x *wireReadXfr) Name(v *dnsname.Name) error {
	n, err := x.b.readName()
	if err != nil {
		return err
	}
	*v = n
	return nil
}
func (x *wireReadXfr) U8(v *uint8) error {
	b, err := x.b.readByte()
	if err != nil {
		return err
	}
	*v = b
	return nil
}
func (x *wireReadXfr) U16(v *uint16) error {
	u, err := x.b.readU16()
	if err != nil {
		return err
	}
	*v = u
	return nil
}
func (x *wireReadXfr) U32(v *uint32) error {
	u, err := x.b.readU32()
	if err != nil {
		return err
	}
	*v = u
	return nil
}
func (x *wireReadXfr) RType(v *dnsenum.DNSType) error {
	u, err := x.b.readU16()
	if err != nil {
		return err
	}
	*v = dnsenum.DNSType(u)
	return nil
}
func (x *wireReadXfr) Txt(v *string) error {
	n, err := x.b.readByte()
	if err != nil {
		return err
	}
	raw, err := x.b.readRange(int(n))
	if err != nil {
		return err
	}
	*v = string(raw)
	return nil
}
func (x *wireReadXfr) Blob(v *[]byte, n int) error {
	if n < 0 {
		n = x.remaining()
		if n < 0 {
			return ErrRDATA
		}
	}
	raw, err := x.b.readRange(n)
	if err != nil {
		return err
	}
	*v = raw
	return nil
}
func (x *wireReadXfr) IPv4(v *net.IP) error {
	raw, err := x.b.readRange(4)
	if err != nil {
		return err
	}
	*v = net.IP(raw)
	return nil
}
func (x *wireReadXfr) IPv6(v *net.IP) error {
	raw, err := x.b.readRange(16)
	if err != nil {
		return err
	}
	*v = net.IP(raw)
	return nil
}
func (x *wireReadXfr) TxtAll(v *[]string) error {
	var out []string
	for x.remaining() > 0 {
		var s string
		if err := x.Txt(&s); err != nil {
			return err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return ErrRDATA
	}
	*v = out
	return nil
}

// wireWriteXfr drives RRGen.Transfer to emit a record's fields to the wire.
type wireWriteXfr struct {
	b    *buffer
	trie *compressionTrie
}

func (x *wireWriteXfr) Name(v *dnsname.Name) error { return x.b.writeName(*v, x.trie) }
func (x *wireWriteXfr) U8(v *uint8) error           { return x.b.writeByte(*v) }
func (x *wireWriteXfr) U16(v *uint16) error         { return x.b.writeU16(*v) }
func (x *wireWriteXfr) U32(v *uint32) error         { return x.b.writeU32(*v) }
func (x *wireWriteXfr) RType(v *dnsenum.DNSType) error {
	return x.b.writeU16(uint16(*v))
}
func (x *wireWriteXfr) Txt(v *string) error {
	if len(*v) > 255 {
		return ErrRDATA
	}
	if err := x.b.writeByte(byte(len(*v))); err != nil {
		return err
	}
	return x.b.writeBytes([]byte(*v))
}
func (x *wireWriteXfr) Blob(v *[]byte, _ int) error { return x.b.writeBytes(*v) }
func (x *wireWriteXfr) IPv4(v *net.IP) error {
	ip4 := v.To4()
	if ip4 == nil {
		return ErrRDATA
	}
	return x.b.writeBytes(ip4)
}
func (x *wireWriteXfr) IPv6(v *net.IP) error {
	ip6 := v.To16()
	if ip6 == nil {
		return ErrRDATA
	}
	return x.b.writeBytes(ip6)
}
func (x *wireWriteXfr) TxtAll(v *[]string) error {
	if len(*v) == 0 {
		return ErrRDATA
	}
	for _, s := range *v {
		s := s
		if err := x.Txt(&s); err != nil {
			return err
		}
	}
	return nil
}

func readRecordEnvelope(b *buffer) (owner dnsname.Name, typ dnsenum.DNSType, class dnsenum.DNSClass, ttl uint32, rdlen uint16, err error) {
	if owner, err = b.readName(); err != nil {
		return
	}
	t, err := b.readU16()
	if err != nil {
		return
	}
	typ = dnsenum.DNSType(t)
	c, err := b.readU16()
	if err != nil {
		return
	}
	class = dnsenum.DNSClass(c)
	if ttl, err = b.readU32(); err != nil {
		return
	}
	rdlen, err = b.readU16()
	return
}

func readRecord(b *buffer) (*Record, error) {
	owner, typ, class, ttl, rdlen, err := readRecordEnvelope(b)
	if err != nil {
		return nil, err
	}
	rec := &Record{Owner: owner, Class: class, TTL: ttl, RR: rr.New(typ)}
	start := b.position()
	x := &wireReadXfr{b: b, rdataStart: start, rdataLen: int(rdlen)}
	if rdlen > 0 || typ == dnsenum.TypeOPT {
		if err := rec.RR.Transfer(x); err != nil {
			return nil, err
		}
	}
	consumed := b.position() - start
	if consumed != int(rdlen) {
		b.seek(start + int(rdlen))
	}
	return rec, nil
}

// writeRecord emits rec at the buffer's current position, returning the
// number of bytes written. Used directly by the writer, which bookmarks
// positions for rollback around this call.
func writeRecord(b *buffer, rec *Record, trie *compressionTrie) (int, error) {
	start := b.position()
	if err := b.writeName(rec.Owner, trie); err != nil {
		return 0, err
	}
	if err := b.writeU16(uint16(rec.RR.Type())); err != nil {
		return 0, err
	}
	if err := b.writeU16(uint16(rec.Class)); err != nil {
		return 0, err
	}
	if err := b.writeU32(rec.TTL); err != nil {
		return 0, err
	}
	lenPos := b.position()
	if err := b.writeU16(0); err != nil {
		return 0, err
	}
	x := &wireWriteXfr{b: b, trie: trie}
	if err := rec.RR.Transfer(x); err != nil {
		return 0, err
	}
	end := b.position()
	b.seek(lenPos)
	if err := b.writeU16(uint16(end - lenPos - 2)); err != nil {
		return 0, err
	}
	b.seek(end)
	return end - start, nil
}

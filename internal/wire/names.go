package wire

import (
	"errors"
	"strings"

	"github.com/nsroot/nsroot/internal/dnsname"
)

// ErrCompressionPointer is returned when a compression pointer does not
// reference a strictly earlier offset within the message.
var ErrCompressionPointer = errors.New("wire: compression pointer does not reference an earlier offset")

// ErrTooManyJumps guards against pointer chains used to exhaust CPU.
var ErrTooManyJumps = errors.New("wire: too many compression jumps")

const maxJumps = 32

// readName decodes a domain name starting at the buffer's current
// position, following compression pointers. Each pointer's target offset
// must be strictly less than the offset of the pointer itself, rejecting
// forward or self pointers. On return the main cursor sits just past the
// (possibly 2-byte) encoding that was read inline — jumps never advance
// the main cursor past the first jump.
func (b *buffer) readName() (dnsname.Name, error) {
	pos := b.pos
	jumped := false
	jumps := 0
	var labels []dnsname.Label

	for {
		if jumps > maxJumps {
			return dnsname.Name{}, ErrTooManyJumps
		}
		lenByte, err := b.getByte(pos)
		if err != nil {
			return dnsname.Name{}, err
		}

		if lenByte == 0 {
			pos++
			if !jumped {
				b.seek(pos)
			}
			return dnsname.Name{Labels: labels}, nil
		}

		if lenByte&0xC0 == 0xC0 {
			b2, err := b.getByte(pos + 1)
			if err != nil {
				return dnsname.Name{}, err
			}
			offset := int((uint16(lenByte)&0x3F)<<8 | uint16(b2))
			if offset >= pos {
				return dnsname.Name{}, ErrCompressionPointer
			}
			if !jumped {
				b.seek(pos + 2)
			}
			jumped = true
			jumps++
			pos = offset
			continue
		}

		pos++
		n := int(lenByte)
		raw, err := b.getRangeAt(pos, n)
		if err != nil {
			return dnsname.Name{}, err
		}
		lbl, err := dnsname.NewLabel(raw)
		if err != nil {
			return dnsname.Name{}, err
		}
		labels = append(labels, lbl)
		pos += n
	}
}

func (b *buffer) getRangeAt(start, n int) ([]byte, error) {
	if start < 0 || n < 0 || start+n > len(b.buf) {
		return nil, ErrEndOfBuffer
	}
	out := make([]byte, n)
	copy(out, b.buf[start:start+n])
	return out, nil
}

// compressionTrie maps a lowercased suffix name (presentation form,
// trailing dot included) to the wire offset at which it was first
// emitted, enabling subsequent writeName calls to point at it.
type compressionTrie struct {
	offsets map[string]int
}

func newCompressionTrie() *compressionTrie {
	return &compressionTrie{offsets: make(map[string]int)}
}

func suffixKey(n dnsname.Name) string {
	return strings.ToLower(n.String())
}

// writeName emits name, compressing against previously emitted suffixes
// recorded in trie (nil disables compression, used for AXFR bodies).
func (b *buffer) writeName(name dnsname.Name, trie *compressionTrie) error {
	rest := name
	for {
		if rest.IsRoot() {
			return b.writeByte(0)
		}

		if trie != nil {
			key := suffixKey(rest)
			if off, ok := trie.offsets[key]; ok {
				return b.writeU16(uint16(off) | 0xC000)
			}
			if b.pos < 0x4000 {
				trie.offsets[key] = b.pos
			}
		}

		lbl, tail, _ := rest.PopFront()
		if len(lbl) > dnsname.MaxLabelLen {
			return dnsname.ErrLabelTooLong
		}
		if err := b.writeByte(byte(len(lbl))); err != nil {
			return err
		}
		if err := b.writeBytes(lbl); err != nil {
			return err
		}
		rest = tail
	}
}

package wire

import "github.com/nsroot/nsroot/internal/dnsenum"

// Header is the fixed 12-byte DNS message header (RFC 1035 section 4.1.1).
type Header struct {
	ID                 uint16
	Response           bool
	Opcode              uint8
	AuthoritativeAnswer bool
	Truncated           bool
	RecursionDesired    bool
	RecursionAvailable  bool
	Z                   bool
	AuthenticData       bool
	CheckingDisabled    bool
	RCode               dnsenum.RCode

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

func (h *Header) read(b *buffer) error {
	var err error
	if h.ID, err = b.readU16(); err != nil {
		return err
	}
	flags, err := b.readU16()
	if err != nil {
		return err
	}
	hi := uint8(flags >> 8)
	lo := uint8(flags & 0xFF)

	h.Response = hi&(1<<7) != 0
	h.Opcode = (hi >> 3) & 0x0F
	h.AuthoritativeAnswer = hi&(1<<2) != 0
	h.Truncated = hi&(1<<1) != 0
	h.RecursionDesired = hi&1 != 0

	h.RecursionAvailable = lo&(1<<7) != 0
	h.Z = lo&(1<<6) != 0
	h.AuthenticData = lo&(1<<5) != 0
	h.CheckingDisabled = lo&(1<<4) != 0
	h.RCode = dnsenum.RCode(lo & 0x0F)

	if h.QDCount, err = b.readU16(); err != nil {
		return err
	}
	if h.ANCount, err = b.readU16(); err != nil {
		return err
	}
	if h.NSCount, err = b.readU16(); err != nil {
		return err
	}
	if h.ARCount, err = b.readU16(); err != nil {
		return err
	}
	return nil
}

func (h *Header) write(b *buffer) error {
	if err := b.writeU16(h.ID); err != nil {
		return err
	}
	var hi, lo uint8
	if h.Response {
		hi |= 1 << 7
	}
	hi |= (h.Opcode & 0x0F) << 3
	if h.AuthoritativeAnswer {
		hi |= 1 << 2
	}
	if h.Truncated {
		hi |= 1 << 1
	}
	if h.RecursionDesired {
		hi |= 1
	}
	if h.RecursionAvailable {
		lo |= 1 << 7
	}
	if h.Z {
		lo |= 1 << 6
	}
	if h.AuthenticData {
		lo |= 1 << 5
	}
	if h.CheckingDisabled {
		lo |= 1 << 4
	}
	lo |= uint8(h.RCode) & 0x0F

	if err := b.writeU16(uint16(hi)<<8 | uint16(lo)); err != nil {
		return err
	}
	if err := b.writeU16(h.QDCount); err != nil {
		return err
	}
	if err := b.writeU16(h.ANCount); err != nil {
		return err
	}
	if err := b.writeU16(h.NSCount); err != nil {
		return err
	}
	return b.writeU16(h.ARCount)
}

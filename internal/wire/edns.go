package wire

// EDNS carries the OPT pseudo-record's negotiated fields (RFC 6891).
type EDNS struct {
	UDPSize       uint16
	Version       uint8
	DO            bool
	ExtendedRCode uint8
	Options       []Option
}

// Option is one EDNS(0) option (code + opaque data), e.g. an Extended
// DNS Error (RFC 8914).
type Option struct {
	Code uint16
	Data []byte
}

const edeOptionCode = 15

// Extended DNS Error codes (RFC 8914) a give-up response can attach;
// this repo never signs or validates, so the DNSSEC-specific codes the
// registry also defines have no caller here.
const (
	// EdeOther is a generic error with no more specific code.
	EdeOther uint16 = 0
	// EdeNoReachableAuthority means every authority for the query's
	// zone was tried and none could be reached.
	EdeNoReachableAuthority uint16 = 22
)

// AddEDE appends an Extended DNS Error option.
func (e *EDNS) AddEDE(code uint16, text string) {
	data := []byte{byte(code >> 8), byte(code)}
	data = append(data, []byte(text)...)
	e.Options = append(e.Options, Option{Code: edeOptionCode, Data: data})
}

func ednsFromEnvelope(class uint16, ttl uint32, opts []byte) *EDNS {
	e := &EDNS{
		UDPSize:       class,
		ExtendedRCode: uint8(ttl >> 24),
		Version:       uint8(ttl >> 16),
		DO:            ttl&0x8000 != 0,
	}
	e.Options = parseOptions(opts)
	return e
}

func parseOptions(data []byte) []Option {
	var out []Option
	for len(data) >= 4 {
		code := uint16(data[0])<<8 | uint16(data[1])
		n := int(uint16(data[2])<<8 | uint16(data[3]))
		if n > len(data)-4 {
			break
		}
		out = append(out, Option{Code: code, Data: append([]byte(nil), data[4:4+n]...)})
		data = data[4+n:]
	}
	return out
}

func (e *EDNS) encodeOptions() []byte {
	var out []byte
	for _, o := range e.Options {
		out = append(out, byte(o.Code>>8), byte(o.Code))
		out = append(out, byte(len(o.Data)>>8), byte(len(o.Data)))
		out = append(out, o.Data...)
	}
	return out
}

// ttlWord packs ExtendedRCode/Version/DO/Z into the OPT record's TTL field.
func (e *EDNS) ttlWord() uint32 {
	var ttl uint32
	ttl |= uint32(e.ExtendedRCode) << 24
	ttl |= uint32(e.Version) << 16
	if e.DO {
		ttl |= 0x8000
	}
	return ttl
}

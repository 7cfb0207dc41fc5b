package rr

import (
	"net"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
)

// A is an IPv4 address record.
type A struct{ Addr net.IP }

func (r *A) Type() dnsenum.DNSType { return dnsenum.TypeA }
func (r *A) Transfer(x Xfr) error  { return x.IPv4(&r.Addr) }

// AAAA is an IPv6 address record.
type AAAA struct{ Addr net.IP }

func (r *AAAA) Type() dnsenum.DNSType { return dnsenum.TypeAAAA }
func (r *AAAA) Transfer(x Xfr) error  { return x.IPv6(&r.Addr) }

// NS names an authoritative name server for the owner.
type NS struct{ Host dnsname.Name }

func (r *NS) Type() dnsenum.DNSType { return dnsenum.TypeNS }
func (r *NS) Transfer(x Xfr) error  { return x.Name(&r.Host) }

// CNAME is a canonical-name alias.
type CNAME struct{ Target dnsname.Name }

func (r *CNAME) Type() dnsenum.DNSType { return dnsenum.TypeCNAME }
func (r *CNAME) Transfer(x Xfr) error  { return x.Name(&r.Target) }

// PTR is a reverse-lookup pointer.
type PTR struct{ Host dnsname.Name }

func (r *PTR) Type() dnsenum.DNSType { return dnsenum.TypePTR }
func (r *PTR) Transfer(x Xfr) error  { return x.Name(&r.Host) }

// SOA marks the start of a zone of authority.
type SOA struct {
	MName   dnsname.Name
	RName   dnsname.Name
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (r *SOA) Type() dnsenum.DNSType { return dnsenum.TypeSOA }
func (r *SOA) Transfer(x Xfr) error {
	for _, step := range []func() error{
		func() error { return x.Name(&r.MName) },
		func() error { return x.Name(&r.RName) },
		func() error { return x.U32(&r.Serial) },
		func() error { return x.U32(&r.Refresh) },
		func() error { return x.U32(&r.Retry) },
		func() error { return x.U32(&r.Expire) },
		func() error { return x.U32(&r.Minimum) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// MX is a mail exchange preference/target pair.
type MX struct {
	Preference uint16
	Host       dnsname.Name
}

func (r *MX) Type() dnsenum.DNSType { return dnsenum.TypeMX }
func (r *MX) Transfer(x Xfr) error {
	if err := x.U16(&r.Preference); err != nil {
		return err
	}
	return x.Name(&r.Host)
}

// TXT is a non-empty ordered list of character-strings, each <=255 bytes.
type TXT struct{ Strings []string }

func (r *TXT) Type() dnsenum.DNSType { return dnsenum.TypeTXT }
func (r *TXT) Transfer(x Xfr) error {
	if tx, ok := x.(multiTxt); ok {
		return tx.TxtAll(&r.Strings)
	}
	// A visitor without TxtAll transfers exactly one segment; all four
	// visitors (wire and text, read and write) implement multiTxt above.
	if len(r.Strings) == 0 {
		r.Strings = append(r.Strings, "")
	}
	return x.Txt(&r.Strings[0])
}

// multiTxt is implemented by visitors that know how many character-strings
// remain in the RDATA or tokens (the wire and text readers) or hold the
// full list already (the wire and text writers), so TXT's Transfer
// doesn't need that bookkeeping.
type multiTxt interface {
	TxtAll(v *[]string) error
}

// SRV locates a service (RFC 2782).
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   dnsname.Name
}

func (r *SRV) Type() dnsenum.DNSType { return dnsenum.TypeSRV }
func (r *SRV) Transfer(x Xfr) error {
	if err := x.U16(&r.Priority); err != nil {
		return err
	}
	if err := x.U16(&r.Weight); err != nil {
		return err
	}
	if err := x.U16(&r.Port); err != nil {
		return err
	}
	return x.Name(&r.Target)
}

// NAPTR is a naming authority pointer (RFC 3403).
type NAPTR struct {
	Order       uint16
	Preference  uint16
	Flags       string
	Services    string
	Regexp      string
	Replacement dnsname.Name
}

func (r *NAPTR) Type() dnsenum.DNSType { return dnsenum.TypeNAPTR }
func (r *NAPTR) Transfer(x Xfr) error {
	if err := x.U16(&r.Order); err != nil {
		return err
	}
	if err := x.U16(&r.Preference); err != nil {
		return err
	}
	if err := x.Txt(&r.Flags); err != nil {
		return err
	}
	if err := x.Txt(&r.Services); err != nil {
		return err
	}
	if err := x.Txt(&r.Regexp); err != nil {
		return err
	}
	return x.Name(&r.Replacement)
}

// RRSIG carries a DNSSEC signature over another RRSet (RFC 4034). The
// server only ever stores and re-emits RRSIGs computed elsewhere; nothing
// here validates or produces signatures.
type RRSIG struct {
	TypeCovered uint16
	Algorithm   uint8
	Labels      uint8
	OrigTTL     uint32
	Expiration  uint32
	Inception   uint32
	KeyTag      uint16
	SignerName  dnsname.Name
	Signature   []byte
}

func (r *RRSIG) Type() dnsenum.DNSType { return dnsenum.TypeRRSIG }
func (r *RRSIG) Transfer(x Xfr) error {
	for _, step := range []func() error{
		func() error { return x.U16(&r.TypeCovered) },
		func() error { return x.U8(&r.Algorithm) },
		func() error { return x.U8(&r.Labels) },
		func() error { return x.U32(&r.OrigTTL) },
		func() error { return x.U32(&r.Expiration) },
		func() error { return x.U32(&r.Inception) },
		func() error { return x.U16(&r.KeyTag) },
		func() error { return x.Name(&r.SignerName) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return x.Blob(&r.Signature, -1)
}

// Unknown preserves any RR type this registry doesn't model natively: the
// raw type code and RDATA bytes pass through unexamined.
type Unknown struct {
	TypeCode dnsenum.DNSType
	Data     []byte
}

func (r *Unknown) Type() dnsenum.DNSType { return r.TypeCode }
func (r *Unknown) Transfer(x Xfr) error  { return x.Blob(&r.Data, -1) }

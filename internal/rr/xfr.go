// Package rr is the record-type registry: a closed set of RRGen variants,
// each driven by a single Transfer method against any of four Xfr
// visitors (wire-read, wire-write, text-read, text-write). Adding a type
// means writing one Transfer method instead of four independent
// encoders/decoders.
package rr

import (
	"net"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
)

// Xfr is the four-way visitor contract every RRGen variant's Transfer
// method is written against.
type Xfr interface {
	Name(v *dnsname.Name) error
	U8(v *uint8) error
	U16(v *uint16) error
	U32(v *uint32) error
	RType(v *dnsenum.DNSType) error
	Txt(v *string) error         // one length-prefixed character-string, <=255 bytes
	Blob(v *[]byte, n int) error // n>=0: fixed length; n<0: remainder of the RDATA
	IPv4(v *net.IP) error
	IPv6(v *net.IP) error
}

// RRGen is the capability every concrete record type implements.
type RRGen interface {
	// Type reports the record's DNS type code.
	Type() dnsenum.DNSType
	// Transfer walks the record's fields against x: reading from wire or
	// text fills the record, writing to wire or text emits it.
	Transfer(x Xfr) error
}

// New returns a zero-valued instance of the variant for t, or an Unknown
// wrapper if t isn't one of the registry's concrete types. Used by the
// decode path to pick a Transfer target before reading RDATA.
func New(t dnsenum.DNSType) RRGen {
	switch t {
	case dnsenum.TypeA:
		return &A{}
	case dnsenum.TypeAAAA:
		return &AAAA{}
	case dnsenum.TypeNS:
		return &NS{}
	case dnsenum.TypeCNAME:
		return &CNAME{}
	case dnsenum.TypePTR:
		return &PTR{}
	case dnsenum.TypeSOA:
		return &SOA{}
	case dnsenum.TypeMX:
		return &MX{}
	case dnsenum.TypeTXT:
		return &TXT{}
	case dnsenum.TypeSRV:
		return &SRV{}
	case dnsenum.TypeNAPTR:
		return &NAPTR{}
	case dnsenum.TypeRRSIG:
		return &RRSIG{}
	default:
		return &Unknown{TypeCode: t}
	}
}

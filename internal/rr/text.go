package rr

import (
	"encoding/hex"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
)

// ErrPresentation is returned by the text visitors on malformed input.
var ErrPresentation = errors.New("rr: malformed presentation-form record")

// ParseText builds a zero-valued RRGen for t and fills it from
// whitespace-split presentation-form tokens (e.g. from a master zone
// file's RDATA field, or a dig-like client's command line).
//
// Blob fields (RRSIG signatures, Unknown's raw RDATA) round-trip as hex,
// not base64 — a deliberate, documented escaping choice rather than the
// teacher's "SHOULD ESCAPE" TODO left for TXT presentation.
func ParseText(t dnsenum.DNSType, tokens []string) (RRGen, error) {
	r := New(t)
	x := &textReadXfr{tokens: tokens}
	if err := r.Transfer(x); err != nil {
		return nil, err
	}
	return r, nil
}

// FormatText renders r's fields back to presentation-form tokens.
func FormatText(r RRGen) []string {
	x := &textWriteXfr{}
	_ = r.Transfer(x)
	return x.tokens
}

type textReadXfr struct {
	tokens []string
	pos    int
}

func (x *textReadXfr) next() (string, error) {
	if x.pos >= len(x.tokens) {
		return "", ErrPresentation
	}
	t := x.tokens[x.pos]
	x.pos++
	return t, nil
}

func (x *textReadXfr) Name(v *dnsname.Name) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	n, err := dnsname.Parse(tok)
	if err != nil {
		return err
	}
	*v = n
	return nil
}

func (x *textReadXfr) U8(v *uint8) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(tok, 10, 8)
	if err != nil {
		return ErrPresentation
	}
	*v = uint8(n)
	return nil
}

func (x *textReadXfr) U16(v *uint16) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(tok, 10, 16)
	if err != nil {
		return ErrPresentation
	}
	*v = uint16(n)
	return nil
}

func (x *textReadXfr) U32(v *uint32) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return ErrPresentation
	}
	*v = uint32(n)
	return nil
}

func (x *textReadXfr) RType(v *dnsenum.DNSType) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	if t, ok := dnsenum.TypeByName(strings.ToUpper(tok)); ok {
		*v = t
		return nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(tok, "TYPE"), 10, 16)
	if err != nil {
		return ErrPresentation
	}
	*v = dnsenum.DNSType(n)
	return nil
}

func (x *textReadXfr) Txt(v *string) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	*v = strings.Trim(tok, `"`)
	return nil
}

func (x *textReadXfr) TxtAll(v *[]string) error {
	if x.pos >= len(x.tokens) {
		return ErrPresentation
	}
	for x.pos < len(x.tokens) {
		var s string
		if err := x.Txt(&s); err != nil {
			return err
		}
		*v = append(*v, s)
	}
	return nil
}

func (x *textReadXfr) Blob(v *[]byte, _ int) error {
	var sb strings.Builder
	for x.pos < len(x.tokens) {
		tok, _ := x.next()
		sb.WriteString(tok)
	}
	raw, err := hex.DecodeString(sb.String())
	if err != nil {
		return ErrPresentation
	}
	*v = raw
	return nil
}

func (x *textReadXfr) IPv4(v *net.IP) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	ip := net.ParseIP(tok).To4()
	if ip == nil {
		return ErrPresentation
	}
	*v = ip
	return nil
}

func (x *textReadXfr) IPv6(v *net.IP) error {
	tok, err := x.next()
	if err != nil {
		return err
	}
	ip := net.ParseIP(tok).To16()
	if ip == nil {
		return ErrPresentation
	}
	*v = ip
	return nil
}

type textWriteXfr struct{ tokens []string }

func (x *textWriteXfr) Name(v *dnsname.Name) error {
	x.tokens = append(x.tokens, v.String())
	return nil
}
func (x *textWriteXfr) U8(v *uint8) error   { x.tokens = append(x.tokens, strconv.Itoa(int(*v))); return nil }
func (x *textWriteXfr) U16(v *uint16) error { x.tokens = append(x.tokens, strconv.Itoa(int(*v))); return nil }
func (x *textWriteXfr) U32(v *uint32) error {
	x.tokens = append(x.tokens, strconv.FormatUint(uint64(*v), 10))
	return nil
}
func (x *textWriteXfr) RType(v *dnsenum.DNSType) error {
	x.tokens = append(x.tokens, v.String())
	return nil
}
func (x *textWriteXfr) Txt(v *string) error {
	x.tokens = append(x.tokens, strconv.Quote(*v))
	return nil
}
func (x *textWriteXfr) TxtAll(v *[]string) error {
	for _, s := range *v {
		x.tokens = append(x.tokens, strconv.Quote(s))
	}
	return nil
}
func (x *textWriteXfr) Blob(v *[]byte, _ int) error {
	x.tokens = append(x.tokens, hex.EncodeToString(*v))
	return nil
}
func (x *textWriteXfr) IPv4(v *net.IP) error {
	x.tokens = append(x.tokens, v.String())
	return nil
}
func (x *textWriteXfr) IPv6(v *net.IP) error {
	x.tokens = append(x.tokens, v.String())
	return nil
}

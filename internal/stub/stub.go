// Package stub is a C-callable-style stub resolver facade: a thin,
// synchronous wrapper over internal/resolver exposing the handful of
// lookups a typical libc resolver offers (getaddrinfo/getmxrr/gettxt
// equivalents), reporting failures as small integer codes rather than
// Go errors so the shape stays portable to a cgo-exported API if one is
// ever added.
package stub

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/resolver"
	"github.com/nsroot/nsroot/internal/rr"
)

// Code is a stub resolver outcome, deliberately small and stable rather
// than a Go error value: 0 OK, 1 timeout, 2 server failure, 3 NXDOMAIN,
// >=4 unknown.
type Code int

const (
	OK Code = 0
	// Timeout is reported when the caller's own context deadline
	// expired during resolution.
	Timeout Code = 1
	// ServFail is reported when the name does not parse or the query
	// budget was exhausted (resolver.ErrTooManyQueries); any other
	// unrecognized error reports Unknown. The resolver package does not
	// distinguish "every candidate server was unreachable" from "a
	// genuine authoritative NODATA": both surface as a nil error with
	// zero answers, so this facade reports OK for both.
	ServFail Code = 2
	NXDomain Code = 3
	Unknown  Code = 4
)

// Resolver is a created resolver context: create with New or
// NewFromResolvConf, use from multiple goroutines freely (it holds no
// mutable per-lookup state), discard when done — there is nothing to
// explicitly close, since internal/resolver opens one connection per
// attempt rather than holding a persistent socket.
type Resolver struct {
	r *resolver.Resolver
}

// New returns a stub resolver context seeded with the IANA root hints.
func New() *Resolver {
	return &Resolver{r: resolver.New(nil)}
}

// NewFromResolvConf reads a resolv.conf-style file and seeds the
// resolver's root hint set from its "nameserver <ip>" lines, in file
// order, instead of the IANA roots — e.g. to point at a local caching
// forwarder or a private authoritative server during testing. A file
// with no nameserver lines at all is treated as if none were given: the
// default IANA roots are kept.
func NewFromResolvConf(path string) (*Resolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var roots []net.IP
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "nameserver" {
			continue
		}
		if ip := net.ParseIP(fields[1]); ip != nil {
			roots = append(roots, ip)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	res := resolver.New(nil)
	if len(roots) > 0 {
		res.Roots = roots
	}
	return &Resolver{r: res}, nil
}

func classify(ctx context.Context, err error) Code {
	if err == nil {
		return OK
	}
	if ctx.Err() != nil {
		return Timeout
	}
	switch {
	case errors.Is(err, resolver.ErrNXDomain):
		return NXDomain
	case errors.Is(err, resolver.ErrTooManyQueries):
		return ServFail
	default:
		return Unknown
	}
}

// minTTL returns the smallest TTL across answers, or 0 for an empty set
// — matching the "minimum TTL" a stub caller should honor when caching.
func minTTL(answers []resolver.Answer) uint32 {
	if len(answers) == 0 {
		return 0
	}
	min := answers[0].TTL
	for _, a := range answers[1:] {
		if a.TTL < min {
			min = a.TTL
		}
	}
	return min
}

// IPResult is the outcome of LookupIPs.
type IPResult struct {
	Addrs []net.IP
	TTL   uint32
}

// LookupIPs resolves name's A and/or AAAA records, per the caller's
// ipv4/ipv6 selection. Both false is treated as both true.
func (s *Resolver) LookupIPs(ctx context.Context, name string, ipv4, ipv6 bool) (IPResult, Code) {
	qname, err := dnsname.Parse(name)
	if err != nil {
		return IPResult{}, ServFail
	}
	if !ipv4 && !ipv6 {
		ipv4, ipv6 = true, true
	}

	var result IPResult
	var allAnswers []resolver.Answer
	var lastErr error
	var anySucceeded bool

	for _, want := range []struct {
		ok bool
		t  dnsenum.DNSType
	}{{ipv4, dnsenum.TypeA}, {ipv6, dnsenum.TypeAAAA}} {
		if !want.ok {
			continue
		}
		res, err := s.r.Resolve(ctx, qname, want.t)
		if err != nil {
			lastErr = err
			continue
		}
		anySucceeded = true
		for _, a := range res.Answers {
			switch v := a.RR.(type) {
			case *rr.A:
				result.Addrs = append(result.Addrs, v.Addr)
			case *rr.AAAA:
				result.Addrs = append(result.Addrs, v.Addr)
			}
		}
		allAnswers = append(allAnswers, res.Answers...)
	}

	if !anySucceeded {
		return IPResult{}, classify(ctx, lastErr)
	}
	result.TTL = minTTL(allAnswers)
	return result, OK
}

// MXRecord is one answer from LookupMX.
type MXRecord struct {
	Preference uint16
	Name       string
}

// MXResult is the outcome of LookupMX.
type MXResult struct {
	Records []MXRecord
	TTL     uint32
}

// LookupMX resolves name's MX records.
func (s *Resolver) LookupMX(ctx context.Context, name string) (MXResult, Code) {
	qname, err := dnsname.Parse(name)
	if err != nil {
		return MXResult{}, ServFail
	}
	res, err := s.r.Resolve(ctx, qname, dnsenum.TypeMX)
	if err != nil {
		return MXResult{}, classify(ctx, err)
	}
	var out MXResult
	for _, a := range res.Answers {
		mx, ok := a.RR.(*rr.MX)
		if !ok {
			continue
		}
		out.Records = append(out.Records, MXRecord{Preference: mx.Preference, Name: mx.Host.String()})
	}
	out.TTL = minTTL(res.Answers)
	return out, OK
}

// TXTResult is the outcome of LookupTXT.
type TXTResult struct {
	Strings []string
	TTL     uint32
}

// LookupTXT resolves name's TXT records, flattening every record's
// character-string segments into one slice in answer order.
func (s *Resolver) LookupTXT(ctx context.Context, name string) (TXTResult, Code) {
	qname, err := dnsname.Parse(name)
	if err != nil {
		return TXTResult{}, ServFail
	}
	res, err := s.r.Resolve(ctx, qname, dnsenum.TypeTXT)
	if err != nil {
		return TXTResult{}, classify(ctx, err)
	}
	var out TXTResult
	for _, a := range res.Answers {
		txt, ok := a.RR.(*rr.TXT)
		if !ok {
			continue
		}
		out.Strings = append(out.Strings, txt.Strings...)
	}
	out.TTL = minTTL(res.Answers)
	return out, OK
}

// Package authserver implements the authoritative name server: the
// RFC 1034 §4.3.2 answering algorithm over a zone.ZoneNode tree, served
// over UDP and TCP, plus AXFR.
package authserver

import (
	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/dnssec"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

// maxCNAMEHops bounds in-zone CNAME chasing (§4.4 step 10.d).
const maxCNAMEHops = 10

// Handler answers one query against a shared, read-only zone tree.
type Handler struct {
	Root *zone.ZoneNode

	// VersionString answers CH/TXT queries for version.bind/version.tdns.
	VersionString string
}

var versionBind = mustParse("version.bind.")
var versionTdns = mustParse("version.tdns.")

func mustParse(s string) dnsname.Name {
	n, err := dnsname.Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Handle answers one raw inbound message. proto is "udp" or "tcp" and
// controls the maximum response size and the AXFR-over-UDP rejection.
// A nil return means the query must be silently dropped: it was itself
// a response, had no parseable question, or was otherwise malformed
// beyond what a structured RCODE can describe.
func (h *Handler) Handle(data []byte, proto string) []byte {
	qr, err := wire.NewMessageReader(data)
	if err != nil {
		return nil
	}
	defer qr.Close()

	if qr.Header.Response || !qr.HasQ {
		return nil
	}
	q := qr.Question

	maxSize := 512
	var edns *wire.EDNS
	if qr.EDNS != nil {
		edns = &wire.EDNS{UDPSize: qr.EDNS.UDPSize, Version: 0, DO: qr.EDNS.DO}
		maxSize = int(qr.EDNS.UDPSize)
		if maxSize < 512 {
			maxSize = 512
		}
	}
	if proto == "tcp" || maxSize > wire.MaxPacketSize {
		maxSize = wire.MaxPacketSize
	}

	w, err := wire.NewMessageWriter(qr.Header.ID, qr.Header.RecursionDesired, q, maxSize, edns)
	if err != nil {
		return nil
	}
	defer w.Close()
	w.Header.Opcode = qr.Header.Opcode
	w.Header.Response = true

	finish := func(rcode dnsenum.RCode) []byte {
		w.Header.RCode = rcode
		out, err := w.Serialize()
		if err != nil {
			return nil
		}
		return out
	}

	if qr.EDNS != nil && qr.EDNS.Version != 0 {
		return finish(dnsenum.BadVers)
	}
	if proto == "udp" && (q.QType == dnsenum.TypeAXFR || q.QType == dnsenum.TypeIXFR) {
		return finish(dnsenum.ServFail)
	}
	if qr.Header.Opcode != 0 {
		return finish(dnsenum.NotImp)
	}
	if q.Class == dnsenum.ClassCH {
		if q.QType == dnsenum.TypeTXT && (q.Name.Equal(versionBind) || q.Name.Equal(versionTdns)) {
			w.Header.AuthoritativeAnswer = true
			txt := &rr.TXT{Strings: []string{h.VersionString}}
			if perr := w.PutRR(dnsenum.SectionAnswer, q.Name, 0, dnsenum.ClassCH, txt); perr != nil {
				w.ResetRRs()
				w.Header.Truncated = true
				w.Header.AuthoritativeAnswer = false
			}
			return finish(dnsenum.NoError)
		}
		return finish(dnsenum.Refused)
	}
	if q.Class != dnsenum.ClassIN {
		return finish(dnsenum.Refused)
	}

	apex := zone.BestZone(h.Root, q.Name)
	if apex == nil {
		return finish(dnsenum.Refused)
	}
	w.Header.AuthoritativeAnswer = true

	relName := q.Name
	relName.MakeRelative(apex.Name())

	do := qr.EDNS != nil && qr.EDNS.DO
	rcode, outOfSpace := h.answer(w, apex, relName, q.QType, do)
	if outOfSpace {
		w.ResetRRs()
		w.Header.Truncated = true
		w.Header.AuthoritativeAnswer = false
		return finish(dnsenum.NoError)
	}
	return finish(rcode)
}

// answer runs loop L of §4.4 step 10 against apex's tree, starting at
// relName (relative to apex). It returns the rcode to use and whether a
// put overflowed (in which case the caller must reset and truncate).
func (h *Handler) answer(w *wire.MessageWriter, apex *zone.ZoneNode, relName dnsname.Name, qtype dnsenum.DNSType, do bool) (dnsenum.RCode, bool) {
	hops := 0
	for {
		queried := relName.Concat(apex.Name())
		res := zone.Find(apex, relName, true)

		if res.ZoneCut != nil {
			w.Header.AuthoritativeAnswer = false
			cutName := res.ZoneCut.Name()
			nsSet := res.ZoneCut.Get(dnsenum.TypeNS)
			if nsSet == nil {
				return dnsenum.ServFail, false
			}
			var targets []dnsname.Name
			for _, rec := range nsSet.Records {
				ns := rec.(*rr.NS)
				targets = append(targets, ns.Host)
				if err := w.PutRR(dnsenum.SectionAuthority, cutName, nsSet.TTL, dnsenum.ClassIN, rec); err != nil {
					return 0, true
				}
			}
			for _, t := range targets {
				if !t.IsPartOf(cutName) {
					continue // out of bailiwick: no glue needed
				}
				if overflow := h.addGlue(w, t); overflow {
					return 0, true
				}
			}
			if do {
				if overflow := dnssec.AppendDS(w, res.ZoneCut); overflow {
					return 0, true
				}
			}
			return dnsenum.NoError, false
		}

		if !res.Matched {
			if overflow := h.putSOA(w, apex, do); overflow {
				return 0, true
			}
			return dnsenum.NXDomain, false
		}

		node := res.Node
		if cn := node.Get(dnsenum.TypeCNAME); cn != nil && len(cn.Records) > 0 {
			target := cn.Records[0].(*rr.CNAME).Target
			if err := w.PutRR(dnsenum.SectionAnswer, queried, cn.TTL, dnsenum.ClassIN, cn.Records[0]); err != nil {
				return 0, true
			}
			if qtype != dnsenum.TypeCNAME && hops < maxCNAMEHops && target.IsPartOf(apex.Name()) {
				hops++
				relName = target
				relName.MakeRelative(apex.Name())
				continue
			}
			if do {
				if overflow := dnssec.AppendRRSIGs(w, dnsenum.SectionAnswer, queried, cn); overflow {
					return 0, true
				}
			}
			return dnsenum.NoError, false
		}

		if qtype == dnsenum.TypeANY {
			any := false
			for t, set := range node.RRSets() {
				if t == dnsenum.TypeCNAME {
					continue
				}
				for _, rec := range set.Records {
					any = true
					if err := w.PutRR(dnsenum.SectionAnswer, queried, set.TTL, dnsenum.ClassIN, rec); err != nil {
						return 0, true
					}
				}
				if do {
					if overflow := dnssec.AppendRRSIGs(w, dnsenum.SectionAnswer, queried, set); overflow {
						return 0, true
					}
				}
			}
			if any {
				return dnsenum.NoError, false
			}
		} else if set := node.Get(qtype); set != nil && len(set.Records) > 0 {
			for _, rec := range set.Records {
				if err := w.PutRR(dnsenum.SectionAnswer, queried, set.TTL, dnsenum.ClassIN, rec); err != nil {
					return 0, true
				}
			}
			if qtype == dnsenum.TypeMX {
				for _, rec := range set.Records {
					if overflow := h.addGlue(w, rec.(*rr.MX).Host); overflow {
						return 0, true
					}
				}
			}
			if do {
				if overflow := dnssec.AppendRRSIGs(w, dnsenum.SectionAnswer, queried, set); overflow {
					return 0, true
				}
			}
			return dnsenum.NoError, false
		}

		if overflow := h.putSOA(w, apex, do); overflow {
			return 0, true
		}
		return dnsenum.NoError, false
	}
}

// putSOA emits the zone's SOA into Authority with TTL capped to the
// lesser of the RRSet TTL and the SOA's own minimum field (§4.4 10.c),
// plus its covering RRSIGs when do is set. No NSEC/NSEC3 record is
// added, even when the zone carries one: only the SOA and its RRSIGs.
func (h *Handler) putSOA(w *wire.MessageWriter, apex *zone.ZoneNode, do bool) bool {
	set := apex.Get(dnsenum.TypeSOA)
	if set == nil || len(set.Records) == 0 {
		return false
	}
	soa := set.Records[0].(*rr.SOA)
	ttl := set.TTL
	if soa.Minimum < ttl {
		ttl = soa.Minimum
	}
	if w.PutRR(dnsenum.SectionAuthority, apex.Name(), ttl, dnsenum.ClassIN, set.Records[0]) != nil {
		return true
	}
	if do {
		return dnssec.AppendRRSIGs(w, dnsenum.SectionAuthority, apex.Name(), set)
	}
	return false
}

// addGlue resolves name to an A/AAAA RRSet anywhere in the global tree
// and, if found, emits it into Additional. Absence is not an error: the
// caller has no glue to offer and the client resolves name separately.
func (h *Handler) addGlue(w *wire.MessageWriter, name dnsname.Name) bool {
	res := zone.Find(h.Root, name, false)
	if !res.Matched {
		return false
	}
	for _, t := range []dnsenum.DNSType{dnsenum.TypeA, dnsenum.TypeAAAA} {
		set := res.Node.Get(t)
		if set == nil {
			continue
		}
		for _, rec := range set.Records {
			if err := w.PutRR(dnsenum.SectionAdditional, name, set.TTL, dnsenum.ClassIN, rec); err != nil {
				return true
			}
		}
	}
	return false
}

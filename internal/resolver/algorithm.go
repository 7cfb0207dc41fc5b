package resolver

import (
	"context"
	"errors"
	mrand "math/rand"
	"net"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
)

// cnameHit is what scanAuthoritative found at qname when the answer was
// a CNAME rather than a direct match: the CNAME record itself, its
// target, and — if the same authoritative server happened to answer
// target/qtype in the same message — the records that chase it inline.
type cnameHit struct {
	rec    wire.Record
	target dnsname.Name
	inline []wire.Record
}

// resolveAt implements §4.5's resolve_at: shuffle candidate servers,
// query each in turn, and react to what comes back — a direct answer,
// a CNAME to chase, a referral to descend, or nothing useful. A nil
// slice with a nil error means "nothing worked against any server",
// which Resolve's caller renders as SERVFAIL; ErrNXDomain and
// ErrTooManyQueries unwind every level of recursion immediately.
func (r *Resolver) resolveAt(ctx context.Context, st *resolution, qname dnsname.Name, qtype dnsenum.DNSType, depth int, auth dnsname.Name, servers []net.IP) ([]wire.Record, error) {
	if depth > maxDepth {
		return nil, ErrTooManyQueries
	}
	if len(servers) == 0 {
		return nil, nil
	}

	shuffled := make([]net.IP, len(servers))
	copy(shuffled, servers)
	// #nosec G404 -- shuffling candidate servers for load balancing, not security sensitive
	mrand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, server := range shuffled {
		resp, err := r.getResponse(ctx, st, server, qname, qtype)
		if err != nil {
			if errors.Is(err, ErrTooManyQueries) {
				return nil, err
			}
			continue
		}

		if resp.Header.RCode == dnsenum.NXDomain && resp.HasQ && resp.Question.Name.Equal(qname) {
			resp.Close()
			return nil, ErrNXDomain
		}
		if resp.Header.RCode != dnsenum.NoError {
			resp.Close()
			continue
		}

		if resp.Header.AuthoritativeAnswer {
			answers, cname := scanAuthoritative(resp, qname, qtype)
			resp.Close()

			if len(answers) > 0 {
				return answers, nil
			}
			if cname != nil {
				st.chain = append(st.chain, cname.target)
				if len(cname.inline) > 0 {
					return append([]wire.Record{cname.rec}, cname.inline...), nil
				}
				sub, err := r.resolveAt(ctx, st, cname.target, qtype, depth+1, dnsname.Root(), r.Roots)
				if err != nil {
					return nil, err
				}
				if sub != nil {
					return append([]wire.Record{cname.rec}, sub...), nil
				}
				return []wire.Record{cname.rec}, nil
			}
			// Authoritative NODATA from this server: nothing more to
			// learn here, see if another candidate server disagrees.
			continue
		}

		nsNames, glue, delegation := scanReferral(resp, qname, auth)
		resp.Close()
		if len(nsNames) == 0 {
			continue
		}

		if len(glue) > 0 {
			sub, err := r.resolveAt(ctx, st, qname, qtype, depth+1, delegation, glue)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				return sub, nil
			}
			continue
		}

		// #nosec G404 -- shuffling which NS to resolve first, not security sensitive
		mrand.Shuffle(len(nsNames), func(i, j int) { nsNames[i], nsNames[j] = nsNames[j], nsNames[i] })
		for _, ns := range nsNames {
			addrs, err := r.resolveNSAddrs(ctx, st, depth, ns)
			if err != nil {
				if errors.Is(err, ErrNXDomain) || errors.Is(err, ErrTooManyQueries) {
					return nil, err
				}
				continue
			}
			if len(addrs) == 0 {
				continue
			}
			sub, err := r.resolveAt(ctx, st, qname, qtype, depth+1, delegation, addrs)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				return sub, nil
			}
		}
	}

	return nil, nil
}

// resolveNSAddrs resolves an NS target's A and AAAA records from the
// root, per §4.5 step 9.
func (r *Resolver) resolveNSAddrs(ctx context.Context, st *resolution, depth int, ns dnsname.Name) ([]net.IP, error) {
	var addrs []net.IP
	for _, t := range []dnsenum.DNSType{dnsenum.TypeA, dnsenum.TypeAAAA} {
		recs, err := r.resolveAt(ctx, st, ns, t, depth+1, dnsname.Root(), r.Roots)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			switch v := rec.RR.(type) {
			case *rr.A:
				addrs = append(addrs, v.Addr)
			case *rr.AAAA:
				addrs = append(addrs, v.Addr)
			}
		}
	}
	return addrs, nil
}

// scanAuthoritative walks resp's Answer section once, looking for a
// direct (qname, qtype) match or a CNAME at qname. If a CNAME is found,
// it also collects any records for the CNAME's target present in the
// same message (the server chased it inline).
func scanAuthoritative(resp *wire.MessageReader, qname dnsname.Name, qtype dnsenum.DNSType) ([]wire.Record, *cnameHit) {
	var answers []wire.Record
	var hit *cnameHit

	for {
		rec, sec, ok, err := resp.GetRR()
		if err != nil || !ok {
			break
		}
		if sec != dnsenum.SectionAnswer {
			continue
		}

		if hit != nil && rec.Owner.Equal(hit.target) {
			if qtype == dnsenum.TypeANY || rec.RR.Type() == qtype {
				hit.inline = append(hit.inline, *rec)
			}
			continue
		}
		if !rec.Owner.Equal(qname) {
			continue
		}
		if c, ok := rec.RR.(*rr.CNAME); ok {
			hit = &cnameHit{rec: *rec, target: c.Target}
			continue
		}
		if qtype == dnsenum.TypeANY || rec.RR.Type() == qtype {
			answers = append(answers, *rec)
		}
	}
	return answers, hit
}

// scanReferral walks resp's Authority and Additional sections once,
// collecting NS target names whose owner is an ancestor of qname, and
// any A/AAAA glue for those targets whose owner falls within auth (the
// bailiwick of the server that answered) — out-of-authority glue is
// rejected outright per §4.5 step 7.
func scanReferral(resp *wire.MessageReader, qname, auth dnsname.Name) (nsNames []dnsname.Name, glue []net.IP, delegation dnsname.Name) {
	for {
		rec, sec, ok, err := resp.GetRR()
		if err != nil || !ok {
			break
		}
		switch sec {
		case dnsenum.SectionAuthority:
			ns, ok := rec.RR.(*rr.NS)
			if !ok || !qname.IsPartOf(rec.Owner) {
				continue
			}
			nsNames = append(nsNames, ns.Host)
			delegation = rec.Owner
		case dnsenum.SectionAdditional:
			if !rec.Owner.IsPartOf(auth) {
				continue
			}
			if !hasName(nsNames, rec.Owner) {
				continue
			}
			switch v := rec.RR.(type) {
			case *rr.A:
				glue = append(glue, v.Addr)
			case *rr.AAAA:
				glue = append(glue, v.Addr)
			}
		}
	}
	return
}

func hasName(names []dnsname.Name, n dnsname.Name) bool {
	for _, c := range names {
		if c.Equal(n) {
			return true
		}
	}
	return false
}

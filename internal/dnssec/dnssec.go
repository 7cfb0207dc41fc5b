// Package dnssec is the DNSSEC-OK (DO) append hook. It never signs,
// validates, or synthesizes anything — signing and validation are out
// of scope. Everything it puts on the wire is a record the zone
// already carries, precomputed offline: an RRSIG ingested alongside
// the RRSet it covers, or a DS at a delegation cut. The authoritative
// server calls into this package only when the query's EDNS OPT record
// set the DO bit; callers that never ask for DNSSEC never pay for it.
package dnssec

import (
	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

// AppendRRSIGs puts every signature covering set into section, owned
// by owner, using set's own TTL. A nil or signature-less set is a
// no-op, not an error — most zones carry no signatures at all. It
// returns true on overflow, the same convention wire.MessageWriter.PutRR
// itself uses, so callers can fold it straight into their own
// overflow-then-truncate handling.
func AppendRRSIGs(w *wire.MessageWriter, section dnsenum.DNSSection, owner dnsname.Name, set *zone.RRSet) bool {
	if set == nil || len(set.Sigs) == 0 {
		return false
	}
	for _, sig := range set.Sigs {
		if err := w.PutRR(section, owner, set.TTL, dnsenum.ClassIN, sig); err != nil {
			return true
		}
	}
	return false
}

// AppendDS puts the DS RRSet (and its own covering RRSIGs, if any) at a
// delegation cut into Authority, alongside the NS records the
// authoritative server already emitted there. Absence is not an error:
// an unsigned delegation simply has nothing to add.
func AppendDS(w *wire.MessageWriter, cut *zone.ZoneNode) bool {
	set := cut.Get(dnsenum.TypeDS)
	if set == nil {
		return false
	}
	cutName := cut.Name()
	for _, rec := range set.Records {
		if err := w.PutRR(dnsenum.SectionAuthority, cutName, set.TTL, dnsenum.ClassIN, rec); err != nil {
			return true
		}
	}
	return AppendRRSIGs(w, dnsenum.SectionAuthority, cutName, set)
}

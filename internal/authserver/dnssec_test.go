package authserver

import (
	"net"
	"testing"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

func buildSignedZone(t *testing.T) *zone.ZoneNode {
	t.Helper()
	root := zone.NewRoot()
	apexName := mustName(t, "nl.")
	apex := root.Add(apexName)
	apex.SetZone(&zone.ZoneInfo{Origin: apexName, Serial: 1})

	must := func(name dnsname.Name, ttl uint32, record rr.RRGen) {
		if _, err := root.IngestAt(name, ttl, record); err != nil {
			t.Fatalf("IngestAt(%v): %v", name, err)
		}
	}

	must(apexName, 3600, &rr.SOA{
		MName: mustName(t, "ns1.nl."), RName: mustName(t, "hostmaster.nl."),
		Serial: 1, Refresh: 7200, Retry: 3600, Expire: 1209600, Minimum: 3600,
	})
	must(apexName, 3600, &rr.NS{Host: mustName(t, "ns1.nl.")})

	wwwName := mustName(t, "www.nl.")
	must(wwwName, 3600, &rr.A{Addr: net.ParseIP("5.6.7.8")})
	must(wwwName, 3600, &rr.RRSIG{
		TypeCovered: uint16(dnsenum.TypeA),
		Algorithm:   13,
		Labels:      2,
		OrigTTL:     3600,
		Expiration:  2000000000,
		Inception:   1000000000,
		KeyTag:      12345,
		SignerName:  apexName,
		Signature:   []byte{0xde, 0xad, 0xbe, 0xef},
	})

	return root
}

// TestDNSSECAppendsRRSIGOnlyWhenRequested covers the opaque DO-bit
// append hook: a query without EDNS/DO gets the bare A record, the same
// query with DO=1 also gets the RRSIG the zone already carries for it.
func TestDNSSECAppendsRRSIGOnlyWhenRequested(t *testing.T) {
	h := &Handler{Root: buildSignedZone(t)}
	wwwName := mustName(t, "www.nl.")

	plain := h.Handle(buildQuery(t, wwwName, dnsenum.TypeA), "udp")
	r := parseResponse(t, plain)
	rrTypes := collectAnswerTypes(t, r)
	r.Close()
	if len(rrTypes) != 1 || rrTypes[0] != dnsenum.TypeA {
		t.Fatalf("expected exactly one A record without DO, got %v", rrTypes)
	}

	signed := h.Handle(buildQueryEDNS(t, wwwName, dnsenum.TypeA, &wire.EDNS{UDPSize: 4096, DO: true}), "udp")
	r = parseResponse(t, signed)
	rrTypes = collectAnswerTypes(t, r)
	r.Close()
	if len(rrTypes) != 2 || rrTypes[0] != dnsenum.TypeA || rrTypes[1] != dnsenum.TypeRRSIG {
		t.Fatalf("expected A then RRSIG with DO=1, got %v", rrTypes)
	}
}

func collectAnswerTypes(t *testing.T, r *wire.MessageReader) []dnsenum.DNSType {
	t.Helper()
	var types []dnsenum.DNSType
	for {
		rec, sec, ok, err := r.GetRR()
		if err != nil {
			t.Fatalf("GetRR: %v", err)
		}
		if !ok {
			break
		}
		if sec == dnsenum.SectionAnswer {
			types = append(types, rec.RR.Type())
		}
	}
	return types
}

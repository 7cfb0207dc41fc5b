package stub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsroot/nsroot/internal/authserver"
	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/resolver"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

// delegatedCNAMETopology builds a three-hop synthetic network — root,
// "example.com." (delegated from root, with in-bailiwick glue for its
// own nameserver), and a CNAME inside that zone pointing at an
// in-bailiwick A record — so one end-to-end lookup through the stub
// facade exercises delegation, glue, and CNAME chasing together rather
// than any one of them in isolation.
func delegatedCNAMETopology(t *testing.T) *resolver.Resolver {
	t.Helper()
	rootIP := net.ParseIP("198.51.100.20")
	comIP := net.ParseIP("198.51.100.21")

	ingest := func(root *zone.ZoneNode, name dnsname.Name, ttl uint32, record rr.RRGen) {
		_, err := root.IngestAt(name, ttl, record)
		require.NoError(t, err, "IngestAt(%v)", name)
	}

	rootTree := zone.NewRoot()
	rootTree.SetZone(&zone.ZoneInfo{Origin: dnsname.Root(), Serial: 1})
	ingest(rootTree, mustName(t, "example.com."), 3600, &rr.NS{Host: mustName(t, "ns.example.com.")})
	ingest(rootTree, mustName(t, "ns.example.com."), 3600, &rr.A{Addr: comIP})
	rootHandler := &authserver.Handler{Root: rootTree}

	comTree := zone.NewRoot()
	apex := comTree.Add(mustName(t, "example.com."))
	apex.SetZone(&zone.ZoneInfo{Origin: mustName(t, "example.com."), Serial: 1})
	ingest(comTree, mustName(t, "example.com."), 3600, &rr.SOA{
		MName: mustName(t, "ns.example.com."), RName: mustName(t, "hostmaster.example.com."),
		Serial: 1, Refresh: 7200, Retry: 3600, Expire: 1209600, Minimum: 3600,
	})
	ingest(comTree, mustName(t, "example.com."), 3600, &rr.NS{Host: mustName(t, "ns.example.com.")})
	ingest(comTree, mustName(t, "ns.example.com."), 3600, &rr.A{Addr: comIP})
	ingest(comTree, mustName(t, "www.example.com."), 300, &rr.CNAME{Target: mustName(t, "origin.example.com.")})
	ingest(comTree, mustName(t, "origin.example.com."), 600, &rr.A{Addr: net.ParseIP("203.0.113.50")})
	comHandler := &authserver.Handler{Root: comTree}

	handlers := map[string]*authserver.Handler{
		rootIP.String(): rootHandler,
		comIP.String():  comHandler,
	}

	fn := func(_ context.Context, server net.IP, qname dnsname.Name, qtype dnsenum.DNSType, id uint16, edns, tcp bool) (*wire.MessageReader, error) {
		h, ok := handlers[server.String()]
		if !ok {
			return nil, errNoHandler
		}
		q := wire.Question{Name: qname, QType: qtype, Class: dnsenum.ClassIN}
		var e *wire.EDNS
		if edns {
			e = &wire.EDNS{UDPSize: 1500}
		}
		w, err := wire.NewMessageWriter(id, false, q, wire.MaxPacketSize, e)
		if err != nil {
			return nil, err
		}
		w.Header.Response = false
		data, err := w.Serialize()
		w.Close()
		if err != nil {
			return nil, err
		}
		proto := "udp"
		if tcp {
			proto = "tcp"
		}
		resp := h.Handle(data, proto)
		if resp == nil {
			return nil, errNoHandler
		}
		return wire.NewMessageReader(resp)
	}
	r := resolver.NewWithTransport(nil, fn)
	r.Roots = []net.IP{rootIP}
	return r
}

// TestStubLookupIPsFollowsDelegationAndCNAME is the integration-level
// test for the stub facade: one LookupIPs call drives the resolver
// through a root referral, in-bailiwick glue acceptance, and a CNAME
// chase, and should surface exactly the final A record's address.
func TestStubLookupIPsFollowsDelegationAndCNAME(t *testing.T) {
	s := &Resolver{r: delegatedCNAMETopology(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, code := s.LookupIPs(ctx, "www.example.com.", true, false)

	require.Equal(t, OK, code)
	assert.Len(t, res.Addrs, 1)
	assert.True(t, res.Addrs[0].Equal(net.ParseIP("203.0.113.50")))
	assert.EqualValues(t, 300, res.TTL, "minimum TTL across the CNAME and its target should be the CNAME's own 300s TTL")
}

// TestStubLookupIPsNXDomainSurfacesAsCode covers the facade's
// integer-code convention for a name that doesn't exist anywhere in the
// synthetic topology.
func TestStubLookupIPsNXDomainSurfacesAsCode(t *testing.T) {
	s := &Resolver{r: delegatedCNAMETopology(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, code := s.LookupIPs(ctx, "nope.example.com.", true, false)

	assert.Equal(t, NXDomain, code)
	assert.Empty(t, res.Addrs)
}

package stub

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/nsroot/nsroot/internal/authserver"
	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/resolver"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

var errNoHandler = errors.New("stub_test: no handler registered for that server IP")

func mustName(t *testing.T, s string) dnsname.Name {
	t.Helper()
	n, err := dnsname.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return n
}

// iscOrgTopology builds a single authoritative "isc.org." zone carrying
// an MX record, reachable directly from the root — enough to exercise
// the concrete scenario "stub lookup_mx(\"isc.org\")" without a real
// network.
func iscOrgTopology(t *testing.T) *resolver.Resolver {
	t.Helper()
	rootIP := net.ParseIP("198.51.100.10")
	orgIP := net.ParseIP("198.51.100.11")

	must := func(root *zone.ZoneNode, name dnsname.Name, ttl uint32, record rr.RRGen) {
		if _, err := root.IngestAt(name, ttl, record); err != nil {
			t.Fatalf("IngestAt(%v): %v", name, err)
		}
	}

	rootTree := zone.NewRoot()
	rootTree.SetZone(&zone.ZoneInfo{Origin: dnsname.Root(), Serial: 1})
	must(rootTree, mustName(t, "isc.org."), 3600, &rr.NS{Host: mustName(t, "ns.isc.org.")})
	must(rootTree, mustName(t, "ns.isc.org."), 3600, &rr.A{Addr: orgIP})
	rootHandler := &authserver.Handler{Root: rootTree}

	orgTree := zone.NewRoot()
	orgApex := orgTree.Add(mustName(t, "isc.org."))
	orgApex.SetZone(&zone.ZoneInfo{Origin: mustName(t, "isc.org."), Serial: 1})
	must(orgTree, mustName(t, "isc.org."), 3600, &rr.SOA{
		MName: mustName(t, "ns.isc.org."), RName: mustName(t, "hostmaster.isc.org."),
		Serial: 1, Refresh: 7200, Retry: 3600, Expire: 1209600, Minimum: 3600,
	})
	must(orgTree, mustName(t, "isc.org."), 3600, &rr.NS{Host: mustName(t, "ns.isc.org.")})
	must(orgTree, mustName(t, "ns.isc.org."), 3600, &rr.A{Addr: orgIP})
	must(orgTree, mustName(t, "isc.org."), 300, &rr.MX{Preference: 10, Host: mustName(t, "mx.isc.org.")})
	must(orgTree, mustName(t, "mx.isc.org."), 3600, &rr.A{Addr: net.ParseIP("199.6.1.65")})
	orgHandler := &authserver.Handler{Root: orgTree}

	handlers := map[string]*authserver.Handler{
		rootIP.String(): rootHandler,
		orgIP.String():  orgHandler,
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

func TestLookupMXReturnsPriorityNameAndPositiveTTL(t *testing.T) {
	s := &Resolver{r: iscOrgTopology(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, code := s.LookupMX(ctx, "isc.org.")
	if code != OK {
		t.Fatalf("expected OK, got code %d", code)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected exactly one MX record, got %d", len(res.Records))
	}
	if res.Records[0].Preference != 10 || res.Records[0].Name != "mx.isc.org." {
		t.Fatalf("unexpected MX record: %+v", res.Records[0])
	}
	if res.TTL == 0 {
		t.Fatalf("expected a minimum TTL > 0, got 0")
	}
}

func TestLookupIPsBothFamiliesByDefault(t *testing.T) {
	s := &Resolver{r: iscOrgTopology(t)}
	res, code := s.LookupIPs(context.Background(), "mx.isc.org.", false, false)
	if code != OK {
		t.Fatalf("expected OK, got code %d", code)
	}
	if len(res.Addrs) != 1 || !res.Addrs[0].Equal(net.ParseIP("199.6.1.65")) {
		t.Fatalf("unexpected addrs: %v", res.Addrs)
	}
}

func TestNewFromResolvConfSeedsRootsFromNameserverLines(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "resolv.conf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("# comment\nnameserver 10.0.0.1\nnameserver 10.0.0.2\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s, err := NewFromResolvConf(f.Name())
	if err != nil {
		t.Fatalf("NewFromResolvConf: %v", err)
	}
	if len(s.r.Roots) != 2 {
		t.Fatalf("expected 2 roots from resolv.conf, got %d", len(s.r.Roots))
	}
	if !s.r.Roots[0].Equal(net.ParseIP("10.0.0.1")) || !s.r.Roots[1].Equal(net.ParseIP("10.0.0.2")) {
		t.Fatalf("unexpected roots: %v", s.r.Roots)
	}
}

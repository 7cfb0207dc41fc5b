package zone

import (
	"net"
	"strings"
	"testing"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
)

func mustName(t *testing.T, s string) dnsname.Name {
	t.Helper()
	n, err := dnsname.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return n
}

func TestAddIsIdempotent(t *testing.T) {
	root := NewRoot()
	a := root.Add(mustName(t, "www.example.com."))
	b := root.Add(mustName(t, "www.example.com."))
	if a != b {
		t.Fatalf("Add should return the same node for a repeated name")
	}
}

func TestFindExactAndNXDOMAIN(t *testing.T) {
	root := NewRoot()
	apex := root.Add(mustName(t, "example.com."))
	apex.SetZone(&ZoneInfo{Origin: mustName(t, "example.com.")})
	if _, err := root.IngestAt(mustName(t, "www.example.com."), 3600, &rr.A{Addr: net.ParseIP("1.2.3.4")}); err != nil {
		t.Fatal(err)
	}

	res := Find(root, mustName(t, "www.example.com."), true)
	if !res.Matched || res.Wildcard {
		t.Fatalf("expected exact match, got %+v", res)
	}
	if res.Node.Get(dnsenum.TypeA) == nil {
		t.Fatalf("expected A RRSet at matched node")
	}

	res = Find(root, mustName(t, "nope.example.com."), true)
	if res.Matched {
		t.Fatalf("expected NXDOMAIN, got match")
	}
}

func TestFindWildcardSynthesis(t *testing.T) {
	root := NewRoot()
	apex := root.Add(mustName(t, "example.com."))
	apex.SetZone(&ZoneInfo{Origin: mustName(t, "example.com.")})
	if _, err := root.IngestAt(mustName(t, "*.example.com."), 3600, &rr.A{Addr: net.ParseIP("9.9.9.9")}); err != nil {
		t.Fatal(err)
	}

	res := Find(root, mustName(t, "anything.example.com."), true)
	if !res.Matched || !res.Wildcard {
		t.Fatalf("expected wildcard match, got %+v", res)
	}

	res = Find(root, mustName(t, "anything.example.com."), false)
	if res.Matched {
		t.Fatalf("wildcards disabled should not synthesize a match")
	}
}

func TestFindTracksDelegation(t *testing.T) {
	root := NewRoot()
	apex := root.Add(mustName(t, "example.com."))
	apex.SetZone(&ZoneInfo{Origin: mustName(t, "example.com.")})
	if _, err := root.IngestAt(mustName(t, "sub.example.com."), 3600, &rr.NS{Host: mustName(t, "ns1.sub.example.com.")}); err != nil {
		t.Fatal(err)
	}
	if _, err := root.IngestAt(mustName(t, "ns1.sub.example.com."), 3600, &rr.A{Addr: net.ParseIP("5.5.5.5")}); err != nil {
		t.Fatal(err)
	}

	res := Find(root, mustName(t, "deep.sub.example.com."), true)
	if res.ZoneCut == nil {
		t.Fatalf("expected a zone cut to be recorded for the delegated name")
	}
	if !res.ZoneCut.Name().Equal(mustName(t, "sub.example.com.")) {
		t.Fatalf("wrong zone cut: %v", res.ZoneCut.Name())
	}
}

func TestIngestCNAMEConflict(t *testing.T) {
	root := NewRoot()
	if _, err := root.IngestAt(mustName(t, "www.example.com."), 3600, &rr.A{Addr: net.ParseIP("1.1.1.1")}); err != nil {
		t.Fatal(err)
	}
	_, err := root.IngestAt(mustName(t, "www.example.com."), 3600, &rr.CNAME{Target: mustName(t, "other.example.com.")})
	if err != ErrCNAMEConflict {
		t.Fatalf("expected ErrCNAMEConflict, got %v", err)
	}

	root2 := NewRoot()
	if _, err := root2.IngestAt(mustName(t, "alias.example.com."), 3600, &rr.CNAME{Target: mustName(t, "target.example.com.")}); err != nil {
		t.Fatal(err)
	}
	_, err = root2.IngestAt(mustName(t, "alias.example.com."), 3600, &rr.A{Addr: net.ParseIP("2.2.2.2")})
	if err != ErrCNAMEConflict {
		t.Fatalf("expected ErrCNAMEConflict on the reverse order, got %v", err)
	}
}

func TestTraversalIsOrderedAndBounded(t *testing.T) {
	root := NewRoot()
	apex := root.Add(mustName(t, "example.com."))
	apex.SetZone(&ZoneInfo{Origin: mustName(t, "example.com.")})
	for _, name := range []string{"a.example.com.", "b.example.com.", "z.example.com."} {
		if _, err := root.IngestAt(mustName(t, name), 3600, &rr.A{Addr: net.ParseIP("1.1.1.1")}); err != nil {
			t.Fatal(err)
		}
	}

	var names []string
	for n := apex.Next(apex); n != nil; n = n.Next(apex) {
		names = append(names, n.Name().String())
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 descendants, got %v", names)
	}
	if names[0] != "a.example.com." || names[2] != "z.example.com." {
		t.Fatalf("unexpected traversal order: %v", names)
	}
}

func TestLoadFileBuildsZoneTree(t *testing.T) {
	const zoneText = `$ORIGIN example.com.
$TTL 3600
@       IN SOA  ns1.example.com. hostmaster.example.com. 1 7200 3600 1209600 3600
@       IN NS   ns1.example.com.
ns1     IN A    192.0.2.1
www     IN A    192.0.2.2
        IN A    192.0.2.3
mail    IN MX   10 mail.example.com.
`
	root := NewRoot()
	apex, err := LoadFile(root, mustName(t, "example.com."), strings.NewReader(zoneText))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !apex.IsApex() {
		t.Fatalf("expected apex node to be marked as a zone")
	}
	if apex.Get(dnsenum.TypeSOA) == nil {
		t.Fatalf("expected SOA at apex")
	}
	res := Find(root, mustName(t, "www.example.com."), true)
	if !res.Matched {
		t.Fatalf("expected www.example.com. to resolve")
	}
	set := res.Node.Get(dnsenum.TypeA)
	if set == nil || len(set.Records) != 2 {
		t.Fatalf("expected 2 A records at www, got %+v", set)
	}
}

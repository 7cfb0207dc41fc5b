// Package zone implements the zone tree: a trie of ZoneNodes keyed by
// label, each holding per-type RRSets, traversed by add/find/next/prev
// per RFC 1034 §4.3.2.
package zone

import (
	"errors"
	"sort"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
)

// DefaultTTL is used for an RRSet whose TTL wasn't specified at ingest.
const DefaultTTL = 3600

// ErrCNAMEConflict is returned when a CNAME is added alongside any
// other non-NSEC RRSet at the same node, in either order.
var ErrCNAMEConflict = errors.New("zone: CNAME cannot coexist with other record types at a node")

// RRSet is the ordered contents of one (owner, type) pair: a TTL and
// the records themselves. RRSIGs covering this type land in Sigs
// instead of being mixed into Records.
type RRSet struct {
	TTL     uint32
	Records []rr.RRGen
	Sigs    []*rr.RRSIG
}

// ZoneNode is one trie node, keyed by Label relative to its parent.
type ZoneNode struct {
	label    dnsname.Label
	parent   *ZoneNode
	children map[string]*ZoneNode // keyed by foldedKey(label)
	order    []string             // insertion-independent sorted keys, rebuilt lazily
	dirty    bool

	rrsets map[dnsenum.DNSType]*RRSet

	// zone is non-nil only at a zone apex: the node at which a zone
	// was loaded via LoadFile or received whole via AXFR.
	zone *ZoneInfo
}

// ZoneInfo marks a node as an apex and carries the zone's own identity.
type ZoneInfo struct {
	Origin dnsname.Name
	Serial uint32
}

// NewRoot returns a fresh, empty root ZoneNode (the "." trie root).
func NewRoot() *ZoneNode {
	return &ZoneNode{children: make(map[string]*ZoneNode)}
}

func foldedKey(l dnsname.Label) string {
	b := make([]byte, len(l))
	for i, c := range l {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

// Label returns the node's own label (empty at the root).
func (n *ZoneNode) Label() dnsname.Label { return n.label }

// Parent returns the node's parent, or nil at the root.
func (n *ZoneNode) Parent() *ZoneNode { return n.parent }

// IsApex reports whether this node owns zone data of its own.
func (n *ZoneNode) IsApex() bool { return n.zone != nil }

// Zone returns the node's ZoneInfo, or nil if it is not an apex.
func (n *ZoneNode) Zone() *ZoneInfo { return n.zone }

// SetZone marks n as a zone apex.
func (n *ZoneNode) SetZone(z *ZoneInfo) { n.zone = z }

// IsDelegationPoint reports whether n carries an NS RRSet and is not
// itself a zone apex — i.e. it is a delegation cut inside this zone.
func (n *ZoneNode) IsDelegationPoint() bool {
	if n.zone != nil {
		return false
	}
	_, ok := n.rrsets[dnsenum.TypeNS]
	return ok
}

// RRSets returns the node's type->RRSet map directly; callers must not
// mutate it outside Add/ingest helpers.
func (n *ZoneNode) RRSets() map[dnsenum.DNSType]*RRSet { return n.rrsets }

// Get returns the RRSet for t at this node, or nil if absent.
func (n *ZoneNode) Get(t dnsenum.DNSType) *RRSet {
	if n.rrsets == nil {
		return nil
	}
	return n.rrsets[t]
}

// Name reconstructs this node's fully-qualified Name by walking parents.
func (n *ZoneNode) Name() dnsname.Name {
	var labels []dnsname.Label
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		labels = append(labels, cur.label)
	}
	return dnsname.NewName(labels...)
}

// Add walks name's labels apex-ward from the root, creating nodes on
// demand, and returns the addressed node. Idempotent: re-adding an
// existing name returns the same node without modification.
func (n *ZoneNode) Add(name dnsname.Name) *ZoneNode {
	cur := n
	for i := len(name.Labels) - 1; i >= 0; i-- {
		lbl := name.Labels[i]
		key := foldedKey(lbl)
		if cur.children == nil {
			cur.children = make(map[string]*ZoneNode)
		}
		child, ok := cur.children[key]
		if !ok {
			child = &ZoneNode{label: lbl, parent: cur, children: make(map[string]*ZoneNode)}
			cur.children[key] = child
			cur.dirty = true
		}
		cur = child
	}
	return cur
}

// Child looks up an immediate child by label without creating it.
func (n *ZoneNode) Child(lbl dnsname.Label) (*ZoneNode, bool) {
	if n.children == nil {
		return nil, false
	}
	c, ok := n.children[foldedKey(lbl)]
	return c, ok
}

// Wildcard looks up this node's "*" child, if any.
func (n *ZoneNode) Wildcard() (*ZoneNode, bool) {
	return n.Child(dnsname.Label("*"))
}

// sortedKeys returns the node's child keys in case-insensitive,
// then-raw-byte order, caching the result until the next Add.
func (n *ZoneNode) sortedKeys() []string {
	if !n.dirty && n.order != nil {
		return n.order
	}
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	n.order = keys
	n.dirty = false
	return keys
}

// ingest adds rec's RR to the RRSet for its type at n, honoring the
// CNAME-exclusivity and RRSIG-routing invariants. ttl is applied the
// first time a type's RRSet is created.
func (n *ZoneNode) ingest(ttl uint32, record rr.RRGen) error {
	if n.rrsets == nil {
		n.rrsets = make(map[dnsenum.DNSType]*RRSet)
	}
	if sig, ok := record.(*rr.RRSIG); ok {
		set := n.rrsets[dnsenum.DNSType(sig.TypeCovered)]
		if set == nil {
			set = &RRSet{TTL: ttl}
			n.rrsets[dnsenum.DNSType(sig.TypeCovered)] = set
		}
		set.Sigs = append(set.Sigs, sig)
		return nil
	}

	t := record.Type()
	if t == dnsenum.TypeCNAME {
		for other, set := range n.rrsets {
			if other == dnsenum.TypeNSEC || len(set.Records) == 0 {
				continue
			}
			return ErrCNAMEConflict
		}
	} else if t != dnsenum.TypeNSEC {
		if cn := n.rrsets[dnsenum.TypeCNAME]; cn != nil && len(cn.Records) > 0 {
			return ErrCNAMEConflict
		}
	}

	set := n.rrsets[t]
	if set == nil {
		set = &RRSet{TTL: ttl}
		n.rrsets[t] = set
	}
	set.Records = append(set.Records, record)
	return nil
}

// IngestAt walks to (creating if needed) the node addressed by name and
// ingests record there with the given TTL.
func (n *ZoneNode) IngestAt(name dnsname.Name, ttl uint32, record rr.RRGen) (*ZoneNode, error) {
	target := n.Add(name)
	if err := target.ingest(ttl, record); err != nil {
		return target, err
	}
	return target, nil
}

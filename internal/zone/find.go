package zone

import "github.com/nsroot/nsroot/internal/dnsname"

// Result describes where a Find descent stopped.
type Result struct {
	// Node is the last node reached: the matched node on a hit, or the
	// node below which the remaining labels don't exist on a miss.
	Node *ZoneNode
	// Matched reports whether name was fully consumed (exact or
	// wildcard-synthesized). false means NXDOMAIN relative to Node.
	Matched bool
	// Wildcard reports whether Matched was reached via "*" synthesis.
	Wildcard bool
	// ZoneCut is the most recent delegation point (an NS-carrying node
	// that is not itself a zone apex) seen along the walk, or nil.
	ZoneCut *ZoneNode
	// Apex is the closest zone-apex ancestor of Node (inclusive).
	Apex *ZoneNode
}

// Find descends root following name's labels apex-ward to least-specific,
// per RFC 1034 §4.3.2: at each step it notes delegation points, and, if
// wildcards is set and an exact child is missing, falls back to a "*"
// child that consumes the rest of the query as a synthesized match.
func Find(root *ZoneNode, name dnsname.Name, wildcards bool) Result {
	cur := root
	var apex *ZoneNode
	var cut *ZoneNode
	if cur.IsApex() {
		apex = cur
	}

	for i := len(name.Labels) - 1; i >= 0; i-- {
		if cur.IsApex() {
			apex = cur
		} else if cur.IsDelegationPoint() {
			cut = cur
		}

		lbl := name.Labels[i]
		if child, ok := cur.Child(lbl); ok {
			cur = child
			continue
		}
		if wildcards {
			if wc, ok := cur.Wildcard(); ok {
				return Result{Node: wc, Matched: true, Wildcard: true, ZoneCut: cut, Apex: apex}
			}
		}
		return Result{Node: cur, Matched: false, ZoneCut: cut, Apex: apex}
	}

	if cur.IsApex() {
		apex = cur
	} else if cur.IsDelegationPoint() {
		cut = cur
	}
	return Result{Node: cur, Matched: true, ZoneCut: cut, Apex: apex}
}

// BestZone walks root toward name and returns the closest zone-apex
// ancestor found along the way (name need not exist below it), or nil
// if no zone covers name at all.
func BestZone(root *ZoneNode, name dnsname.Name) *ZoneNode {
	cur := root
	var best *ZoneNode
	if cur.IsApex() {
		best = cur
	}
	for i := len(name.Labels) - 1; i >= 0; i-- {
		child, ok := cur.Child(name.Labels[i])
		if !ok {
			break
		}
		cur = child
		if cur.IsApex() {
			best = cur
		}
	}
	return best
}

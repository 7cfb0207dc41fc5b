// Package resolver implements the iterative resolution algorithm:
// depth-bounded descent from a configurable root hint set, a global
// query budget, CNAME chasing, and in-bailiwick glue acceptance.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/metrics"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
)

// DefaultQueryBudget caps the number of outbound probes a single
// resolution may spend before giving up with ErrTooManyQueries.
const DefaultQueryBudget = 300

// maxDepth bounds recursive descent independently of the query budget,
// guarding against referral loops that would otherwise spend the whole
// budget without ever tripping the (server, qname, qtype) skip-list.
const maxDepth = 30

var (
	// ErrTooManyQueries is returned once a resolution has spent its
	// entire query budget without reaching a terminal answer, or when
	// recursion goes deeper than maxDepth.
	ErrTooManyQueries = errors.New("resolver: exceeded query budget")

	// ErrNXDomain is returned the moment any authoritative server
	// answers NXDOMAIN for the name actually being asked; it unwinds
	// every level of recursion immediately.
	ErrNXDomain = errors.New("resolver: NXDOMAIN")

	errSkipped = errors.New("resolver: server/name/type pair is skip-listed")
)

// DefaultRootHints lists the IANA root server addresses. Shuffled at
// the start of each resolveAt call for load balancing and resilience,
// the same rationale the teacher's recursiveResolver carries.
var DefaultRootHints = []net.IP{
	net.ParseIP("198.41.0.4"),     // a.root-servers.net
	net.ParseIP("170.247.170.2"),  // b.root-servers.net
	net.ParseIP("192.33.4.12"),    // c.root-servers.net
	net.ParseIP("199.7.91.13"),    // d.root-servers.net
	net.ParseIP("192.203.230.10"), // e.root-servers.net
	net.ParseIP("192.5.5.241"),    // f.root-servers.net
	net.ParseIP("192.112.36.4"),   // g.root-servers.net
	net.ParseIP("198.97.190.53"),  // h.root-servers.net
	net.ParseIP("192.36.148.17"),  // i.root-servers.net
	net.ParseIP("192.58.128.30"),  // j.root-servers.net
	net.ParseIP("193.0.14.129"),   // k.root-servers.net
	net.ParseIP("199.7.83.42"),    // l.root-servers.net
	net.ParseIP("202.12.27.33"),   // m.root-servers.net
}

// Answer is one resolved record, detached from the MessageReader it
// came from so callers can hold onto it after the reader is closed.
type Answer struct {
	Owner dnsname.Name
	TTL   uint32
	RR    rr.RRGen
}

// Result is the outcome of one top-level resolution: the final answers
// (empty on NODATA), the chain of CNAME targets followed to reach them,
// and how many outbound queries it took.
type Result struct {
	Answers      []Answer
	Chain        []dnsname.Name
	QueriesSpent int
}

// QueryFunc issues a single query attempt against server and returns
// its parsed response. sendQuery is the production implementation
// (real UDP/TCP); NewWithTransport accepts any other implementation,
// the same seam the teacher's Server.queryFn field provides over
// sendQuery — generalized here to an exported type so a synthetic
// topology (tests, or an embedding caller with its own transport) can
// be wired in from outside this package, not just from within it.
type QueryFunc func(ctx context.Context, server net.IP, qname dnsname.Name, qtype dnsenum.DNSType, id uint16, edns, tcp bool) (*wire.MessageReader, error)

// Resolver drives iterative resolution from a configurable root hint
// set. The zero value is not usable; construct with New or
// NewWithTransport.
type Resolver struct {
	Roots  []net.IP
	Budget int
	Logger *slog.Logger

	queryFn QueryFunc
}

// New returns a Resolver seeded with the IANA root hints and the
// default query budget, issuing queries over real UDP/TCP.
func New(logger *slog.Logger) *Resolver {
	return NewWithTransport(logger, nil)
}

// NewWithTransport is New, but queries are issued through fn instead of
// real sockets. A nil fn falls back to the real UDP/TCP transport.
func NewWithTransport(logger *slog.Logger, fn QueryFunc) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{Roots: DefaultRootHints, Budget: DefaultQueryBudget, Logger: logger}
	if fn != nil {
		r.queryFn = fn
	} else {
		r.queryFn = r.sendQuery
	}
	return r
}

// Resolve runs one full iterative resolution of (qname, qtype) starting
// from r.Roots. A nil error with an empty Answers slice means NODATA;
// ErrNXDomain and ErrTooManyQueries are the two terminal failure modes
// a caller must distinguish for a SERVFAIL/NXDOMAIN response.
func (r *Resolver) Resolve(ctx context.Context, qname dnsname.Name, qtype dnsenum.DNSType) (*Result, error) {
	budget := r.Budget
	if budget == 0 {
		budget = DefaultQueryBudget
	}
	st := &resolution{budget: budget, skip: make(map[skipKey]int)}

	recs, err := r.resolveAt(ctx, st, qname, qtype, 0, dnsname.Root(), r.Roots)
	metrics.ResolverQueriesSpent.Observe(float64(st.spent))

	result := &Result{Chain: st.chain, QueriesSpent: st.spent}
	if err != nil {
		return result, err
	}
	result.Answers = make([]Answer, 0, len(recs))
	for _, rec := range recs {
		result.Answers = append(result.Answers, Answer{Owner: rec.Owner, TTL: rec.TTL, RR: rec.RR})
	}
	return result, nil
}

type skipKey struct {
	server string
	qname  string
	qtype  dnsenum.DNSType
}

// resolution carries the state a single top-level Resolve call shares
// across every recursive resolveAt/getResponse call it makes: the
// query counter, the failure skip-list, and the CNAME chain followed
// so far (preserved across recursion per §4.5 step 6).
type resolution struct {
	budget int
	spent  int
	skip   map[skipKey]int
	chain  []dnsname.Name
}

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/resolver"
	"github.com/nsroot/nsroot/internal/wire"
)

// captureConn is a net.PacketConn stand-in that only records what
// handle writes back; every other method is unused by handle.
type captureConn struct {
	net.PacketConn
	written []byte
	to      net.Addr
}

func (c *captureConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.written = append([]byte(nil), b...)
	c.to = addr
	return len(b), nil
}

var errNoAuthorityReachable = errors.New("resolverd_test: synthetic transport always fails")

// TestHandleAttachesEDEOnGiveUp covers the resolver's terminal-failure
// path: a query budget of 1 guarantees resolveAt gives up immediately,
// and the SERVFAIL response to an EDNS-enabled client should carry an
// Extended DNS Error (RFC 8914) option, not just a bare RCODE.
func TestHandleAttachesEDEOnGiveUp(t *testing.T) {
	qname, err := dnsname.Parse("example.com.")
	if err != nil {
		t.Fatal(err)
	}
	q := wire.Question{Name: qname, QType: dnsenum.TypeA, Class: dnsenum.ClassIN}
	w, err := wire.NewMessageWriter(1, true, q, wire.MaxPacketSize, &wire.EDNS{UDPSize: 1500})
	if err != nil {
		t.Fatal(err)
	}
	w.Header.Response = false
	query, err := w.Serialize()
	w.Close()
	if err != nil {
		t.Fatal(err)
	}

	res := resolver.NewWithTransport(slog.New(slog.NewTextHandler(io.Discard, nil)), func(ctx context.Context, server net.IP, qname dnsname.Name, qtype dnsenum.DNSType, id uint16, edns, tcp bool) (*wire.MessageReader, error) {
		return nil, errNoAuthorityReachable
	})
	res.Roots = []net.IP{net.ParseIP("192.0.2.53")}
	res.Budget = 1

	conn := &captureConn{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handle(context.Background(), conn, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}, query, res, logger)

	if conn.written == nil {
		t.Fatal("expected a response to be written")
	}
	r, err := wire.NewMessageReader(conn.written)
	if err != nil {
		t.Fatalf("NewMessageReader: %v", err)
	}
	defer r.Close()

	if r.Header.RCode != dnsenum.ServFail {
		t.Fatalf("expected SERVFAIL, got %s", r.Header.RCode)
	}
	if r.EDNS == nil {
		t.Fatal("expected an EDNS OPT record in the response")
	}
	const edeOptionCode = 15
	var found bool
	for _, opt := range r.EDNS.Options {
		if opt.Code == edeOptionCode {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an Extended DNS Error option, got options %+v", r.EDNS.Options)
	}
}

package resolver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/wire"
)

// probeTimeout bounds a single UDP/TCP attempt, per §5's "1-second poll
// timeout; on timeout the probe is abandoned and the next candidate
// tried".
const probeTimeout = 1 * time.Second

var (
	errNoResponse       = errors.New("resolver: giving up after 4 attempts")
	errSpuriousResponse = errors.New("resolver: no matching response received on this socket")
)

func generateQueryID() uint16 {
	var id uint16
	_ = binary.Read(rand.Reader, binary.BigEndian, &id)
	return id
}

func buildQuery(id uint16, qname dnsname.Name, qtype dnsenum.DNSType, edns bool) ([]byte, error) {
	q := wire.Question{Name: qname, QType: qtype, Class: dnsenum.ClassIN}
	var e *wire.EDNS
	if edns {
		e = &wire.EDNS{UDPSize: 1500, Version: 0, DO: false}
	}
	w, err := wire.NewMessageWriter(id, false, q, wire.MaxPacketSize, e)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	w.Header.Response = false
	return w.Serialize()
}

// sendQuery is the default queryFn: one real UDP or TCP attempt against
// server, honoring the id-mismatch/QR=0 "ignore and retry" rule over a
// bounded number of stray reads on the same socket.
func (r *Resolver) sendQuery(ctx context.Context, server net.IP, qname dnsname.Name, qtype dnsenum.DNSType, id uint16, edns, tcp bool) (*wire.MessageReader, error) {
	data, err := buildQuery(id, qname, qtype, edns)
	if err != nil {
		return nil, err
	}

	network := "udp"
	if tcp {
		network = "tcp"
	}
	addr := net.JoinHostPort(server.String(), "53")

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(probeTimeout)); err != nil {
		return nil, err
	}

	if tcp {
		framed := make([]byte, 2+len(data))
		framed[0] = byte(len(data) >> 8)
		framed[1] = byte(len(data))
		copy(framed[2:], data)
		if _, err := conn.Write(framed); err != nil {
			return nil, err
		}
	} else if _, err := conn.Write(data); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		var raw []byte
		var rerr error
		if tcp {
			raw, rerr = readFrame(conn)
		} else {
			buf := make([]byte, wire.MaxPacketSize)
			var n int
			n, rerr = conn.Read(buf)
			if rerr == nil {
				raw = buf[:n]
			}
		}
		if rerr != nil {
			return nil, rerr
		}

		resp, perr := wire.NewMessageReader(raw)
		if perr != nil {
			return nil, perr
		}
		if resp.Header.ID != id || !resp.Header.Response {
			resp.Close()
			continue
		}
		return resp, nil
	}
	return nil, errSpuriousResponse
}

// readFrame reads one 2-byte-length-prefixed DNS message off a TCP
// connection — two separate reads, for the length then the body.
func readFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])<<8 | int(lenBuf[1])
	data := make([]byte, n)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// getResponse implements §4.5's get_response: EDNS on the first
// attempt, FORMERR retry without it, TC=1 retry over TCP, a 4-attempt
// give-up, and skip-list bookkeeping on two consecutive failures.
func (r *Resolver) getResponse(ctx context.Context, st *resolution, server net.IP, qname dnsname.Name, qtype dnsenum.DNSType) (*wire.MessageReader, error) {
	key := skipKey{server: server.String(), qname: qname.String(), qtype: qtype}
	if st.skip[key] >= 2 {
		return nil, errSkipped
	}

	useEDNS := true
	var lastErr error
	consecutive := 0

	spend := func() error {
		if st.spent >= st.budget {
			return ErrTooManyQueries
		}
		st.spent++
		return nil
	}

	for attempt := 0; attempt < 4; attempt++ {
		if err := spend(); err != nil {
			return nil, err
		}
		resp, err := r.queryFn(ctx, server, qname, qtype, generateQueryID(), useEDNS, false)
		if err != nil {
			lastErr = err
			consecutive++
			if consecutive >= 2 {
				st.skip[key]++
			}
			continue
		}
		consecutive = 0

		if useEDNS && (resp.Header.RCode == dnsenum.FormErr || resp.FullRCode() == dnsenum.BadVers) {
			resp.Close()
			useEDNS = false
			continue
		}

		if resp.Header.Truncated {
			resp.Close()
			if err := spend(); err != nil {
				return nil, err
			}
			tresp, terr := r.queryFn(ctx, server, qname, qtype, generateQueryID(), useEDNS, true)
			if terr != nil {
				lastErr = terr
				st.skip[key]++
				continue
			}
			return tresp, nil
		}

		return resp, nil
	}

	if lastErr == nil {
		lastErr = errNoResponse
	}
	return nil, lastErr
}

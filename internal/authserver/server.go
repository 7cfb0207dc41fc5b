package authserver

import (
	"context"
	"log/slog"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/metrics"
	"github.com/nsroot/nsroot/internal/sockutil"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

// Server runs an authoritative name server over one address: one UDP
// reader goroutine feeding a pool of WorkerCount workers, plus a TCP
// accept loop that spawns one goroutine per connection.
type Server struct {
	Addr    string
	Handler *Handler
	Logger  *slog.Logger

	WorkerCount int

	limiter  *rateLimiter
	udpQueue chan udpTask
}

type udpTask struct {
	conn net.PacketConn
	addr net.Addr
	data []byte
}

// NewServer builds a Server answering from root's zone tree.
func NewServer(addr string, root *zone.ZoneNode, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Addr:        addr,
		Handler:     &Handler{Root: root, VersionString: "nsroot"},
		Logger:      logger,
		WorkerCount: runtime.NumCPU() * 4,
		limiter:     newRateLimiter(2000, 1000),
		udpQueue:    make(chan udpTask, 4096),
	}
}

// Run listens on Addr until ctx is canceled, serving UDP and TCP in
// parallel. It returns once both listeners have been torn down.
func (s *Server) Run(ctx context.Context) error {
	s.Logger.Info("authoritative server starting", "addr", s.Addr)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.limiter.Cleanup()
			}
		}
	}()

	pc, err := sockutil.ListenPacket(ctx, s.Addr)
	if err != nil {
		return err
	}
	tl, err := sockutil.Listen(ctx, s.Addr)
	if err != nil {
		pc.Close()
		return err
	}

	for i := 0; i < s.WorkerCount; i++ {
		go s.udpWorker()
	}
	go s.udpReadLoop(pc)
	go s.tcpAcceptLoop(tl)

	<-ctx.Done()
	pc.Close()
	tl.Close()
	return nil
}

func (s *Server) udpReadLoop(pc net.PacketConn) {
	buf := make([]byte, wire.MaxPacketSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.udpQueue <- udpTask{conn: pc, addr: addr, data: data}:
		default:
			// Worker pool saturated: drop rather than block the reader.
		}
	}
}

func (s *Server) udpWorker() {
	for task := range s.udpQueue {
		s.handleUDP(task)
	}
}

func (s *Server) sourceIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (s *Server) handleUDP(task udpTask) {
	start := time.Now()
	if !s.limiter.Allow(s.sourceIP(task.addr)) {
		metrics.RateLimitedTotal.Inc()
		return
	}
	resp := s.Handler.Handle(task.data, "udp")
	if resp == nil {
		return
	}
	if _, err := task.conn.WriteTo(resp, task.addr); err != nil {
		s.Logger.Warn("udp write failed", "error", err)
	}
	s.observe("udp", resp, start)
}

func (s *Server) tcpAcceptLoop(tl net.Listener) {
	for {
		conn, err := tl.Accept()
		if err != nil {
			return
		}
		go s.handleTCP(conn)
	}
}

// handleTCP reads length-prefixed messages off conn until EOF or a
// framing error, dispatching AXFR to its own streaming path and
// everything else through the ordinary Handle. The connection is
// always closed on exit, matching §5's "TCP worker always closes its
// socket" policy.
func (s *Server) handleTCP(conn net.Conn) {
	defer conn.Close()
	if !s.limiter.Allow(s.sourceIP(conn.RemoteAddr())) {
		metrics.RateLimitedTotal.Inc()
		return
	}
	for {
		data, err := ReadAXFRRequest(conn)
		if err != nil {
			return
		}

		qr, err := wire.NewMessageReader(data)
		if err == nil && qr.HasQ && qr.Question.QType == dnsenum.TypeAXFR {
			txID := uuid.NewString()
			qname := qr.Question.Name
			qr.Close()
			s.Logger.Info("AXFR starting", "transfer_id", txID, "zone", qname.String())
			start := time.Now()
			if err := s.Handler.AXFR(conn, 0, qname); err != nil {
				s.Logger.Warn("AXFR failed", "transfer_id", txID, "error", err)
				metrics.AXFRTransfersTotal.WithLabelValues("error").Inc()
				s.sendAXFRError(conn, qname)
				return
			}
			metrics.AXFRTransfersTotal.WithLabelValues("ok").Inc()
			metrics.QueryDuration.WithLabelValues("tcp").Observe(time.Since(start).Seconds())
			continue
		}
		if qr != nil {
			qr.Close()
		}

		start := time.Now()
		resp := s.Handler.Handle(data, "tcp")
		if resp == nil {
			continue
		}
		framed := make([]byte, 2+len(resp))
		framed[0] = byte(len(resp) >> 8)
		framed[1] = byte(len(resp))
		copy(framed[2:], resp)
		if _, err := conn.Write(framed); err != nil {
			return
		}
		s.observe("tcp", resp, start)
	}
}

func (s *Server) sendAXFRError(conn net.Conn, qname dnsname.Name) {
	q := wire.Question{Name: qname, QType: dnsenum.TypeAXFR, Class: dnsenum.ClassIN}
	w, err := wire.NewMessageWriter(0, false, q, wire.MaxPacketSize, nil)
	if err != nil {
		return
	}
	defer w.Close()
	w.Header.RCode = dnsenum.Refused
	out, err := w.Serialize()
	if err != nil {
		return
	}
	framed := make([]byte, 2+len(out))
	framed[0] = byte(len(out) >> 8)
	framed[1] = byte(len(out))
	copy(framed[2:], out)
	_, _ = conn.Write(framed)
}

func (s *Server) observe(proto string, resp []byte, start time.Time) {
	metrics.QueryDuration.WithLabelValues(proto).Observe(time.Since(start).Seconds())
	qr, err := wire.NewMessageReader(resp)
	if err != nil {
		return
	}
	defer qr.Close()
	qtype := "?"
	if qr.HasQ {
		qtype = qr.Question.QType.String()
	}
	metrics.QueriesTotal.WithLabelValues(proto, qtype, qr.Header.RCode.String()).Inc()
}

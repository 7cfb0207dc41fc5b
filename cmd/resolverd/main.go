// Command resolverd is a recursive resolver server: it listens on UDP
// and answers every inbound query by running the iterative resolution
// algorithm itself, one goroutine per datagram.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/resolver"
	"github.com/nsroot/nsroot/internal/sockutil"
	"github.com/nsroot/nsroot/internal/wire"
)

const perQueryTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("resolverd failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(args) != 1 {
		return fmt.Errorf("usage: resolverd addr[:port]")
	}
	addr := args[0]
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}

	conn, err := sockutil.ListenPacket(ctx, addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer conn.Close()
	logger.Info("resolverd listening", "addr", addr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	res := resolver.New(logger)
	buf := make([]byte, wire.MaxPacketSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		query := make([]byte, n)
		copy(query, buf[:n])
		go handle(ctx, conn, from, query, res, logger)
	}
}

func handle(ctx context.Context, conn net.PacketConn, from net.Addr, query []byte, res *resolver.Resolver, logger *slog.Logger) {
	qr, err := wire.NewMessageReader(query)
	if err != nil {
		return
	}
	defer qr.Close()
	if qr.Header.Response || !qr.HasQ {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, perQueryTimeout)
	defer cancel()

	result, resErr := res.Resolve(reqCtx, qr.Question.Name, qr.Question.QType)

	w, err := wire.NewMessageWriter(qr.Header.ID, qr.Header.RecursionDesired, qr.Question, wire.MaxPacketSize, qr.EDNS)
	if err != nil {
		logger.Error("build response", "error", err)
		return
	}
	defer w.Close()
	w.Header.RecursionAvailable = true

	switch {
	case resErr == nil:
		w.Header.RCode = dnsenum.NoError
		for _, a := range result.Answers {
			if err := w.PutRR(dnsenum.SectionAnswer, a.Owner, a.TTL, dnsenum.ClassIN, a.RR); err != nil {
				break
			}
		}
	case errors.Is(resErr, resolver.ErrNXDomain):
		w.Header.RCode = dnsenum.NXDomain
	default:
		w.Header.RCode = dnsenum.ServFail
		if qr.EDNS != nil {
			code := wire.EdeOther
			if reqCtx.Err() != nil {
				code = wire.EdeNoReachableAuthority
			}
			qr.EDNS.AddEDE(code, "")
		}
	}

	out, err := w.Serialize()
	if err != nil {
		logger.Error("serialize response", "error", err)
		return
	}
	if _, err := conn.WriteTo(out, from); err != nil {
		logger.Error("write response", "error", err)
	}
}

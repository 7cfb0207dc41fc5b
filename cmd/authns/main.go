// Command authns is the authoritative name server: it loads one or more
// zones from disk and answers queries for them over UDP and TCP on
// every listed address.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsroot/nsroot/internal/authserver"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/zone"
)

type zoneFlag []string

func (z *zoneFlag) String() string { return strings.Join(*z, ",") }
func (z *zoneFlag) Set(v string) error {
	*z = append(*z, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("authns failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	fs := flag.NewFlagSet("authns", flag.ContinueOnError)
	var zones zoneFlag
	fs.Var(&zones, "zone", "name=path.zone, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addrs := fs.Args()
	if len(addrs) == 0 {
		return fmt.Errorf("usage: authns [-zone name=path ...] addr[:port] [addr[:port] ...]")
	}

	root := zone.NewRoot()
	for _, z := range zones {
		name, path, ok := strings.Cut(z, "=")
		if !ok {
			return fmt.Errorf("invalid -zone %q, want name=path", z)
		}
		origin, err := dnsname.Parse(name)
		if err != nil {
			return fmt.Errorf("zone %q: %w", name, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("zone %q: %w", name, err)
		}
		_, err = zone.LoadFile(root, origin, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("zone %q: %w", name, err)
		}
		logger.Info("zone loaded", "name", name, "path", path)
	}

	errCh := make(chan error, len(addrs))
	for _, addr := range addrs {
		srv := authserver.NewServer(addr, root, logger)
		go func() { errCh <- srv.Run(ctx) }()
	}

	// A short grace period to catch a bind failure before declaring
	// startup successful, the same shape the teacher's main.go uses
	// around its own BGP speaker startup check.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-time.After(500 * time.Millisecond):
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

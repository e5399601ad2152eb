//go:build unix

// Command outpostd is the server process entrypoint (SPEC_FULL.md §6): a
// single positional argument names the base directory holding conf.toml,
// the data tables, and the save directory; the engine then multiplexes
// wire frames on stdin/stdout until it is told to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/riftkeep/outpostd/server/auth"
	"github.com/riftkeep/outpostd/server/console"
	"github.com/riftkeep/outpostd/server/data"
	"github.com/riftkeep/outpostd/server/engine"
	"github.com/riftkeep/outpostd/server/wire"
	"github.com/riftkeep/outpostd/server/world/save"
)

func main() {
	if err := run(); err != nil {
		slog.Error("outpostd: fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		return fmt.Errorf("usage: %s <base-dir> [admin-fifo]", os.Args[0])
	}
	baseDir := os.Args[1]
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	uc, err := engine.LoadUserConfig(filepath.Join(baseDir, "conf.toml"))
	if err != nil {
		return fmt.Errorf("outpostd: load config: %w", err)
	}
	conf, err := uc.Config(baseDir, log)
	if err != nil {
		return fmt.Errorf("outpostd: resolve config: %w", err)
	}

	tables, err := data.Load(conf.DataDir)
	if err != nil {
		return fmt.Errorf("outpostd: load data tables: %w", err)
	}

	store, err := save.Open(conf.SaveDir)
	if err != nil {
		return fmt.Errorf("outpostd: open save store: %w", err)
	}

	authStore, err := auth.Open(conf.AuthDBPath, conf.TicketSecret)
	if err != nil {
		return fmt.Errorf("outpostd: open auth store: %w", err)
	}
	defer authStore.Close()

	decoder := wire.NewDecoder(os.Stdin)
	e := engine.NewEngine(conf, store, tables, tables, authStore, decoder, os.Stdout, time.Now().UnixNano())
	if err := e.Bootstrap(); err != nil {
		return fmt.Errorf("outpostd: bootstrap: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	if len(os.Args) == 3 {
		startAdminConsole(ctx, os.Args[2], e, log)
	}

	if err := e.Run(ctx); err != nil {
		return fmt.Errorf("outpostd: run: %w", err)
	}
	return nil
}

// startAdminConsole opens the operator-provided admin FIFO (created ahead
// of time with mkfifo; the wire protocol's own stdin/stdout pipe is
// already spoken for by the client transport, so the admin console gets
// its own channel rather than os.Stdin) and runs console.Console against
// it in the background until ctx is cancelled.
func startAdminConsole(ctx context.Context, fifoPath string, e *engine.Engine, log *slog.Logger) {
	f, err := os.OpenFile(fifoPath, os.O_RDONLY, 0)
	if err != nil {
		log.Error("outpostd: open admin fifo", "path", fifoPath, "err", err)
		return
	}
	c := console.New(e, log).WithReader(f)
	go func() {
		defer f.Close()
		c.Run(ctx)
	}()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, the
// two signals a clean process-manager stop/kill sends; SIGHUP is left to
// the wire protocol's own ctrlRestart control frame (sent by whatever
// supervises the re-exec) rather than triggering it here, since restart
// needs the replacement process already spawned before this one persists
// and exits.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	return ctx, cancel
}

// Command altilium-server boots the Altilium key-value store: it loads
// configuration, recovers state from the last snapshot and AOF, then
// serves RESP connections until signaled to shut down. The startup
// sequence and exit-code convention follow the teacher's cmd/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ClaytonFelipe/Altilium-db/internal/aof"
	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/config"
	"github.com/ClaytonFelipe/Altilium-db/internal/expire"
	"github.com/ClaytonFelipe/Altilium-db/internal/logging"
	"github.com/ClaytonFelipe/Altilium-db/internal/server"
	"github.com/ClaytonFelipe/Altilium-db/internal/snapshot"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// Exit codes, per the operating contract (spec.md §6): 0 clean shutdown,
// 1 configuration error (including a listener that fails to bind — the
// server cannot start with the host/port it was given), 2 unrecoverable
// persistence corruption during recovery, 3 a fatal runtime error such
// as an AOF write failing under the "always" fsync policy.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitPersistenceFatal = 2
	exitRuntimeFatal     = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "altilium-server: %v\n", err)
		return exitConfigError
	}

	log := logging.Default("altilium", logging.ParseLevel(cfg.LogLevel))
	log.Infof("starting altilium-server on %s", cfg.Addr())

	s := store.New()

	log.Infof("loading snapshot from %s", cfg.SnapshotPath)
	entries, err := snapshot.Load(cfg.SnapshotPath)
	if err != nil {
		log.Errorf("snapshot load failed: %v", err)
		return exitPersistenceFatal
	}
	s.LoadAll(entries)

	log.Infof("replaying AOF from %s", cfg.AOFPath)
	if err := aof.Replay(cfg.AOFPath, s); err != nil {
		if aof.IsCorruption(err) {
			log.Errorf("aof replay found unrecoverable corruption: %v", err)
			return exitPersistenceFatal
		}
		log.Errorf("aof replay failed: %v", err)
		return exitPersistenceFatal
	}
	log.Infof("recovered %d keys", s.Len())

	aofWriter, err := aof.Open(cfg.AOFPath, config.FsyncPolicy(cfg.AOFFsync), log.With("aof"))
	if err != nil {
		log.Errorf("failed to open aof for writing: %v", err)
		return exitPersistenceFatal
	}
	defer aofWriter.Close()

	commandBus := bus.New(bus.DefaultCapacity)
	writerConsumer := commandBus.Subscribe()
	aofConsumer := commandBus.Subscribe()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Errorf("failed to bind %s: %v", cfg.Addr(), err)
		return exitConfigError
	}

	srv := server.New(s, commandBus, cfg.RequirePass, log.With("conn"))
	snapStatus := snapshot.NewStatus()
	var admin *server.AdminServer
	if cfg.AdminBindAddr != "" {
		admin = server.NewAdminServer(cfg.AdminBindAddr, srv, commandBus, s, snapStatus)
	}
	sweeper := expire.New(s, commandBus)
	sweeper.TickInterval = cfg.ExpireTick()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wt := &server.WriterTask{Store: s}
		return wt.Run(gctx, writerConsumer)
	})
	g.Go(func() error { return aofWriter.Run(gctx, aofConsumer) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		sn := &snapshot.Snapshotter{Store: s, Path: cfg.SnapshotPath, Interval: cfg.SnapshotInterval(), Log: log.With("snapshot"), Status: snapStatus}
		return sn.Run(gctx)
	})
	if admin != nil {
		g.Go(func() error { return admin.Run(gctx) })
	}
	g.Go(func() error { return srv.Serve(gctx, ln) })

	runErr := g.Wait()
	if runErr != nil && gctx.Err() == nil {
		log.Errorf("server error: %v", runErr)
	}

	log.Infof("shutting down, flushing final snapshot")
	if err := snapshot.Save(s, cfg.SnapshotPath); err != nil {
		log.Errorf("final snapshot save failed: %v", err)
	}

	if aof.IsFatal(runErr) {
		return exitRuntimeFatal
	}
	return exitOK
}

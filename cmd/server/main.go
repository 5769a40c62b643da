package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"classicraft.net/internal/config"
	"classicraft.net/internal/persistence/archive"
	persistlog "classicraft.net/internal/persistence/log"
	"classicraft.net/internal/sim/bus"
	"classicraft.net/internal/sim/scheduler"
	"classicraft.net/internal/sim/world"
	"classicraft.net/internal/transport/tcp"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "server config path (defaults are used if missing)")
		addr       = flag.String("addr", "", "tcp listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load config: %v", err)
		}
		logger.Printf("config not found (%s); using defaults", *configPath)
		cfg = config.Defaults()
	}
	if s := strings.TrimSpace(*addr); s != "" {
		cfg.Listen = s
	}
	if s := strings.TrimSpace(*dataDir); s != "" {
		if cfg.LevelPath == filepath.Join(cfg.DataDir, "level.lvl") {
			cfg.LevelPath = ""
		}
		cfg.DataDir = s
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	entries, err := cfg.ScheduleEntries()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, entries, *disableDB, os.Stdout); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run wires the world, scheduler and listener and blocks until ctx is done
// and the world has drained its bus and written a final save.
func run(ctx context.Context, cfg config.Config, entries []scheduler.Entry, disableDB bool, out io.Writer) error {
	newLogger := func(prefix string) *log.Logger {
		return log.New(out, prefix, log.LstdFlags|log.Lmicroseconds)
	}
	logger := newLogger("[server] ")

	// Optional read-model index (does not affect world state).
	idx, err := openRuntimeIndex(cfg, disableDB, logger)
	if err != nil {
		return fmt.Errorf("open index backend: %w", err)
	}

	w := world.New(cfg.WorldConfig(), newLogger("[world] "))

	journal := persistlog.NewJournalLogger(cfg.DataDir)
	auditLog := persistlog.NewAuditLogger(cfg.DataDir)
	w.SetEventLogger(multiEventLogger{a: journal, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	rot := archive.NewRotator(cfg.BackupDir(), cfg.Backups.EverySaves, cfg.Backups.Keep, logger)
	if idx != nil {
		rot.SetRecorder(idx)
	}
	w.SetSaveHook(rot)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	q, root := bus.New[world.Command]()

	worldDone := make(chan error, 1)
	go func() { worldDone <- w.Run(context.Background(), q) }()

	sched := scheduler.New(entries, root.Clone(), newLogger("[scheduler] "))
	schedDone := make(chan struct{})
	go func() {
		_ = sched.Run(ctx)
		close(schedDone)
	}()

	srv := tcp.NewServer(root.Clone(), cfg.WriteTimeout(), newLogger("[tcp] "))
	serveErr := srv.ListenAndServe(ctx, cfg.Listen)
	if serveErr != nil {
		logger.Printf("serve: %v", serveErr)
	}
	cancel()
	<-schedDone

	// Every connection has been removed by now; flush the level once more.
	logger.Printf("shutting down")
	root.Send(world.SystemMessage{Text: "Server stopping."})
	root.Send(world.Save{})
	root.Close()
	if err := <-worldDone; err != nil && !errors.Is(err, bus.ErrClosed) {
		logger.Printf("world: %v", err)
	}

	if err := journal.Close(); err != nil {
		logger.Printf("close journal: %v", err)
	}
	if err := auditLog.Close(); err != nil {
		logger.Printf("close audit log: %v", err)
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}
	return serveErr
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

func (m multiEventLogger) WriteEvent(entry world.EventLogEntry) error {
	var errs []error
	if m.a != nil {
		errs = append(errs, m.a.WriteEvent(entry))
	}
	if m.b != nil {
		errs = append(errs, m.b.WriteEvent(entry))
	}
	return errors.Join(errs...)
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var errs []error
	if m.a != nil {
		errs = append(errs, m.a.WriteAudit(entry))
	}
	if m.b != nil {
		errs = append(errs, m.b.WriteAudit(entry))
	}
	return errors.Join(errs...)
}

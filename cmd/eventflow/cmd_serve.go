package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/eventflow/internal/httpapi"
	"github.com/user/eventflow/internal/notify"
	"github.com/user/eventflow/internal/processor"
	"github.com/user/eventflow/internal/scheduler"
	"github.com/user/eventflow/internal/state"
	"github.com/user/eventflow/internal/storage/memory"
	"github.com/user/eventflow/internal/storage/postgres"
	redisstore "github.com/user/eventflow/internal/storage/redis"
	"github.com/user/eventflow/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the eventflow daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "eventflow.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event store: Postgres when configured, JSONL event log otherwise.
	var events types.EventStore
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		events = pg
		slog.Info("event store: postgres")
	} else {
		events = state.NewEventLog(cfg.DataDir)
		slog.Info("event store: jsonl", "data_dir", cfg.DataDir)
	}

	// Counter/behavior stores and the broadcast sink: Redis when configured,
	// in-process otherwise.
	registry := notify.NewRegistry()
	var counters types.CounterStore
	var behavior types.BehaviorStore
	if cfg.Redis.Addr != "" {
		client, err := redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		counters = redisstore.NewCounterStore(client)
		behavior = redisstore.NewBehaviorStore(client)
		registry.Register(cfg.Notify.Channel, redisstore.NewNotifier(client))
		slog.Info("aggregate stores: redis", "addr", cfg.Redis.Addr)
	} else {
		counters = memory.NewCounterStore()
		behavior = memory.NewBehaviorStore()
		registry.Register(cfg.Notify.Channel, memory.NewNotifier())
		slog.Warn("aggregate stores: in-memory (no redis configured)")
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		sink, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("create telegram sink: %w", err)
		}
		registry.Register(cfg.Notify.Channel, sink)
		slog.Info("telegram notifications enabled")
	}

	proc := processor.New(events, counters, behavior, registry, processor.Config{
		BatchCapacity:    cfg.Batch.Capacity,
		Debounce:         time.Duration(cfg.Batch.DebounceMs) * time.Millisecond,
		WriteConcurrency: int64(cfg.Batch.WriteConcurrency),
		BatchTimeout:     time.Duration(cfg.Batch.TimeoutSec) * time.Second,
		CounterTTL:       time.Duration(cfg.Counters.TTLSec) * time.Second,
		BehaviorTTL:      time.Duration(cfg.Behavior.TTLDays) * 24 * time.Hour,
		BehaviorCap:      cfg.Behavior.Cap,
		NotifyChannel:    cfg.Notify.Channel,
	})
	proc.Start(ctx)
	defer proc.Stop()

	sched := scheduler.New(cfg.FlushInterval(), proc.FlushAll)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewServer(proc),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("eventflow started",
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"batch_capacity", cfg.Batch.Capacity,
		"flush_interval", cfg.FlushInterval().String(),
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	// Drain whatever is still queued before the stores go away.
	proc.FlushAll()
	proc.WaitIdle(10 * time.Second)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

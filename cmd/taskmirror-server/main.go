package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/taskmirror/internal/admin"
	"github.com/kazz187/taskmirror/internal/config"
	"github.com/kazz187/taskmirror/internal/dispatcher"
	"github.com/kazz187/taskmirror/internal/eventbus"
	"github.com/kazz187/taskmirror/internal/identity"
	ledgerrepo "github.com/kazz187/taskmirror/internal/ledger/repositoryimpl"
	"github.com/kazz187/taskmirror/internal/linkcache"
	linkrepo "github.com/kazz187/taskmirror/internal/linkcache/repositoryimpl"
	"github.com/kazz187/taskmirror/internal/reconcile"
	"github.com/kazz187/taskmirror/internal/scheduler"
	"github.com/kazz187/taskmirror/internal/source"
	"github.com/kazz187/taskmirror/internal/status"
	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/transform"
	"github.com/kazz187/taskmirror/pkg/clog"
	"github.com/kazz187/taskmirror/pkg/storage"

	server "github.com/kazz187/taskmirror/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	out, closer := clog.Output(os.Stderr, clog.FileConfig{
		Path:       env.LogFile,
		MaxSizeMB:  env.LogFileMaxSizeMB,
		MaxBackups: env.LogFileMaxBackups,
		MaxAgeDays: env.LogFileMaxAgeDays,
	})
	defer closer.Close()
	slog.SetDefault(slog.New(clog.NewHandler(out, env.IsLocal(), env.SlogLevel())))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), storage.S3Config{
			Bucket:   env.S3Bucket,
			Prefix:   env.S3Prefix,
			Region:   env.S3Region,
			Endpoint: env.S3Endpoint,
		})
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Setup API clients
	notion := source.NewNotionClient(source.NotionConfig{
		Token:      env.NotionEnv.Token,
		DatabaseID: env.DatabaseID,
		BaseURL:    env.NotionEnv.BaseURL,
		Version:    env.Version,
		Timeout:    env.RequestTimeout,
	})
	clickup := target.NewClickUpClient(target.ClickUpConfig{
		Token:         env.ClickUpEnv.Token,
		ListID:        env.ListID,
		TeamID:        env.TeamID,
		BaseURL:       env.ClickUpEnv.BaseURL,
		Timeout:       env.RequestTimeout,
		RatePerSecond: env.RatePerSecond,
	})

	// Setup reconciliation pipeline
	bus := eventbus.New()
	resolver := identity.NewResolver(clickup)
	links := linkcache.New(clickup, linkrepo.NewYAMLRepository(store), linkcache.Config{
		TTL:          env.LinkCacheTTL,
		RefreshEvery: env.LinkRefreshEvery,
	})
	disp := dispatcher.New(links, clickup, dispatcher.Config{
		Workers:        env.Workers,
		RequestTimeout: env.RequestTimeout,
	})
	engine := reconcile.NewEngine(
		notion,
		transform.New(resolver),
		resolver,
		links,
		disp,
		ledgerrepo.NewYAMLRepository(store),
		bus,
		reconcile.Config{RecreateDeleted: env.RecreateDeleted},
	)
	tracker := status.NewTracker(bus, engine)
	sched := scheduler.New(engine, scheduler.Config{
		Interval:   env.Interval,
		StartDelay: env.StartDelay,
	})

	srv := server.NewServer(env, admin.NewService(engine, links, tracker, resolver))

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	engine.Warm(ctx)

	var wg conc.WaitGroup
	wg.Go(func() { tracker.Start(ctx) })
	wg.Go(func() { sched.Start(ctx) })
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// Waits for an in-flight cycle to return.
	wg.Wait()
}

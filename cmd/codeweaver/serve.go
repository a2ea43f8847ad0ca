package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rooney011/CodeWeaver/internal/agent"
	"github.com/rooney011/CodeWeaver/internal/api"
	"github.com/rooney011/CodeWeaver/internal/approval"
	"github.com/rooney011/CodeWeaver/internal/archive"
	"github.com/rooney011/CodeWeaver/internal/config"
	"github.com/rooney011/CodeWeaver/internal/diagnosis"
	"github.com/rooney011/CodeWeaver/internal/executor"
	"github.com/rooney011/CodeWeaver/internal/hostmetrics"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/oracle"
	"github.com/rooney011/CodeWeaver/internal/planner"
	"github.com/rooney011/CodeWeaver/internal/projectfs"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Baseline logger for early startup messages
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "codeweaver",
	})

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "codeweaver",
		FilePath:  cfg.LogFile,
	})
	defer logging.Shutdown()

	log.Info().
		Str("version", Version).
		Str("oracle", cfg.OracleProvider).
		Str("project_root", cfg.ProjectRoot).
		Msg("Starting CodeWeaver remediation agent")

	watcher, err := config.NewWatcher(cfg.EnvPath, cfg.LogLevel, logging.SetGlobalLevel)
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable; LOG_LEVEL changes need a restart")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
		watcher.Stop()
	} else {
		defer watcher.Stop()
	}

	runbooks, err := config.LoadRunbooks(cfg.RunbookPath)
	if err != nil {
		return fmt.Errorf("load runbooks: %w", err)
	}

	root, err := projectfs.New(cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("open project root: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, err := oracle.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure oracle: %w", err)
	}

	store, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		return fmt.Errorf("open plan archive: %w", err)
	}
	defer store.Close()

	logs, err := agent.NewLogTailer(cfg.LogDir, cfg.DefaultLogPath, cfg.LogTailLines)
	if err != nil {
		return err
	}

	a, err := agent.New(agent.Deps{
		Logs:        logs,
		Extractor:   diagnosis.NewExtractor(o, root),
		Synthesizer: planner.NewSynthesizer(o, runbooks, root).WithMinConfidence(cfg.MinConfidence),
		Store:       approval.NewStore(),
		Executor: executor.New(executor.Config{
			RecoveryTimeout:   cfg.RecoveryTimeout,
			ScriptTimeout:     cfg.ScriptTimeout,
			ScriptHTTPTimeout: cfg.ScriptHTTPTimeout,
		}, root),
		Archive: store,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, &api.Deps{
		Agent:                a,
		Version:              Version,
		WebhookRatePerMinute: cfg.WebhookRatePerMinute,
		ApprovalTokenHash:    cfg.ApprovalTokenHash,
		HostProbe:            hostmetrics.Collect,
	})
	if cfg.ApprovalTokenHash == "" {
		log.Warn().Msg("CW_APPROVAL_TOKEN_HASH not set; anyone who can reach the API can approve plans")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.WithRequestID(api.WithCORS(mux)),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Agent listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("CodeWeaver stopped")
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/gridjob/internal/adapters/crab"
	"github.com/manthysbr/gridjob/internal/adapters/docker"
	"github.com/manthysbr/gridjob/internal/adapters/duckdb"
	appconfig "github.com/manthysbr/gridjob/internal/config"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/ports"
	"github.com/manthysbr/gridjob/internal/core/services"
	"github.com/manthysbr/gridjob/pkg/kernel"
)

const usage = `usage: gridjob <command>

commands:
  build    build the job descriptor and print it as JSON
  render   print the CRAB configuration for the descriptor
  submit   submit the descriptor with crab and wait for the result
  dryrun   run the wrapper on the first input file in a local container
  serve    run the HTTP API and submission dispatcher

environment:
  GRIDJOB_WORKDIR  directory holding the manifest, card and work areas (default .)
  GRIDJOB_DB_PATH  DuckDB ledger path (default gridjob.db)
  GRIDJOB_ADDR     HTTP listen address for serve (default :8080)
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if len(os.Args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(logger, os.Args[1]); err != nil {
		logger.Error("gridjob failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// app holds the wired components shared by every command
type app struct {
	logger      *slog.Logger
	repo        *duckdb.Repository
	settings    *appconfig.SettingsStore
	workspace   *services.WorkspaceManager
	builder     *services.DescriptorBuilder
	dispatcher  *services.SubmissionDispatcher
	submissions *services.SubmissionService
}

func newApp(logger *slog.Logger) (*app, error) {
	workDir := getenv("GRIDJOB_WORKDIR", ".")

	repo, err := duckdb.NewRepository(getenv("GRIDJOB_DB_PATH", "gridjob.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to init repository: %w", err)
	}

	settings, err := appconfig.NewSettingsStore(logger, repo)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to init settings store: %w", err)
	}
	cfg := settings.GetConfig()

	buildCfg := domain.DefaultBuildConfig()
	if !filepath.IsAbs(buildCfg.Manifest) {
		buildCfg.Manifest = filepath.Join(workDir, buildCfg.Manifest)
	}
	builder := services.NewDescriptorBuilder(logger, buildCfg).WithStorageUser(cfg.StorageUser)

	workspace := services.NewWorkspaceManager(workDir)
	dispatcher := services.NewSubmissionDispatcher(logger, services.DispatcherConfig{
		MaxConcurrentSubmissions: cfg.Submitter.MaxConcurrent,
	})
	submissions := services.NewSubmissionService(logger, builder, repo, dispatcher, newSubmitter(logger, cfg, workspace))

	// Hot-reload: settings changes apply to the next build and submission
	settings.OnChange(func(cfg *domain.AppConfig) {
		submissions.UpdateBuilder(builder.WithStorageUser(cfg.StorageUser))
		submissions.UpdateSubmitter(newSubmitter(logger, cfg, workspace))
		logger.Info("builder and submitter reloaded from settings change")
	})

	return &app{
		logger:      logger,
		repo:        repo,
		settings:    settings,
		workspace:   workspace,
		builder:     builder,
		dispatcher:  dispatcher,
		submissions: submissions,
	}, nil
}

func newSubmitter(logger *slog.Logger, cfg *domain.AppConfig, workspace *services.WorkspaceManager) ports.Submitter {
	timeout := time.Duration(cfg.Submitter.CommandTimeout) * time.Second
	return crab.NewSubmitter(logger, cfg.Submitter.CrabBinary, timeout, workspace)
}

func run(logger *slog.Logger, command string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.repo.Close()

	switch command {
	case "build":
		d, err := a.builder.Build()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)

	case "render":
		d, err := a.submissions.Preview()
		if err != nil {
			return err
		}
		return crab.Render(os.Stdout, d)

	case "submit":
		sub, err := a.submissions.SubmitAndWait(ctx)
		if sub.Output != nil {
			fmt.Fprint(os.Stdout, *sub.Output)
		}
		if err != nil {
			return err
		}
		logger.Info("submission recorded", "submission_id", sub.ID, "status", sub.Status)
		return nil

	case "dryrun":
		runner, err := docker.NewDryRunner(logger, a.settings.GetConfig().DryRun.Image, a.workspace)
		if err != nil {
			return err
		}
		defer runner.Close()

		d, err := a.submissions.Preview()
		if err != nil {
			return err
		}
		result, err := runner.Run(ctx, d)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, result.Logs)
		if result.ExitCode != 0 {
			return fmt.Errorf("wrapper exited with code %d", result.ExitCode)
		}
		return nil

	case "serve":
		return a.serve(ctx)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) serve(ctx context.Context) error {
	var dryRunner ports.DryRunner
	runner, err := docker.NewDryRunner(a.logger, a.settings.GetConfig().DryRun.Image, a.workspace)
	if err != nil {
		a.logger.Warn("docker unavailable, dry runs disabled (non-fatal)", "error", err)
	} else {
		defer runner.Close()
		dryRunner = runner
	}

	apiServer := kernel.NewServer(a.logger, a.submissions, a.settings, dryRunner)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	addr := getenv("GRIDJOB_ADDR", ":8080")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Submission dispatcher
	g.Go(func() error {
		return a.dispatcher.Run(gCtx, a.submissions.Dispatch)
	})

	// 2. API server
	g.Go(func() error {
		a.logger.Info("starting api server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	// 3. Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

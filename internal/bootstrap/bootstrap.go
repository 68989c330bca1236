package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gorm.io/gorm"

	domaincatalog "tryon-server-go/internal/domain/catalog"
	domainimage "tryon-server-go/internal/domain/image"
	domaintryon "tryon-server-go/internal/domain/tryon"
	platformconfig "tryon-server-go/internal/platform/config"
	platformerrors "tryon-server-go/internal/platform/errors"
	platformlogging "tryon-server-go/internal/platform/logging"
	platformstorage "tryon-server-go/internal/platform/storage"
	httptransport "tryon-server-go/internal/transport/http"
	httptryon "tryon-server-go/internal/transport/http/tryon"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config   *platformconfig.Config
	logger   *platformlogging.Logger
	db       *gorm.DB
	catalog  *domaincatalog.Table
	results  *platformstorage.ResultStore
	feedback *platformstorage.FeedbackStore
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, the HTTP server, and graceful shutdown on SIGINT/SIGTERM.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("Bootstrap", "service stopped")
	logger.Close()
	return nil
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-dirs",
			Title:     "Prepare storage directories",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStorageStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Open feedback database",
			DependsOn: []string{"storage:init-dirs"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "catalog:load",
			Title:     "Load clothing catalog",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   loadCatalogStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialise logging", err)
	}

	state.logger = logger
	platformlogging.DefaultLogger = logger

	logger.InfoTag("Bootstrap", "logging ready [%s]", state.config.Log.Level)
	return nil
}

func initStorageStep(_ context.Context, state *appState) error {
	st := state.config.Storage

	results, err := platformstorage.NewResultStore(st.UploadsDir, state.logger)
	if err != nil {
		return err
	}
	state.results = results

	if err := os.MkdirAll(st.ClothingDir, 0o755); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-dirs", "create clothing images directory", err)
	}
	if entries, err := os.ReadDir(st.ClothingDir); err == nil && len(entries) == 0 {
		state.logger.WarnTag("Bootstrap", "clothing images directory is empty: %s", st.ClothingDir)
	}
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	st := state.config.Storage

	db, err := platformstorage.OpenDatabase(st.DatabasePath)
	if err != nil {
		// The append-only feedback log still works without the database
		// mirror, so a broken database is not fatal.
		state.logger.WarnTag("Storage", "feedback database unavailable: %v", err)
		db = nil
	}
	state.db = db
	state.feedback = platformstorage.NewFeedbackStore(st.FeedbackFile, db, state.logger)
	return nil
}

func loadCatalogStep(_ context.Context, state *appState) error {
	table, err := domaincatalog.Load(state.config.Catalog, state.config.Storage.ClothingDir, state.logger)
	if err != nil {
		return err
	}
	state.catalog = table
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	normalizer := domainimage.NewNormalizer(domainimage.Limits{
		MaxFileSize: config.Image.MaxFileSize,
		MaxPixels:   config.Image.MaxPixels,
		MaxWidth:    config.Image.MaxWidth,
		MaxHeight:   config.Image.MaxHeight,
	}, logger)

	client := domaintryon.NewClient(config.Inference, logger)
	orchestrator := domaintryon.NewOrchestrator(client, normalizer, state.results, config.Inference, logger)

	tryonService, err := httptryon.NewService(config, logger, state.catalog, orchestrator, state.results, state.feedback)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "tryon:new-service", "failed to create try-on service", err)
	}
	if err := tryonService.Register(groupCtx, httpRouter.API); err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: httpRouter.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "server listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("Bootstrap", "shutdown requested: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("Bootstrap", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}

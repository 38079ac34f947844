package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/config"
	"github.com/usnistgov/NEMO-custom-forms/internal/httpapi"
	"github.com/usnistgov/NEMO-custom-forms/internal/logging"
	"github.com/usnistgov/NEMO-custom-forms/internal/mapping"
	"github.com/usnistgov/NEMO-custom-forms/internal/mcp"
	"github.com/usnistgov/NEMO-custom-forms/internal/metrics"
	"github.com/usnistgov/NEMO-custom-forms/internal/notify"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/service"
	"github.com/usnistgov/NEMO-custom-forms/internal/storage"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// app holds the wired components of the process
type app struct {
	store    store.Store
	registry *prometheus.Registry
	forms    *service.Service
	files    *pdf.Service
	mcp      *mcp.Server
	api      *httpapi.API
}

func (a *app) Close() error {
	return a.store.Close()
}

// build wires every component from cfg
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	st, err := store.Open(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, st.Close())
		}
	}()

	resolver, err := role.NewCasbinResolver(st, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create role resolver: %w", err)
	}
	if err := resolver.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	documents, err := storage.NewDiskStore(cfg.StorageDirectory, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open document storage: %w", err)
	}
	fetcher := storage.NewURLFetcher(http.DefaultClient, cfg.FetchTimeout, cfg.MaxFileSize)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	pipeline := pdf.NewPipeline(pdf.Options{MaxFileSize: cfg.MaxFileSize},
		pdf.WithObserver(recorder),
		pdf.WithResolver(storage.NewResolver(documents, fetcher)),
		pdf.WithLogger(logger.Named("pdf")),
	)

	forms, err := service.New(service.Dependencies{
		Store:              st,
		Resolver:           resolver,
		Documents:          documents,
		Pipeline:           pipeline,
		Mailer:             notify.NewLogMailer(logger.Named("mail")),
		Metrics:            recorder,
		Mappings:           mapping.NewResolver(cfg.DateFormat, cfg.DateTimeFormat),
		NotificationExpiry: cfg.NotificationExpiry(),
		Logger:             logger.Named("forms"),
	})
	if err != nil {
		return nil, err
	}

	outputFS := afero.NewBasePathFs(afero.NewOsFs(), cfg.OutputDirectory)
	files, err := pdf.NewService(outputFS, cfg.OutputDirectory, pipeline, cfg.MaxFileSize, logger.Named("files"))
	if err != nil {
		return nil, err
	}

	mcpServer, err := mcp.NewServer(cfg, forms, files, logger.Named("mcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	api, err := httpapi.New(forms, registry, logger.Named("http"))
	if err != nil {
		return nil, err
	}

	return &app{
		store:    st,
		registry: registry,
		forms:    forms,
		files:    files,
		mcp:      mcpServer,
		api:      api,
	}, nil
}

// runServerMode serves the HTTP API until a shutdown signal arrives
func runServerMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, a *app, logger *zap.Logger) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- a.api.Run(ctx, cfg.Address())
	}()

	select {
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		return <-serverErrCh
	case err := <-serverErrCh:
		return err
	}
}

// runStdioMode serves MCP over stdio. The parent process controls the
// lifecycle by closing stdin.
func runStdioMode(ctx context.Context, a *app) error {
	return a.mcp.Run(ctx)
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if version != "dev" {
		cfg.Version = version
	}

	logger := logging.New(cfg.LogLevel, cfg.Mode)
	defer func() { _ = logger.Sync() }()
	if cfg.IsDebug() {
		logger.Debug("starting with configuration", zap.String("config", cfg.String()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cancel, cfg, a, logger)
	} else {
		err = runStdioMode(ctx, a)
	}
	err = multierr.Append(err, a.Close())
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("NEMO Custom Forms\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}

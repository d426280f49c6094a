package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"minicap/config"
	"minicap/httpServer"
	"minicap/internal/adb"
	"minicap/internal/auth"
	"minicap/internal/display"
	"minicap/internal/encoder"
	"minicap/internal/framecache"
	"minicap/internal/metrics"
	"minicap/internal/pipeline"
	"minicap/internal/ratelimit"
	"minicap/internal/server"
	"minicap/internal/sessionmanager"
	"minicap/internal/storage"
	"minicap/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()

	log.Info("Starting minicap...")
	log.Infof("Frame server: %s", cfg.ListenAddr)
	log.Infof("HTTP server: %s", cfg.HTTPAddr)
	log.Infof("Display source: %s", cfg.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	storageBackend, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	log.Debug("Prometheus metrics initialized")

	// Initialize display source
	source, err := newSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize display source: %v", err)
	}

	// Initialize capture pipeline
	rotation := models.Rotation(cfg.Rotation)
	if cfg.Rotation == config.AutoRotation {
		rotation = source.CurrentRotation()
	}
	opts := []pipeline.Option{
		pipeline.WithRotation(rotation),
		pipeline.WithLayer(cfg.Layer),
		pipeline.WithQuality(cfg.Quality),
		pipeline.WithFrameRate(cfg.FrameRate),
	}
	if cfg.BaseWidth > 0 && cfg.BaseHeight > 0 {
		opts = append(opts, pipeline.WithBaseSize(models.Size{Width: cfg.BaseWidth, Height: cfg.BaseHeight}))
	}
	cache := framecache.New()
	p := pipeline.New(source, encoder.New(), cache, ratelimit.New(), m, opts...)

	if cfg.Screenshot {
		err := screenshot(ctx, cfg, source, p, storageBackend)
		if cerr := shutdown(p, storageBackend); cerr != nil {
			log.WithError(cerr).Warn("Shutdown errors")
		}
		if err != nil {
			log.Fatalf("Screenshot failed: %v", err)
		}
		return
	}

	if err := p.Init(); err != nil {
		log.Fatalf("Failed to initialize capture pipeline: %v", err)
	}

	// Initialize servers
	sessions := sessionmanager.New(cfg.SessionHistory)
	frames := server.New(cfg.ListenAddr, cache, sessions, m)
	frames.SetDebug(cfg.Debug)

	authManager := auth.New(cfg.APIKey)
	if !authManager.Enabled() {
		log.Warn("API_KEY not set, control API mutations are unauthenticated")
	}

	httpSrv := httpServer.New(httpServer.Dependencies{
		Pipeline: p,
		Cache:    cache,
		Sessions: sessions,
		Frames:   frames,
		Storage:  storageBackend,
		Metrics:  m,
		Gatherer: reg,
		Auth:     authManager,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return source.Run(ctx)
	})

	// Clients are only accepted once there is a frame to give them
	g.Go(func() error {
		select {
		case <-p.Serving():
		case <-ctx.Done():
			return nil
		}
		return frames.ListenAndServe(ctx)
	})

	g.Go(func() error {
		return httpSrv.Run(ctx, cfg.HTTPAddr)
	})

	if authManager.Enabled() {
		g.Go(func() error {
			cleanupTokens(ctx, authManager)
			return nil
		})
	}

	if cfg.SnapshotRetention > 0 {
		g.Go(func() error {
			pruneSnapshots(ctx, storageBackend, cfg.SnapshotRetention)
			return nil
		})
	}

	log.Info("minicap started successfully")
	log.Info("---")
	log.Info("API Endpoints:")
	log.Info("  GET    /api/ping")
	log.Info("  GET    /api/v1/status")
	log.Info("  GET    /api/v1/settings")
	log.Info("  PUT    /api/v1/settings")
	log.Info("  GET    /api/v1/sessions")
	log.Info("  GET    /api/v1/frame")
	log.Info("  POST   /api/v1/snapshots")
	log.Info("  GET    /api/v1/snapshots/*path")
	log.Info("  DELETE /api/v1/snapshots/*path")
	log.Info("  POST   /api/v1/tokens")
	log.Info("  DELETE /api/v1/tokens/:token")
	log.Info("  GET    /metrics")
	log.Info("---")

	err = g.Wait()
	if cerr := shutdown(p, storageBackend); cerr != nil {
		log.WithError(cerr).Warn("Shutdown errors")
	}
	if err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Info("minicap stopped")
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageType == "gcs" {
		gcsStorage, err := storage.NewGCSStorage(ctx, cfg.GCSProjectID, cfg.GCSBucketName, cfg.GCSBaseDir)
		if err != nil {
			return nil, err
		}
		log.Infof("Storage initialized: GCS bucket=%s, project=%s, baseDir=%s",
			cfg.GCSBucketName, cfg.GCSProjectID, cfg.GCSBaseDir)
		return gcsStorage, nil
	}

	localStorage, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	log.Infof("Storage initialized: Local directory=%s", cfg.StorageDir)
	return localStorage, nil
}

func newSource(ctx context.Context, cfg *config.Config) (display.Source, error) {
	rotation := models.Rotation0
	if cfg.Rotation != config.AutoRotation {
		rotation = models.Rotation(cfg.Rotation)
	}

	switch cfg.Source {
	case config.SourceDesktop:
		return display.NewDesktopSource(cfg.DisplayIndex, rotation, cfg.PollInterval)
	case config.SourceADB:
		client := &adb.Client{Path: cfg.ADBPath, Serial: cfg.ADBSerial}
		return display.NewADBSource(ctx, client, cfg.PollInterval)
	case config.SourceSynthetic:
		natural := models.Size{Width: cfg.SyntheticWidth, Height: cfg.SyntheticHeight}
		return display.NewSyntheticSource(natural, rotation, cfg.SyntheticInterval, cfg.SyntheticRowPadding), nil
	default:
		return nil, fmt.Errorf("unknown display source %q", cfg.Source)
	}
}

// screenshot captures one frame to stdout or storage and returns
func screenshot(ctx context.Context, cfg *config.Config, source display.Source, p *pipeline.Pipeline, st storage.Storage) error {
	var out io.Writer = os.Stdout
	var sink *storage.Sink
	if cfg.ScreenshotOutput == config.OutputStorage {
		sink = storage.NewSink(ctx, st, storage.ObjectName(httpServer.SnapshotDir, time.Now()))
		out = sink
	}

	captureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(captureCtx)
	g.Go(func() error {
		return source.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return p.Screenshot(gctx, out)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if sink != nil {
		if err := sink.Close(); err != nil {
			return err
		}
		log.Infof("Screenshot saved to %s", sink.Path())
	}
	return nil
}

// pruneSnapshots deletes saved snapshots older than maxAge until ctx is done
func pruneSnapshots(ctx context.Context, st storage.Storage, maxAge time.Duration) {
	ticker := time.NewTicker(min(maxAge, time.Hour))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		removed, err := st.Prune(ctx, httpServer.SnapshotDir, maxAge)
		if err != nil {
			log.WithError(err).Warn("Failed to prune snapshots")
			continue
		}
		if removed > 0 {
			log.Infof("Pruned %d snapshots older than %s", removed, maxAge)
		}
	}
}

// cleanupTokens drops expired API tokens until ctx is done
func cleanupTokens(ctx context.Context, m *auth.Manager) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.CleanupExpiredTokens(); removed > 0 {
				log.Debugf("Removed %d expired API tokens", removed)
			}
		}
	}
}

// shutdown releases the capture target and the storage backend
func shutdown(p *pipeline.Pipeline, st storage.Storage) error {
	var result *multierror.Error
	if err := p.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("pipeline: %w", err))
	}
	if err := st.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("storage: %w", err))
	}
	return result.ErrorOrNil()
}

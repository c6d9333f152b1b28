package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"trailhead/internal/cache"
	"trailhead/internal/config"
	"trailhead/internal/database"
	"trailhead/internal/ingest"
	"trailhead/internal/ngrok"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"
)

// coordinateCacheTTL bounds how long a coordinate batch response may be
// served from memory before hitting the store again.
const coordinateCacheTTL = 5 * time.Minute

// TrackServer is the HTTP surface of the track browser: viewport queries,
// coordinate batches, downloads, ingestion control and progress.
type TrackServer struct {
	db           *database.Database
	config       *config.Config
	coordinator  *ingest.Coordinator
	coordCache   *cache.MemoryCache
	watcher      *fsnotify.Watcher
	ngrokService *ngrok.Service
	logger       *logrus.Logger
}

// NewTrackServer creates a new track server instance
func NewTrackServer(cfg *config.Config, db *database.Database, coordinator *ingest.Coordinator) (*TrackServer, error) {
	logger := logrus.New()
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	// Create ngrok service
	ngrokSvc, err := ngrok.NewService(&cfg.Ngrok)
	if err != nil {
		logger.WithError(err).Warn("Ngrok service not available")
		ngrokSvc = nil
	}

	server := &TrackServer{
		db:           db,
		config:       cfg,
		coordinator:  coordinator,
		coordCache:   cache.NewMemoryCache(coordinateCacheTTL),
		ngrokService: ngrokSvc,
		logger:       logger,
	}

	return server, nil
}

// Start starts the track server. It blocks until the listener fails.
func (ts *TrackServer) Start() {
	// Start archive watcher if enabled
	if ts.config.Tracks.WatchArchive {
		if err := ts.startArchiveWatcher(); err != nil {
			ts.logger.WithError(err).Warn("Could not start archive watcher")
		} else {
			defer ts.stopArchiveWatcher()
		}
	}

	handler := ts.buildHandler()

	trackCount, err := ts.db.CountTracks()
	if err != nil {
		ts.logger.WithError(err).Warn("Could not get track count")
	}

	localAddress := fmt.Sprintf("http://%s", ts.config.GetAddress())

	ts.logger.WithFields(logrus.Fields{
		"port":   ts.config.Server.Port,
		"tracks": trackCount,
	}).Info("Trailhead server starting")
	ts.logger.WithField("address", localAddress).Info("Local access")

	// Start ngrok tunnel if enabled
	if ts.ngrokService != nil {
		ctx := context.Background()
		if err := ts.ngrokService.StartTunnel(ctx, localAddress); err != nil {
			ts.logger.WithError(err).Warn("Could not start ngrok tunnel")
		} else {
			defer ts.ngrokService.Stop()
		}
	}

	// With a domain configured, serve HTTPS with automatic certificates;
	// otherwise plain HTTP on the configured address.
	if ts.config.Server.Domain != "" {
		ts.serveWithDomain(handler)
		return
	}

	server := &http.Server{
		Addr:        ts.config.GetAddress(),
		Handler:     handler,
		ReadTimeout: time.Duration(ts.config.Server.ReadTimeout) * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		ts.logger.WithError(err).Fatal("Server failed to start")
	}
}

// buildHandler assembles the route mux and wraps it in the middleware chain.
func (ts *TrackServer) buildHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/tracks", ts.handleGetTracks)
	mux.HandleFunc("/api/tracks/bounds", ts.handleGetTracksByBounds)
	mux.HandleFunc("/api/tracks/refresh", ts.handleRefreshTracks)
	mux.HandleFunc("/api/tracks/", ts.handleTrackByID) // /api/tracks/{id} and /{id}/download
	mux.HandleFunc("/api/track_coordinates", ts.handleTrackCoordinates)
	mux.HandleFunc("/api/seeding-progress", ts.handleSeedingProgress)
	mux.HandleFunc("/health", ts.handleHealthCheck)

	var handler http.Handler = mux
	handler = ts.rateLimitMiddleware(handler)
	handler = ts.corsMiddleware(handler)
	handler = ts.requestLoggingMiddleware(handler)
	handler = ts.panicRecoveryMiddleware(handler)

	return handler
}

// serveWithDomain runs the server on :443 with autocert-managed
// certificates, plus :80 for the ACME challenge and HTTPS redirect.
func (ts *TrackServer) serveWithDomain(handler http.Handler) {
	domain := ts.config.Server.Domain

	certManager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache("certs"),
		HostPolicy: autocert.HostWhitelist(domain, "www."+domain),
	}

	go func() {
		// :80 serves the HTTP-01 challenge and redirects everything else.
		redirect := certManager.HTTPHandler(nil)
		if err := http.ListenAndServe(":80", redirect); err != nil {
			ts.logger.WithError(err).Error("HTTP challenge listener failed")
		}
	}()

	server := &http.Server{
		Addr:        ":443",
		Handler:     handler,
		TLSConfig:   certManager.TLSConfig(),
		ReadTimeout: time.Duration(ts.config.Server.ReadTimeout) * time.Second,
	}

	ts.logger.WithField("domain", domain).Info("Serving HTTPS with automatic certificates")
	if err := server.ListenAndServeTLS("", ""); err != nil {
		ts.logger.WithError(err).Fatal("HTTPS server failed to start")
	}
}

// Shutdown gracefully shuts down the track server
func (ts *TrackServer) Shutdown() {
	ts.logger.Info("Shutting down track server...")

	// Stop archive watcher
	ts.stopArchiveWatcher()

	ts.logger.Info("Track server shutdown complete")
}

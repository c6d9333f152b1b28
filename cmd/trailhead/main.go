package main

import (
	"os"
	"os/signal"
	"syscall"

	"trailhead/internal/archive"
	"trailhead/internal/config"
	"trailhead/internal/database"
	"trailhead/internal/downloader"
	"trailhead/internal/gpx"
	"trailhead/internal/ingest"
	"trailhead/internal/server"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	// Fetch the track archive if it is missing locally
	if err := downloader.NewDownloader().EnsureArchive(cfg.Tracks.ArchivePath, cfg.Tracks.ArchiveURL); err != nil {
		logger.WithError(err).Fatal("Track archive is not available. Please provide a tar.gz archive of GPX files or configure archive_url.")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	// Wire the ingestion pipeline
	reader := archive.NewReader(cfg.Tracks.ArchivePath)
	parser := gpx.NewParser(cfg.Tracks.DenoiseElevation)
	coordinator := ingest.NewCoordinator(db, reader, parser, cfg.Tracks.GeohashPrecision)

	// Create and configure the track server
	trackServer, err := server.NewTrackServer(cfg, db, coordinator)
	if err != nil {
		logger.WithError(err).Fatal("Error creating track server")
	}

	// Seed the track corpus from the archive
	if cfg.Tracks.IngestOnStartup {
		coordinator.Start()
	}

	// Fill in geohashes for rows created before the column existed
	coordinator.StartGeohashBackfill()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start the server in a goroutine
	go func() {
		trackServer.Start()
	}()

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
	trackServer.Shutdown()
}

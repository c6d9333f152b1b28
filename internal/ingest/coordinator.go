package ingest

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"trailhead/internal/archive"
	"trailhead/internal/database"
	"trailhead/internal/geo"
	"trailhead/internal/gpx"
	"trailhead/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Coordinator drives full archive ingestion passes: it counts the archive's
// GPX entries, streams and parses each one, deduplicates against persisted
// tracks by filename, and persists new tracks with their point sequences.
// Progress is observable at any time through Progress().
//
// At most one ingestion pass runs at a time; a trigger while a pass is
// active is refused rather than queued, so duplicate detection never races
// against itself. The geohash backfill pass has its own, independent guard.
type Coordinator struct {
	db        *database.Database
	reader    *archive.Reader
	parser    *gpx.Parser
	logger    *logrus.Logger
	precision int

	mu       sync.RWMutex
	progress models.SeedingProgress

	running     atomic.Bool
	backfilling atomic.Bool
}

// NewCoordinator wires an ingestion coordinator. precision is the geohash
// length stored on newly ingested tracks.
func NewCoordinator(db *database.Database, reader *archive.Reader, parser *gpx.Parser, precision int) *Coordinator {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Coordinator{
		db:        db,
		reader:    reader,
		parser:    parser,
		logger:    logger,
		precision: precision,
		progress: models.SeedingProgress{
			LastUpdated: time.Now(),
		},
	}
}

// Start launches an ingestion pass in the background. It returns false
// without doing anything when a pass is already running.
func (c *Coordinator) Start() bool {
	if !c.running.CompareAndSwap(false, true) {
		return false
	}

	// Reset progress for the new pass.
	c.setProgress(0, 0, false, true, "")

	runID := uuid.New().String()
	go func() {
		defer c.running.Store(false)
		c.run(runID)
	}()

	return true
}

// IsRunning reports whether an ingestion pass is currently active.
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// Progress returns a consistent snapshot of the current pass.
func (c *Coordinator) Progress() models.SeedingProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// run executes one full ingestion pass. Archive-level failures are terminal
// for the pass and surface in the progress snapshot; per-entry parse
// failures are logged and skipped.
func (c *Coordinator) run(runID string) {
	log := c.logger.WithField("run_id", runID)
	log.WithField("archive", c.reader.Path()).Info("Starting track ingestion pass")

	// Count total matching entries to establish the progress denominator.
	total, err := c.reader.Count()
	if err != nil {
		log.WithError(err).Error("Failed to count archive entries")
		c.setProgress(0, 0, false, false, "Error counting tracks: "+err.Error())
		return
	}
	log.WithField("total", total).Info("Counted GPX entries in archive")

	// Fast path: everything is already loaded.
	existing, err := c.db.CountTracks()
	if err != nil {
		log.WithError(err).Error("Failed to count persisted tracks")
		c.setProgress(0, total, false, false, "Error counting persisted tracks: "+err.Error())
		return
	}
	if existing >= total {
		log.WithField("existing", existing).Info("All tracks already loaded, ingestion complete")
		c.setProgress(total, total, true, false, "")
		return
	}

	// Seed the snapshot with what is already persisted. Duplicates found
	// while streaming are part of that seed, so only newly inserted tracks
	// advance the counter; the clamp keeps loaded from passing total when
	// the store holds tracks the current archive no longer contains.
	c.setProgress(existing, total, false, true, "")
	loaded := existing

	streamErr := c.reader.Stream(func(name string, data []byte) error {
		filename := filepath.Base(name)

		track, err := c.parser.Parse(data, filename)
		if err != nil {
			// One malformed entry never aborts the batch.
			log.WithError(err).WithField("filename", filename).Warn("Skipping unparseable GPX entry")
			return nil
		}

		exists, err := c.db.TrackExists(filename)
		if err != nil {
			log.WithError(err).WithField("filename", filename).Error("Failed duplicate check")
			return nil
		}
		if exists {
			// Already persisted and covered by the seed count; refresh the
			// snapshot so observers see the entry was visited.
			c.setProgress(loaded, total, false, true, "")
			return nil
		}

		track.Geohash = geo.CentroidHash(track.Bounds, c.precision)

		if _, err := c.db.InsertTrack(track); err != nil {
			log.WithError(err).WithField("filename", filename).Error("Failed to persist track")
			return nil
		}

		if loaded < total {
			loaded++
		}
		c.setProgress(loaded, total, false, true, "")

		if loaded%100 == 0 {
			log.WithFields(logrus.Fields{
				"loaded": loaded,
				"total":  total,
			}).Info("Ingestion progress")
		}
		return nil
	})

	if streamErr != nil {
		log.WithError(streamErr).Error("Ingestion pass aborted")
		c.setProgress(loaded, total, false, false, "Error loading tracks: "+streamErr.Error())
		return
	}

	log.WithFields(logrus.Fields{
		"loaded": loaded,
		"total":  total,
	}).Info("Track ingestion pass completed")
	c.setProgress(loaded, total, true, false, "")
}

// setProgress replaces the progress snapshot under the write lock.
func (c *Coordinator) setProgress(loaded, total int, complete, running bool, errorMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress = models.SeedingProgress{
		TotalTracks:  total,
		LoadedTracks: loaded,
		IsComplete:   complete,
		IsRunning:    running,
		ErrorMessage: errorMsg,
		LastUpdated:  time.Now(),
	}
}

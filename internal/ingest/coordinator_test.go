package ingest

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trailhead/internal/archive"
	"trailhead/internal/database"
	"trailhead/internal/geo"
	"trailhead/internal/gpx"
	"trailhead/pkg/models"
)

const validGPXTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>%s</name>
    <trkseg>
      <trkpt lat="47.000000" lon="8.000000"><ele>500.00</ele><time>2024-06-01T08:00:00Z</time></trkpt>
      <trkpt lat="47.001000" lon="8.001000"><ele>510.00</ele><time>2024-06-01T08:05:00Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tracks.tar.gz")
	writeArchiveFile(t, path, entries)
	return path
}

func writeArchiveFile(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)

	for name, content := range entries {
		header := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("failed to write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write tar entry: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
}

func setupCoordinator(t *testing.T, archivePath string) (*Coordinator, *database.Database) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c := NewCoordinator(db, archive.NewReader(archivePath), gpx.NewParser(true), geo.DefaultPrecision)
	return c, db
}

// waitForPass polls until the current ingestion pass has finished.
func waitForPass(t *testing.T, c *Coordinator) models.SeedingProgress {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !c.IsRunning() {
			return c.Progress()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ingestion pass did not finish in time")
	return models.SeedingProgress{}
}

func TestIngestionEndToEnd(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		"ride1.gpx":  fmt.Sprintf(validGPXTemplate, "Ride One"),
		"ride2.gpx":  fmt.Sprintf(validGPXTemplate, "Ride Two"),
		"broken.gpx": "<gpx><trk>not closed",
	})
	c, db := setupCoordinator(t, archivePath)

	if !c.Start() {
		t.Fatal("Start() = false on idle coordinator")
	}
	progress := waitForPass(t, c)

	if progress.TotalTracks != 3 {
		t.Errorf("TotalTracks = %d, want 3", progress.TotalTracks)
	}
	if progress.LoadedTracks != 2 {
		t.Errorf("LoadedTracks = %d, want 2", progress.LoadedTracks)
	}
	if !progress.IsComplete {
		t.Error("IsComplete = false, want true (malformed entry is skipped, not fatal)")
	}
	if progress.IsRunning {
		t.Error("IsRunning = true after completion")
	}
	if progress.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", progress.ErrorMessage)
	}

	count, err := db.CountTracks()
	if err != nil {
		t.Fatalf("CountTracks() error = %v", err)
	}
	if count != 2 {
		t.Errorf("persisted track count = %d, want 2", count)
	}

	// Ingested tracks carry a geohash from the start.
	tracks, err := db.SearchTracks(database.TrackFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchTracks() error = %v", err)
	}
	for _, track := range tracks {
		if len(track.Geohash) != geo.DefaultPrecision {
			t.Errorf("track %s geohash = %q, want %d characters", track.Filename, track.Geohash, geo.DefaultPrecision)
		}
	}
}

func TestIngestionIdempotent(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		"ride1.gpx": fmt.Sprintf(validGPXTemplate, "Ride One"),
		"ride2.gpx": fmt.Sprintf(validGPXTemplate, "Ride Two"),
	})
	c, db := setupCoordinator(t, archivePath)

	c.Start()
	waitForPass(t, c)

	first, err := db.CountTracks()
	if err != nil {
		t.Fatalf("CountTracks() error = %v", err)
	}

	if !c.Start() {
		t.Fatal("Start() = false after previous pass finished")
	}
	progress := waitForPass(t, c)

	second, err := db.CountTracks()
	if err != nil {
		t.Fatalf("CountTracks() error = %v", err)
	}

	if second != first {
		t.Errorf("track count after re-ingest = %d, want %d", second, first)
	}
	if !progress.IsComplete {
		t.Error("IsComplete = false after re-ingest")
	}
	if progress.LoadedTracks != progress.TotalTracks {
		t.Errorf("LoadedTracks = %d, TotalTracks = %d, want equal", progress.LoadedTracks, progress.TotalTracks)
	}
}

func TestIngestionGrownArchive(t *testing.T) {
	// An archive replaced with a superset of itself, as the file watcher
	// observes when new tracks are appended upstream.
	archivePath := filepath.Join(t.TempDir(), "tracks.tar.gz")
	writeArchiveFile(t, archivePath, map[string]string{
		"ride1.gpx": fmt.Sprintf(validGPXTemplate, "Ride One"),
	})
	c, db := setupCoordinator(t, archivePath)

	c.Start()
	waitForPass(t, c)

	writeArchiveFile(t, archivePath, map[string]string{
		"ride1.gpx": fmt.Sprintf(validGPXTemplate, "Ride One"),
		"ride2.gpx": fmt.Sprintf(validGPXTemplate, "Ride Two"),
	})

	if !c.Start() {
		t.Fatal("Start() = false after previous pass finished")
	}
	progress := waitForPass(t, c)

	if progress.TotalTracks != 2 {
		t.Errorf("TotalTracks = %d, want 2", progress.TotalTracks)
	}
	if progress.LoadedTracks != 2 {
		t.Errorf("LoadedTracks = %d, want 2", progress.LoadedTracks)
	}
	if progress.LoadedTracks > progress.TotalTracks {
		t.Errorf("LoadedTracks = %d exceeds TotalTracks = %d", progress.LoadedTracks, progress.TotalTracks)
	}
	if !progress.IsComplete {
		t.Error("IsComplete = false after re-ingesting grown archive")
	}

	count, err := db.CountTracks()
	if err != nil {
		t.Fatalf("CountTracks() error = %v", err)
	}
	if count != 2 {
		t.Errorf("persisted track count = %d, want 2", count)
	}
}

func TestIngestionSingleRunGuard(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		"ride1.gpx": fmt.Sprintf(validGPXTemplate, "Ride One"),
	})
	c, _ := setupCoordinator(t, archivePath)

	// Simulate an in-flight pass.
	c.running.Store(true)
	if c.Start() {
		t.Error("Start() = true while a pass is running")
	}
	c.running.Store(false)

	if !c.Start() {
		t.Error("Start() = false on idle coordinator")
	}
	waitForPass(t, c)
}

func TestIngestionArchiveError(t *testing.T) {
	// Empty archive file: fatal for the pass, surfaced in progress.
	path := filepath.Join(t.TempDir(), "empty.tar.gz")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("failed to create empty archive: %v", err)
	}
	c, _ := setupCoordinator(t, path)

	c.Start()
	progress := waitForPass(t, c)

	if progress.IsComplete {
		t.Error("IsComplete = true after archive error")
	}
	if progress.ErrorMessage == "" {
		t.Error("ErrorMessage empty after archive error")
	}
}

func TestProgressMonotonicity(t *testing.T) {
	entries := make(map[string]string, 40)
	for i := 0; i < 40; i++ {
		entries[fmt.Sprintf("ride%02d.gpx", i)] = fmt.Sprintf(validGPXTemplate, fmt.Sprintf("Ride %d", i))
	}
	archivePath := writeArchive(t, entries)
	c, _ := setupCoordinator(t, archivePath)

	c.Start()

	prev := -1
	for c.IsRunning() {
		p := c.Progress()
		if p.LoadedTracks < prev {
			t.Fatalf("LoadedTracks decreased: %d -> %d", prev, p.LoadedTracks)
		}
		prev = p.LoadedTracks
		time.Sleep(time.Millisecond)
	}

	final := c.Progress()
	if final.LoadedTracks < prev {
		t.Fatalf("LoadedTracks decreased at completion: %d -> %d", prev, final.LoadedTracks)
	}
	if final.LoadedTracks != 40 || !final.IsComplete {
		t.Errorf("final progress = %+v, want 40 loaded and complete", final)
	}
}

func TestGeohashBackfill(t *testing.T) {
	archivePath := writeArchive(t, nil)
	c, db := setupCoordinator(t, archivePath)

	// Rows persisted before geohashes were computed at ingest time.
	for i := 0; i < 3; i++ {
		track := &models.Track{
			Filename: fmt.Sprintf("legacy%d.gpx", i),
			Name:     fmt.Sprintf("Legacy %d", i),
			Bounds:   models.Bounds{North: 47.1, South: 47.0, East: 8.1, West: 8.0},
		}
		if _, err := db.InsertTrack(track); err != nil {
			t.Fatalf("InsertTrack() error = %v", err)
		}
	}

	if !c.StartGeohashBackfill() {
		t.Fatal("StartGeohashBackfill() = false on idle coordinator")
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		missing, err := db.TracksWithoutGeohash(10)
		if err != nil {
			t.Fatalf("TracksWithoutGeohash() error = %v", err)
		}
		if len(missing) == 0 && !c.backfilling.Load() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("backfill did not fill all geohashes in time")
}

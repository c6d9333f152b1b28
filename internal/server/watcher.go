package server

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// archiveSettleDelay gives archive uploads time to finish before a
// re-ingestion pass is triggered.
const archiveSettleDelay = 2 * time.Second

// startArchiveWatcher initializes an fsnotify watcher on the archive's
// directory so a replaced archive triggers a fresh ingestion pass.
func (ts *TrackServer) startArchiveWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	ts.watcher = watcher

	go ts.watchArchive()

	// Watch the containing directory, not the file itself; most tools
	// replace archives via rename, which would drop a file-level watch.
	archiveDir := filepath.Dir(ts.config.Tracks.ArchivePath)
	if err := watcher.Add(archiveDir); err != nil {
		return err
	}

	ts.logger.WithField("archive_path", ts.config.Tracks.ArchivePath).Info("Archive watcher started")
	return nil
}

// watchArchive selects on watcher channels and dispatches events.
func (ts *TrackServer) watchArchive() {
	defer ts.watcher.Close()

	for {
		select {
		case event, ok := <-ts.watcher.Events:
			if !ok {
				return
			}
			ts.handleArchiveEvent(event)

		case err, ok := <-ts.watcher.Errors:
			if !ok {
				return
			}
			ts.logger.WithError(err).Error("Archive watcher error")
		}
	}
}

// handleArchiveEvent re-triggers ingestion when the archive file changes.
func (ts *TrackServer) handleArchiveEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(ts.config.Tracks.ArchivePath) {
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	ts.logger.WithField("event", event.Op.String()).Info("Archive changed, scheduling re-ingestion")

	go func() {
		time.Sleep(archiveSettleDelay) // Ensure file is fully written
		if !ts.coordinator.Start() {
			ts.logger.Debug("Ingestion already running, archive change will be picked up next pass")
		}
	}()
}

// stopArchiveWatcher closes the watcher (idempotent).
func (ts *TrackServer) stopArchiveWatcher() {
	if ts.watcher != nil {
		ts.watcher.Close()
	}
}

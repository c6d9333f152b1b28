package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"trailhead/internal/database"
	"trailhead/pkg/models"

	"github.com/sirupsen/logrus"
)

// coordinateCacheKey builds a stable cache key for a coordinate batch.
func coordinateCacheKey(ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "coords:" + strings.Join(parts, ",")
}

// respondJSON writes v as a JSON body. Headers must already be set.
func (ts *TrackServer) respondJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ts.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// handleGetTracks returns track summaries matching the search and filter
// parameters. Route geometry is only included when include_routes=true.
func (ts *TrackServer) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, verrs := parseTrackFilter(r.URL.Query())
	if len(verrs) > 0 {
		ts.respondWithValidationError(w, r, verrs)
		return
	}
	filter.GeohashPrecision = ts.config.Tracks.GeohashPrecision

	tracks, err := ts.db.SearchTracks(filter)
	if err != nil {
		ts.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}

	if tracks == nil {
		tracks = []models.Track{}
	}

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, tracks)
}

// handleGetTracksByBounds returns tracks whose bounding boxes overlap the
// given viewport. All four bounds parameters are required here.
func (ts *TrackServer) handleGetTracksByBounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bounds, verrs := parseRequiredBounds(r.URL.Query())
	if len(verrs) > 0 {
		ts.respondWithValidationError(w, r, verrs)
		return
	}

	limit := defaultBoundsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, verr := parseOptionalInt(r.URL.Query(), "limit"); verr != nil {
			ts.respondWithValidationError(w, r, []ValidationError{*verr})
			return
		} else if *parsed > 0 && *parsed <= maxBoundsLimit {
			limit = *parsed
		}
	}

	tracks, err := ts.db.SearchTracks(database.TrackFilter{
		Bounds:           bounds,
		Limit:            limit,
		GeohashPrecision: ts.config.Tracks.GeohashPrecision,
	})
	if err != nil {
		ts.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}

	if tracks == nil {
		tracks = []models.Track{}
	}

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, tracks)
}

// handleTrackByID dispatches /api/tracks/{id} and /api/tracks/{id}/download.
func (ts *TrackServer) handleTrackByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// Expected: ["api", "tracks", "{id}"] or ["api", "tracks", "{id}", "download"]

	trackID, verr := parseTrackID(pathParts, 2)
	if verr != nil {
		ts.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if len(pathParts) == 4 && pathParts[3] == "download" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ts.handleDownloadTrack(w, r, trackID)
		return
	}

	if len(pathParts) != 3 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		ts.handleGetTrack(w, r, trackID)
	case http.MethodDelete:
		ts.handleDeleteTrack(w, r, trackID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetTrack returns a single track with its full route geometry.
func (ts *TrackServer) handleGetTrack(w http.ResponseWriter, r *http.Request, trackID int64) {
	track, err := ts.db.GetTrackByID(trackID, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ts.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
			return
		}
		ts.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving track", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, track)
}

// handleDeleteTrack removes a track and its stored points.
func (ts *TrackServer) handleDeleteTrack(w http.ResponseWriter, r *http.Request, trackID int64) {
	if err := ts.db.DeleteTrack(trackID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ts.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
			return
		}
		ts.respondWithError(w, r, http.StatusInternalServerError, "Error deleting track", err)
		return
	}

	// Cached coordinate batches may include the deleted track.
	ts.coordCache.Clear()

	ts.logger.WithField("track_id", trackID).Info("Track deleted")

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, map[string]interface{}{"success": true})
}

// handleTrackCoordinates returns the coordinate lists for a batch of tracks,
// keyed by track ID. Unknown IDs are silently absent from the result.
func (ts *TrackServer) handleTrackCoordinates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids, verr := parseTrackIDList(r.URL.Query().Get("ids"))
	if verr != nil {
		ts.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	if len(ids) == 0 {
		ts.respondWithValidationError(w, r, []ValidationError{{
			Field:   "ids",
			Message: "No valid track IDs provided",
			Code:    "MISSING_IDS",
		}})
		return
	}

	cacheKey := coordinateCacheKey(ids)
	if cached, found := ts.coordCache.GetCoordinates(cacheKey); found {
		w.Header().Set("Content-Type", "application/json")
		ts.respondJSON(w, cached)
		return
	}

	coordinates, err := ts.db.GetTrackCoordinates(ids)
	if err != nil {
		ts.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving coordinates", err)
		return
	}

	ts.coordCache.SetCoordinates(cacheKey, coordinates)

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, coordinates)
}

// handleRefreshTracks kicks off a new ingestion pass over the archive.
func (ts *TrackServer) handleRefreshTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !ts.coordinator.Start() {
		ts.respondWithError(w, r, http.StatusConflict, "Ingestion already in progress", nil)
		return
	}

	ts.logger.Info("Track refresh triggered via API")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	ts.respondJSON(w, map[string]interface{}{
		"success": true,
		"message": "Track ingestion started",
	})
}

// handleSeedingProgress reports the state of the current or most recent
// ingestion pass.
func (ts *TrackServer) handleSeedingProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, ts.coordinator.Progress())
}

// handleHealthCheck reports service liveness and basic corpus stats.
func (ts *TrackServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	count, err := ts.db.CountTracks()
	if err != nil {
		ts.logger.WithError(err).Error("Health check failed to count tracks")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		ts.respondJSON(w, map[string]interface{}{"status": "unhealthy"})
		return
	}

	ts.logger.WithFields(logrus.Fields{
		"track_count": count,
	}).Debug("Health check")

	w.Header().Set("Content-Type", "application/json")
	ts.respondJSON(w, map[string]interface{}{
		"status": "healthy",
		"tracks": count,
	})
}

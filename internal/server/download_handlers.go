package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"trailhead/internal/gpx"

	"github.com/sirupsen/logrus"
)

// handleDownloadTrack regenerates a GPX document from the stored track and
// serves it as a file download. The stored point sequence is authoritative;
// the original upload is not kept.
func (ts *TrackServer) handleDownloadTrack(w http.ResponseWriter, r *http.Request, trackID int64) {
	track, err := ts.db.GetTrackByID(trackID, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ts.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
			return
		}
		ts.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving track", err)
		return
	}

	data := gpx.WriteGPX(track)

	filename := track.Filename
	if filename == "" {
		filename = fmt.Sprintf("track_%d.gpx", track.ID)
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".gpx") {
		filename += ".gpx"
	}

	ts.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"filename": filename,
		"bytes":    len(data),
	}).Info("Serving GPX download")

	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

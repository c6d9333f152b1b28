package models

import "time"

// Track represents one ingested GPX track and its summary statistics.
// It is the persisted, queryable record; the point sequence may be large
// and is only populated when a caller asks for full geometry.
type Track struct {
	ID            int64        `json:"id"`
	Filename      string       `json:"filename"` // unique across the corpus
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Distance      float64      `json:"distance"`       // meters
	Duration      int          `json:"duration"`       // seconds
	ElevationGain float64      `json:"elevation_gain"` // meters
	ElevationLoss float64      `json:"elevation_loss"` // meters
	MaxElevation  float64      `json:"max_elevation"`  // meters
	MinElevation  float64      `json:"min_elevation"`  // meters
	StartTime     *time.Time   `json:"start_time,omitempty"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	Bounds        Bounds       `json:"bounds"`
	Geohash       string       `json:"geohash,omitempty"` // empty until computed
	Points        []TrackPoint `json:"track_points,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// TrackPoint is a single GPS sample. Elevation and Time are optional in
// GPX sources, so both are pointers.
type TrackPoint struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Elevation *float64   `json:"elevation,omitempty"`
	Time      *time.Time `json:"time,omitempty"`
}

// Bounds is the axis-aligned bounding box of a track in degrees.
// Invariant: North >= South and East >= West.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center returns the midpoint of the box, used as the geohash input.
func (b Bounds) Center() (lat, lon float64) {
	return (b.North + b.South) / 2, (b.East + b.West) / 2
}

// Overlaps reports whether two boxes intersect (touching edges count).
func (b Bounds) Overlaps(o Bounds) bool {
	return b.North >= o.South && b.South <= o.North &&
		b.East >= o.West && b.West <= o.East
}

// Coordinate is the lightweight projection returned by the batch
// coordinate accessor for map rendering.
type Coordinate struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// SeedingProgress is the snapshot of a running or finished ingestion pass.
type SeedingProgress struct {
	TotalTracks  int       `json:"total_tracks"`
	LoadedTracks int       `json:"loaded_tracks"`
	IsComplete   bool      `json:"is_complete"`
	IsRunning    bool      `json:"is_running"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

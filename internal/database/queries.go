package database

import (
	"strings"

	"trailhead/internal/geo"
	"trailhead/pkg/models"
)

// MaxCoordinateBatch caps the number of track IDs one coordinate batch
// lookup may request.
const MaxCoordinateBatch = 50

// TrackFilter describes one viewport/search query against the track corpus.
// Nil pointer fields mean "no constraint".
type TrackFilter struct {
	Query       string
	MinDistance *float64
	MaxDistance *float64
	MinDuration *int
	MaxDuration *int
	Bounds      *models.Bounds
	Limit       int
	// GeohashPrecision is the length of the stored geohash index keys, so the
	// coarse prefix never grows longer than the hashes it is matched against.
	// Zero falls back to geo.DefaultPrecision.
	GeohashPrecision int
	// IncludePoints loads the full point geometry of every match. Expensive
	// for wide viewports; callers should combine it with a small Limit.
	IncludePoints bool
}

// SearchTracks answers a viewport/search query, newest tracks first, capped
// at the filter's limit.
//
// When a bounding box is present the query runs in two phases: a coarse
// geohash prefix condition (cheap, index-backed) plus the exact
// bounds-overlap predicate. The prefix is purely an optimization and never
// excludes a row the overlap predicate would include.
func (db *Database) SearchTracks(filter TrackFilter) ([]models.Track, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.Bounds != nil {
		b := *filter.Bounds
		conds = append(conds, "north >= ? AND south <= ? AND east >= ? AND west <= ?")
		args = append(args, b.South, b.North, b.West, b.East)

		precision := filter.GeohashPrecision
		if precision <= 0 {
			precision = geo.DefaultPrecision
		}
		if prefix := geo.QueryPrefix(b, precision); prefix != "" {
			// The viewport is contained in the prefix cell, so any track
			// centroid inside the viewport must hash with the prefix. The
			// coarse filter may therefore only discard rows whose centroid
			// lies inside the viewport; tracks overlapping from outside and
			// rows the geohash backfill has not reached bypass it.
			conds = append(conds, `(geohash LIKE ? OR geohash = '' OR NOT (
				(north + south) / 2 BETWEEN ? AND ? AND
				(east + west) / 2 BETWEEN ? AND ?))`)
			args = append(args, prefix+"%", b.South, b.North, b.West, b.East)
		}
	}

	if filter.Query != "" {
		pattern := "%" + strings.ToLower(filter.Query) + "%"
		conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(filename) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if filter.MinDistance != nil {
		conds = append(conds, "distance >= ?")
		args = append(args, *filter.MinDistance)
	}
	if filter.MaxDistance != nil {
		conds = append(conds, "distance <= ?")
		args = append(args, *filter.MaxDistance)
	}
	if filter.MinDuration != nil {
		conds = append(conds, "duration >= ?")
		args = append(args, *filter.MinDuration)
	}
	if filter.MaxDuration != nil {
		conds = append(conds, "duration <= ?")
		args = append(args, *filter.MaxDuration)
	}

	query := "SELECT " + trackColumns + " FROM tracks"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := []models.Track{}
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.IncludePoints {
		for i := range tracks {
			points, err := db.getTrackPoints(tracks[i].ID)
			if err != nil {
				return nil, err
			}
			tracks[i].Points = points
		}
	}

	return tracks, nil
}

// GetTrackCoordinates returns the ordered coordinate sequence for each of
// the requested tracks, keyed by track ID. Unknown IDs are simply absent
// from the result; they do not fail the batch. At most MaxCoordinateBatch
// IDs are honored per call.
func (db *Database) GetTrackCoordinates(ids []int64) (map[int64][]models.Coordinate, error) {
	coordinates := make(map[int64][]models.Coordinate)
	if len(ids) == 0 {
		return coordinates, nil
	}
	if len(ids) > MaxCoordinateBatch {
		ids = ids[:MaxCoordinateBatch]
	}

	for _, id := range ids {
		points, err := db.getTrackPoints(id)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			// Either an unknown ID or a pointless track; skip quietly.
			continue
		}

		coords := make([]models.Coordinate, len(points))
		for i, pt := range points {
			coords[i] = models.Coordinate{
				Latitude:  pt.Latitude,
				Longitude: pt.Longitude,
				Elevation: pt.Elevation,
			}
		}
		coordinates[id] = coords
	}

	return coordinates, nil
}

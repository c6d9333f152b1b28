package gpx

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"trailhead/pkg/models"

	"github.com/sirupsen/logrus"
	gpxgo "github.com/tkrajina/gpxgo/gpx"
)

// ErrNoTrack is returned for well-formed GPX documents without a <trk>.
var ErrNoTrack = errors.New("no track element in GPX document")

// earthRadius is the spherical Earth radius in meters used by the
// Haversine distance.
const earthRadius = 6371000

// Parser converts raw GPX bytes into a track summary with derived
// statistics. It is stateless apart from configuration and safe for
// concurrent use.
type Parser struct {
	logger *logrus.Logger

	// denoise selects the segmented elevation gain/loss algorithm over the
	// naive consecutive-delta sum.
	denoise bool
}

// NewParser creates a parser. denoise selects the run-segmented elevation
// accumulation; disable it only for corpora whose stored statistics were
// produced by the plain delta sum.
func NewParser(denoise bool) *Parser {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Parser{
		logger:  logger,
		denoise: denoise,
	}
}

// Parse builds a models.Track from one GPX document. filename provides the
// unique corpus key and the display-name fallback. The returned track has no
// geohash; the ingest layer derives it from the bounds.
//
// Only the first <trk> element is used; its segments are concatenated into
// one ordered point sequence.
func (p *Parser) Parse(data []byte, filename string) (*models.Track, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	if len(doc.Tracks) == 0 {
		return nil, ErrNoTrack
	}
	src := doc.Tracks[0]

	track := &models.Track{
		Filename:    filename,
		Name:        src.Name,
		Description: src.Description,
	}

	var (
		firstPoint bool = true
		prev       *models.TrackPoint
		elevations []float64
		startTime  *time.Time
		endTime    *time.Time
	)

	for _, segment := range src.Segments {
		for _, point := range segment.Points {
			tp := models.TrackPoint{
				Latitude:  point.Latitude,
				Longitude: point.Longitude,
			}
			if point.Elevation.NotNull() {
				ele := point.Elevation.Value()
				tp.Elevation = &ele
				elevations = append(elevations, ele)
			}
			if !point.Timestamp.IsZero() {
				ts := point.Timestamp
				tp.Time = &ts
			}

			if firstPoint {
				track.Bounds = models.Bounds{
					North: tp.Latitude, South: tp.Latitude,
					East: tp.Longitude, West: tp.Longitude,
				}
				if tp.Elevation != nil {
					track.MinElevation = *tp.Elevation
					track.MaxElevation = *tp.Elevation
				}
				firstPoint = false
			} else {
				track.Bounds.North = math.Max(track.Bounds.North, tp.Latitude)
				track.Bounds.South = math.Min(track.Bounds.South, tp.Latitude)
				track.Bounds.East = math.Max(track.Bounds.East, tp.Longitude)
				track.Bounds.West = math.Min(track.Bounds.West, tp.Longitude)

				if tp.Elevation != nil {
					if len(elevations) == 1 {
						// First sample with elevation seen mid-track.
						track.MinElevation = *tp.Elevation
						track.MaxElevation = *tp.Elevation
					} else {
						track.MinElevation = math.Min(track.MinElevation, *tp.Elevation)
						track.MaxElevation = math.Max(track.MaxElevation, *tp.Elevation)
					}
				}
			}

			if tp.Time != nil {
				if startTime == nil || tp.Time.Before(*startTime) {
					startTime = tp.Time
				}
				if endTime == nil || tp.Time.After(*endTime) {
					endTime = tp.Time
				}
			}

			if prev != nil {
				track.Distance += Haversine(
					prev.Latitude, prev.Longitude,
					tp.Latitude, tp.Longitude,
				)
			}

			track.Points = append(track.Points, tp)
			prev = &track.Points[len(track.Points)-1]
		}
	}

	if p.denoise {
		track.ElevationGain, track.ElevationLoss = SegmentElevation(elevations)
	} else {
		track.ElevationGain, track.ElevationLoss = sumElevationDeltas(elevations)
	}

	track.StartTime = startTime
	track.EndTime = endTime
	if startTime != nil && endTime != nil {
		track.Duration = int(endTime.Sub(*startTime).Seconds())
	}

	if track.Name == "" {
		base := filepath.Base(filename)
		track.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	p.logger.WithFields(logrus.Fields{
		"filename": filename,
		"points":   len(track.Points),
		"distance": track.Distance,
		"duration": track.Duration,
	}).Debug("Parsed GPX track")

	return track, nil
}

// Haversine calculates the great-circle distance in meters between two
// points given in degrees, assuming a spherical Earth.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	deltaLat := lat2Rad - lat1Rad
	deltaLon := lon2Rad - lon1Rad

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

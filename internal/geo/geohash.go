// Package geo derives geohash index keys from track bounding boxes.
//
// The stored geohash is a coarse spatial pre-filter only: nearby centroids
// share string prefixes, so an ordinary B-tree index on the geohash column
// can prune most non-candidates of a viewport query with a LIKE 'prefix%'
// condition. Inclusion is always decided by the exact bounds-overlap test,
// never by the hash.
package geo

import (
	geohash "github.com/TomiHiltunen/geohash-golang"

	"trailhead/pkg/models"
)

// DefaultPrecision is the geohash length used for stored index keys.
// Nine characters discriminate to a few meters, well below city-block
// granularity.
const DefaultPrecision = 9

// MinPrefixLen is the shortest usable query prefix. A one-character prefix
// covers a cell thousands of kilometers wide and prunes nothing worthwhile.
const MinPrefixLen = 2

// CentroidHash encodes the midpoint of a bounding box as a geohash of the
// given precision. Pure and deterministic.
func CentroidHash(b models.Bounds, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	lat, lon := b.Center()
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

// QueryPrefix computes the coarse prefix filter for a viewport box: the
// longest common prefix of the geohashes of its northwest and southeast
// corners. The empty string is returned when the corners diverge before
// MinPrefixLen characters, meaning the prefix filter should be skipped.
func QueryPrefix(b models.Bounds, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	nw := geohash.EncodeWithPrecision(b.North, b.West, precision)
	se := geohash.EncodeWithPrecision(b.South, b.East, precision)

	prefix := commonPrefix(nw, se)
	if len(prefix) < MinPrefixLen {
		return ""
	}
	return prefix
}

// commonPrefix returns the longest shared leading substring of a and b.
func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}

package gpx

// noiseThreshold is the minimum elevation delta (meters) that counts as a
// real climb or descent between consecutive samples. GPS and barometric
// sensors jitter by a few decimeters; summing raw deltas double-counts that
// jitter as alternating micro up/down movement.
const noiseThreshold = 0.5

// segmentDirection classifies a run of consecutive elevation samples.
type segmentDirection int

const (
	segmentFlat segmentDirection = iota
	segmentUp
	segmentDown
)

// classifyDelta maps one consecutive elevation delta onto a direction.
func classifyDelta(delta float64) segmentDirection {
	switch {
	case delta > noiseThreshold:
		return segmentUp
	case delta < -noiseThreshold:
		return segmentDown
	default:
		return segmentFlat
	}
}

// SegmentElevation accumulates total elevation gain and loss from an ordered
// sequence of elevation samples, de-noised by run classification: consecutive
// deltas are grouped into ascending, descending and flat runs, and only the
// net change of each closed run is credited to the gain or loss total.
// Fewer than two samples yields (0, 0).
func SegmentElevation(elevations []float64) (gain, loss float64) {
	if len(elevations) < 2 {
		return 0, 0
	}

	direction := segmentFlat
	runStart := elevations[0]

	flush := func(end float64) {
		net := end - runStart
		switch {
		case direction == segmentUp && net > 0:
			gain += net
		case direction == segmentDown && net < 0:
			loss += -net
		}
	}

	for i := 1; i < len(elevations); i++ {
		next := classifyDelta(elevations[i] - elevations[i-1])
		if next != direction {
			// Close the finished run at the sample where direction changed.
			flush(elevations[i-1])
			direction = next
			runStart = elevations[i-1]
		}
	}

	// Flush the final open run.
	flush(elevations[len(elevations)-1])

	return gain, loss
}

// sumElevationDeltas is the naive consecutive-delta accumulation. It
// over-counts sensor noise and exists only for datasets whose stored
// figures were computed this way before the segmented algorithm landed.
func sumElevationDeltas(elevations []float64) (gain, loss float64) {
	for i := 1; i < len(elevations); i++ {
		delta := elevations[i] - elevations[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss += -delta
		}
	}
	return gain, loss
}

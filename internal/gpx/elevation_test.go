package gpx

import (
	"math"
	"testing"
)

func TestSegmentElevation(t *testing.T) {
	tests := []struct {
		name       string
		elevations []float64
		wantGain   float64
		wantLoss   float64
	}{
		{
			name:       "steady climb",
			elevations: []float64{0, 10, 20, 30},
			wantGain:   30,
			wantLoss:   0,
		},
		{
			name:       "steady descent",
			elevations: []float64{30, 20, 10, 0},
			wantGain:   0,
			wantLoss:   30,
		},
		{
			name:       "sensor noise below threshold",
			elevations: []float64{100, 100.2, 100.1, 100.3},
			wantGain:   0,
			wantLoss:   0,
		},
		{
			name:       "climb then descent",
			elevations: []float64{100, 150, 200, 150, 100},
			wantGain:   100,
			wantLoss:   100,
		},
		{
			name:       "noisy climb ignores sub-threshold dips",
			elevations: []float64{100, 110, 109.8, 120, 119.9, 130},
			wantGain:   30.3,
			wantLoss:   0,
		},
		{
			name:       "empty input",
			elevations: nil,
			wantGain:   0,
			wantLoss:   0,
		},
		{
			name:       "single sample",
			elevations: []float64{42},
			wantGain:   0,
			wantLoss:   0,
		},
		{
			name:       "flat track",
			elevations: []float64{500, 500, 500, 500},
			wantGain:   0,
			wantLoss:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gain, loss := SegmentElevation(tt.elevations)

			if math.Abs(gain-tt.wantGain) > 0.01 {
				t.Errorf("SegmentElevation() gain = %v, want %v", gain, tt.wantGain)
			}
			if math.Abs(loss-tt.wantLoss) > 0.01 {
				t.Errorf("SegmentElevation() loss = %v, want %v", loss, tt.wantLoss)
			}
		})
	}
}

func TestSumElevationDeltas(t *testing.T) {
	gain, loss := sumElevationDeltas([]float64{100, 100.2, 100.1, 100.3})

	// The naive sum counts every wiggle, unlike the segmented variant.
	if math.Abs(gain-0.4) > 0.001 {
		t.Errorf("sumElevationDeltas() gain = %v, want 0.4", gain)
	}
	if math.Abs(loss-0.1) > 0.001 {
		t.Errorf("sumElevationDeltas() loss = %v, want 0.1", loss)
	}
}

package detection

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Baseline is a per-segment statistical snapshot over the trailing
// baseline window. It is recomputed fresh for every evaluation and
// never cached between calls; zero samples for a metric means
// "insufficient data", which rules must treat as no trigger.
type Baseline struct {
	MeanFlow     float64
	MeanSpeed    float64
	FlowSamples  int
	SpeedSamples int
}

// HasFlow reports whether the flow baseline is backed by any samples.
func (b Baseline) HasFlow() bool { return b.FlowSamples > 0 }

// HasSpeed reports whether the speed baseline is backed by any samples.
func (b Baseline) HasSpeed() bool { return b.SpeedSamples > 0 }

// ComputeBaseline derives the segment baseline from a reading bundle.
// Only readings inside [now-window, now-exclusion] contribute: the
// trailing exclusion keeps the anomaly currently under evaluation from
// polluting its own reference.
func ComputeBaseline(bundle SegmentReadings, tuning Tuning, now time.Time) Baseline {
	cutoff := now.Add(-tuning.BaselineWindow)
	excludeAfter := now.Add(-tuning.BaselineExclusion)

	flows := baselineValues(bundle.Flow, cutoff, excludeAfter, func(p models.ReadingPayload) (float64, bool) {
		return p.Flow()
	})
	speeds := baselineValues(bundle.Speed, cutoff, excludeAfter, func(p models.ReadingPayload) (float64, bool) {
		return p.Speed()
	})

	b := Baseline{FlowSamples: len(flows), SpeedSamples: len(speeds)}
	if len(flows) > 0 {
		b.MeanFlow = stat.Mean(flows, nil)
	}
	if len(speeds) > 0 {
		b.MeanSpeed = stat.Mean(speeds, nil)
	}
	return b
}

func baselineValues(readings []*models.SensorReading, cutoff, excludeAfter time.Time, value func(models.ReadingPayload) (float64, bool)) []float64 {
	var values []float64
	for _, reading := range readings {
		ts := reading.Timestamp
		if ts.Before(cutoff) || ts.After(excludeAfter) {
			continue
		}
		if v, ok := value(reading.Payload); ok {
			values = append(values, v)
		}
	}
	return values
}

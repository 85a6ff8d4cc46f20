package detection

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Rule names, fixed identifiers recorded on incidents.
const (
	RuleFlowDropAndSpeedDrop = "FLOW_DROP_AND_SPEED_DROP"
	RuleStoppedVehicle       = "STOPPED_VEHICLE_DETECTED"
)

// Tuning holds the detection thresholds. A Tuning value is immutable;
// the evaluator swaps whole snapshots on reload.
type Tuning struct {
	// EvaluationWindow bounds the recent readings considered per run.
	EvaluationWindow time.Duration
	// BaselineWindow is the trailing window for baseline means.
	BaselineWindow time.Duration
	// BaselineExclusion trims the most recent readings out of the
	// baseline so the anomaly under test doesn't skew its reference.
	BaselineExclusion time.Duration
	// ConsecutiveReadings is the minimum run length for a sustained
	// condition. Single transient dips must not trigger.
	ConsecutiveReadings int
	// FlowDropRatio: flow qualifies when <= ratio * baseline mean.
	FlowDropRatio float64
	// SpeedThresholdKMH: speed qualifies when <= this absolute value.
	SpeedThresholdKMH float64
	// MinBaselineFlow and MinBaselineSpeed arm the congestion rule
	// only when the baseline describes free-flowing traffic; a road
	// that is already slow is not a fresh anomaly.
	MinBaselineFlow  float64
	MinBaselineSpeed float64
}

// DefaultTuning returns the stock detection thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		EvaluationWindow:    10 * time.Minute,
		BaselineWindow:      5 * time.Minute,
		BaselineExclusion:   30 * time.Second,
		ConsecutiveReadings: 2,
		FlowDropRatio:       0.40,
		SpeedThresholdKMH:   25,
		MinBaselineFlow:     30,
		MinBaselineSpeed:    60,
	}
}

// Validate checks the tuning for usable values.
func (t Tuning) Validate() error {
	if t.EvaluationWindow <= 0 {
		return fmt.Errorf("evaluation window must be positive")
	}
	if t.BaselineWindow <= 0 {
		return fmt.Errorf("baseline window must be positive")
	}
	if t.BaselineExclusion < 0 || t.BaselineExclusion >= t.BaselineWindow {
		return fmt.Errorf("baseline exclusion must be shorter than the baseline window")
	}
	if t.ConsecutiveReadings < 2 {
		return fmt.Errorf("consecutive readings must be at least 2")
	}
	if t.FlowDropRatio <= 0 || t.FlowDropRatio >= 1 {
		return fmt.Errorf("flow drop ratio must be in (0, 1)")
	}
	if t.SpeedThresholdKMH <= 0 {
		return fmt.Errorf("speed threshold must be positive")
	}
	return nil
}

// Verdict is the ephemeral output of one rule evaluation for one
// segment. Verdicts are never persisted; the incident ledger consumes
// them immediately.
type Verdict struct {
	SegmentID int64
	Rule      string
	Type      models.IncidentType
	Severity  models.Severity
	Triggered bool
	Detail    string
}

// Evaluator evaluates the detection rules. Evaluation itself is a
// pure function of the inputs and the current tuning snapshot.
type Evaluator struct {
	tuning atomic.Pointer[Tuning]
}

// NewEvaluator creates an evaluator with the given tuning.
func NewEvaluator(tuning Tuning) *Evaluator {
	e := &Evaluator{}
	e.tuning.Store(&tuning)
	return e
}

// Tuning returns the current tuning snapshot.
func (e *Evaluator) Tuning() Tuning {
	return *e.tuning.Load()
}

// SetTuning swaps in a new tuning snapshot.
func (e *Evaluator) SetTuning(tuning Tuning) {
	e.tuning.Store(&tuning)
}

// Evaluate runs every rule against the segment's recent readings and
// baseline, producing one verdict per rule. Rules are independent: a
// segment may trigger both in the same run, and the ledger applies
// the dedup invariant per incident type.
func (e *Evaluator) Evaluate(segmentID int64, bundle SegmentReadings, baseline Baseline) []Verdict {
	tuning := e.Tuning()
	return []Verdict{
		evaluateCongestion(segmentID, bundle, baseline, tuning),
		evaluateStoppedVehicle(segmentID, bundle, tuning),
	}
}

// evaluateCongestion checks for a sustained flow drop paired with a
// sustained speed drop. Both trailing runs must qualify, each over
// the last ConsecutiveReadings readings of its own series within the
// evaluation window.
func evaluateCongestion(segmentID int64, bundle SegmentReadings, baseline Baseline, tuning Tuning) Verdict {
	verdict := Verdict{
		SegmentID: segmentID,
		Rule:      RuleFlowDropAndSpeedDrop,
		Type:      models.IncidentTypeCongestion,
		Severity:  models.SeverityHigh,
	}

	flows := numericSeries(bundle.Flow, models.ReadingPayload.Flow)
	speeds := numericSeries(bundle.Speed, models.ReadingPayload.Speed)

	n := tuning.ConsecutiveReadings
	if len(flows) < n || len(speeds) < n {
		return verdict
	}

	// Insufficient baseline means no trigger, never "max anomaly".
	if !baseline.HasFlow() || !baseline.HasSpeed() {
		return verdict
	}
	if baseline.MeanFlow < tuning.MinBaselineFlow || baseline.MeanSpeed < tuning.MinBaselineSpeed {
		return verdict
	}

	flowThreshold := baseline.MeanFlow * tuning.FlowDropRatio
	flowSustained := trailingRunQualifies(flows, n, func(v float64) bool {
		return v <= flowThreshold
	})
	speedSustained := trailingRunQualifies(speeds, n, func(v float64) bool {
		return v <= tuning.SpeedThresholdKMH
	})

	if flowSustained && speedSustained {
		verdict.Triggered = true
		verdict.Detail = fmt.Sprintf("flow <= %.1f veh/min and speed <= %.1f km/h for %d consecutive readings",
			flowThreshold, tuning.SpeedThresholdKMH, n)
	}
	return verdict
}

// evaluateStoppedVehicle checks for consecutive stopped-vehicle
// readings with a blocked lane.
func evaluateStoppedVehicle(segmentID int64, bundle SegmentReadings, tuning Tuning) Verdict {
	verdict := Verdict{
		SegmentID: segmentID,
		Rule:      RuleStoppedVehicle,
		Type:      models.IncidentTypeStoppedVehicle,
		Severity:  models.SeverityMedium,
	}

	n := tuning.ConsecutiveReadings
	if len(bundle.Stopped) < n {
		return verdict
	}

	last := bundle.Stopped[len(bundle.Stopped)-n:]
	for _, reading := range last {
		if !reading.Payload.Blocked() {
			return verdict
		}
	}

	verdict.Triggered = true
	verdict.Detail = fmt.Sprintf("lane blocked across %d consecutive readings", n)
	return verdict
}

func numericSeries(readings []*models.SensorReading, value func(models.ReadingPayload) (float64, bool)) []float64 {
	var values []float64
	for _, reading := range readings {
		if v, ok := value(reading.Payload); ok {
			values = append(values, v)
		}
	}
	return values
}

// trailingRunQualifies reports whether the last n values of the
// series all satisfy the predicate. Consecutive means consecutive in
// arrival order for the series, not merely present in the window.
func trailingRunQualifies(values []float64, n int, qualifies func(float64) bool) bool {
	if len(values) < n {
		return false
	}
	for _, v := range values[len(values)-n:] {
		if !qualifies(v) {
			return false
		}
	}
	return true
}

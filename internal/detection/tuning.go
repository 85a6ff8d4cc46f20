package detection

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// tuningFile is the YAML representation of Tuning. Durations are
// Go duration strings ("5m", "30s").
type tuningFile struct {
	EvaluationWindow    string  `yaml:"evaluation_window"`
	BaselineWindow      string  `yaml:"baseline_window"`
	BaselineExclusion   string  `yaml:"baseline_exclusion"`
	ConsecutiveReadings int     `yaml:"consecutive_readings"`
	FlowDropRatio       float64 `yaml:"flow_drop_ratio"`
	SpeedThresholdKMH   float64 `yaml:"speed_threshold_kmh"`
	MinBaselineFlow     float64 `yaml:"min_baseline_flow"`
	MinBaselineSpeed    float64 `yaml:"min_baseline_speed"`
}

// LoadTuningFromFile reads detection tuning from a YAML file. Missing
// fields keep their defaults.
func LoadTuningFromFile(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	return parseTuning(data)
}

func parseTuning(data []byte) (Tuning, error) {
	var file tuningFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning: %w", err)
	}

	tuning := DefaultTuning()

	set := func(dst *time.Duration, raw, field string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		*dst = d
		return nil
	}

	if err := set(&tuning.EvaluationWindow, file.EvaluationWindow, "evaluation_window"); err != nil {
		return Tuning{}, err
	}
	if err := set(&tuning.BaselineWindow, file.BaselineWindow, "baseline_window"); err != nil {
		return Tuning{}, err
	}
	if err := set(&tuning.BaselineExclusion, file.BaselineExclusion, "baseline_exclusion"); err != nil {
		return Tuning{}, err
	}
	if file.ConsecutiveReadings != 0 {
		tuning.ConsecutiveReadings = file.ConsecutiveReadings
	}
	if file.FlowDropRatio != 0 {
		tuning.FlowDropRatio = file.FlowDropRatio
	}
	if file.SpeedThresholdKMH != 0 {
		tuning.SpeedThresholdKMH = file.SpeedThresholdKMH
	}
	if file.MinBaselineFlow != 0 {
		tuning.MinBaselineFlow = file.MinBaselineFlow
	}
	if file.MinBaselineSpeed != 0 {
		tuning.MinBaselineSpeed = file.MinBaselineSpeed
	}

	if err := tuning.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("invalid tuning: %w", err)
	}
	return tuning, nil
}

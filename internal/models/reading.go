package models

import (
	"time"
)

// ReadingPayload is the typed union of per-sensor-type measurement
// fields. Exactly the fields required by the owning sensor's type must
// be present; Validate enforces this at the storage boundary so the
// core never deals with untyped maps.
type ReadingPayload struct {
	// FLOW sensors.
	VehiclesPerMinute *float64 `json:"vehicles_per_minute,omitempty"`

	// SPEED sensors.
	AvgSpeedKMH *float64 `json:"avg_speed_kmh,omitempty"`

	// STOPPED_VEHICLE sensors.
	StoppedCount *int  `json:"stopped_count,omitempty"`
	LaneBlocked  *bool `json:"lane_blocked,omitempty"`
}

// Validate checks that the payload carries the fields required by the
// given sensor type with sane values.
func (p ReadingPayload) Validate(t SensorType) error {
	switch t {
	case SensorTypeFlow:
		if p.VehiclesPerMinute == nil {
			return Validationf("missing vehicles_per_minute for flow sensor")
		}
		if *p.VehiclesPerMinute < 0 {
			return Validationf("vehicles_per_minute must not be negative")
		}
	case SensorTypeSpeed:
		if p.AvgSpeedKMH == nil {
			return Validationf("missing avg_speed_kmh for speed sensor")
		}
		if *p.AvgSpeedKMH < 0 {
			return Validationf("avg_speed_kmh must not be negative")
		}
	case SensorTypeStoppedVehicle:
		if p.StoppedCount == nil || p.LaneBlocked == nil {
			return Validationf("missing stopped_count or lane_blocked for stopped vehicle sensor")
		}
		if *p.StoppedCount < 0 {
			return Validationf("stopped_count must not be negative")
		}
	default:
		return Validationf("unknown sensor type %q", t)
	}
	return nil
}

// Flow returns the flow measurement, or false if absent.
func (p ReadingPayload) Flow() (float64, bool) {
	if p.VehiclesPerMinute == nil {
		return 0, false
	}
	return *p.VehiclesPerMinute, true
}

// Speed returns the speed measurement, or false if absent.
func (p ReadingPayload) Speed() (float64, bool) {
	if p.AvgSpeedKMH == nil {
		return 0, false
	}
	return *p.AvgSpeedKMH, true
}

// Blocked reports whether the payload describes at least one stopped
// vehicle with a blocked lane.
func (p ReadingPayload) Blocked() bool {
	return p.StoppedCount != nil && *p.StoppedCount >= 1 &&
		p.LaneBlocked != nil && *p.LaneBlocked
}

// SensorReading is a single measurement captured at a moment in time.
// Readings are append-only; once stored they are never mutated.
type SensorReading struct {
	ID string `json:"id"`

	SensorID int64 `json:"sensor_id"`

	// RoadSegmentID and SensorType are denormalized from the owning
	// sensor so segment-scoped window queries need no join.
	RoadSegmentID int64      `json:"road_segment_id"`
	SensorType    SensorType `json:"sensor_type"`

	Timestamp time.Time      `json:"timestamp"`
	Payload   ReadingPayload `json:"data"`
}

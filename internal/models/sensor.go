package models

// SensorType identifies what a sensor measures and therefore
// which payload fields its readings must carry.
type SensorType string

const (
	SensorTypeFlow           SensorType = "FLOW"
	SensorTypeSpeed          SensorType = "SPEED"
	SensorTypeStoppedVehicle SensorType = "STOPPED_VEHICLE"
)

// Valid reports whether t is a known sensor type.
func (t SensorType) Valid() bool {
	switch t {
	case SensorTypeFlow, SensorTypeSpeed, SensorTypeStoppedVehicle:
		return true
	default:
		return false
	}
}

// Sensor represents a roadside sensor device attached to exactly one
// road segment. Sensors are seeded from configuration and immutable
// at runtime.
type Sensor struct {
	ID            int64      `json:"id" yaml:"id"`
	Name          string     `json:"name" yaml:"name"`
	Type          SensorType `json:"type" yaml:"type"`
	RoadSegmentID int64      `json:"road_segment_id" yaml:"road_segment_id"`
	Latitude      *float64   `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Active        bool       `json:"active" yaml:"active"`
}

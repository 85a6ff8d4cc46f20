// Package models defines the domain entities shared across roadwatch.
package models

// RoadSegment represents a monitored stretch of roadway.
// Segments are seeded from configuration and immutable at runtime.
type RoadSegment struct {
	ID        int64    `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Code      string   `json:"code" yaml:"code"`
	Direction string   `json:"direction" yaml:"direction"`
	Latitude  *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
}

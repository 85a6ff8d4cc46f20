package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Topology is the seed file format: the road segments and sensors the
// deployment monitors.
type Topology struct {
	Segments []*models.RoadSegment `yaml:"segments"`
	Sensors  []*models.Sensor      `yaml:"sensors"`
}

// LoadTopologyFromFile reads a topology seed file.
func LoadTopologyFromFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}

	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}

	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return &topo, nil
}

// Validate checks referential integrity of the topology.
func (t *Topology) Validate() error {
	segments := make(map[int64]bool, len(t.Segments))
	for i, segment := range t.Segments {
		if segment.ID <= 0 {
			return fmt.Errorf("segment at index %d: id must be positive", i)
		}
		if segment.Name == "" || segment.Code == "" {
			return fmt.Errorf("segment %d: name and code are required", segment.ID)
		}
		if segments[segment.ID] {
			return fmt.Errorf("duplicate segment id %d", segment.ID)
		}
		segments[segment.ID] = true
	}

	sensors := make(map[int64]bool, len(t.Sensors))
	for i, sensor := range t.Sensors {
		if sensor.ID <= 0 {
			return fmt.Errorf("sensor at index %d: id must be positive", i)
		}
		if !sensor.Type.Valid() {
			return fmt.Errorf("sensor %d: unknown type %q", sensor.ID, sensor.Type)
		}
		if !segments[sensor.RoadSegmentID] {
			return fmt.Errorf("sensor %d references unknown segment %d", sensor.ID, sensor.RoadSegmentID)
		}
		if sensors[sensor.ID] {
			return fmt.Errorf("duplicate sensor id %d", sensor.ID)
		}
		sensors[sensor.ID] = true
	}
	return nil
}

// Seed upserts the topology into storage. Safe to run on every start.
func Seed(ctx context.Context, store Storage, topo *Topology) error {
	for _, segment := range topo.Segments {
		if err := store.Segments().Upsert(ctx, segment); err != nil {
			return fmt.Errorf("seed segment %d: %w", segment.ID, err)
		}
	}
	for _, sensor := range topo.Sensors {
		if err := store.Sensors().Upsert(ctx, sensor); err != nil {
			return fmt.Errorf("seed sensor %d: %w", sensor.ID, err)
		}
	}
	return nil
}

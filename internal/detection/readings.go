// Package detection provides the traffic anomaly detection engine:
// rolling per-segment baselines and pure rule evaluation over recent
// sensor readings.
package detection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

// SegmentReadings bundles a segment's recent readings grouped by
// sensor category, each slice ascending by timestamp.
type SegmentReadings struct {
	Flow    []*models.SensorReading
	Speed   []*models.SensorReading
	Stopped []*models.SensorReading
}

// Merged returns all readings of the bundle in one chronologically
// sorted slice, capped to the most recent limit entries (0 = no cap).
func (s SegmentReadings) Merged(limit int) []*models.SensorReading {
	merged := make([]*models.SensorReading, 0, len(s.Flow)+len(s.Speed)+len(s.Stopped))
	merged = append(merged, s.Flow...)
	merged = append(merged, s.Speed...)
	merged = append(merged, s.Stopped...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// Collector fetches recent reading bundles for segments.
type Collector struct {
	readings storage.ReadingRepository
}

// NewCollector creates a collector over the given reading repository.
func NewCollector(readings storage.ReadingRepository) *Collector {
	return &Collector{readings: readings}
}

// Collect fetches the segment's readings across all sensor types for
// the trailing window ending at now.
func (c *Collector) Collect(ctx context.Context, segmentID int64, window time.Duration, now time.Time) (SegmentReadings, error) {
	var bundle SegmentReadings

	fetch := func(typ models.SensorType) ([]*models.SensorReading, error) {
		readings, err := c.readings.RecentBySegment(ctx, segmentID, typ, window, now)
		if err != nil {
			return nil, fmt.Errorf("collect %s readings for segment %d: %w", typ, segmentID, err)
		}
		return readings, nil
	}

	var err error
	if bundle.Flow, err = fetch(models.SensorTypeFlow); err != nil {
		return bundle, err
	}
	if bundle.Speed, err = fetch(models.SensorTypeSpeed); err != nil {
		return bundle, err
	}
	if bundle.Stopped, err = fetch(models.SensorTypeStoppedVehicle); err != nil {
		return bundle, err
	}
	return bundle, nil
}

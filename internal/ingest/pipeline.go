package ingest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/roadwatch/internal/detection"
	"github.com/good-yellow-bee/roadwatch/internal/enrichment"
	"github.com/good-yellow-bee/roadwatch/internal/events"
	"github.com/good-yellow-bee/roadwatch/internal/incident"
	"github.com/good-yellow-bee/roadwatch/internal/metrics"
	"github.com/good-yellow-bee/roadwatch/internal/models"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

// ReadingInput is one sensor observation as submitted by a collector.
type ReadingInput struct {
	SensorID  int64                 `json:"sensor_id"`
	Timestamp time.Time             `json:"timestamp"`
	Payload   models.ReadingPayload `json:"payload"`
}

// Result summarizes a processed batch.
type Result struct {
	Inserted       int      `json:"inserted"`
	NewIncidentIDs []string `json:"new_incident_ids"`
}

// Pipeline validates reading batches, persists them, and runs incident
// detection on every road segment the batch touched.
type Pipeline struct {
	readings  storage.ReadingRepository
	collector *detection.Collector
	evaluator *detection.Evaluator
	ledger    *incident.Ledger
	enricher  *enrichment.Coordinator
	publisher events.Publisher
	metrics   *metrics.Collector

	mu       sync.RWMutex
	sensors  map[int64]*models.Sensor
	segments map[int64]*models.RoadSegment
}

// NewPipeline creates a batch pipeline. The enricher, publisher, and
// metrics collector are optional.
func NewPipeline(
	readings storage.ReadingRepository,
	collector *detection.Collector,
	evaluator *detection.Evaluator,
	ledger *incident.Ledger,
	enricher *enrichment.Coordinator,
	publisher events.Publisher,
	mc *metrics.Collector,
) *Pipeline {
	p := &Pipeline{
		readings:  readings,
		collector: collector,
		evaluator: evaluator,
		ledger:    ledger,
		enricher:  enricher,
		publisher: publisher,
		metrics:   mc,
		sensors:   make(map[int64]*models.Sensor),
		segments:  make(map[int64]*models.RoadSegment),
	}
	// The ledger's create transition is the single handoff point to
	// enrichment and event publishing.
	ledger.OnCreate(p.announce)
	return p
}

// LoadTopology populates the sensor and segment caches from storage.
// Call after seeding and again whenever the topology changes.
func (p *Pipeline) LoadTopology(ctx context.Context, segments storage.SegmentRepository, sensors storage.SensorRepository) error {
	segs, err := segments.List(ctx)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}
	sens, err := sensors.List(ctx)
	if err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}

	segCache := make(map[int64]*models.RoadSegment, len(segs))
	for _, s := range segs {
		segCache[s.ID] = s
	}
	sensorCache := make(map[int64]*models.Sensor, len(sens))
	for _, s := range sens {
		sensorCache[s.ID] = s
	}

	p.mu.Lock()
	p.segments = segCache
	p.sensors = sensorCache
	p.mu.Unlock()

	log.Printf("pipeline topology cache loaded: %d segments, %d sensors", len(segCache), len(sensorCache))
	return nil
}

func (p *Pipeline) lookupSensor(id int64) (*models.Sensor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sensors[id]
	return s, ok
}

func (p *Pipeline) lookupSegment(id int64) *models.RoadSegment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.segments[id]
}

// Submit validates and persists a batch, then evaluates every affected
// segment. The batch is atomic: one bad reading rejects the whole batch
// and nothing is written.
func (p *Pipeline) Submit(ctx context.Context, inputs []ReadingInput) (*Result, error) {
	if p.metrics != nil {
		p.metrics.BatchesTotal.Inc()
	}
	if len(inputs) == 0 {
		return nil, models.Validationf("batch is empty")
	}

	readings := make([]*models.SensorReading, 0, len(inputs))
	segments := make(map[int64]struct{})
	var latest time.Time

	for i, in := range inputs {
		sensor, ok := p.lookupSensor(in.SensorID)
		if !ok {
			p.rejectBatch(len(inputs))
			return nil, models.Validationf("reading %d: unknown sensor %d", i, in.SensorID)
		}
		if in.Timestamp.IsZero() {
			p.rejectBatch(len(inputs))
			return nil, models.Validationf("reading %d: timestamp is required", i)
		}
		if err := in.Payload.Validate(sensor.Type); err != nil {
			p.rejectBatch(len(inputs))
			return nil, models.Validationf("reading %d: %v", i, err)
		}

		ts := in.Timestamp.UTC()
		readings = append(readings, &models.SensorReading{
			ID:            uuid.New().String(),
			SensorID:      sensor.ID,
			RoadSegmentID: sensor.RoadSegmentID,
			SensorType:    sensor.Type,
			Timestamp:     ts,
			Payload:       in.Payload,
		})
		segments[sensor.RoadSegmentID] = struct{}{}
		if ts.After(latest) {
			latest = ts
		}
	}

	if err := p.readings.InsertBatch(ctx, readings); err != nil {
		return nil, fmt.Errorf("inserting readings: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ReadingsIngested.Add(float64(len(readings)))
	}

	created := p.detect(ctx, segments, latest)

	ids := make([]string, 0, len(created))
	for _, inc := range created {
		ids = append(ids, inc.ID)
	}
	sort.Strings(ids)

	return &Result{Inserted: len(readings), NewIncidentIDs: ids}, nil
}

func (p *Pipeline) rejectBatch(n int) {
	if p.metrics != nil {
		p.metrics.ReadingsRejected.Add(float64(n))
	}
}

// detect evaluates the detection rules for each affected segment in
// parallel and applies triggered verdicts to the ledger. Detection
// failures are logged, never returned: the batch is already durable
// at this point and must not be failed retroactively, or a client
// retry would duplicate it. The next batch re-evaluates the same
// window anyway.
func (p *Pipeline) detect(ctx context.Context, segments map[int64]struct{}, now time.Time) []*models.Incident {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		mu      sync.Mutex
		created []*models.Incident
	)

	var g errgroup.Group
	g.SetLimit(4)

	for segmentID := range segments {
		g.Go(func() error {
			incidents, err := p.detectSegment(ctx, segmentID, now)
			if err != nil {
				log.Printf("detection error for segment %d: %v", segmentID, err)
				return nil
			}
			if len(incidents) > 0 {
				mu.Lock()
				created = append(created, incidents...)
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	return created
}

func (p *Pipeline) detectSegment(ctx context.Context, segmentID int64, now time.Time) ([]*models.Incident, error) {
	start := time.Now()
	tuning := p.evaluator.Tuning()

	bundle, err := p.collector.Collect(ctx, segmentID, tuning.EvaluationWindow, now)
	if err != nil {
		return nil, fmt.Errorf("collecting readings for segment %d: %w", segmentID, err)
	}

	baseline := detection.ComputeBaseline(bundle, tuning, now)
	verdicts := p.evaluator.Evaluate(segmentID, bundle, baseline)

	if p.metrics != nil {
		p.metrics.DetectionRuns.Inc()
		p.metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	}

	var created []*models.Incident
	for _, v := range verdicts {
		if v.Triggered && p.metrics != nil {
			p.metrics.VerdictsTriggered.WithLabelValues(v.Rule).Inc()
		}
		inc, err := p.ledger.Apply(ctx, v, bundle, now)
		if err != nil {
			return nil, fmt.Errorf("applying verdict %s: %w", v.Rule, err)
		}
		if inc == nil {
			continue
		}
		created = append(created, inc)
	}
	return created, nil
}

// announce runs on the ledger's create transition and hands the new
// incident to the enrichment coordinator and the event publisher.
// Both are best-effort.
func (p *Pipeline) announce(ctx context.Context, inc *models.Incident, bundle detection.SegmentReadings) {
	if p.metrics != nil {
		p.metrics.IncidentsCreated.WithLabelValues(string(inc.Type)).Inc()
	}
	if p.enricher != nil {
		p.enricher.Submit(enrichment.Request{
			Incident: inc,
			Segment:  p.lookupSegment(inc.RoadSegmentID),
			Readings: bundle,
		})
	}
	if p.publisher != nil {
		if err := p.publisher.PublishCreated(ctx, inc); err != nil {
			log.Printf("publishing incident created event: %v", err)
		}
	}
}

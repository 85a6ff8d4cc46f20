package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/detection"
	"github.com/good-yellow-bee/roadwatch/internal/events"
	"github.com/good-yellow-bee/roadwatch/internal/incident"
	"github.com/good-yellow-bee/roadwatch/internal/models"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func bptr(v bool) *bool       { return &v }

func openSeededStore(t *testing.T) storage.Storage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "roadwatch-pipeline-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	ctx := context.Background()
	segments := []*models.RoadSegment{
		{ID: 1, Name: "Airport Spur", Code: "AS"},
		{ID: 2, Name: "Ring Road East", Code: "RRE"},
	}
	for _, seg := range segments {
		if err := store.Segments().Upsert(ctx, seg); err != nil {
			t.Fatalf("seed segment: %v", err)
		}
	}
	sensors := []*models.Sensor{
		{ID: 10, Name: "flow-1", Type: models.SensorTypeFlow, RoadSegmentID: 1, Active: true},
		{ID: 11, Name: "speed-1", Type: models.SensorTypeSpeed, RoadSegmentID: 1, Active: true},
		{ID: 12, Name: "stop-1", Type: models.SensorTypeStoppedVehicle, RoadSegmentID: 1, Active: true},
		{ID: 20, Name: "flow-2", Type: models.SensorTypeFlow, RoadSegmentID: 2, Active: true},
	}
	for _, sensor := range sensors {
		if err := store.Sensors().Upsert(ctx, sensor); err != nil {
			t.Fatalf("seed sensor: %v", err)
		}
	}

	return store
}

func buildPipeline(t *testing.T, store storage.Storage, incidents storage.IncidentRepository, publisher events.Publisher) *Pipeline {
	t.Helper()

	evaluator := detection.NewEvaluator(detection.DefaultTuning())
	collector := detection.NewCollector(store.Readings())
	ledger := incident.NewLedger(incidents)

	pipeline := NewPipeline(store.Readings(), collector, evaluator, ledger, nil, publisher, nil)
	if err := pipeline.LoadTopology(context.Background(), store.Segments(), store.Sensors()); err != nil {
		t.Fatalf("load topology: %v", err)
	}
	return pipeline
}

func setupPipeline(t *testing.T) (*Pipeline, storage.Storage) {
	t.Helper()
	store := openSeededStore(t)
	return buildPipeline(t, store, store.Incidents(), nil), store
}

// congestionBatch produces a healthy baseline that collapses over the
// last two minutes: flow drops below 40% of baseline while speed falls
// under the congestion threshold.
func congestionBatch(now time.Time) []ReadingInput {
	flows := []float64{50, 52, 48, 10, 8}
	speeds := []float64{90, 88, 85, 20, 15}

	var batch []ReadingInput
	for i := range flows {
		ts := now.Add(-time.Duration(len(flows)-1-i) * time.Minute)
		batch = append(batch,
			ReadingInput{SensorID: 10, Timestamp: ts, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(flows[i])}},
			ReadingInput{SensorID: 11, Timestamp: ts, Payload: models.ReadingPayload{AvgSpeedKMH: fptr(speeds[i])}},
		)
	}
	return batch
}

func TestPipeline_SubmitCreatesCongestionIncident(t *testing.T) {
	pipeline, store := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	result, err := pipeline.Submit(ctx, congestionBatch(now))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Inserted != 10 {
		t.Errorf("inserted = %d, want 10", result.Inserted)
	}
	if len(result.NewIncidentIDs) != 1 {
		t.Fatalf("new incidents = %d, want 1", len(result.NewIncidentIDs))
	}

	inc, err := store.Incidents().GetByID(ctx, result.NewIncidentIDs[0])
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if inc.Type != models.IncidentTypeCongestion {
		t.Errorf("type = %s, want %s", inc.Type, models.IncidentTypeCongestion)
	}
	if inc.RoadSegmentID != 1 {
		t.Errorf("segment = %d, want 1", inc.RoadSegmentID)
	}
	if inc.Status != models.IncidentStatusOpen {
		t.Errorf("status = %s, want OPEN", inc.Status)
	}
}

func TestPipeline_ResubmitRefreshesInsteadOfDuplicating(t *testing.T) {
	pipeline, store := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := pipeline.Submit(ctx, congestionBatch(now))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if len(first.NewIncidentIDs) != 1 {
		t.Fatalf("first submit created %d incidents, want 1", len(first.NewIncidentIDs))
	}

	later := now.Add(time.Minute)
	second, err := pipeline.Submit(ctx, []ReadingInput{
		{SensorID: 10, Timestamp: later, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(6)}},
		{SensorID: 11, Timestamp: later, Payload: models.ReadingPayload{AvgSpeedKMH: fptr(12)}},
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if len(second.NewIncidentIDs) != 0 {
		t.Errorf("second submit created %d incidents, want 0", len(second.NewIncidentIDs))
	}

	open, err := store.Incidents().CountOpen(ctx)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if open != 1 {
		t.Errorf("open incidents = %d, want 1", open)
	}
}

func TestPipeline_HealthyTrafficCreatesNothing(t *testing.T) {
	pipeline, store := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var batch []ReadingInput
	for i := 0; i < 5; i++ {
		ts := now.Add(-time.Duration(4-i) * time.Minute)
		batch = append(batch,
			ReadingInput{SensorID: 10, Timestamp: ts, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(45)}},
			ReadingInput{SensorID: 11, Timestamp: ts, Payload: models.ReadingPayload{AvgSpeedKMH: fptr(92)}},
		)
	}

	result, err := pipeline.Submit(ctx, batch)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.NewIncidentIDs) != 0 {
		t.Errorf("expected no incidents, got %d", len(result.NewIncidentIDs))
	}

	open, err := store.Incidents().CountOpen(ctx)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if open != 0 {
		t.Errorf("open incidents = %d, want 0", open)
	}
}

func TestPipeline_StoppedVehicleIncident(t *testing.T) {
	pipeline, store := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	blocked := models.ReadingPayload{StoppedCount: iptr(1), LaneBlocked: bptr(true)}
	result, err := pipeline.Submit(ctx, []ReadingInput{
		{SensorID: 12, Timestamp: now.Add(-30 * time.Second), Payload: blocked},
		{SensorID: 12, Timestamp: now, Payload: blocked},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.NewIncidentIDs) != 1 {
		t.Fatalf("new incidents = %d, want 1", len(result.NewIncidentIDs))
	}

	inc, err := store.Incidents().GetByID(ctx, result.NewIncidentIDs[0])
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if inc.Type != models.IncidentTypeStoppedVehicle {
		t.Errorf("type = %s, want %s", inc.Type, models.IncidentTypeStoppedVehicle)
	}
	if inc.Severity != models.SeverityMedium {
		t.Errorf("severity = %s, want %s", inc.Severity, models.SeverityMedium)
	}
}

func TestPipeline_RejectsWholeBatchOnUnknownSensor(t *testing.T) {
	pipeline, store := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := pipeline.Submit(ctx, []ReadingInput{
		{SensorID: 10, Timestamp: now, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(40)}},
		{SensorID: 999, Timestamp: now, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(40)}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}

	count, err := store.Readings().Count(ctx)
	if err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if count != 0 {
		t.Errorf("readings persisted from rejected batch: %d", count)
	}
}

func TestPipeline_RejectsPayloadMismatch(t *testing.T) {
	pipeline, _ := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Speed payload on a flow sensor.
	_, err := pipeline.Submit(ctx, []ReadingInput{
		{SensorID: 10, Timestamp: now, Payload: models.ReadingPayload{AvgSpeedKMH: fptr(80)}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestPipeline_RejectsMissingTimestamp(t *testing.T) {
	pipeline, _ := setupPipeline(t)

	_, err := pipeline.Submit(context.Background(), []ReadingInput{
		{SensorID: 10, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(40)}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPipeline_RejectsEmptyBatch(t *testing.T) {
	pipeline, _ := setupPipeline(t)

	_, err := pipeline.Submit(context.Background(), nil)
	if err == nil {
		t.Fatal("expected validation error for empty batch")
	}
}

func TestPipeline_SegmentsAreIndependent(t *testing.T) {
	pipeline, store := setupPipeline(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Segment 1 collapses while segment 2 only carries healthy flow.
	batch := congestionBatch(now)
	for i := 0; i < 5; i++ {
		ts := now.Add(-time.Duration(4-i) * time.Minute)
		batch = append(batch, ReadingInput{SensorID: 20, Timestamp: ts, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(55)}})
	}

	result, err := pipeline.Submit(ctx, batch)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.NewIncidentIDs) != 1 {
		t.Fatalf("new incidents = %d, want 1", len(result.NewIncidentIDs))
	}

	inc, err := store.Incidents().GetByID(ctx, result.NewIncidentIDs[0])
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if inc.RoadSegmentID != 1 {
		t.Errorf("incident on segment %d, want 1", inc.RoadSegmentID)
	}
}

// brokenIncidents simulates an incident store outage during detection.
type brokenIncidents struct {
	storage.IncidentRepository
}

func (brokenIncidents) GetOpenByKey(context.Context, int64, models.IncidentType) (*models.Incident, error) {
	return nil, errors.New("incident store offline")
}

func TestPipeline_DetectionFailureDoesNotFailSubmit(t *testing.T) {
	store := openSeededStore(t)
	pipeline := buildPipeline(t, store, brokenIncidents{store.Incidents()}, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	// The batch is durable once InsertBatch returns; a detection
	// failure afterwards must not turn into a client-visible error,
	// or a retry would store the readings twice.
	result, err := pipeline.Submit(ctx, congestionBatch(now))
	if err != nil {
		t.Fatalf("submit returned error on detection failure: %v", err)
	}
	if result.Inserted != 10 {
		t.Errorf("inserted = %d, want 10", result.Inserted)
	}
	if len(result.NewIncidentIDs) != 0 {
		t.Errorf("new incidents = %d, want 0", len(result.NewIncidentIDs))
	}

	count, err := store.Readings().Count(ctx)
	if err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if count != 10 {
		t.Errorf("stored readings = %d, want 10", count)
	}
}

// capturingPublisher records created-incident announcements.
type capturingPublisher struct {
	mu      sync.Mutex
	created []*models.Incident
}

func (c *capturingPublisher) Name() string { return "capture" }

func (c *capturingPublisher) PublishCreated(_ context.Context, inc *models.Incident) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, inc)
	return nil
}

func (c *capturingPublisher) PublishResolved(context.Context, *models.Incident) error { return nil }

func (c *capturingPublisher) Close() error { return nil }

func TestPipeline_CreationAnnouncedOncePerIncident(t *testing.T) {
	store := openSeededStore(t)
	pub := &capturingPublisher{}
	pipeline := buildPipeline(t, store, store.Incidents(), pub)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := pipeline.Submit(ctx, congestionBatch(now))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if len(first.NewIncidentIDs) != 1 {
		t.Fatalf("new incidents = %d, want 1", len(first.NewIncidentIDs))
	}

	// A refresh must not re-announce.
	later := now.Add(time.Minute)
	if _, err := pipeline.Submit(ctx, []ReadingInput{
		{SensorID: 10, Timestamp: later, Payload: models.ReadingPayload{VehiclesPerMinute: fptr(6)}},
		{SensorID: 11, Timestamp: later, Payload: models.ReadingPayload{AvgSpeedKMH: fptr(12)}},
	}); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.created) != 1 {
		t.Fatalf("announcements = %d, want 1", len(pub.created))
	}
	if pub.created[0].ID != first.NewIncidentIDs[0] {
		t.Errorf("announced incident %s, want %s", pub.created[0].ID, first.NewIncidentIDs[0])
	}
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "roadwatch-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")

	store := NewSQLiteStorage(dbPath)
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func seedTestTopology(t *testing.T, store *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	segments := []*models.RoadSegment{
		{ID: 1, Name: "Inner Loop North", Code: "IL-N", Direction: "N"},
		{ID: 2, Name: "Inner Loop South", Code: "IL-S", Direction: "S"},
	}
	sensors := []*models.Sensor{
		{ID: 10, Name: "flow-1", Type: models.SensorTypeFlow, RoadSegmentID: 1, Active: true},
		{ID: 11, Name: "speed-1", Type: models.SensorTypeSpeed, RoadSegmentID: 1, Active: true},
		{ID: 12, Name: "stopped-1", Type: models.SensorTypeStoppedVehicle, RoadSegmentID: 1, Active: true},
		{ID: 20, Name: "flow-2", Type: models.SensorTypeFlow, RoadSegmentID: 2, Active: true},
	}

	for _, s := range segments {
		if err := store.Segments().Upsert(ctx, s); err != nil {
			t.Fatalf("upsert segment: %v", err)
		}
	}
	for _, s := range sensors {
		if err := store.Sensors().Upsert(ctx, s); err != nil {
			t.Fatalf("upsert sensor: %v", err)
		}
	}
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func bptr(v bool) *bool       { return &v }

func TestSQLiteStorage_OpenClose(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store.DB() == nil {
		t.Fatal("database should be open")
	}
}

func TestSegmentRepo_UpsertIsIdempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	segment := &models.RoadSegment{ID: 1, Name: "Ring Road East", Code: "RR-E", Direction: "E"}
	if err := store.Segments().Upsert(ctx, segment); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	segment.Name = "Ring Road East (renamed)"
	if err := store.Segments().Upsert(ctx, segment); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.Segments().GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	if got == nil {
		t.Fatal("segment not found")
	}
	if got.Name != "Ring Road East (renamed)" {
		t.Errorf("expected renamed segment, got %q", got.Name)
	}

	list, err := store.Segments().List(ctx)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 segment after double upsert, got %d", len(list))
	}
}

func TestSegmentRepo_GetByIDNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := store.Segments().GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing segment, got %+v", got)
	}
}

func TestSensorRepo_ListBySegment(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	seedTestTopology(t, store)
	ctx := context.Background()

	sensors, err := store.Sensors().ListBySegment(ctx, 1)
	if err != nil {
		t.Fatalf("list sensors: %v", err)
	}
	if len(sensors) != 3 {
		t.Fatalf("expected 3 sensors on segment 1, got %d", len(sensors))
	}

	sensors, err = store.Sensors().ListBySegment(ctx, 2)
	if err != nil {
		t.Fatalf("list sensors: %v", err)
	}
	if len(sensors) != 1 {
		t.Fatalf("expected 1 sensor on segment 2, got %d", len(sensors))
	}
	if sensors[0].Type != models.SensorTypeFlow {
		t.Errorf("expected FLOW sensor, got %s", sensors[0].Type)
	}
}

func TestIncidentRepo_Lifecycle(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	seedTestTopology(t, store)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	inc := models.NewIncident(1, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, now)
	if err := store.Incidents().Create(ctx, inc); err != nil {
		t.Fatalf("create incident: %v", err)
	}

	got, err := store.Incidents().GetByID(ctx, inc.ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if got == nil {
		t.Fatal("incident not found")
	}
	if got.Status != models.IncidentStatusOpen {
		t.Errorf("expected OPEN, got %s", got.Status)
	}
	if got.RuleTriggered != "FLOW_DROP_AND_SPEED_DROP" {
		t.Errorf("unexpected rule: %s", got.RuleTriggered)
	}

	open, err := store.Incidents().GetOpenByKey(ctx, 1, models.IncidentTypeCongestion)
	if err != nil {
		t.Fatalf("get open by key: %v", err)
	}
	if open == nil || open.ID != inc.ID {
		t.Fatal("expected open incident for (1, CONGESTION)")
	}

	// Different type on the same segment has no open incident.
	open, err = store.Incidents().GetOpenByKey(ctx, 1, models.IncidentTypeStoppedVehicle)
	if err != nil {
		t.Fatalf("get open by key: %v", err)
	}
	if open != nil {
		t.Fatal("expected no open STOPPED_VEHICLE incident")
	}

	later := now.Add(time.Minute)
	if err := store.Incidents().Touch(ctx, inc.ID, later); err != nil {
		t.Fatalf("touch incident: %v", err)
	}
	got, _ = store.Incidents().GetByID(ctx, inc.ID)
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected updated_at %v, got %v", later, got.UpdatedAt)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("touch must not change created_at: got %v", got.CreatedAt)
	}

	if err := store.Incidents().SetAnalysis(ctx, inc.ID, "summary", "cause", "recommendation"); err != nil {
		t.Fatalf("set analysis: %v", err)
	}
	got, _ = store.Incidents().GetByID(ctx, inc.ID)
	if got.AISummary != "summary" || got.AICause != "cause" || got.AIRecommendation != "recommendation" {
		t.Errorf("analysis fields not persisted: %+v", got)
	}
	if got.Status != models.IncidentStatusOpen {
		t.Errorf("set analysis must not change status, got %s", got.Status)
	}

	resolvedAt := now.Add(2 * time.Minute)
	if err := store.Incidents().MarkResolved(ctx, inc.ID, "cleared by patrol", resolvedAt); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}
	got, _ = store.Incidents().GetByID(ctx, inc.ID)
	if got.Status != models.IncidentStatusResolved {
		t.Errorf("expected RESOLVED, got %s", got.Status)
	}
	if got.ResolutionNote != "cleared by patrol" {
		t.Errorf("unexpected resolution note: %q", got.ResolutionNote)
	}

	// Key is free again after resolution.
	open, err = store.Incidents().GetOpenByKey(ctx, 1, models.IncidentTypeCongestion)
	if err != nil {
		t.Fatalf("get open by key: %v", err)
	}
	if open != nil {
		t.Fatal("expected no open incident after resolution")
	}
}

func TestIncidentRepo_OpenKeyUniqueIndex(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	seedTestTopology(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	first := models.NewIncident(1, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, now)
	if err := store.Incidents().Create(ctx, first); err != nil {
		t.Fatalf("create first incident: %v", err)
	}

	second := models.NewIncident(1, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, now)
	err := store.Incidents().Create(ctx, second)
	if err == nil {
		t.Fatal("expected unique index violation for second OPEN incident with same key")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unique") {
		t.Errorf("expected unique constraint error, got: %v", err)
	}

	// A second OPEN incident of a different type is fine.
	other := models.NewIncident(1, models.IncidentTypeStoppedVehicle, "STOPPED_VEHICLE_DETECTED", models.SeverityMedium, now)
	if err := store.Incidents().Create(ctx, other); err != nil {
		t.Fatalf("create incident with different type: %v", err)
	}
}

func TestIncidentRepo_ListAndCounts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	seedTestTopology(t, store)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	a := models.NewIncident(1, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, base)
	b := models.NewIncident(1, models.IncidentTypeStoppedVehicle, "STOPPED_VEHICLE_DETECTED", models.SeverityMedium, base.Add(time.Minute))
	c := models.NewIncident(2, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, base.Add(2*time.Minute))

	for _, inc := range []*models.Incident{a, b, c} {
		if err := store.Incidents().Create(ctx, inc); err != nil {
			t.Fatalf("create incident: %v", err)
		}
	}
	if err := store.Incidents().MarkResolved(ctx, a.ID, "", base.Add(10*time.Minute)); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}

	all, err := store.Incidents().List(ctx, IncidentFilter{})
	if err != nil {
		t.Fatalf("list incidents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(all))
	}
	// Newest first.
	if all[0].ID != c.ID {
		t.Errorf("expected newest incident first, got %s", all[0].ID)
	}

	open, err := store.Incidents().List(ctx, IncidentFilter{Status: models.IncidentStatusOpen})
	if err != nil {
		t.Fatalf("list open incidents: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("expected 2 open incidents, got %d", len(open))
	}

	limited, err := store.Incidents().List(ctx, IncidentFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 incident with limit, got %d", len(limited))
	}

	total, err := store.Incidents().Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Errorf("expected count 3, got %d", total)
	}

	openCount, err := store.Incidents().CountOpen(ctx)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if openCount != 2 {
		t.Errorf("expected open count 2, got %d", openCount)
	}

	last, err := store.Incidents().LastCreatedAt(ctx)
	if err != nil {
		t.Fatalf("last created at: %v", err)
	}
	if last == nil {
		t.Fatal("expected last created timestamp")
	}
}

func TestReadingRepo_InsertAndQueryWindow(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	seedTestTopology(t, store)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	readings := []*models.SensorReading{
		{
			ID: "r-old", SensorID: 10, RoadSegmentID: 1, SensorType: models.SensorTypeFlow,
			Timestamp: now.Add(-20 * time.Minute),
			Payload:   models.ReadingPayload{VehiclesPerMinute: fptr(50)},
		},
		{
			ID: "r-2", SensorID: 10, RoadSegmentID: 1, SensorType: models.SensorTypeFlow,
			Timestamp: now.Add(-2 * time.Minute),
			Payload:   models.ReadingPayload{VehiclesPerMinute: fptr(40)},
		},
		{
			ID: "r-1", SensorID: 10, RoadSegmentID: 1, SensorType: models.SensorTypeFlow,
			Timestamp: now.Add(-4 * time.Minute),
			Payload:   models.ReadingPayload{VehiclesPerMinute: fptr(45)},
		},
		{
			ID: "r-speed", SensorID: 11, RoadSegmentID: 1, SensorType: models.SensorTypeSpeed,
			Timestamp: now.Add(-3 * time.Minute),
			Payload:   models.ReadingPayload{AvgSpeedKMH: fptr(80)},
		},
		{
			ID: "r-stopped", SensorID: 12, RoadSegmentID: 1, SensorType: models.SensorTypeStoppedVehicle,
			Timestamp: now.Add(-1 * time.Minute),
			Payload:   models.ReadingPayload{StoppedCount: iptr(1), LaneBlocked: bptr(true)},
		},
	}
	if err := store.Readings().InsertBatch(ctx, readings); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	flow, err := store.Readings().RecentBySegment(ctx, 1, models.SensorTypeFlow, 10*time.Minute, now)
	if err != nil {
		t.Fatalf("recent by segment: %v", err)
	}
	if len(flow) != 2 {
		t.Fatalf("expected 2 flow readings in window, got %d", len(flow))
	}
	if flow[0].ID != "r-1" || flow[1].ID != "r-2" {
		t.Errorf("expected ascending timestamp order, got %s, %s", flow[0].ID, flow[1].ID)
	}
	if v, ok := flow[0].Payload.Flow(); !ok || v != 45 {
		t.Errorf("unexpected flow payload: %+v", flow[0].Payload)
	}

	stopped, err := store.Readings().RecentBySegment(ctx, 1, models.SensorTypeStoppedVehicle, 10*time.Minute, now)
	if err != nil {
		t.Fatalf("recent stopped: %v", err)
	}
	if len(stopped) != 1 {
		t.Fatalf("expected 1 stopped reading, got %d", len(stopped))
	}
	if !stopped[0].Payload.Blocked() {
		t.Error("expected blocked lane payload")
	}

	// Re-querying the same window returns the same result.
	again, err := store.Readings().RecentBySegment(ctx, 1, models.SensorTypeFlow, 10*time.Minute, now)
	if err != nil {
		t.Fatalf("requery: %v", err)
	}
	if len(again) != len(flow) {
		t.Errorf("window query not idempotent: %d vs %d", len(again), len(flow))
	}

	count, err := store.Readings().Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 readings, got %d", count)
	}

	recent, err := store.Readings().CountSince(ctx, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if recent != 4 {
		t.Errorf("expected 4 recent readings, got %d", recent)
	}

	last, err := store.Readings().LastTimestamp(ctx)
	if err != nil {
		t.Fatalf("last timestamp: %v", err)
	}
	if last == nil || !last.Equal(now.Add(-1*time.Minute)) {
		t.Errorf("unexpected last timestamp: %v", last)
	}

	deleted, err := store.Readings().DeleteBefore(ctx, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted reading, got %d", deleted)
	}
}

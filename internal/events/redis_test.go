package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

func setupPublisher(t *testing.T) (*RedisPublisher, *redis.PubSub) {
	t.Helper()

	mr := miniredis.RunT(t)

	ctx := context.Background()
	pub, err := NewRedisPublisher(ctx, "redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { subscriber.Close() })

	sub := subscriber.Subscribe(ctx, DefaultChannel)
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { sub.Close() })

	return pub, sub
}

func receiveEvent(t *testing.T, sub *redis.PubSub) Event {
	t.Helper()

	select {
	case msg := <-sub.Channel():
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRedisPublisher_PublishCreated(t *testing.T) {
	pub, sub := setupPublisher(t)

	inc := models.NewIncident(4, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, time.Now().UTC())
	if err := pub.PublishCreated(context.Background(), inc); err != nil {
		t.Fatalf("publish created: %v", err)
	}

	event := receiveEvent(t, sub)
	if event.Kind != "created" {
		t.Errorf("kind = %q, want created", event.Kind)
	}
	if event.Incident == nil || event.Incident.ID != inc.ID {
		t.Errorf("event incident mismatch: %+v", event.Incident)
	}
	if event.Incident.Type != models.IncidentTypeCongestion {
		t.Errorf("incident type = %s", event.Incident.Type)
	}
	if event.At.IsZero() {
		t.Error("event timestamp is zero")
	}
}

func TestRedisPublisher_PublishResolved(t *testing.T) {
	pub, sub := setupPublisher(t)

	inc := models.NewIncident(4, models.IncidentTypeStoppedVehicle, "STOPPED_VEHICLE_DETECTED", models.SeverityMedium, time.Now().UTC())
	inc.Status = models.IncidentStatusResolved
	inc.ResolutionNote = "cleared by patrol"

	if err := pub.PublishResolved(context.Background(), inc); err != nil {
		t.Fatalf("publish resolved: %v", err)
	}

	event := receiveEvent(t, sub)
	if event.Kind != "resolved" {
		t.Errorf("kind = %q, want resolved", event.Kind)
	}
	if event.Incident.ResolutionNote != "cleared by patrol" {
		t.Errorf("resolution note = %q", event.Incident.ResolutionNote)
	}
}

func TestRedisPublisher_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := NewRedisPublisher(ctx, "redis://"+mr.Addr(), "ops:incidents")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer pub.Close()

	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()
	sub := subscriber.Subscribe(ctx, "ops:incidents")
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	inc := models.NewIncident(1, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, time.Now().UTC())
	if err := pub.PublishCreated(ctx, inc); err != nil {
		t.Fatalf("publish: %v", err)
	}

	event := receiveEvent(t, sub)
	if event.Incident.ID != inc.ID {
		t.Errorf("incident id mismatch")
	}
}

func TestRedisPublisher_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := NewRedisPublisher(ctx, "redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer pub.Close()

	if err := pub.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}

	mr.Close()
	if err := pub.Ping(ctx); err == nil {
		t.Error("expected ping error after server shutdown")
	}
}

func TestNewRedisPublisher_BadURL(t *testing.T) {
	if _, err := NewRedisPublisher(context.Background(), "not-a-url", ""); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestNewRedisPublisher_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := NewRedisPublisher(ctx, "redis://127.0.0.1:1", ""); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

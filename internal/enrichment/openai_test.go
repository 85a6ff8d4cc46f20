package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

func chatResponseBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": chatMessage{Role: "assistant", Content: content}},
		},
	})
	return string(body)
}

func analyzeRequest() Request {
	inc := models.NewIncident(7, models.IncidentTypeCongestion, "FLOW_DROP_AND_SPEED_DROP", models.SeverityHigh, time.Now().UTC())
	return Request{
		Incident: inc,
		Segment:  &models.RoadSegment{ID: 7, Name: "River Bridge", Code: "RB", Direction: "NB"},
	}
}

func TestOpenAIProvider_Analyze(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponseBody(`{"summary":"jam on bridge","cause":"stalled truck","recommendation":"dispatch tow"}`)))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	analysis, err := provider.Analyze(context.Background(), analyzeRequest())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Summary != "jam on bridge" {
		t.Errorf("summary = %q", analysis.Summary)
	}
	if analysis.Cause != "stalled truck" {
		t.Errorf("cause = %q", analysis.Cause)
	}
	if analysis.Recommendation != "dispatch tow" {
		t.Errorf("recommendation = %q", analysis.Recommendation)
	}

	if captured.Model != defaultOpenAIModel {
		t.Errorf("model = %q, want %q", captured.Model, defaultOpenAIModel)
	}
	if captured.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", captured.Temperature)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[1].Content, "River Bridge") {
		t.Errorf("prompt missing segment name: %q", captured.Messages[1].Content)
	}
}

func TestOpenAIProvider_AnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.Analyze(context.Background(), analyzeRequest()); err == nil {
		t.Fatal("expected error for 429 response")
	} else if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestOpenAIProvider_AnalyzeNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.Analyze(context.Background(), analyzeRequest()); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIProvider_AnalyzeMalformedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponseBody("I cannot produce JSON today.")))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.Analyze(context.Background(), analyzeRequest()); err == nil {
		t.Fatal("expected error for non-JSON analysis content")
	}
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestBuildPrompt_WithoutSegment(t *testing.T) {
	req := analyzeRequest()
	req.Segment = nil

	prompt := buildPrompt(req)
	if !strings.Contains(prompt, "Segment: #7") {
		t.Errorf("prompt should fall back to segment id: %q", prompt)
	}
	if !strings.Contains(prompt, "no data") {
		t.Errorf("empty series should render as no data: %q", prompt)
	}
}

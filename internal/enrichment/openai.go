package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds settings for the OpenAI-compatible provider.
type OpenAIConfig struct {
	// BaseURL of the API (default: https://api.openai.com/v1).
	BaseURL string
	// APIKey for authentication.
	APIKey string
	// Model to request (default: gpt-4o-mini).
	Model string
}

// Validate validates the provider configuration.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint
// and expects a JSON object with summary, cause, and recommendation
// keys back.
type OpenAIProvider struct {
	client *resty.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid openai config: %w", err)
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetAuthToken(config.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OpenAIProvider{client: client, model: config.Model}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type analysisPayload struct {
	Summary        string `json:"summary"`
	Cause          string `json:"cause"`
	Recommendation string `json:"recommendation"`
}

// Analyze requests an incident analysis from the provider.
func (p *OpenAIProvider) Analyze(ctx context.Context, req Request) (Analysis, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a traffic operations assistant."},
			{Role: "user", Content: "Respond with a JSON object containing keys summary, cause, recommendation.\nContext:\n" + buildPrompt(req)},
		},
		Temperature: 0.2,
	}

	var parsed chatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		Post("/chat/completions")
	if err != nil {
		return Analysis{}, fmt.Errorf("chat completion request: %w", err)
	}
	if resp.IsError() {
		return Analysis{}, fmt.Errorf("chat completion status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(parsed.Choices) == 0 {
		return Analysis{}, fmt.Errorf("chat completion returned no choices")
	}

	var payload analysisPayload
	content := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Analysis{}, fmt.Errorf("parse analysis JSON: %w", err)
	}

	return Analysis{
		Summary:        payload.Summary,
		Cause:          payload.Cause,
		Recommendation: payload.Recommendation,
	}, nil
}

// buildPrompt renders the structured context handed to the model:
// segment identity, incident classification, and the most recent
// readings per metric series.
func buildPrompt(req Request) string {
	var b strings.Builder
	if req.Segment != nil {
		fmt.Fprintf(&b, "Segment: %s (%s) direction %s\n", req.Segment.Name, req.Segment.Code, req.Segment.Direction)
	} else {
		fmt.Fprintf(&b, "Segment: #%d\n", req.Incident.RoadSegmentID)
	}
	fmt.Fprintf(&b, "Incident type: %s\n", req.Incident.Type)
	fmt.Fprintf(&b, "Severity: %s\n", req.Incident.Severity)
	fmt.Fprintf(&b, "Rule triggered: %s\n", req.Incident.RuleTriggered)
	b.WriteString("Recent readings:\n")

	series := []struct {
		name     string
		readings []*models.SensorReading
	}{
		{"flow", req.Readings.Flow},
		{"speed", req.Readings.Speed},
		{"stopped", req.Readings.Stopped},
	}
	for _, s := range series {
		fmt.Fprintf(&b, "- %s: %s\n", s.name, formatSeries(s.readings))
	}
	return b.String()
}

// formatSeries renders the last entries of one reading series.
func formatSeries(readings []*models.SensorReading) string {
	const maxEntries = 10
	if len(readings) == 0 {
		return "no data"
	}
	if len(readings) > maxEntries {
		readings = readings[len(readings)-maxEntries:]
	}

	parts := make([]string, 0, len(readings))
	for _, reading := range readings {
		data, _ := json.Marshal(reading.Payload)
		parts = append(parts, fmt.Sprintf("%s -> %s", reading.Timestamp.Format(time.RFC3339), data))
	}
	return strings.Join(parts, ", ")
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Decision is the reasoning provider's verdict on sending a notification.
type Decision struct {
	ShouldSend bool   `json:"sendNotification"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
}

// ReasoningProvider turns a rendered context into a send/skip decision.
type ReasoningProvider interface {
	Decide(ctx context.Context, prompt string) (Decision, error)
}

type GeminiProvider struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

func NewGeminiProvider(apiKey, modelName string) (*GeminiProvider, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(300)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sendNotification": {
				Type:        genai.TypeBoolean,
				Description: "Whether to send a notification right now",
			},
			"title": {
				Type:        genai.TypeString,
				Description: "Short notification title (if sending)",
			},
			"body": {
				Type:        genai.TypeString,
				Description: "Notification body message (if sending)",
			},
		},
		Required: []string{"sendNotification"},
	}

	return &GeminiProvider{client: client, model: model, timeout: 60 * time.Second}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) Decide(ctx context.Context, prompt string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Decision{}, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Warn().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).Msg("Gemini stopped early")
		}
	}

	return parseDecision(extractText(resp))
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// parseDecision accepts bare JSON, fenced JSON or JSON embedded in prose. A
// send without both title and body is downgraded to a skip.
func parseDecision(raw string) (Decision, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Decision{}, fmt.Errorf("empty model response")
	}

	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return Decision{}, fmt.Errorf("failed to parse model response: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
			return Decision{}, fmt.Errorf("failed to parse model response: %w", err)
		}
	}

	d.Title = strings.TrimSpace(d.Title)
	d.Body = strings.TrimSpace(d.Body)
	if d.ShouldSend && (d.Title == "" || d.Body == "") {
		d.ShouldSend = false
	}
	return d, nil
}

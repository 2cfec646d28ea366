// Package llm generates structured call reports with a chat-completions
// model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"salesdeck.io/internal/outbound"
)

const defaultSystemPrompt = "You are a world class sales call report analyzer. Your task is to generate a report for a call between an insurance agent and a lead."

const reportShape = `Respond with a JSON object with exactly these keys:
"overall_call_metrics": {"performance","professionalism","confidence","energy_level","clarity"} each one of "poor","average","good","excellent";
"call_feedback": {"positives": [string], "improvements": [string], "general_comments": [string]};
"audio_analytics": {"communication","rate_of_speech","articulation_rate","number_of_pauses","response_latency"} as strings;
"video_analytics": {"attention","engagement","expressiveness","confidence","positive_emotions","negative_emotions","positive_facial_expressions","negative_facial_expressions"} as strings.`

// ErrEmptyTranscript is returned when there is nothing to analyze.
var ErrEmptyTranscript = errors.New("llm: transcript is empty")

// Reporter produces a JSON call report from a transcript. customPrompt, when
// set, replaces the default system prompt.
type Reporter interface {
	CallReport(ctx context.Context, transcript, customPrompt string) (json.RawMessage, error)
}

// Client implements Reporter against an OpenAI-compatible API.
type Client struct {
	api         *outbound.Client
	model       string
	temperature float64
}

var _ Reporter = (*Client)(nil)

// New builds a reporter for model.
func New(api *outbound.Client, model string) (*Client, error) {
	if api == nil {
		return nil, errors.New("llm: api client is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &Client{api: api, model: model, temperature: 0.1}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	Messages       []message         `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *Client) CallReport(ctx context.Context, transcript, customPrompt string) (json.RawMessage, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	system := strings.TrimSpace(customPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	req := completionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []message{
			{Role: "system", Content: system + "\n\n" + reportShape},
			{Role: "user", Content: "Transcript: " + transcript + "\nGenerate the call report based on the transcript. Make sure you always include multiple feedback."},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	var resp completionResponse
	if err := c.api.JSON(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("llm: report is not valid JSON")
	}
	return json.RawMessage(content), nil
}

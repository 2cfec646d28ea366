// Package voice talks to the Retell voice-agent platform.
package voice

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"salesdeck.io/internal/outbound"
)

// PersonaPrompt is the general prompt installed on every lead's LLM. The
// placeholders are filled per call from dynamic variables.
const PersonaPrompt = "{{custom_prompt}}\n Persona: {{persona}}"

const beginMessage = "Hello, who's this?"

// LLM is a platform-hosted response engine.
type LLM struct {
	ID           string `json:"llm_id"`
	WebsocketURL string `json:"llm_websocket_url"`
}

// Agent is a platform voice agent bound to an LLM.
type Agent struct {
	ID   string `json:"agent_id"`
	Name string `json:"agent_name,omitempty"`
}

// CallRequest registers a web call for an agent.
type CallRequest struct {
	AgentID          string            `json:"agent_id"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

// Registration is the platform response to a call registration.
type Registration struct {
	CallID                 string         `json:"call_id"`
	AgentID                string         `json:"agent_id"`
	CallStatus             string         `json:"call_status"`
	AudioEncoding          string         `json:"audio_encoding,omitempty"`
	AudioWebsocketProtocol string         `json:"audio_websocket_protocol,omitempty"`
	SampleRate             int            `json:"sample_rate,omitempty"`
	StartTimestamp         int64          `json:"start_timestamp,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
}

// Platform is the contract the lead and call services depend on.
type Platform interface {
	CreateLLM(ctx context.Context, generalPrompt string) (LLM, error)
	UpdateLLM(ctx context.Context, llmID, generalPrompt string) error
	CreateAgent(ctx context.Context, name, llmWebsocketURL string) (Agent, error)
	RegisterCall(ctx context.Context, req CallRequest) (Registration, error)
}

// Options configure the platform client.
type Options struct {
	VoiceID    string
	Language   string
	WebhookURL string
}

// Client implements Platform over HTTP.
type Client struct {
	api  *outbound.Client
	opts Options
}

var _ Platform = (*Client)(nil)

// New wraps an outbound client already pointed at the platform API.
func New(api *outbound.Client, opts Options) (*Client, error) {
	if api == nil {
		return nil, errors.New("voice: api client is required")
	}
	return &Client{api: api, opts: opts}, nil
}

func (c *Client) CreateLLM(ctx context.Context, generalPrompt string) (LLM, error) {
	var out LLM
	err := c.api.JSON(ctx, http.MethodPost, "/create-retell-llm", map[string]any{
		"general_prompt": generalPrompt,
		"begin_message":  beginMessage,
	}, &out)
	return out, err
}

func (c *Client) UpdateLLM(ctx context.Context, llmID, generalPrompt string) error {
	return c.api.JSON(ctx, http.MethodPatch, "/update-retell-llm/"+url.PathEscape(llmID), map[string]any{
		"general_prompt": generalPrompt,
	}, nil)
}

func (c *Client) CreateAgent(ctx context.Context, name, llmWebsocketURL string) (Agent, error) {
	body := map[string]any{
		"llm_websocket_url":  llmWebsocketURL,
		"agent_name":         name,
		"voice_id":           c.opts.VoiceID,
		"language":           c.opts.Language,
		"enable_backchannel": true,
	}
	if c.opts.WebhookURL != "" {
		body["webhook_url"] = strings.TrimRight(c.opts.WebhookURL, "/") + "/retell"
	}
	var out Agent
	err := c.api.JSON(ctx, http.MethodPost, "/create-agent", body, &out)
	return out, err
}

func (c *Client) RegisterCall(ctx context.Context, req CallRequest) (Registration, error) {
	body := map[string]any{
		"agent_id":                     req.AgentID,
		"audio_encoding":               "s16le",
		"audio_websocket_protocol":     "web",
		"sample_rate":                  24000,
		"end_call_after_silence_ms":    30000,
		"metadata":                     req.Metadata,
		"retell_llm_dynamic_variables": req.DynamicVariables,
	}
	var out Registration
	err := c.api.JSON(ctx, http.MethodPost, "/register-call", body, &out)
	return out, err
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature. An empty secret disables the
// check.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.ToLower(signature)))
}

package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("call: not found")
	ErrTranscriptPending = errors.New("call: transcript not generated yet")
)

// Type distinguishes what a practice call rehearses.
type Type string

const (
	TypeAppointment Type = "appointment_call"
	TypeMeeting     Type = "meeting_call"
)

func (t Type) Valid() bool { return t == TypeAppointment || t == TypeMeeting }

// Call is one practice call between a user and a lead's voice agent.
type Call struct {
	ID                string          `json:"id"`
	Type              Type            `json:"type"`
	UserID            string          `json:"user_id"`
	CallerName        string          `json:"caller_name"`
	LeadID            string          `json:"lead_id"`
	ProfileSnapshotID string          `json:"profile_snapshot_id"`
	BranchID          string          `json:"branch_id"`
	OrganizationID    string          `json:"organization_id"`
	PromptID          string          `json:"prompt_id,omitempty"`
	AgentID           string          `json:"agent_id"`
	PlatformCallID    string          `json:"platform_call_id,omitempty"`
	CallTimestamp     time.Time       `json:"call_timestamp"`
	Metadata          map[string]any  `json:"call_metadata"`
	Transcript        *string         `json:"transcript"`
	TranscriptKey     string          `json:"transcript_key,omitempty"`
	Report            json.RawMessage `json:"report"`
	Analytics         json.RawMessage `json:"analytics"`
	DurationSeconds   *int64          `json:"duration_seconds"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Duration returns the "M:SS" duration recorded when the call ended.
func (c Call) Duration() string {
	if d, ok := c.Metadata["duration"].(string); ok {
		return d
	}
	return ""
}

// Snapshot freezes a lead and its profile at the moment a call starts.
// Versions count up per lead from 1.
type Snapshot struct {
	ID             string          `json:"id"`
	LeadID         string          `json:"lead_id"`
	BranchID       string          `json:"branch_id"`
	OrganizationID string          `json:"organization_id"`
	Version        int             `json:"version"`
	Data           json.RawMessage `json:"data"`
	CreatedAt      time.Time       `json:"created_at"`
}

type WithSnapshot struct {
	Call            Call     `json:"call"`
	ProfileSnapshot Snapshot `json:"profile_snapshot"`
}

// Report is the analysis attached to a finished call.
type Report struct {
	Report    json.RawMessage `json:"report"`
	Analytics json.RawMessage `json:"analytics"`
}

// Completion is what the voice platform reports when a call ends.
type Completion struct {
	CallID          string
	Transcript      string
	Report          json.RawMessage
	Duration        string
	DurationSeconds int64
	CompletedAt     time.Time
}

// FormatDuration renders milliseconds as minutes and zero-padded seconds.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

package call

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"salesdeck.io/internal/archive"
	"salesdeck.io/internal/event"
	"salesdeck.io/internal/llm"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/validate"
)

// Outcome describes what a webhook delivery did.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// RetellEvent is the voice platform webhook body.
type RetellEvent struct {
	Event string     `json:"event"`
	Data  RetellCall `json:"data"`
}

type RetellCall struct {
	CallID         string         `json:"call_id"`
	AgentID        string         `json:"agent_id"`
	Transcript     string         `json:"transcript"`
	StartTimestamp int64          `json:"start_timestamp"`
	EndTimestamp   int64          `json:"end_timestamp"`
	Metadata       map[string]any `json:"metadata"`
}

func (c RetellCall) meta(key string) string {
	switch v := c.Metadata[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// HandleRetell processes a platform webhook. Only call_ended does work; a
// call is processed at most once per dedupe window and a failed attempt
// releases its claim so the platform's retry can succeed.
func (s *Service) HandleRetell(ctx context.Context, ev RetellEvent) (out Outcome, err error) {
	if ev.Event != "call_ended" {
		return OutcomeIgnored, nil
	}
	callID := ev.Data.meta("call_id")
	if callID == "" {
		return "", validate.Fail("data.metadata.call_id", "required", "field required")
	}

	key := "retell:" + callID
	claimed, err := s.Dedupe.Claim(ctx, key, s.DedupeTTL)
	if err != nil {
		return "", err
	}
	if !claimed {
		obs.Logger().Info("duplicate call_ended ignored", zap.String("call_id", callID))
		return OutcomeDuplicate, nil
	}
	defer func() {
		if err != nil {
			if rerr := s.Dedupe.Release(context.WithoutCancel(ctx), key); rerr != nil {
				obs.Logger().Warn("release dedupe claim failed", zap.String("call_id", callID), zap.Error(rerr))
			}
		}
	}()

	report, err := s.Reporter.CallReport(ctx, ev.Data.Transcript, ev.Data.meta("report_prompt"))
	switch {
	case errors.Is(err, llm.ErrEmptyTranscript):
		report = json.RawMessage("{}")
	case err != nil:
		return "", err
	}

	ms := ev.Data.EndTimestamp - ev.Data.StartTimestamp
	duration := FormatDuration(ms)
	seconds := ms / 1000
	if seconds < 0 {
		seconds = 0
	}

	c, err := s.Store.CompleteCall(ctx, Completion{
		CallID:          callID,
		Transcript:      ev.Data.Transcript,
		Report:          report,
		Duration:        duration,
		DurationSeconds: seconds,
		CompletedAt:     s.now().UTC(),
	})
	if err != nil {
		return "", err
	}

	orgID, branchID := ev.Data.meta("org_id"), ev.Data.meta("branch_id")
	if orgID == "" {
		orgID, branchID = c.OrganizationID, c.BranchID
	}
	s.record(ctx, event.CallEnded, orgID, branchID, map[string]any{
		"call_id":             callID,
		"lead_id":             ev.Data.meta("lead_id"),
		"retell_agent_id":     ev.Data.meta("retell_agent_id"),
		"profile_snapshot_id": ev.Data.meta("profile_snapshot_id"),
		"start_timestamp":     ev.Data.StartTimestamp,
		"end_timestamp":       ev.Data.EndTimestamp,
		"duration":            duration,
		"duration_seconds":    seconds,
		"lead_type":           ev.Data.meta("lead_type"),
		"lead_status":         ev.Data.meta("lead_status"),
		"call_type":           ev.Data.meta("call_type"),
	})

	s.archiveTranscript(ctx, c, ev.Data.Transcript)
	obs.Logger().Info("call report generated", zap.String("call_id", callID), zap.String("duration", duration))
	return OutcomeProcessed, nil
}

// archiveTranscript uploads the transcript when an archive is configured. Failures
// are logged; the report is already stored.
func (s *Service) archiveTranscript(ctx context.Context, c Call, transcript string) {
	if s.Archive == nil || transcript == "" {
		return
	}
	key, err := s.Archive.Put(ctx, archive.Transcript{
		CallID:         c.ID,
		OrganizationID: c.OrganizationID,
		BranchID:       c.BranchID,
		Text:           transcript,
	})
	if err != nil {
		obs.Logger().Warn("archive transcript failed", zap.String("call_id", c.ID), zap.Error(err))
		return
	}
	if err := s.Store.SetTranscriptKey(ctx, c.ID, key); err != nil {
		obs.Logger().Warn("store transcript key failed", zap.String("call_id", c.ID), zap.Error(err))
	}
}

// CognicueEvent is the interview-analytics webhook body.
type CognicueEvent struct {
	CandidateEmail string            `json:"candidate_email"`
	Interviews     []json.RawMessage `json:"interviews"`
}

// HandleCognicue attaches interview analytics to a call. The call id is the
// local part of the candidate email.
func (s *Service) HandleCognicue(ctx context.Context, ev CognicueEvent) (Outcome, error) {
	callID, _, _ := strings.Cut(strings.TrimSpace(ev.CandidateEmail), "@")
	if callID == "" {
		return "", validate.Fail("candidate_email", "required", "field required")
	}
	if len(ev.Interviews) == 0 {
		return "", validate.Fail("interviews", "min", "must be at least 1")
	}
	var head struct {
		Status string `json:"interview_status"`
	}
	if err := json.Unmarshal(ev.Interviews[0], &head); err != nil {
		return "", validate.Fail("interviews", "type", err.Error())
	}

	switch head.Status {
	case "COMPLETED":
		partial, err := json.Marshal(map[string]string{"candidate_interview_id": callID})
		if err != nil {
			return "", err
		}
		if err := s.Store.SetAnalytics(ctx, callID, partial); err != nil {
			return "", err
		}
		obs.Logger().Info("interview completed, awaiting processing", zap.String("call_id", callID))
	case "PROCESSED":
		if err := s.Store.SetAnalytics(ctx, callID, ev.Interviews[0]); err != nil {
			return "", err
		}
		obs.Logger().Info("interview analytics stored", zap.String("call_id", callID))
	default:
		obs.Logger().Info("interview status ignored", zap.String("call_id", callID), zap.String("status", head.Status))
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, nil
}

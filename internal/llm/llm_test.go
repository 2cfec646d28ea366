package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdeck.io/internal/outbound"
)

func newTestReporter(t *testing.T, reply string, capture *completionRequest) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if capture != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	c, err := New(outbound.New("llm", srv.URL), "")
	require.NoError(t, err)
	return c
}

func TestCallReportDefaultPrompt(t *testing.T) {
	var got completionRequest
	c := newTestReporter(t, `{"call_feedback":{"positives":["clear intro"]}}`, &got)

	report, err := c.CallReport(context.Background(), "Agent: hello", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"call_feedback":{"positives":["clear intro"]}}`, string(report))

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, defaultSystemPrompt))
	assert.Contains(t, got.Messages[1].Content, "Agent: hello")
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestCallReportCustomPrompt(t *testing.T) {
	var got completionRequest
	c := newTestReporter(t, `{}`, &got)
	_, err := c.CallReport(context.Background(), "t", "Grade the agent harshly.")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, "Grade the agent harshly."))
}

func TestCallReportRejectsBadOutput(t *testing.T) {
	c := newTestReporter(t, "not json", nil)
	_, err := c.CallReport(context.Background(), "t", "")
	require.Error(t, err)

	_, err = c.CallReport(context.Background(), "  ", "")
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

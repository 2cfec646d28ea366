package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/echo", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	c := New("echo", srv.URL+"/", WithBearer("key-1"))
	var out map[string]string
	require.NoError(t, c.JSON(context.Background(), http.MethodPost, "/v1/echo", map[string]string{"msg": "hi"}, &out))
	assert.Equal(t, "hi", out["echo"])
}

func TestJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("svc", srv.URL)
	err := c.JSON(context.Background(), http.MethodGet, "/", nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "nope", se.Body)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("flaky", srv.URL, WithBreaker(2, time.Minute))
	for i := 0; i < 2; i++ {
		require.Error(t, c.JSON(context.Background(), http.MethodGet, "/", nil, nil))
	}
	err := c.JSON(context.Background(), http.MethodGet, "/", nil, nil)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("strict", srv.URL, WithBreaker(1, time.Minute))
	for i := 0; i < 3; i++ {
		err := c.JSON(context.Background(), http.MethodGet, "/", nil, nil)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrUnavailable)
	}
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anumulaashok/resume-builder-backend/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.AIConfig{URL: server.URL, APIKey: "secret", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresConfiguration(t *testing.T) {
	_, err := NewClient(config.AIConfig{URL: "http://llm.local"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnalyzePrompt_SendsPromptWithBearerKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "senior go engineer", body["prompt"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"  Experienced Go engineer.  "}`))
	})

	summary, err := client.AnalyzePrompt(context.Background(), "senior go engineer")
	require.NoError(t, err)
	assert.Equal(t, "Experienced Go engineer.", summary)
}

func TestAnalyzePrompt_FallsBackToRawResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[1,2]}`))
	})

	summary, err := client.AnalyzePrompt(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, `{"choices":[1,2]}`, summary)
}

func TestAnalyzePrompt_UpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.AnalyzePrompt(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "503")
}

func TestAnalyzePrompt_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(config.AIConfig{URL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.AnalyzePrompt(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUpstream)
}

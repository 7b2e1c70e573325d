package coach_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/pkg/coach"
)

func newOpenAI(t *testing.T, h http.HandlerFunc) *coach.OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return coach.NewOpenAIProvider(coach.Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		ChatModel:   "gpt-4o-mini",
		SpeechModel: "tts-1",
		Voice:       "fable",
		Timeout:     5 * time.Second,
	})
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	p := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model          string `json:"model"`
			MaxTokens      int    `json:"max_tokens"`
			ResponseFormat *struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 400, req.MaxTokens)
		if assert.NotNil(t, req.ResponseFormat) {
			assert.Equal(t, "json_object", req.ResponseFormat.Type)
		}
		if !assert.Len(t, req.Messages, 3) {
			return
		}
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "assistant", req.Messages[1].Role)
		assert.Equal(t, "user", req.Messages[2].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  {\"insight\":\"ok\"}  "}}]}`))
	})

	reply, err := p.Complete(context.Background(), coach.CompletionRequest{
		System:    "sys",
		History:   []coach.Message{{Role: coach.RoleAssistant, Content: "earlier"}},
		Prompt:    "now",
		MaxTokens: 400,
		JSON:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"insight":"ok"}`, reply)
}

func TestOpenAICompleteErrors(t *testing.T) {
	t.Parallel()

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		p := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		})
		_, err := p.Complete(context.Background(), coach.CompletionRequest{Prompt: "hi"})
		assert.ErrorIs(t, err, coach.ErrProviderUnavailable)
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()
		p := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[]}`))
		})
		_, err := p.Complete(context.Background(), coach.CompletionRequest{Prompt: "hi"})
		assert.ErrorIs(t, err, coach.ErrEmptyReply)
	})
}

func TestOpenAISpeak(t *testing.T) {
	t.Parallel()

	audio := wav(2)
	p := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tts-1", req["model"])
		assert.Equal(t, "fable", req["voice"])
		assert.Equal(t, "wav", req["response_format"])
		assert.Equal(t, "read me", req["input"])

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio)
	})

	got, err := p.Speak(context.Background(), "read me")
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

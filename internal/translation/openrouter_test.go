package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"choices":[{"message":{"role":"assistant","content":"  こんにちは  "}}]}`

func newTestClient(t *testing.T, url string, backoff time.Duration) (*OpenRouterClient, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	client, err := NewOpenRouterClient(ClientConfig{
		BaseURL:     url,
		APIKey:      "sk-test",
		BaseBackoff: backoff,
		Timeout:     5 * time.Second,
	}, logger)
	require.NoError(t, err)
	return client, hook
}

func retryDelays(hook *test.Hook) []string {
	var delays []string
	for _, entry := range hook.AllEntries() {
		if d, ok := entry.Data["delay"].(string); ok {
			delays = append(delays, d)
		}
	}
	return delays
}

func TestNewOpenRouterClientRequiresKey(t *testing.T) {
	_, err := NewOpenRouterClient(ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestCompleteSendsChatRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
		assert.InDelta(t, DefaultTemperature, req.Temperature, 1e-9)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[0].Content)

		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(ClientConfig{BaseURL: server.URL + "/", APIKey: "sk-test", Temperature: DefaultTemperature}, nil)
	require.NoError(t, err)

	body, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.JSONEq(t, okBody, string(body))
}

func TestCompleteRetriesRateLimitWithDoublingBackoff(t *testing.T) {
	const backoff = 30 * time.Millisecond
	var (
		calls int32
		mu    sync.Mutex
		times []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	client, hook := newTestClient(t, server.URL, backoff)

	body, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.JSONEq(t, okBody, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	assert.Equal(t, []string{backoff.String(), (2 * backoff).String()}, retryDelays(hook))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 3)
	first := times[1].Sub(times[0])
	second := times[2].Sub(times[1])
	assert.GreaterOrEqual(t, first, backoff)
	assert.GreaterOrEqual(t, second, 2*backoff)
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client, hook := newTestClient(t, server.URL, time.Millisecond)

	_, err := client.Complete(context.Background(), "hello")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(&calls))
	assert.Len(t, retryDelays(hook), DefaultMaxAttempts-1)
}

func TestCompleteStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Complete(ctx, "hello")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

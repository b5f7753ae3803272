package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"telegram-translator/internal/logging"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "google/gemma-3-27b-it"
	DefaultMaxTokens   = 800
	DefaultTemperature = 0.15
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 2 * time.Second
	DefaultTimeout     = 60 * time.Second
)

// ClientConfig configures the OpenRouter chat-completions client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	// MaxAttempts counts the first call; 3 means one call plus two retries.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry; each further retry doubles it.
	BaseBackoff time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
}

func normalizeClientConfig(cfg ClientConfig) ClientConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return cfg
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openrouter returned status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is a 429 from the provider.
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// OpenRouterClient sends single-prompt chat completions with retry and exponential backoff.
type OpenRouterClient struct {
	cfg      ClientConfig
	executor failsafe.Executor[[]byte]
	logger   logging.Logger
}

// NewOpenRouterClient creates a client. The API key is required.
func NewOpenRouterClient(cfg ClientConfig, logger logging.Logger) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key cannot be empty")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	cfg = normalizeClientConfig(cfg)
	return &OpenRouterClient{
		cfg:      cfg,
		executor: failsafe.With[[]byte](newRetryPolicy(cfg, logger)),
		logger:   logger,
	}, nil
}

// newRetryPolicy retries every failure, doubling the delay from BaseBackoff without jitter.
// When attempts run out the last error is returned as is.
func newRetryPolicy(cfg ClientConfig, logger logging.Logger) retrypolicy.RetryPolicy[[]byte] {
	maxDelay := cfg.BaseBackoff << uint(cfg.MaxAttempts)
	return retrypolicy.NewBuilder[[]byte]().
		WithMaxAttempts(cfg.MaxAttempts).
		WithBackoff(cfg.BaseBackoff, maxDelay).
		ReturnLastFailure().
		OnRetryScheduled(func(e failsafe.ExecutionScheduledEvent[[]byte]) {
			entry := logger.WithFields(logging.Fields{
				"attempt": e.Attempts(),
				"delay":   e.Delay.String(),
			})
			if err := e.LastError(); IsRateLimited(err) {
				entry.Warn("OpenRouter rate limited, backing off")
			} else {
				entry.WithError(err).Warn("OpenRouter request failed, retrying")
			}
		}).
		Build()
}

// Complete posts prompt as a single user message and returns the raw response body of the
// first successful attempt.
func (c *OpenRouterClient) Complete(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	return c.executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[[]byte]) ([]byte, error) {
		c.logger.WithFields(logging.Fields{
			"model":   c.cfg.Model,
			"attempt": exec.Attempts(),
		}).Info("OpenRouter request")
		return c.post(exec.Context(), payload)
	})
}

func (c *OpenRouterClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read openrouter response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

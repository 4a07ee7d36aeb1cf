package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

var (
	// ErrCreateFailed aggregates the reasons session creation can fail
	// after the retry budget is spent.
	ErrCreateFailed = errors.New("avatar session creation failed")

	// ErrRateLimited marks an upstream 429; create treats it as retryable
	// after a fixed cooldown.
	ErrRateLimited = errors.New("avatar service rate limited")
)

// SessionInfo is the payload issued by the streaming service on create.
type SessionInfo struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	URL         string `json:"url"`
}

// Config carries the avatar streaming service settings.
type Config struct {
	BaseURL  string
	APIKey   string
	AvatarID string
	VoiceID  string
	Quality  string
	Timeout  time.Duration // per-call budget for start/task/stop and each create attempt

	// OnCreateRetry is invoked once per retried create attempt. Optional.
	OnCreateRetry func()
}

// Client implements the four-call lifecycle protocol against the avatar
// streaming service: create, start, send-text, stop. Only creation retries;
// start/send/stop degrade gracefully and retrying them risks duplicate
// remote side effects.
type Client struct {
	cfg        Config
	httpClient *http.Client

	// sleep is swapped by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

const (
	createMaxAttempts = 3
	createBaseBackoff = 2 * time.Second
	rateLimitCooldown = 5 * time.Second
	createCeiling     = 15 * time.Second
)

// NewClient builds an avatar streaming client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.heygen.com/v1"
	}
	if cfg.Quality == "" {
		cfg.Quality = "medium"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sleep: sleepWithContext,
	}
}

// envelope is the JSON shape every endpoint answers with. The upstream API
// is inconsistent about signaling success, so code and message are both
// kept for callers to check.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateSession provisions a new remote streaming session. Read-timeouts
// are retried up to three times with doubling backoff (2s, 4s); a rate
// limit waits a fixed cooldown and retries; any other error aborts.
func (c *Client) CreateSession(ctx context.Context) (*SessionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, createCeiling)
	defer cancel()

	payload := map[string]any{
		"quality":              c.cfg.Quality,
		"avatar_id":            c.cfg.AvatarID,
		"voice":                map[string]any{"voice_id": c.cfg.VoiceID, "rate": 1},
		"video_encoding":       "VP8",
		"disable_idle_timeout": false,
		"version":              "v2",
	}

	var lastErr error
	backoff := createBaseBackoff
	for attempt := 1; attempt <= createMaxAttempts; attempt++ {
		info, err := c.tryCreate(ctx, payload)
		if err == nil {
			return info, nil
		}
		lastErr = err

		retryable := isTimeout(err) || errors.Is(err, ErrRateLimited)
		if retryable && attempt < createMaxAttempts && c.cfg.OnCreateRetry != nil {
			c.cfg.OnCreateRetry()
		}

		switch {
		case isTimeout(err):
			log.Printf("[avatar] create timeout on attempt %d/%d, retrying", attempt, createMaxAttempts)
			if attempt < createMaxAttempts {
				if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("%w: %v", ErrCreateFailed, sleepErr)
				}
				backoff *= 2
			}
		case errors.Is(err, ErrRateLimited):
			log.Printf("[avatar] create rate limited on attempt %d/%d, cooling down", attempt, createMaxAttempts)
			if attempt < createMaxAttempts {
				if sleepErr := c.sleep(ctx, rateLimitCooldown); sleepErr != nil {
					return nil, fmt.Errorf("%w: %v", ErrCreateFailed, sleepErr)
				}
			}
		default:
			return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrCreateFailed, createMaxAttempts, lastErr)
}

func (c *Client) tryCreate(ctx context.Context, payload map[string]any) (*SessionInfo, error) {
	env, status, err := c.post(ctx, "/streaming.new", payload)
	// The status alone is authoritative for rate limiting: gateways answer
	// 429 with plain-text bodies that never decode as the envelope.
	if status == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", status, env.Message)
	}

	var info SessionInfo
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("malformed create response: missing data")
	}
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("malformed create response: %w", err)
	}
	if info.SessionID == "" {
		return nil, fmt.Errorf("malformed create response: missing session_id")
	}
	return &info, nil
}

// StartSession begins streaming on a created session. Single attempt. The
// upstream signals success via either code 100 or message "success", so
// both are checked.
func (c *Client) StartSession(ctx context.Context, sessionID string) error {
	env, status, err := c.post(ctx, "/streaming.start", map[string]any{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("starting avatar session: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("starting avatar session: HTTP %d: %s", status, env.Message)
	}
	if env.Code != 100 && env.Message != "success" {
		return fmt.Errorf("starting avatar session: upstream refused (code=%d message=%q)", env.Code, env.Message)
	}
	return nil
}

// SendText asks the avatar to speak the given text. Single attempt; the
// caller logs and swallows failures since a missed utterance is not fatal.
func (c *Client) SendText(ctx context.Context, sessionID, text string) error {
	env, status, err := c.post(ctx, "/streaming.task", map[string]any{
		"session_id": sessionID,
		"text":       text,
	})
	if err != nil {
		return fmt.Errorf("sending avatar text: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("sending avatar text: HTTP %d: %s", status, env.Message)
	}
	return nil
}

// StopSession tears down the remote session. Best-effort: the caller treats
// the local session as stopped regardless of the outcome, so an error here
// is for logging only and never blocks teardown.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	env, status, err := c.post(ctx, "/streaming.stop", map[string]any{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("stopping avatar session: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("stopping avatar session: HTTP %d: %s", status, env.Message)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (*envelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var env envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("malformed response: %w", err)
		}
	}
	return &env, resp.StatusCode, nil
}

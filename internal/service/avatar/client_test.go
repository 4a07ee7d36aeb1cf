package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) (*Client, *[]time.Duration) {
	t.Helper()
	client := NewClient(Config{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		AvatarID: "avatar-1",
		VoiceID:  "voice-1",
		Timeout:  100 * time.Millisecond,
	})

	delays := &[]time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return client, delays
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    json.RawMessage(raw),
	})
}

func TestCreateSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streaming.new" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Fatal("missing api key header")
		}
		writeEnvelope(w, 100, "success", SessionInfo{
			SessionID:   "sess-1",
			AccessToken: "tok-1",
			URL:         "wss://stream.example/sess-1",
		})
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	info, err := client.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if info.SessionID != "sess-1" || info.AccessToken != "tok-1" {
		t.Fatalf("unexpected session info: %+v", info)
	}
}

func TestCreateSessionRetriesOnTimeoutWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			time.Sleep(300 * time.Millisecond) // beyond the client's 100ms budget
			return
		}
		writeEnvelope(w, 100, "success", SessionInfo{SessionID: "sess-1"})
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv.URL)
	info, err := client.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if info.SessionID != "sess-1" {
		t.Fatalf("unexpected session id: %s", info.SessionID)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(*delays) != 2 || (*delays)[0] != 2*time.Second || (*delays)[1] != 4*time.Second {
		t.Fatalf("expected strictly increasing 2s/4s backoff, got %v", *delays)
	}
}

func TestCreateSessionGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	if _, err := client.CreateSession(context.Background()); !errors.Is(err, ErrCreateFailed) {
		t.Fatalf("expected ErrCreateFailed, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls.Load())
	}
}

func TestCreateSessionRateLimitCooldown(t *testing.T) {
	cases := []struct {
		name      string
		rateLimit http.HandlerFunc
	}{
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"plain text body", func(w http.ResponseWriter, r *http.Request) {
			// Gateways in front of the service answer 429 with text/plain,
			// not the JSON envelope.
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					tc.rateLimit(w, r)
					return
				}
				writeEnvelope(w, 100, "success", SessionInfo{SessionID: "sess-1"})
			}))
			defer srv.Close()

			client, delays := newTestClient(t, srv.URL)
			if _, err := client.CreateSession(context.Background()); err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}
			if calls.Load() != 2 {
				t.Fatalf("expected a retry after the rate limit, got %d attempts", calls.Load())
			}
			if len(*delays) != 1 || (*delays)[0] != 5*time.Second {
				t.Fatalf("expected fixed 5s cooldown, got %v", *delays)
			}
		})
	}
}

func TestCreateSessionAbortsOnNonRetryableError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv.URL)
	if _, err := client.CreateSession(context.Background()); !errors.Is(err, ErrCreateFailed) {
		t.Fatalf("expected ErrCreateFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("non-retryable error must abort immediately, got %d attempts", calls.Load())
	}
	if len(*delays) != 0 {
		t.Fatalf("no backoff expected, got %v", *delays)
	}
}

func TestStartSessionChecksBothSuccessSignals(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		message string
		wantOK  bool
	}{
		{"code 100", 100, "whatever", true},
		{"message success", 0, "success", true},
		{"neither", 42, "pending", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tc.code, tc.message, nil)
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv.URL)
			err := client.StartSession(context.Background(), "sess-1")
			if tc.wantOK && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatal("expected failure")
			}
		})
	}
}

func TestStopSessionReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	if err := client.StopSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected error for non-2xx stop")
	}
}

func TestSendTextSuccess(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		gotText, _ = payload["text"].(string)
		writeEnvelope(w, 100, "success", nil)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	if err := client.SendText(context.Background(), "sess-1", "hello there"); err != nil {
		t.Fatalf("SendText err: %v", err)
	}
	if gotText != "hello there" {
		t.Fatalf("unexpected text: %q", gotText)
	}
}

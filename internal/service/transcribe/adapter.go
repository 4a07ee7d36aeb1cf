package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	session "github.com/zhouzirui/einstein-live/backend/internal/model/session"
)

// ErrNoSpeech marks the normal conversational outcome of user silence, as
// opposed to an upstream failure. Callers branch on it with errors.Is.
var ErrNoSpeech = errors.New("no speech detected")

// Result is a recognized transcript.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Config carries the transcription service connection settings.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client calls the external speech-to-text service with a language hint.
// It never retries; a failed attempt surfaces immediately and retry policy
// stays with the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a transcription client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Transcribe recognizes a mono 16 kHz WAV clip. Outcomes: a transcript,
// ErrNoSpeech for silence, or a wrapped service error.
func (c *Client) Transcribe(ctx context.Context, wav []byte, lang session.Language) (*Result, error) {
	if !hasSpeech(wav) {
		return nil, ErrNoSpeech
	}

	body, contentType, err := buildRecognizeForm(wav, lang.Locale())
	if err != nil {
		return nil, fmt.Errorf("building recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating recognize request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognize request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading recognize response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recognize HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing recognize response: %w", err)
	}

	// The service reports unintelligible audio as an empty transcript.
	if result.Text == "" {
		return nil, ErrNoSpeech
	}

	return &result, nil
}

func buildRecognizeForm(wav []byte, locale string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("language", locale); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}

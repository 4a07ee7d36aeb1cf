package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	sessionModel "github.com/zhouzirui/einstein-live/backend/internal/model/session"
	"github.com/zhouzirui/einstein-live/backend/internal/service/transcribe"
	turnService "github.com/zhouzirui/einstein-live/backend/internal/service/turn"
)

type fakeProcessor struct {
	calls  int
	lang   sessionModel.Language
	result *turnService.Result
	err    error
}

func (f *fakeProcessor) ProcessTurn(ctx context.Context, sessionID string, rawAudio []byte, lang sessionModel.Language) (*turnService.Result, error) {
	f.calls++
	f.lang = lang
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func setupRouter(p *fakeProcessor) *chi.Mux {
	r := chi.NewRouter()
	New(p).RegisterRoutes(r)
	return r
}

func multipartRequest(t *testing.T, fields map[string]string, audio []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if audio != nil {
		part, err := writer.CreateFormFile("audio", "utterance.webm")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/process_audio", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	return out
}

func TestProcessAudioSuccess(t *testing.T) {
	processor := &fakeProcessor{result: &turnService.Result{
		UserInput: "안녕하세요",
		Response:  "반가워요!",
	}}
	r := setupRouter(processor)

	req := multipartRequest(t, map[string]string{
		"sessionId":         "sess-1",
		"interfaceLanguage": "ko",
	}, []byte("webm-bytes"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["success"] != true || body["userInput"] != "안녕하세요" || body["response"] != "반가워요!" {
		t.Fatalf("unexpected body: %v", body)
	}
	if processor.lang != sessionModel.Korean {
		t.Fatalf("language not propagated, got %v", processor.lang)
	}
}

func TestProcessAudioMissingSessionID(t *testing.T) {
	processor := &fakeProcessor{}
	r := setupRouter(processor)

	req := multipartRequest(t, map[string]string{}, []byte("webm-bytes"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	body := decodeBody(t, resp)
	if body["success"] != false || body["error"] != "Invalid or inactive session" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if processor.calls != 0 {
		t.Fatal("pipeline must not run without a session id")
	}
}

func TestProcessAudioMissingFile(t *testing.T) {
	processor := &fakeProcessor{}
	r := setupRouter(processor)

	req := multipartRequest(t, map[string]string{"sessionId": "sess-1"}, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	body := decodeBody(t, resp)
	if body["success"] != false || body["error"] != "No audio file" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if processor.calls != 0 {
		t.Fatal("pipeline must not run without an audio file")
	}
}

func TestProcessAudioErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid session", turnService.ErrSessionInvalid, "Invalid or inactive session"},
		{"no speech", transcribe.ErrNoSpeech, "Failed to process audio"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			processor := &fakeProcessor{err: tc.err}
			r := setupRouter(processor)

			req := multipartRequest(t, map[string]string{"sessionId": "sess-1"}, []byte("webm-bytes"))
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.Code)
			}
			body := decodeBody(t, resp)
			if body["success"] != false || body["error"] != tc.want {
				t.Fatalf("unexpected envelope: %v", body)
			}
		})
	}
}

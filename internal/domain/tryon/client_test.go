package tryon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tryon-server-go/internal/platform/config"
	"tryon-server-go/internal/platform/errors"
)

func testInferenceConfig(baseURL string) config.InferenceConfig {
	return config.InferenceConfig{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		ModelName:     "tryon-v1.6",
		SubmitTimeout: 5 * time.Second,
		PollTimeout:   5 * time.Second,
		FetchTimeout:  5 * time.Second,
		PollInterval:  time.Millisecond,
		MaxPolls:      40,
		StartTick:     time.Millisecond,
	}
}

func TestSubmitSendsModelAndInputs(t *testing.T) {
	var got submitRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/run" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "job-123"})
	}))
	defer srv.Close()

	c := NewClient(testInferenceConfig(srv.URL), nil)
	id, err := c.Submit(context.Background(), "data:image/png;base64,AAA", "data:image/png;base64,BBB")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "job-123" {
		t.Errorf("job id = %q, want job-123", id)
	}
	if auth != "Bearer test-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.ModelName != "tryon-v1.6" {
		t.Errorf("model_name = %q", got.ModelName)
	}
	if got.Inputs.ModelImage != "data:image/png;base64,AAA" || got.Inputs.GarmentImage != "data:image/png;base64,BBB" {
		t.Errorf("inputs = %+v", got.Inputs)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantMsg: "API error: 500",
		},
		{
			name: "missing job id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			},
			wantMsg: "no job id returned",
		},
		{
			name: "rejection with api message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"error":"Invalid garment image"}`))
			},
			wantMsg: "Invalid garment image",
		},
		{
			name: "rejection with nested api message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"message":"model image could not be decoded"}}`))
			},
			wantMsg: "model image could not be decoded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(testInferenceConfig(srv.URL), nil)
			_, err := c.Submit(context.Background(), "a", "b")
			if !errors.IsKind(err, errors.KindSubmission) {
				t.Fatalf("err = %v, want KindSubmission", err)
			}
			if msg := errors.UserMessage(err); msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestPollOnceStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		wantKind errors.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, errors.KindAuth},
		{"forbidden", http.StatusForbidden, errors.KindAuth},
		{"rate limited", http.StatusTooManyRequests, errors.KindRateLimit},
		{"server error", http.StatusBadGateway, errors.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := NewClient(testInferenceConfig(srv.URL), nil)
			_, err := c.PollOnce(context.Background(), "job-1")
			if !errors.IsKind(err, tt.wantKind) {
				t.Errorf("err = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestPollOnceRejectionCarriesAPIMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		body     string
		wantKind errors.Kind
		wantMsg  string
	}{
		{"unauthorized with message", http.StatusUnauthorized, `{"message":"invalid API key"}`, errors.KindAuth, "invalid API key"},
		{"unauthorized without body", http.StatusUnauthorized, "", errors.KindAuth, "authentication failed"},
		{"rate limited with message", http.StatusTooManyRequests, `{"error":"quota exceeded"}`, errors.KindRateLimit, "quota exceeded"},
		{"rate limited without body", http.StatusTooManyRequests, "", errors.KindRateLimit, "rate limited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				if tt.body != "" {
					w.Write([]byte(tt.body))
				}
			}))
			defer srv.Close()

			c := NewClient(testInferenceConfig(srv.URL), nil)
			_, err := c.PollOnce(context.Background(), "job-1")
			if !errors.IsKind(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
			}
			if msg := errors.UserMessage(err); msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestPollOnceParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/job-9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"completed","progress":100,"output":["http://example.com/out.png"],"error":null}`))
	}))
	defer srv.Close()

	c := NewClient(testInferenceConfig(srv.URL), nil)
	snap, err := c.PollOnce(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if snap.Status != StatusCompleted || snap.Progress != 100 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.OutputURLs) != 1 || snap.OutputURLs[0] != "http://example.com/out.png" {
		t.Errorf("output = %v", snap.OutputURLs)
	}
}

func TestPollOnceScrubsNewlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"status":   "failed",
			"progress": 0,
			"error":    map[string]string{"message": "bad\ninput\r\nimage"},
		})
		w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(testInferenceConfig(srv.URL), nil)
	snap, err := c.PollOnce(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if strings.ContainsAny(snap.ErrorMessage, "\r\n") {
		t.Errorf("error message still contains newlines: %q", snap.ErrorMessage)
	}
	if snap.Status != StatusFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
}

func TestFetchOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("image-bytes"))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(testInferenceConfig(srv.URL), nil)

	data, err := c.FetchOutput(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("FetchOutput: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("data = %q", data)
	}

	if _, err := c.FetchOutput(context.Background(), srv.URL+"/missing"); !errors.IsKind(err, errors.KindFetch) {
		t.Errorf("missing: err = %v, want KindFetch", err)
	}
	if _, err := c.FetchOutput(context.Background(), srv.URL+"/empty"); !errors.IsKind(err, errors.KindFetch) {
		t.Errorf("empty: err = %v, want KindFetch", err)
	}
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in   string
		want JobStatus
	}{
		{"queued", StatusQueued},
		{"starting", StatusQueued},
		{"processing", StatusProcessing},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"canceled", StatusFailed},
		{"something-new", StatusProcessing},
	}
	for _, tt := range tests {
		if got := ParseJobStatus(tt.in); got != tt.want {
			t.Errorf("ParseJobStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusTimedOut:   true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSONIgnoresUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(`{"video_url":"v","text":"hi","extra":1}`))

	var body struct {
		VideoURL string `json:"video_url"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.VideoURL != "v" {
		t.Errorf("expected video_url=v, got %q", body.VideoURL)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(`{"video_url":`))
	var body map[string]any
	if err := DecodeJSON(r, &body); err == nil {
		t.Error("expected error for truncated json")
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]any{"success": true})

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"plain", nil, "http://api.test"},
		{"proxied", map[string]string{"X-Forwarded-Proto": "https, http", "X-Forwarded-Host": "hooks.example.com"}, "https://hooks.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://api.test/render", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := BaseURL(r); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

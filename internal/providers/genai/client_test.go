package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"genqueue/internal/providers"
)

func TestSubmitReturnsInlineResult(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	var got geminiGenerateContentRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/models/gemini-2.5-flash-image:generateContent", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"text": "here you go"},
					map[string]any{"inlineData": map[string]any{
						"mimeType": "image/png",
						"data":     base64.StdEncoding.EncodeToString(png),
					}},
				}},
			}},
		})
	})
	mux.HandleFunc("/input.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	task, err := client.Submit(context.Background(), providers.SubmitRequest{
		JobID:     "job-1",
		Prompt:    "a lighthouse",
		InputURLs: []string{srv.URL + "/input.jpg"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(task.Handle, HandlePrefix) {
		t.Fatalf("handle = %q", task.Handle)
	}
	if task.Result == nil || task.Result.State != providers.StateSucceeded {
		t.Fatalf("result = %+v", task.Result)
	}
	if string(task.Result.Inline) != string(png) || task.Result.ContentType != "image/png" {
		t.Fatalf("unexpected inline result")
	}
	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "a lighthouse" || parts[1].InlineData.MimeType != "image/jpeg" {
		t.Fatalf("request parts = %+v", parts)
	}
}

func TestSubmitBlockedPromptIsFailedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()
	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	task, err := client.Submit(context.Background(), providers.SubmitRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Result == nil || task.Result.State != providers.StateFailed || task.Result.Message != "prompt blocked: SAFETY" {
		t.Fatalf("result = %+v", task.Result)
	}
}

func TestSubmitHTTPErrorIsSubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"model overloaded"}}`))
	}))
	defer srv.Close()
	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := client.Submit(context.Background(), providers.SubmitRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("err = %v", err)
	}
}

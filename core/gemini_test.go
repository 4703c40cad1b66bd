package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGeminiClient(baseURL string) *GeminiClient {
	return NewGeminiClient(Config{
		GeminiBaseURL: baseURL,
		GeminiModel:   "gemini-2.0-flash",
		GeminiAPIKey:  "test-key",
	})
}

func TestGeminiRespond(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []struct {
				Content geminiContent `json:"content"`
			}{
				{Content: geminiContent{Parts: []geminiPart{{Text: "Start with pointers."}}, Role: "model"}},
			},
		})
	}))
	defer srv.Close()

	text, err := newTestGeminiClient(srv.URL).Respond(context.Background(), "how do I learn Go?")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if text != "Start with pointers." {
		t.Fatalf("text = %q", text)
	}
	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("key = %q", gotKey)
	}
	prompt := gotBody.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "how do I learn Go?") || !strings.Contains(prompt, "study assistant") {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestGeminiRespondAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 429, "message": "quota exceeded"},
		})
	}))
	defer srv.Close()

	_, err := newTestGeminiClient(srv.URL).Respond(context.Background(), "hi")
	if err == nil {
		t.Fatal("want error on non-2xx status")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v", err)
	}
}

func TestGeminiRespondEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := newTestGeminiClient(srv.URL).Respond(context.Background(), "hi")
	if err == nil {
		t.Fatal("want error on empty candidates")
	}
}

func TestGeminiRespondRequiresAPIKey(t *testing.T) {
	c := NewGeminiClient(Config{GeminiBaseURL: "http://unused", GeminiModel: "m"})
	if _, err := c.Respond(context.Background(), "hi"); err == nil {
		t.Fatal("want error when api key is missing")
	}
}

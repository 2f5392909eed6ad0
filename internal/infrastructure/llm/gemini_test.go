package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiAsk(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "key-1" {
			t.Errorf("missing api key, got %q", r.URL.Query().Get("key"))
		}

		var payload struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if len(payload.Contents) != 1 || len(payload.Contents[0].Parts) != 2 {
			t.Errorf("unexpected payload shape: %+v", payload)
		}

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Summary text."}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(server.URL, "gemini-pro", "key-1")

	out, err := client.Ask(context.Background(), "Summarize this mismatch.", "Committed 5, received 3.")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if out != "Summary text." {
		t.Fatalf("unexpected answer: %q", out)
	}
}

func TestGeminiAskNoCandidates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(server.URL, "gemini-pro", "key-1")

	if _, err := client.Ask(context.Background(), "anything", ""); err == nil {
		t.Fatal("expected error on empty candidate list")
	}
}

func TestGeminiAskRequiresKey(t *testing.T) {
	t.Parallel()

	client := NewGeminiClient("http://unused", "gemini-pro", "")

	if _, err := client.Ask(context.Background(), "anything", ""); err == nil {
		t.Fatal("expected error without api key")
	}
}

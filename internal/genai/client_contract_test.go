package genai

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestHTTPClientSmoke checks a live or mock generateContent endpoint when
// GENAI_SMOKE_URL is set, e.g. against cmd/genai-mock.
func TestHTTPClientSmoke(t *testing.T) {
	baseURL := os.Getenv("GENAI_SMOKE_URL")
	if baseURL == "" {
		t.Skip("GENAI_SMOKE_URL not provided")
	}
	model := os.Getenv("GENAI_SMOKE_MODEL")
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := NewHTTPClient(baseURL, os.Getenv("GEMINI_API_KEY"), model, 10*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("create http client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	text, err := client.GenerateText(ctx, "Summarize the following study notes in under 100 words:\n\nTitle: Limits\nSubject: Mathematics")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		t.Fatalf("empty generation")
	}
}

package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
)

// reply pairs a prompt fragment with the canned text returned for it.
type reply struct {
	Match string `json:"match"`
	Text  string `json:"text"`
}

var defaultReplies = []reply{
	{Match: "Summarize", Text: "These notes cover the core definitions, worked examples and common exam questions for the topic."},
	{Match: "related topics", Text: "Linear Algebra\nDifferential Equations\n\nNumerical Methods\nProbability\nComplex Analysis"},
	{Match: "Categorize", Text: "Mathematics"},
}

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "", "optional path to a JSON list of {match, text} replies")
		apiKey  = flag.String("key", "", "reject requests whose x-goog-api-key differs; empty accepts any")
		fail    = flag.Bool("fail", false, "answer every request with 503")
		logReqs = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	replies := defaultReplies
	if *data != "" {
		file, err := os.ReadFile(*data)
		if err != nil {
			log.Fatalf("read mock data: %v", err)
		}
		if err := json.Unmarshal(file, &replies); err != nil {
			log.Fatalf("parse mock data: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		if *apiKey != "" && r.Header.Get("x-goog-api-key") != *apiKey {
			http.Error(w, `{"error":{"code":403,"message":"API key not valid"}}`, http.StatusForbidden)
			return
		}
		if *fail {
			http.Error(w, `{"error":{"code":503,"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var prompt strings.Builder
		for _, c := range req.Contents {
			for _, p := range c.Parts {
				prompt.WriteString(p.Text)
			}
		}
		text := pick(replies, prompt.String())
		if *logReqs {
			log.Printf("%s %s -> %q", r.Method, r.URL.Path, text)
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content":      map[string]interface{}{"role": "model", "parts": []interface{}{map[string]string{"text": text}}},
					"finishReason": "STOP",
				},
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	log.Printf("mock genai listening on %s", addr)
	if *logReqs {
		log.Printf("loaded %d mock replies", len(replies))
	}
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func pick(replies []reply, prompt string) string {
	lower := strings.ToLower(prompt)
	for _, r := range replies {
		if strings.Contains(lower, strings.ToLower(r.Match)) {
			return r.Text
		}
	}
	return "No canned reply for this prompt."
}

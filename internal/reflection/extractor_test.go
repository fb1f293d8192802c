package reflection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"selfcall-platform/internal/config"
)

func TestDecodeExtraction(t *testing.T) {
	data, err := decodeExtraction([]byte(`{"goals":["ship it"],"fears":["burnout"],"situation":"moving cities","current_work":null,"other_notes":"misc"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Goals) != 1 || data.Goals[0] != "ship it" {
		t.Fatalf("unexpected goals: %v", data.Goals)
	}
	if data.CurrentWork != "" {
		t.Fatalf("null current_work must decode to empty, got %q", data.CurrentWork)
	}
	if data.OtherNotes != "misc" {
		t.Fatalf("unexpected other_notes: %q", data.OtherNotes)
	}
}

func TestDecodeExtractionRejectsWrongTypes(t *testing.T) {
	if _, err := decodeExtraction([]byte(`{"goals":"not-a-list","fears":[],"situation":""}`)); err == nil {
		t.Fatalf("expected schema violation")
	}
}

func TestExtractEmptyTranscriptIsGeneric(t *testing.T) {
	e, err := NewOpenAIExtractor(config.OpenAIConfig{APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := e.Extract(context.Background(), "   ")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Personalized {
		t.Fatalf("empty transcript must yield the generic outcome")
	}
}

func TestExtractRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"goals\":[\"g\"],\"fears\":[],\"situation\":\"s\",\"current_work\":\"w\",\"other_notes\":null}"}}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIExtractor(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := e.Extract(context.Background(), "I want to g while s")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !res.Personalized {
		t.Fatalf("expected personalized outcome")
	}
	if res.Data.Situation != "s" || res.Data.CurrentWork != "w" {
		t.Fatalf("unexpected data: %+v", res.Data)
	}
	if res.Data.RawTranscript == "" {
		t.Fatalf("raw transcript must be carried on the result")
	}
}

func TestExtractServerErrorIsGenericWithError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, _ := NewOpenAIExtractor(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	res, err := e.Extract(context.Background(), "transcript")
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.Personalized {
		t.Fatalf("failed extraction must not claim personalization")
	}
}

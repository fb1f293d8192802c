package reflection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"selfcall-platform/internal/config"
	"selfcall-platform/internal/snapshots"
)

// OpenAIExtractor implements Extractor with a structured-output chat call.
// The schema is strict: the model cannot add keys, and decoding applies only
// type-safe defaults (missing optional string -> empty), never coercion.
type OpenAIExtractor struct {
	cfg        config.OpenAIConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewOpenAIExtractor(cfg config.OpenAIConfig, log *slog.Logger) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reflection: openai api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIExtractor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("client", "openai"),
	}, nil
}

const extractSystemPrompt = `You extract structured self-reflection data from a spoken narrative.
The speaker describes their current life: goals, fears, situation, work.
Only use what the speaker actually said. Do not invent content.`

func (e *OpenAIExtractor) Extract(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Generic(), nil
	}

	payload := map[string]any{
		"model": e.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": extractSystemPrompt},
			{"role": "user", "content": transcript},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "reflection_extraction",
				"strict": true,
				"schema": extractionSchema(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Generic(), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Generic(), err
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Generic(), err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generic(), err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Generic(), fmt.Errorf("reflection: extraction call failed with status %d", resp.StatusCode)
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Generic(), fmt.Errorf("reflection: envelope decode: %w", err)
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == "" {
		return Generic(), fmt.Errorf("reflection: empty extraction response")
	}

	data, err := decodeExtraction([]byte(envelope.Choices[0].Message.Content))
	if err != nil {
		return Generic(), err
	}
	data.RawTranscript = transcript
	return Personalized(data), nil
}

// extractionSchema is the strict schema contract for the extraction output.
func extractionSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"goals", "fears", "situation", "current_work", "other_notes"},
		"properties": map[string]any{
			"goals":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"fears":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"situation":    map[string]any{"type": "string"},
			"current_work": map[string]any{"type": []string{"string", "null"}},
			"other_notes":  map[string]any{"type": []string{"string", "null"}},
		},
	}
}

// decodeExtraction decodes the model output under the schema contract.
// Nullable fields default to empty strings; anything else that fails to
// decode is an error, not something to coerce.
func decodeExtraction(raw []byte) (snapshots.Reflection, error) {
	var out struct {
		Goals       []string `json:"goals"`
		Fears       []string `json:"fears"`
		Situation   string   `json:"situation"`
		CurrentWork *string  `json:"current_work"`
		OtherNotes  *string  `json:"other_notes"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return snapshots.Reflection{}, fmt.Errorf("reflection: schema violation: %w", err)
	}
	r := snapshots.Reflection{
		Goals:     out.Goals,
		Fears:     out.Fears,
		Situation: out.Situation,
	}
	if out.CurrentWork != nil {
		r.CurrentWork = *out.CurrentWork
	}
	if out.OtherNotes != nil {
		r.OtherNotes = *out.OtherNotes
	}
	return r, nil
}

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"selfcall-platform/internal/config"
)

// ElevenLabs implements Provider against the ElevenLabs REST API.
//
// Retries are limited to transport errors, 429 and 5xx; 4xx responses are
// surfaced immediately as *ProviderError with the body kept verbatim so the
// orchestration layer can persist the reason.
type ElevenLabs struct {
	cfg        config.ElevenLabsConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewElevenLabs(cfg config.ElevenLabsConfig, log *slog.Logger) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("voice: elevenlabs api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &ElevenLabs{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("client", "elevenlabs"),
	}, nil
}

func (p *ElevenLabs) Name() string { return "elevenlabs" }

func (p *ElevenLabs) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	body, boundary, err := buildFileForm(map[string]string{"model_id": "scribe_v1"}, "file", "sample"+extForContentType(contentType), contentType, audio)
	if err != nil {
		return "", err
	}
	raw, err := p.do(ctx, http.MethodPost, "/v1/speech-to-text", boundary, body)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("voice: transcribe decode: %w", err)
	}
	return out.Text, nil
}

func (p *ElevenLabs) CloneVoice(ctx context.Context, req CloneVoiceRequest) (CloneVoiceResult, error) {
	body, boundary, err := buildFileForm(map[string]string{"name": req.Name}, "files", "sample"+extForContentType(req.ContentType), req.ContentType, req.Audio)
	if err != nil {
		return CloneVoiceResult{}, err
	}
	raw, err := p.do(ctx, http.MethodPost, "/v1/voices/add", boundary, body)
	if err != nil {
		return CloneVoiceResult{}, err
	}
	var out CloneVoiceResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return CloneVoiceResult{}, fmt.Errorf("voice: clone decode: %w", err)
	}
	if out.VoiceID == "" {
		return CloneVoiceResult{}, fmt.Errorf("voice: clone response missing voice_id")
	}
	return out, nil
}

func (p *ElevenLabs) CreateAgent(ctx context.Context, req CreateAgentRequest) (CreateAgentResult, error) {
	payload := map[string]any{
		"name": req.Name,
		"conversation_config": map[string]any{
			"agent": map[string]any{
				"prompt": map[string]any{
					"prompt": req.SystemPrompt,
				},
				"first_message": "{{first_message}}",
				"dynamic_variables": map[string]any{
					"dynamic_variable_placeholders": map[string]any{
						"time_mode":     string(TimeModeFuture),
						"first_message": "",
					},
				},
			},
			"tts": map[string]any{
				"voice_id": req.VoiceID,
			},
		},
	}
	raw, err := p.doJSON(ctx, http.MethodPost, "/v1/convai/agents/create", payload)
	if err != nil {
		return CreateAgentResult{}, err
	}
	var out CreateAgentResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return CreateAgentResult{}, fmt.Errorf("voice: agent decode: %w", err)
	}
	if out.AgentID == "" {
		return CreateAgentResult{}, fmt.Errorf("voice: agent response missing agent_id")
	}
	return out, nil
}

func (p *ElevenLabs) OutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	payload := map[string]any{
		"agent_id":              req.AgentID,
		"agent_phone_number_id": req.AgentPhoneNumberID,
		"to_number":             req.ToNumber,
		"conversation_initiation_client_data": map[string]any{
			"dynamic_variables": map[string]any{
				"time_mode":     string(req.TimeMode),
				"first_message": req.FirstMessage,
			},
		},
	}
	raw, err := p.doJSON(ctx, http.MethodPost, "/v1/convai/twilio/outbound-call", payload)
	if err != nil {
		return OutboundCallResult{}, err
	}
	// The dial endpoint has also shipped camelCase for the call sid.
	var out struct {
		ConversationID string `json:"conversation_id"`
		CallSID        string `json:"call_sid"`
		CallSIDCamel   string `json:"callSid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return OutboundCallResult{}, fmt.Errorf("voice: dial decode: %w", err)
	}
	res := OutboundCallResult{ConversationID: out.ConversationID, CallSID: out.CallSID}
	if res.CallSID == "" {
		res.CallSID = out.CallSIDCamel
	}
	return res, nil
}

func (p *ElevenLabs) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	raw, err := p.do(ctx, http.MethodGet, "/v1/convai/conversations/"+conversationID, "", nil)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	conv, err := ParseConversation(conversationID, raw)
	if err != nil {
		p.log.Warn("conversation payload not recognized", "conversation_id", conversationID, "err", err)
		return Conversation{}, err
	}
	return conv, nil
}

/* ===================== HTTP PLUMBING ===================== */

func (p *ElevenLabs) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return p.do(ctx, method, path, "application/json", b)
}

func (p *ElevenLabs) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	url := p.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("xi-api-key", p.cfg.APIKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}

		perr := &ProviderError{Op: method + " " + path, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = perr
			p.log.Warn("provider call retrying", "path", path, "status", resp.StatusCode, "attempt", attempt)
			continue
		}
		return nil, perr
	}
	return nil, lastErr
}

func buildFileForm(fields map[string]string, fileField, fileName, contentType string, data []byte) (body []byte, formContentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	fw, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	_ = contentType // file part content type is boundary-derived; providers sniff the bytes
	return buf.Bytes(), w.FormDataContentType(), nil
}

func extForContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}


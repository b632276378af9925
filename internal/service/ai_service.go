package service

import (
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/util"
	"alpha_edu_backend/pkg/logger"
	"alpha_edu_backend/pkg/monitoring"
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StreamFallbackMessage is substituted as the complete response when a
// streaming call never produced a single fragment.
const StreamFallbackMessage = "عذرًا، حصل خطأ في الاتصال بالـ AI. جرب تاني بعد شوية."

// AIService is the model-fallback generation client shared by exam
// analysis, exam generation, summarization and chat. Models are tried
// in priority order; a failed liveness probe skips a model without
// consuming its retry budget, and transport, HTTP and schema failures
// all count against the same per-model retry budget.
type AIService struct {
	mu     sync.RWMutex
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{},
	}
}

// UpdateConfig swaps the pipeline configuration, used by the config
// watcher for hot model-list changes.
func (s *AIService) UpdateConfig(cfg config.AIConfig) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

func (s *AIService) cfg() config.AIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// AIPart is one piece of a prompt: plain text, or an inline file that
// gets base64-embedded for multimodal calls.
type AIPart struct {
	Text string
	MIME string
	Data []byte
}

// AIChatMessage is one turn of chat history fed to the streaming call.
type AIChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// AttemptRecord is one entry of the ephemeral per-call attempt log.
// It is returned to callers for diagnostics and never persisted.
type AttemptRecord struct {
	Model     string    `json:"model"`
	Attempt   int       `json:"attempt,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	attemptUnavailable = "unavailable"
	attemptFailed      = "failed"
	attemptParseFailed = "parse_failed"
	attemptSuccess     = "success"
)

// GenerateResult is the outcome of a successful blocking JSON call.
type GenerateResult struct {
	Data          map[string]interface{} `json:"data"`
	Raw           string                 `json:"-"`
	ModelUsed     string                 `json:"model_used"`
	AttemptNumber int                    `json:"attempt_number"`
	TotalAttempts int                    `json:"total_attempts"`
	Log           []AttemptRecord        `json:"attempt_log"`
}

// PipelineError reports total failure: every model either probed dead
// or exhausted its retries. The attempt log travels with it so the
// caller can expose diagnostics and a retry affordance.
type PipelineError struct {
	TotalAttempts int
	Log           []AttemptRecord
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("ai: all models failed after %d attempts", e.TotalAttempts)
}

func (e *PipelineError) Unwrap() error { return util.ErrAllModelsFailed }

// Gemini wire types.

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// firstCandidateText extracts candidates[0].content.parts[0].text.
func firstCandidateText(body []byte) (string, bool) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return resp.Candidates[0].Content.Parts[0].Text, true
}

// stripCodeFence removes a Markdown ```json wrapper that models add
// despite being asked for bare JSON.
func stripCodeFence(raw string) string {
	out := strings.TrimSpace(raw)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```json")
		out = strings.TrimPrefix(out, "```")
		out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	}
	return strings.TrimSpace(out)
}

// parsePayload validates one model response: candidate text present,
// fence-stripped body parses as a JSON object, and every required
// top-level field exists.
func parsePayload(body []byte, required []string) (map[string]interface{}, string, error) {
	text, ok := firstCandidateText(body)
	if !ok {
		return nil, "", fmt.Errorf("invalid response structure")
	}
	raw := stripCodeFence(text)

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, raw, fmt.Errorf("JSON parse failed")
	}
	for _, field := range required {
		if _, ok := parsed[field]; !ok {
			return nil, raw, fmt.Errorf("missing required field: %s", field)
		}
	}
	return parsed, raw, nil
}

func (s *AIService) modelURL(cfg config.AIConfig, model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", cfg.BaseURL, model, method, cfg.APIKey)
}

func (s *AIService) post(ctx context.Context, url string, req geminiRequest, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// probeModel issues the cheap liveness check: a minimal prompt with a
// short timeout. Anything but HTTP 200 marks the model unavailable.
func (s *AIService) probeModel(ctx context.Context, cfg config.AIConfig, model string) (bool, string) {
	req := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: "test"}}}},
		GenerationConfig: &generationConfig{MaxOutputTokens: 10},
	}
	status, _, err := s.post(ctx, s.modelURL(cfg, model, "generateContent"), req, cfg.ProbeTimeout())
	if err != nil {
		return false, err.Error()
	}
	if status != http.StatusOK {
		return false, fmt.Sprintf("HTTP %d", status)
	}
	return true, ""
}

// GenerateJSON runs the blocking variant of the pipeline: probe each
// candidate model, retry the available ones up to MaxRetries, and
// return the first schema-valid JSON payload together with the full
// attempt log. Exhausting every model yields a *PipelineError.
func (s *AIService) GenerateJSON(ctx context.Context, parts []AIPart, required []string) (*GenerateResult, error) {
	cfg := s.cfg()
	if cfg.APIKey == "" {
		logger.Log.Error("ai: no API key configured")
		return nil, util.ErrMissingAPIKey
	}

	content := geminiContent{}
	for _, p := range parts {
		if p.MIME != "" {
			content.Parts = append(content.Parts, geminiPart{InlineData: &geminiBlob{
				MimeType: p.MIME,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		content.Parts = append(content.Parts, geminiPart{Text: p.Text})
	}
	req := geminiRequest{
		Contents: []geminiContent{content},
		GenerationConfig: &generationConfig{
			Temperature:      0.7,
			TopK:             40,
			TopP:             0.95,
			MaxOutputTokens:  8192,
			ResponseMimeType: "application/json",
		},
	}

	var attemptLog []AttemptRecord
	totalAttempts := 0

	for _, model := range cfg.Models {
		logger.Log.Info("ai: trying model", zap.String("model", model))

		if ok, detail := s.probeModel(ctx, cfg, model); !ok {
			logger.Log.Warn("ai: model unavailable",
				zap.String("model", model), zap.String("detail", detail))
			attemptLog = append(attemptLog, AttemptRecord{
				Model:     model,
				Status:    attemptUnavailable,
				Error:     detail,
				Timestamp: time.Now(),
			})
			monitoring.AIAttempts.WithLabelValues(model, attemptUnavailable).Inc()
			continue
		}

		for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
			totalAttempts++
			record := AttemptRecord{Model: model, Attempt: attempt, Timestamp: time.Now()}

			status, body, err := s.post(ctx, s.modelURL(cfg, model, "generateContent"), req, cfg.GenTimeout())
			if err != nil || status != http.StatusOK {
				record.Status = attemptFailed
				if err != nil {
					record.Error = err.Error()
				} else {
					record.Error = fmt.Sprintf("HTTP %d", status)
				}
				attemptLog = append(attemptLog, record)
				monitoring.AIAttempts.WithLabelValues(model, attemptFailed).Inc()
				logger.Log.Warn("ai: call failed",
					zap.String("model", model), zap.Int("attempt", attempt), zap.String("error", record.Error))
				if attempt < cfg.MaxRetries {
					time.Sleep(cfg.RetryDelay())
				}
				continue
			}

			parsed, raw, perr := parsePayload(body, required)
			if perr != nil {
				record.Status = attemptParseFailed
				record.Error = perr.Error()
				attemptLog = append(attemptLog, record)
				monitoring.AIAttempts.WithLabelValues(model, attemptParseFailed).Inc()
				logger.Log.Warn("ai: parse failed",
					zap.String("model", model), zap.Int("attempt", attempt), zap.String("error", perr.Error()))
				if attempt < cfg.MaxRetries {
					time.Sleep(cfg.RetryDelay())
				}
				continue
			}

			record.Status = attemptSuccess
			attemptLog = append(attemptLog, record)
			monitoring.AIAttempts.WithLabelValues(model, attemptSuccess).Inc()
			logger.Log.Info("ai: success",
				zap.String("model", model), zap.Int("attempt", attempt), zap.Int("total_attempts", totalAttempts))

			return &GenerateResult{
				Data:          parsed,
				Raw:           raw,
				ModelUsed:     model,
				AttemptNumber: attempt,
				TotalAttempts: totalAttempts,
				Log:           attemptLog,
			}, nil
		}

		logger.Log.Warn("ai: all retries failed for model", zap.String("model", model))
	}

	logger.Log.Error("ai: complete failure", zap.Int("total_attempts", totalAttempts))
	return nil, &PipelineError{TotalAttempts: totalAttempts, Log: attemptLog}
}

// GenerateStream runs the streaming variant used by chat. No liveness
// probe and no retry budget: each candidate model gets one streaming
// attempt, fragments are forwarded through emit the moment their SSE
// line completes, and the first model that produced anything ends the
// fallback chain even if the stream died midway. When nothing was ever
// produced the apology fallback is emitted and returned; the returned
// text is the durable artifact the caller persists either way.
func (s *AIService) GenerateStream(ctx context.Context, history []AIChatMessage, system string, emit func(chunk string)) (string, error) {
	cfg := s.cfg()
	if cfg.APIKey == "" {
		logger.Log.Error("ai: no API key configured")
		return "", util.ErrMissingAPIKey
	}

	contents := make([]geminiContent, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	req := geminiRequest{
		Contents:          contents,
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		GenerationConfig: &generationConfig{
			Temperature:     0.8,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 2048,
		},
	}

	for _, model := range cfg.Models {
		text, err := s.streamModel(ctx, cfg, model, req, emit)
		if err != nil {
			logger.Log.Warn("ai: stream failed",
				zap.String("model", model), zap.Error(err))
		}
		if text != "" {
			monitoring.AIAttempts.WithLabelValues(model, attemptSuccess).Inc()
			logger.Log.Info("ai: stream success", zap.String("model", model))
			return text, nil
		}
		monitoring.AIAttempts.WithLabelValues(model, attemptFailed).Inc()
	}

	emit(StreamFallbackMessage)
	return StreamFallbackMessage, nil
}

func (s *AIService) streamModel(ctx context.Context, cfg config.AIConfig, model string, req geminiRequest, emit func(chunk string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.StreamTimeout)*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", cfg.BaseURL, model, cfg.APIKey)
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Each complete SSE line is parsed independently as soon as it
	// arrives; the reader keeps any partial trailing line buffered
	// until more data shows up.
	var assembled strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return assembled.String(), err
			}
			break
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		chunk, ok := firstCandidateText([]byte(data))
		if !ok || chunk == "" {
			continue
		}
		assembled.WriteString(chunk)
		emit(chunk)
	}

	return assembled.String(), nil
}

package service

import (
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/util"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testAIConfig(baseURL string, models ...string) config.AIConfig {
	return config.AIConfig{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		Models:          models,
		MaxRetries:      3,
		RetryDelaySec:   0,
		ProbeTimeoutSec: 2,
		GenTimeoutSec:   2,
		StreamTimeout:   2,
	}
}

func candidateBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	})
	return string(b)
}

// isProbe tells the minimal liveness request apart from a real
// generation call by its tiny output budget.
func isProbe(r *http.Request) bool {
	var req geminiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return false
	}
	return req.GenerationConfig != nil && req.GenerationConfig.MaxOutputTokens == 10
}

const validAnalysisJSON = `{"score":{"correct":1,"total":3},"behavior_analysis":{"speed":"ok"},"recommendations":["ذاكر تاني"],"overall_summary":"كويس"}`

func TestGenerateJSONFallsBackAcrossModels(t *testing.T) {
	genCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probe := isProbe(r)
		switch {
		case strings.Contains(r.URL.Path, "model-a"):
			// Dead model: even the probe fails.
			w.WriteHeader(http.StatusInternalServerError)
		case probe:
			fmt.Fprint(w, candidateBody("ok"))
		default:
			genCalls++
			if genCalls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, candidateBody(validAnalysisJSON))
		}
	}))
	defer server.Close()

	svc := NewAIService(testAIConfig(server.URL, "model-a", "model-b"))
	result, err := svc.GenerateJSON(context.Background(), []AIPart{{Text: "حلل"}}, analysisRequiredFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ModelUsed != "model-b" {
		t.Fatalf("expected model-b, got %s", result.ModelUsed)
	}
	if result.AttemptNumber != 2 || result.TotalAttempts != 2 {
		t.Fatalf("expected attempt 2 of 2 total, got attempt=%d total=%d", result.AttemptNumber, result.TotalAttempts)
	}

	statuses := make([]string, 0, len(result.Log))
	for _, rec := range result.Log {
		statuses = append(statuses, rec.Status)
	}
	want := []string{attemptUnavailable, attemptFailed, attemptSuccess}
	if len(statuses) != len(want) {
		t.Fatalf("attempt log %v, want statuses %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("attempt log %v, want statuses %v", statuses, want)
		}
	}
	// The dead model's probe failure must not carry an attempt number.
	if result.Log[0].Attempt != 0 {
		t.Fatalf("probe failure consumed an attempt: %+v", result.Log[0])
	}
}

func TestGenerateJSONStripsCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r) {
			fmt.Fprint(w, candidateBody("ok"))
			return
		}
		fmt.Fprint(w, candidateBody("```json\n"+validAnalysisJSON+"\n```"))
	}))
	defer server.Close()

	svc := NewAIService(testAIConfig(server.URL, "model-a"))
	result, err := svc.GenerateJSON(context.Background(), []AIPart{{Text: "حلل"}}, analysisRequiredFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.Data["overall_summary"]; !ok {
		t.Fatalf("fenced payload not parsed: %v", result.Data)
	}
	if strings.Contains(result.Raw, "```") {
		t.Fatalf("raw text still fenced: %q", result.Raw)
	}
}

func TestGenerateJSONSchemaFailureExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r) {
			fmt.Fprint(w, candidateBody("ok"))
			return
		}
		// Valid JSON, but the required fields are missing.
		fmt.Fprint(w, candidateBody(`{"something":"else"}`))
	}))
	defer server.Close()

	svc := NewAIService(testAIConfig(server.URL, "model-a"))
	_, err := svc.GenerateJSON(context.Background(), []AIPart{{Text: "حلل"}}, analysisRequiredFields)
	if !errors.Is(err, util.ErrAllModelsFailed) {
		t.Fatalf("expected ErrAllModelsFailed, got %v", err)
	}

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected *PipelineError, got %T", err)
	}
	if pipeErr.TotalAttempts != 3 {
		t.Fatalf("expected 3 total attempts, got %d", pipeErr.TotalAttempts)
	}
	for _, rec := range pipeErr.Log {
		if rec.Status != attemptParseFailed {
			t.Fatalf("expected parse_failed entries, got %+v", pipeErr.Log)
		}
	}
}

func TestGenerateJSONWithoutAPIKey(t *testing.T) {
	cfg := testAIConfig("http://unused", "model-a")
	cfg.APIKey = ""
	svc := NewAIService(cfg)

	if _, err := svc.GenerateJSON(context.Background(), []AIPart{{Text: "x"}}, nil); !errors.Is(err, util.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "whitespace", in: "  {\"a\":1}  ", want: `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFence(tc.in); got != tc.want {
				t.Fatalf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParsePayloadValidation(t *testing.T) {
	if _, _, err := parsePayload([]byte(`{"candidates":[]}`), nil); err == nil {
		t.Fatal("expected error for empty candidates")
	}
	if _, _, err := parsePayload([]byte(candidateBody("not json")), nil); err == nil {
		t.Fatal("expected error for unparseable text")
	}
	if _, _, err := parsePayload([]byte(candidateBody(`{"a":1}`)), []string{"b"}); err == nil {
		t.Fatal("expected error for missing required field")
	}
	parsed, raw, err := parsePayload([]byte(candidateBody(`{"a":1}`)), []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed["a"] != float64(1) || raw != `{"a":1}` {
		t.Fatalf("unexpected parse result: %v %q", parsed, raw)
	}
}

func sseChunk(text string) string {
	return "data: " + candidateBody(text) + "\n"
}

func TestGenerateStreamForwardsFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("مرحبا"))
		fmt.Fprint(w, "\n")
		fmt.Fprint(w, sseChunk(" بيك"))
		fmt.Fprint(w, "\n")
	}))
	defer server.Close()

	svc := NewAIService(testAIConfig(server.URL, "model-a"))
	var fragments []string
	text, err := svc.GenerateStream(context.Background(), []AIChatMessage{{Role: "user", Content: "هاي"}}, "system", func(chunk string) {
		fragments = append(fragments, chunk)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "مرحبا بيك" {
		t.Fatalf("assembled text = %q", text)
	}
	if len(fragments) != 2 || fragments[0] != "مرحبا" || fragments[1] != " بيك" {
		t.Fatalf("fragments = %v", fragments)
	}
}

func TestGenerateStreamFallsBackToNextModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "model-a") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, sseChunk("تمام"))
	}))
	defer server.Close()

	svc := NewAIService(testAIConfig(server.URL, "model-a", "model-b"))
	text, err := svc.GenerateStream(context.Background(), []AIChatMessage{{Role: "user", Content: "هاي"}}, "system", func(string) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "تمام" {
		t.Fatalf("assembled text = %q", text)
	}
}

func TestGenerateStreamApologyFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewAIService(testAIConfig(server.URL, "model-a", "model-b"))
	var fragments []string
	text, err := svc.GenerateStream(context.Background(), []AIChatMessage{{Role: "user", Content: "هاي"}}, "system", func(chunk string) {
		fragments = append(fragments, chunk)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != StreamFallbackMessage {
		t.Fatalf("expected apology fallback, got %q", text)
	}
	if len(fragments) != 1 || fragments[0] != StreamFallbackMessage {
		t.Fatalf("apology not emitted to the client: %v", fragments)
	}
}

func TestUpdateConfigSwapsModels(t *testing.T) {
	svc := NewAIService(testAIConfig("http://unused", "model-a"))
	next := testAIConfig("http://unused", "model-x", "model-y")
	svc.UpdateConfig(next)

	got := svc.cfg()
	if len(got.Models) != 2 || got.Models[0] != "model-x" {
		t.Fatalf("config not swapped: %+v", got.Models)
	}
}

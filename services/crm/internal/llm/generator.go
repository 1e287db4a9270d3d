// Package llm implements the text-generation adapter C9 and C11 share:
// preference inference and campaign copy drafting both reduce to "send a
// prompt, get text back." Grounded on core/internal/ai/rag/providers.go's
// OpenAIProvider request/response shape and ticketing/internal/vision.go's
// circuit-breaker wrapping, generalized from an image+extraction-schema
// call to a text completion call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Error is a structured, never-thrown adapter failure — callers always
// get a usable fallback instead of a propagated transport error.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Config configures the adapter.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// DefaultConfig returns spec.md §5's 60s LLM deadline.
func DefaultConfig() Config {
	return Config{Timeout: 60 * time.Second, Model: "llama3"}
}

// Generator drafts text from a prompt, grounded on original_source's
// ai_client.py Ollama /api/generate call.
type Generator struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New builds a circuit-breaker-wrapped text generator. An empty
// Endpoint disables outbound calls entirely — Generate always falls
// through to the caller-supplied fallback, which keeps local runs and
// tests usable without a model endpoint.
func New(cfg Config) *Generator {
	if cfg.Timeout == 0 {
		cfg = DefaultConfig()
	}
	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	return &Generator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Stream      bool    `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate drafts text for prompt under system, or returns fallback if
// the endpoint is unconfigured, unreachable, the breaker is open, or it
// returns a non-2xx status. C9 and C11 never block on model
// availability (spec.md §7 UpstreamUnavailable: "degrade gracefully").
func (g *Generator) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int, fallback string) string {
	if g.cfg.Endpoint == "" {
		return fallback
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, prompt, system, temperature, maxTokens)
	})
	if err != nil {
		return fallback
	}
	text, ok := result.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

func (g *Generator) call(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (string, error) {
	reqBody := generateRequest{
		Model:       g.cfg.Model,
		Prompt:      prompt,
		System:      system,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", &Error{Message: "failed to build request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Message: "failed to build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: "llm request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &Error{Message: fmt.Sprintf("llm endpoint returned status %d", resp.StatusCode)}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &Error{Message: "failed to decode llm response: " + err.Error()}
	}
	return StripCodeFence(gr.Response), nil
}

// StripCodeFence removes a leading/trailing ```json or ``` fence, per
// spec.md §4.9 ("strip triple-backtick fences before parsing").
func StripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

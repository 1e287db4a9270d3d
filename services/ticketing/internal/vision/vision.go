// Package vision implements C5, the adapter to an external
// vision-model endpoint that extracts structured ticket data from an
// image. Grounded on core/internal/ai/rag/providers.go's
// OpenAIProvider request/response shape and
// core/internal/circuitbreaker/breaker.go.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// extractionPrompt is the fixed prompt sent alongside every image
// (spec.md §4.5).
const extractionPrompt = `Extract the following fields from this purchase receipt image and ` +
	`respond with a single JSON object only: {"fecha": string, "hora": string, ` +
	`"tienda": string, "total": number, "tipo_ticket": string, "productos": ` +
	`[{"cantidad": number, "nombre": string, "precio": number}]}. Use null for any field you cannot read.`

// Product is one extracted line item.
type Product struct {
	Cantidad float64 `json:"cantidad"`
	Nombre   string  `json:"nombre"`
	Precio   float64 `json:"precio"`
}

// Extraction is the raw structured output of the vision model
// (spec.md §6's processing_result input half).
type Extraction struct {
	Fecha      *string    `json:"fecha"`
	Hora       *string    `json:"hora"`
	Tienda     *string    `json:"tienda"`
	Total      *float64   `json:"total"`
	TipoTicket *string    `json:"tipo_ticket"`
	Productos  []Product  `json:"productos"`
}

// Error is a structured, never-thrown adapter failure (spec.md §4.5:
// "never throw upstream").
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Config configures the adapter.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// DefaultConfig returns spec.md §4.5's default 30s timeout.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, Model: "vision-default"}
}

// Adapter calls the external vision model and parses its response.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New builds a circuit-breaker-wrapped vision adapter.
func New(cfg Config) *Adapter {
	if cfg.Timeout == 0 {
		cfg = DefaultConfig()
	}
	settings := gobreaker.Settings{
		Name:        "vision",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

type visionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image_base64"`
}

type visionResponse struct {
	Text string `json:"text"`
}

// Extract sends image bytes plus the fixed prompt to the vision
// endpoint and parses the first balanced {...} in the response text.
// Transport and parse failures are returned as *Error, never as a
// transport-specific error type, per spec.md §4.5.
func (a *Adapter) Extract(ctx context.Context, image []byte) (*Extraction, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, image)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &Error{Message: "vision service unavailable: " + err.Error()}
		}
		if visionErr, ok := err.(*Error); ok {
			return nil, visionErr
		}
		return nil, &Error{Message: err.Error()}
	}
	return result.(*Extraction), nil
}

func (a *Adapter) call(ctx context.Context, image []byte) (*Extraction, error) {
	reqBody := visionRequest{
		Model:  a.cfg.Model,
		Prompt: extractionPrompt,
		Image:  base64.StdEncoding.EncodeToString(image),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Message: "failed to build request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "failed to build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "vision request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &Error{Message: fmt.Sprintf("vision endpoint returned status %d", resp.StatusCode)}
	}

	var vr visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, &Error{Message: "failed to decode vision response: " + err.Error()}
	}

	jsonBlob, ok := extractBalancedJSON(vr.Text)
	if !ok {
		return nil, &Error{Message: "no balanced JSON object found in vision response"}
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(jsonBlob), &ext); err != nil {
		return nil, &Error{Message: "malformed JSON from vision model: " + err.Error()}
	}
	if ext.Productos == nil {
		ext.Productos = []Product{}
	}
	return &ext, nil
}

// extractBalancedJSON locates the first balanced {...} substring,
// tracking brace depth and honoring string-literal escaping so a `}`
// inside a quoted value doesn't close the object early. A deliberate
// refinement over a naive first-to-last-brace slice.
func extractBalancedJSON(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// Package preference implements C9, preference inference over a
// user's recent purchase history via the LLM adapter. Grounded on
// original_source/modules/backend/crm-service/app/routers/preferences.py's
// "last 20 purchases -> closed-vocabulary JSON" flow and
// crm/internal/llm/generator.go's fallback-always call shape.
package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// Vocabulary is the closed set of keys spec.md §4.9 allows the
// inference prompt to populate.
var Vocabulary = []string{
	"diet", "organic", "wine_preference", "language",
	"budget_level", "store_preference", "product_category",
}

// SegmentVocabulary restricts Vocabulary further for segment
// preferences_contains clauses (spec.md §4.9).
var SegmentVocabulary = []string{
	"diet", "store_preference", "language", "organic",
	"budget_level", "product_category",
}

const historyWindow = 20

const systemPrompt = `You infer a grocery shopper's preferences from their recent purchase history.
Respond with a single JSON object only, no prose, no markdown fences.
Use only these keys when you have evidence for them: diet, organic, wine_preference, language, budget_level, store_preference, product_category.
Omit any key you cannot infer. Never invent purchases that are not in the history.`

// Generator drafts preference JSON from a prompt; satisfied by
// llm.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int, fallback string) string
}

// Ledger is the slice of the ledger sibling preference inference reads.
type Ledger interface {
	LatestPurchases(ctx context.Context, userID string, n int) ([]sdk.PurchaseRecord, error)
}

// Identity is the slice of the identity sibling preference inference
// reads and writes.
type Identity interface {
	GetPreferences(ctx context.Context, userID string) (map[string]any, error)
	SetPreferences(ctx context.Context, userID string, prefs map[string]any) error
}

// Service implements C9.
type Service struct {
	ledger   Ledger
	identity Identity
	llm      Generator
}

// New builds the preference inference service.
func New(ledger Ledger, identity Identity, llm Generator) *Service {
	return &Service{ledger: ledger, identity: identity, llm: llm}
}

type historyItem struct {
	Store    string   `json:"store"`
	Total    float64  `json:"total"`
	Products []string `json:"products"`
	Date     string   `json:"date"`
}

// Infer builds a compact input from a user's latest 20 purchases and
// asks the LLM adapter for a preference map in the closed vocabulary.
// Empty history or a malformed response both yield {} (spec.md §4.9):
// the pipeline's correctness never depends on generative quality.
func (s *Service) Infer(ctx context.Context, userID string) (map[string]any, error) {
	records, err := s.ledger.LatestPurchases(ctx, userID, historyWindow)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return map[string]any{}, nil
	}

	items := make([]historyItem, 0, len(records))
	for _, r := range records {
		names := make([]string, 0, len(r.Products))
		for _, p := range r.Products {
			names = append(names, p.Name)
		}
		items = append(items, historyItem{
			Store:    r.StoreName,
			Total:    r.TotalAmount,
			Products: names,
			Date:     r.PurchaseDate,
		})
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return map[string]any{}, nil
	}
	prompt := fmt.Sprintf("Purchase history (most recent first):\n%s", payload)

	raw := s.llm.Generate(ctx, prompt, systemPrompt, 0.2, 300, "{}")
	return parseInference(raw), nil
}

// parseInference strips a code fence and decodes the closed-vocabulary
// JSON object, discarding any key outside Vocabulary and returning {}
// on any parse failure.
func parseInference(raw string) map[string]any {
	cleaned := stripFence(raw)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return map[string]any{}
	}
	allowed := make(map[string]struct{}, len(Vocabulary))
	for _, k := range Vocabulary {
		allowed[k] = struct{}{}
	}
	out := map[string]any{}
	for k, v := range decoded {
		if _, ok := allowed[k]; ok {
			out[k] = v
		}
	}
	return out
}

func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// GetWithInference returns the user's stored preferences, lazily
// inferring and persisting them when none are stored yet (spec.md
// §4.9's get_preferences_with_inference: "update in-place iff current
// is empty").
func (s *Service) GetWithInference(ctx context.Context, userID string) (map[string]any, error) {
	current, err := s.identity.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 {
		return current, nil
	}

	inferred, err := s.Infer(ctx, userID)
	if err != nil {
		return map[string]any{}, nil
	}
	if len(inferred) == 0 {
		return inferred, nil
	}
	if err := s.identity.SetPreferences(ctx, userID, inferred); err != nil {
		return inferred, nil
	}
	return inferred, nil
}

// ContainsAll reports whether preferences is a superset of every
// key:value pair in want, used by C10's preferences_contains clause.
func ContainsAll(preferences, want map[string]any) bool {
	for k, v := range want {
		got, ok := preferences[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

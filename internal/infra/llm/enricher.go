package llm

import (
	"context"
	"log/slog"
)

// Enrichment is the structured output of the detail pass: translation,
// summary and keywords for a high-priority item.
type Enrichment struct {
	Native      bool
	Translation string
	Summary     string
	Keywords    []string
}

// Enricher runs the detail-extraction pass over item content.
type Enricher struct {
	chat          ChatFunc
	summaryBudget int
	log           *slog.Logger
}

// NewEnricher builds an enricher with a summary length budget in runes.
func NewEnricher(chat ChatFunc, summaryBudget int, log *slog.Logger) *Enricher {
	return &Enricher{chat: chat, summaryBudget: summaryBudget, log: log}
}

type enrichPayload struct {
	IsNative    bool     `json:"is_native"`
	Translation *string  `json:"translation"`
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
}

// Enrich asks the model for translation, summary and keywords. A response
// that cannot be decoded is returned as a *ParseError so callers can
// distinguish it from transport failures. Over-budget summaries are truncated
// locally rather than rejected.
func (e *Enricher) Enrich(ctx context.Context, content string) (*Enrichment, error) {
	resp, err := e.chat(ctx, enrichSystemPrompt, enrichPrompt(content, e.summaryBudget))
	if err != nil {
		return nil, err
	}

	var payload enrichPayload
	if err := decodeJSONObject(resp, &payload); err != nil {
		return nil, err
	}
	if payload.Summary == "" {
		return nil, &ParseError{Reason: "missing summary field"}
	}

	result := &Enrichment{
		Native:   payload.IsNative,
		Summary:  truncateRunes(payload.Summary, e.summaryBudget),
		Keywords: payload.Keywords,
	}
	// Native-language originals carry no translation even when the model
	// returned one anyway.
	if !payload.IsNative && payload.Translation != nil {
		result.Translation = *payload.Translation
	}
	return result, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package llm

import (
	"context"
	"log/slog"

	"github.com/minhngt/harvester/internal/core/domain"
)

// ChatFunc abstracts the chat completion call for testing.
type ChatFunc func(ctx context.Context, system, user string) (string, error)

// Grader assigns a tier from the configured vocabulary to an item's content.
type Grader struct {
	chat  ChatFunc
	tiers domain.Tiers
	log   *slog.Logger
}

// NewGrader builds a grader over the given chat backend and tier vocabulary.
func NewGrader(chat ChatFunc, tiers domain.Tiers, log *slog.Logger) *Grader {
	return &Grader{chat: chat, tiers: tiers, log: log}
}

// Grade returns the tier found in the model response. The response is scanned
// for tier labels in vocabulary order so the highest-priority match wins. An
// answer containing no known label degrades to the lowest tier; only a
// transport failure is surfaced as an error.
func (g *Grader) Grade(ctx context.Context, content string) (domain.Tier, error) {
	resp, err := g.chat(ctx, gradeSystemPrompt, gradePrompt(content, g.tiers))
	if err != nil {
		return "", err
	}

	if tier, ok := g.tiers.Match(resp); ok {
		return tier, nil
	}

	g.log.Warn("grader returned no recognizable tier, defaulting to lowest",
		"response", truncateForLog(resp, 120))
	return g.tiers.Lowest(), nil
}

func truncateForLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

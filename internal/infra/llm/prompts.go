package llm

import (
	"fmt"
	"strings"

	"github.com/minhngt/harvester/internal/core/domain"
)

const (
	gradeSystemPrompt = "You are a professional market analyst who judges how strongly a piece of information can move asset prices."

	enrichSystemPrompt = "You are a professional content analyst skilled at translation, summarization and keyword extraction."
)

const tierDefinitions = `P0 - Direct, verifiable, already-happened price drivers (highest priority)
P1 - Strong signals very likely to trigger price action soon
P2 - Structural, slow-moving factors that shift the long-term price level
P3 - Macro and policy events affecting risk-asset pricing as a whole
P4 - Industry narrative and sentiment, unstable money response
P5 - Related noise with almost no effect on capital decisions
P6 - Discardable content with no price relevance`

func gradePrompt(content string, tiers domain.Tiers) string {
	labels := make([]string, len(tiers))
	for i, t := range tiers {
		labels[i] = string(t)
	}
	return fmt.Sprintf(`Grade the following post by how strongly it can affect market prices.

Tier definitions:
%s

Post content:
%s

Consider: does it change expectations, does it trigger real buying or selling,
and how broad is the affected scope?

Return ONLY the tier code (%s) with no explanation.`,
		tierDefinitions, content, strings.Join(labels, "/"))
}

func enrichPrompt(content string, summaryBudget int) string {
	return fmt.Sprintf(`Analyze the following post.

Post content:
%s

Respond with strictly valid JSON in exactly this shape:
{
    "is_native": true or false,
    "translation": "translated text, or null when the original is already in the target language",
    "summary": "summary of at most %d characters",
    "keywords": ["kw1", "kw2", "kw3"]
}

The summary must not exceed %d characters. Extract 3-5 keywords covering the
core market-relevant concepts. Return valid JSON only.`, content, summaryBudget, summaryBudget)
}

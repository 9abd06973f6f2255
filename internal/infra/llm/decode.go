package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError indicates the model answered but the answer could not be
// interpreted as the expected JSON document.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparseable llm response: " + e.Reason
}

// decodeJSONObject extracts and unmarshals the first top-level JSON object
// embedded in text. Models routinely wrap their JSON in prose or markdown
// fences, so the document is located by brace positions rather than decoded
// directly.
func decodeJSONObject(text string, out any) error {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return &ParseError{Reason: "no JSON object found"}
	}

	if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err != nil {
		return &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

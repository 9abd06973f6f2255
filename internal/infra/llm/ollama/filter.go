// Package ollama implements a cheap local relevance filter in front of the
// remote grading model. It talks to an Ollama server over its native chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const filterSystemPrompt = "You are a fast relevance filter for market-related content."

// Filter asks a local model whether content is worth sending to the remote
// grader. Any failure fails open: the item is treated as relevant.
type Filter struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewFilter builds a relevance filter against an Ollama server.
func NewFilter(baseURL, model string, timeout time.Duration, log *slog.Logger) *Filter {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Filter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Relevant reports whether content looks market-related. The model answer is
// parsed loosely: anything containing YES counts as relevant. Transport or
// decode failures default to relevant so the remote grader stays the
// authority.
func (f *Filter) Relevant(ctx context.Context, content string) bool {
	body, err := json.Marshal(chatRequest{
		Model: f.model,
		Messages: []chatMessage{
			{Role: "system", Content: filterSystemPrompt},
			{Role: "user", Content: filterPrompt(content)},
		},
		Stream: false,
	})
	if err != nil {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return true
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Warn("relevance filter call failed, treating item as relevant", "error", err)
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.log.Warn("relevance filter returned bad status, treating item as relevant",
			"status", resp.StatusCode)
		return true
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		f.log.Warn("relevance filter response undecodable, treating item as relevant", "error", err)
		return true
	}

	return strings.Contains(strings.ToUpper(parsed.Message.Content), "YES")
}

func filterPrompt(content string) string {
	return fmt.Sprintf(`Is the following post related to markets, investing, the economy or
digital assets? Answer with a single word: YES or NO.

Post content:
%s`, content)
}

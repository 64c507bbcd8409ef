package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"brainstorm/internal/config"
)

// Summarizer turns a session's ideas into a free-text solution. Calls may be
// slow and may fail.
type Summarizer interface {
	Summarize(ctx context.Context, theme string, ideas []string) (string, error)
}

// GeminiSummarizer calls a generateContent endpoint. Without an API key it
// answers with a locally built summary.
type GeminiSummarizer struct {
	config config.SummarizerConfig
	client *http.Client
}

// NewGeminiSummarizer creates a new summarizer client
func NewGeminiSummarizer(cfg config.SummarizerConfig) *GeminiSummarizer {
	return &GeminiSummarizer{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, theme string, ideas []string) (string, error) {
	if !s.config.IsEnabled() {
		return mockSummary(theme, ideas), nil
	}
	text, err := s.callGemini(ctx, buildSummaryPrompt(theme, ideas))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizer, err)
	}
	return text, nil
}

func (s *GeminiSummarizer) callGemini(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", s.config.Endpoint(), s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer returned %d", resp.StatusCode)
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		text := strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text)
		if text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("empty response from summarizer")
}

func buildSummaryPrompt(theme string, ideas []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tema da sessão de brainstorming: %s\n\n", theme)
	b.WriteString("Ideias submetidas pelos participantes, por ordem:\n")
	for i, idea := range ideas {
		fmt.Fprintf(&b, "%d. %s\n", i+1, idea)
	}
	b.WriteString("\nCombine as ideias numa proposta de solução concisa, em português, com no máximo três parágrafos.")
	return b.String()
}

func mockSummary(theme string, ideas []string) string {
	if len(ideas) == 0 {
		return fmt.Sprintf("Nenhuma ideia foi submetida para o tema \"%s\".", theme)
	}
	return fmt.Sprintf("Síntese de %d ideias para o tema \"%s\": %s.",
		len(ideas), theme, strings.Join(ideas, ", "))
}

func levelDigest(level int, words []string) string {
	if len(words) == 0 {
		return fmt.Sprintf("Nenhuma palavra foi submetida no nível %d.", level)
	}
	return fmt.Sprintf("Nível %d: %d palavras submetidas: %s.",
		level, len(words), strings.Join(words, ", "))
}

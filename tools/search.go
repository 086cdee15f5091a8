// Package tools holds the external capabilities available to the chat
// agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultSearchURL = "https://api.duckduckgo.com"
	maxResponseSize  = 1 << 20 // 1 MiB
	maxTopics        = 5
)

// SearchClient queries the DuckDuckGo instant answer API. It is the single
// "search" capability bound to the internet-enabled chat agent.
type SearchClient struct {
	client  *http.Client
	baseURL string
}

func NewSearchClient(baseURL string) *SearchClient {
	if baseURL == "" {
		baseURL = defaultSearchURL
	}

	return &SearchClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
	}
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search returns a plain-text digest of the instant answer for the query.
func (s *SearchClient) Search(ctx context.Context, query string) (string, error) {
	u := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", s.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	return renderAnswer(answer), nil
}

func renderAnswer(a instantAnswer) string {
	var parts []string
	if a.Answer != "" {
		parts = append(parts, a.Answer)
	}
	if a.AbstractText != "" {
		text := a.AbstractText
		if a.AbstractURL != "" {
			text += " (" + a.AbstractURL + ")"
		}
		parts = append(parts, text)
	}
	for i, topic := range a.RelatedTopics {
		if i >= maxTopics {
			break
		}
		if topic.Text != "" {
			parts = append(parts, topic.Text)
		}
	}
	if len(parts) == 0 {
		return "No search results found."
	}

	return strings.Join(parts, "\n")
}

package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ddgRateLimit enforces a global rate limit of 1 query per second across all
// web search invocations, concurrent tool calls included.
var ddgRateLimit struct {
	mu   sync.Mutex
	last time.Time
}

const ddgLiteEndpoint = "https://lite.duckduckgo.com/lite/"

const webSearchDefaultResults = 5

type WebSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type WebSearchOutput struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

type webSearcher struct {
	client   *http.Client
	endpoint string
}

// NewWebSearchTool returns the general web search tool backed by the
// DuckDuckGo lite HTML interface.
func NewWebSearchTool() tool.InvokableTool {
	return newWebSearchTool(ddgLiteEndpoint, &http.Client{Timeout: 15 * time.Second})
}

func newWebSearchTool(endpoint string, client *http.Client) tool.InvokableTool {
	s := &webSearcher{client: client, endpoint: endpoint}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Perform a general web search using DuckDuckGo. Returns result titles, links, and snippets. Use this for news, current events, and any topic not covered by the other tools.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search query for general web results.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of results to return (default: 5, max: 10).",
				},
			}),
		},
		s.search,
	)
}

func (s *webSearcher) search(ctx context.Context, in *WebSearchInput) (*WebSearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	max := in.MaxResults
	if max <= 0 {
		max = webSearchDefaultResults
	}
	if max > 10 {
		max = 10
	}

	if err := waitForDDGSlot(ctx); err != nil {
		return nil, err
	}

	formData := url.Values{}
	formData.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	results := parseLiteResults(string(body), max)
	if len(results) == 0 {
		return nil, fmt.Errorf("no results found for %q", query)
	}
	return &WebSearchOutput{Results: results, Total: len(results)}, nil
}

// waitForDDGSlot blocks until the global 1 QPS limit allows another query.
func waitForDDGSlot(ctx context.Context) error {
	ddgRateLimit.mu.Lock()
	if wait := time.Until(ddgRateLimit.last.Add(time.Second)); wait > 0 {
		ddgRateLimit.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		ddgRateLimit.mu.Lock()
	}
	ddgRateLimit.last = time.Now()
	ddgRateLimit.mu.Unlock()
	return nil
}

var (
	liteLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	liteLinkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	liteSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
	htmlTagPattern     = regexp.MustCompile(`<[^>]+>`)
)

// parseLiteResults extracts search results from the DuckDuckGo lite HTML.
// The lite page has a simple structure with result links and snippets.
func parseLiteResults(html string, max int) []SearchResult {
	var results []SearchResult

	matches := liteLinkPattern.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		matches = liteLinkPatternAlt.FindAllStringSubmatch(html, -1)
	}
	snippetMatches := liteSnippetPattern.FindAllStringSubmatch(html, -1)

	for i, match := range matches {
		if len(match) < 3 {
			continue
		}
		urlStr := strings.TrimSpace(match[1])
		title := cleanHTML(match[2])

		snippet := ""
		if i < len(snippetMatches) && len(snippetMatches[i]) > 1 {
			snippet = cleanHTML(snippetMatches[i][1])
		}

		if urlStr == "" || title == "" {
			continue
		}

		results = append(results, SearchResult{Title: title, URL: urlStr, Snippet: snippet})
		if len(results) >= max {
			break
		}
	}
	return results
}

func cleanHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#x27;", "'",
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return strings.TrimSpace(replacer.Replace(s))
}

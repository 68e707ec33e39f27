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
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const wikipediaAPIEndpoint = "https://en.wikipedia.org/w/api.php"

// wikipediaMaxChars bounds the extract so a single lookup cannot flood the
// model context.
const wikipediaMaxChars = 1000

type WikipediaSearchInput struct {
	Query string `json:"query"`
}

type WikipediaSearchOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

type wikipediaSearcher struct {
	client   *http.Client
	endpoint string
}

// NewWikipediaSearchTool returns the encyclopedia lookup tool backed by the
// MediaWiki action API (search generator + plain-text intro extract).
func NewWikipediaSearchTool() tool.InvokableTool {
	return newWikipediaSearchTool(wikipediaAPIEndpoint, &http.Client{Timeout: 15 * time.Second})
}

func newWikipediaSearchTool(endpoint string, client *http.Client) tool.InvokableTool {
	s := &wikipediaSearcher{client: client, endpoint: endpoint}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWikipediaSearch,
			Desc: "Look up a topic on Wikipedia and return the summary of the best matching article. Use this for factual, encyclopedic questions about people, places, concepts, and history.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search query for Wikipedia.",
					Required: true,
				},
			}),
		},
		s.search,
	)
}

type wikipediaQueryResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID  int    `json:"pageid"`
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

func (s *wikipediaSearcher) search(ctx context.Context, in *WikipediaSearchInput) (*WikipediaSearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrlimit", "1")
	params.Set("prop", "extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "askscout-agent/1.0 (research assistant)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read wikipedia response: %w", err)
	}

	var decoded wikipediaQueryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode wikipedia response: %w", err)
	}
	if len(decoded.Query.Pages) == 0 {
		return nil, fmt.Errorf("no wikipedia article found for %q", query)
	}

	// The generator returns at most one page with gsrlimit=1.
	for _, page := range decoded.Query.Pages {
		summary := truncateRunes(strings.TrimSpace(page.Extract), wikipediaMaxChars)
		return &WikipediaSearchOutput{
			Title:   page.Title,
			Summary: summary,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(page.Title, " ", "_")),
		}, nil
	}
	return nil, fmt.Errorf("no wikipedia article found for %q", query)
}

// truncateRunes cuts s to at most max runes without splitting a character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

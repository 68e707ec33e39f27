package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const arxivAPIEndpoint = "https://export.arxiv.org/api/query"

const arxivSummaryMaxChars = 1200

type ArxivSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type ArxivPaper struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Link      string `json:"link"`
	Published string `json:"published"`
}

type ArxivSearchOutput struct {
	Papers []ArxivPaper `json:"papers"`
	Total  int          `json:"total"`
}

type arxivSearcher struct {
	client   *http.Client
	endpoint string
}

// NewArxivSearchTool returns the academic paper search tool backed by the
// arXiv Atom API, sorted by submission date.
func NewArxivSearchTool() tool.InvokableTool {
	return newArxivSearchTool(arxivAPIEndpoint, &http.Client{Timeout: 15 * time.Second})
}

func newArxivSearchTool(endpoint string, client *http.Client) tool.InvokableTool {
	s := &arxivSearcher{client: client, endpoint: endpoint}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolArxivSearch,
			Desc: "Search arXiv for academic papers and return title, abstract, and link of the most recent matches. Use this for scientific and research questions.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search query for arXiv papers.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of papers to return (default: 1, max: 5).",
				},
			}),
		},
		s.search,
	)
}

// atomFeed matches the subset of the arXiv Atom response the tool reports.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
}

func (s *arxivSearcher) search(ctx context.Context, in *ArxivSearchInput) (*ArxivSearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	max := in.MaxResults
	if max <= 0 {
		max = 1
	}
	if max > 5 {
		max = 5
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", max))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

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
		return nil, fmt.Errorf("arxiv http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read arxiv response: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode arxiv response: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("no arxiv results found for %q", query)
	}

	papers := make([]ArxivPaper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		papers = append(papers, ArxivPaper{
			Title:     normalizeWhitespace(entry.Title),
			Summary:   truncateRunes(normalizeWhitespace(entry.Summary), arxivSummaryMaxChars),
			Link:      strings.TrimSpace(entry.ID),
			Published: strings.TrimSpace(entry.Published),
		})
	}
	return &ArxivSearchOutput{Papers: papers, Total: len(papers)}, nil
}

// normalizeWhitespace collapses the newline-wrapped text arXiv returns into
// single-spaced prose.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

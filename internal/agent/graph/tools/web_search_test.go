package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const liteResultsPage = `<html><body><table>
<tr><td><a rel="nofollow" class='result-link' href='https://example.com/go'>The Go Programming Language</a></td></tr>
<tr><td class='result-snippet'>Go is an open source programming language.</td></tr>
<tr><td><a rel="nofollow" class='result-link' href='https://example.org/gopher'>Gophers &amp; friends</a></td></tr>
<tr><td class='result-snippet'>All about gophers.</td></tr>
</table></body></html>`

func TestParseLiteResults(t *testing.T) {
	results := parseLiteResults(liteResultsPage, 5)
	require.Len(t, results, 2)
	require.Equal(t, "The Go Programming Language", results[0].Title)
	require.Equal(t, "https://example.com/go", results[0].URL)
	require.Equal(t, "Go is an open source programming language.", results[0].Snippet)
	require.Equal(t, "Gophers & friends", results[1].Title)
}

func TestParseLiteResultsHonorsMax(t *testing.T) {
	results := parseLiteResults(liteResultsPage, 1)
	require.Len(t, results, 1)
}

func TestWebSearchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "golang", r.Form.Get("q"))
		_, _ = w.Write([]byte(liteResultsPage))
	}))
	defer server.Close()

	ws := newWebSearchTool(server.URL, server.Client())

	out, err := ws.InvokableRun(context.Background(), `{"query":"golang"}`)
	require.NoError(t, err)

	var decoded WebSearchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, 2, decoded.Total)
	require.Equal(t, "The Go Programming Language", decoded.Results[0].Title)
}

func TestWebSearchEmptyQuery(t *testing.T) {
	ws := newWebSearchTool("http://unused.invalid", http.DefaultClient)

	_, err := ws.InvokableRun(context.Background(), `{"query":"  "}`)
	require.Error(t, err)
}

func TestWebSearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ws := newWebSearchTool(server.URL, server.Client())

	_, err := ws.InvokableRun(context.Background(), `{"query":"golang"}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 500")
}

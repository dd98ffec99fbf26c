// Package search queries the external full-text index that holds the user's
// uploaded sources. Index CRUD and ranking internals belong to the provider;
// this client only issues queries and normalizes hits.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/researchai/research-bridge/internal/types"
	"github.com/tidwall/gjson"
)

const apiVersion = "2023-11-01"

// Options configures a search client.
type Options struct {
	Endpoint  string
	IndexName string
	APIKey    string
	Timeout   time.Duration
	TopN      int
}

// Client issues ranked document queries against the search index.
type Client struct {
	endpoint   string
	indexName  string
	apiKey     string
	topN       int
	httpClient *http.Client
}

// NewClient creates a search client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = 5
	}

	return &Client{
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		indexName:  opts.IndexName,
		apiKey:     opts.APIKey,
		topN:       topN,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search returns the top ranked hits for query, optionally filtered by source
// type. An empty or whitespace query matches all documents so callers can
// request a corpus overview rather than getting an error.
func (c *Client) Search(ctx context.Context, query string, sourceTypes []string, top int) ([]types.SearchResult, error) {
	if top <= 0 {
		top = c.topN
	}

	q := strings.TrimSpace(query)
	if q == "" {
		q = "*"
	}

	params := url.Values{}
	params.Set("api-version", apiVersion)
	params.Set("search", q)
	params.Set("$top", strconv.Itoa(top))
	params.Set("highlight", "content")
	params.Set("highlightPreTag", "<mark>")
	params.Set("highlightPostTag", "</mark>")
	params.Set("$orderby", "search.score() desc")

	if len(sourceTypes) > 0 {
		clauses := make([]string, 0, len(sourceTypes))
		for _, st := range sourceTypes {
			clauses = append(clauses, fmt.Sprintf("sourceType eq '%s'", st))
		}
		params.Set("$filter", strings.Join(clauses, " or "))
	}

	reqURL := fmt.Sprintf("%s/indexes/%s/docs?%s", c.endpoint, url.PathEscape(c.indexName), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: HTTP %d", resp.StatusCode)
	}

	var results []types.SearchResult
	gjson.GetBytes(body, "value").ForEach(func(_, doc gjson.Result) bool {
		result := types.SearchResult{
			ID:             doc.Get("id").String(),
			Title:          doc.Get("title").String(),
			Content:        doc.Get("content").String(),
			SourceType:     doc.Get("sourceType").String(),
			RelevanceScore: doc.Get(`\@search\.score`).Float(),
			SourceURL:      doc.Get("sourceUrl").String(),
			PageNumber:     int(doc.Get("pageNumber").Int()),
		}
		doc.Get(`\@search\.highlights.content`).ForEach(func(_, h gjson.Result) bool {
			result.Highlights = append(result.Highlights, h.String())
			return true
		})
		results = append(results, result)
		return true
	})

	return results, nil
}

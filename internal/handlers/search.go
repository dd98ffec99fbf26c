package handlers

import (
	"context"
	"fmt"
	"log"
	"math"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/researchai/research-bridge/internal/types"
)

const snippetLength = 300

// Searcher queries the source index.
type Searcher interface {
	Search(ctx context.Context, query string, sourceTypes []string, top int) ([]types.SearchResult, error)
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query       string   `json:"query"`
	SourceTypes []string `json:"sourceTypes,omitempty"`
	Top         int      `json:"top,omitempty"`
}

// SearchHandler serves direct index queries for the source browser UI.
// Content is trimmed to a snippet; the full text stays in the index.
func SearchHandler(searcher Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "Invalid request body"})
			return
		}
		for _, st := range req.SourceTypes {
			if !types.ValidSourceType(st) {
				c.JSON(400, gin.H{"error": fmt.Sprintf("Invalid sourceTypes entry: %q", st)})
				return
			}
		}

		results, err := searcher.Search(c.Request.Context(), req.Query, req.SourceTypes, req.Top)
		if err != nil {
			log.Printf("⚠️ [Search] Query failed: %v", err)
			c.JSON(502, gin.H{"error": "Search index unavailable"})
			return
		}

		trimmed := make([]types.SearchResult, 0, len(results))
		for _, r := range results {
			r.Content = snippet(r.Content)
			r.RelevanceScore = math.Round(r.RelevanceScore*100) / 100
			trimmed = append(trimmed, r)
		}

		c.JSON(200, gin.H{
			"results": trimmed,
			"count":   len(trimmed),
			"query":   req.Query,
		})
	}
}

func snippet(content string) string {
	if len(content) <= snippetLength {
		return content
	}
	// Back up to a rune boundary so the cut never splits a multi-byte char.
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

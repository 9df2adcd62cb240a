// Package search is the discovery boundary: a search-augmented LLM
// service that answers a query with prose plus cited source URLs.
package search

import (
	"context"
	"regexp"
)

// Result is one search response: the service's prose answer and the
// URLs it cited.
type Result struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

// Provider is the external search service boundary. Implementations
// return an error on any failure; callers treat failure as a whole-run
// failure for the current job, never as a partial result.
type Provider interface {
	Search(ctx context.Context, query string) (*Result, error)
	Name() string
}

// citationURLPattern extracts URLs from answer prose when the service
// returns no explicit citation list.
var citationURLPattern = regexp.MustCompile(`https?://[^\s\)\]>"]+`)

// ExtractCitations falls back to scanning the answer text for URLs.
func ExtractCitations(content string) []string {
	return citationURLPattern.FindAllString(content, -1)
}

// Package fetch retrieves raw article HTML, extracts the main text, and
// classifies paywall and failure states.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/logger"
	"curator/internal/store"
)

// paywallIndicators are phrases scanned for in the raw HTML,
// case-insensitively, as a paywall heuristic.
var paywallIndicators = []string{
	"subscribe to continue",
	"subscribe to read",
	"this content is for subscribers",
	"paywall",
	"sign in to read",
	"create a free account",
	"premium content",
	"members only",
}

// minExtractedChars is the floor under which an extraction counts as failed.
const minExtractedChars = 100

// partialWordThreshold classifies paywalled pages that still yielded
// some text.
const partialWordThreshold = 200

// maxErrorLength bounds error messages stored on content records.
const maxErrorLength = 500

// BatchStats summarizes one fetch batch.
type BatchStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Fetcher retrieves and extracts content for pending articles.
type Fetcher struct {
	store     *store.Store
	client    *http.Client
	userAgent string
	batchSize int
	log       zerolog.Logger
}

// NewFetcher creates a fetcher with a bounded-timeout HTTP client.
func NewFetcher(st *store.Store, cfg config.Fetch) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Fetcher{
		store:     st,
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		batchSize: batchSize,
		log:       logger.With("fetch"),
	}
}

// FetchOne fetches a single article by ID. It returns whether content
// was extracted and the article's resulting lifecycle state. Fetch
// failures are recorded on the content record, not returned as errors;
// the error is non-nil only when the article cannot be loaded at all.
func (f *Fetcher) FetchOne(ctx context.Context, articleID int64) (bool, core.Status, error) {
	article, err := f.store.GetArticle(ctx, articleID)
	if err != nil {
		return false, "", err
	}
	if article == nil {
		return false, "", fmt.Errorf("article %d not found", articleID)
	}
	ok := f.fetchArticle(ctx, article)
	return ok, article.Status, nil
}

// FetchPending fetches the oldest pending articles up to batchSize
// (0 means the configured default). One article's failure never aborts
// the batch.
func (f *Fetcher) FetchPending(ctx context.Context, batchSize int) (BatchStats, error) {
	if batchSize <= 0 {
		batchSize = f.batchSize
	}
	articles, err := f.store.ListArticlesByStatus(ctx, core.StatusPending, batchSize)
	if err != nil {
		return BatchStats{}, fmt.Errorf("failed to select pending articles: %w", err)
	}

	runID := uuid.NewString()[:8]
	stats := BatchStats{Total: len(articles)}
	for i := range articles {
		if f.fetchArticle(ctx, &articles[i]) {
			stats.Success++
		} else {
			stats.Failed++
		}
	}

	f.log.Info().Str("run_id", runID).Int("total", stats.Total).
		Int("success", stats.Success).Int("failed", stats.Failed).
		Msg("fetch batch complete")
	return stats, nil
}

// fetchArticle runs the full fetch-and-extract sequence for one
// article, recording the outcome on its content record. Returns true
// only when usable content was extracted.
func (f *Fetcher) fetchArticle(ctx context.Context, article *core.Article) bool {
	content, err := f.store.GetContent(ctx, article.ID)
	if err != nil {
		f.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to load content record")
		return false
	}
	if content == nil {
		content = &core.Content{ArticleID: article.ID, FetchStatus: core.FetchPending}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, article.URL, nil)
	if err != nil {
		return f.recordFailure(ctx, article, content, core.FetchFailed, truncateError(err.Error()))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		msg := truncateError(err.Error())
		if isTimeout(err) {
			msg = "Request timed out"
		}
		return f.recordFailure(ctx, article, content, core.FetchFailed, msg)
	}
	defer resp.Body.Close()

	content.HTTPStatus = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		return f.recordFailure(ctx, article, content, core.FetchFailed, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return f.recordFailure(ctx, article, content, core.FetchFailed, truncateError(err.Error()))
	}
	html := string(body)
	isPaywall := scanPaywall(html)

	text, meta := extract(html, article.URL)
	if len(strings.TrimSpace(text)) < minExtractedChars {
		if isPaywall {
			return f.recordFailure(ctx, article, content, core.FetchPaywall, "Content appears to be behind a paywall")
		}
		return f.recordFailure(ctx, article, content, core.FetchFailed, "Could not extract meaningful content")
	}

	wordCount := len(strings.Fields(text))
	sum := sha256.Sum256([]byte(text))

	content.FullText = text
	content.ContentHash = hex.EncodeToString(sum[:])
	content.WordCount = wordCount
	content.FetchedAt = time.Now().UTC()
	content.FetchError = ""
	if isPaywall && wordCount < partialWordThreshold {
		content.FetchStatus = core.FetchPartial
		content.FetchError = "Partial content - possible paywall"
	} else {
		content.FetchStatus = core.FetchSuccess
	}

	content.ExtractedTitle = meta.Title
	content.ExtractedAuthor = meta.Author
	content.ExtractedDate = meta.Date
	if meta.Author != "" {
		hasAuthors, err := f.store.HasAuthors(ctx, article.ID)
		if err == nil && !hasAuthors {
			_ = f.store.AddAuthor(ctx, article.ID, meta.Author)
		}
	}

	if err := f.store.UpsertContent(ctx, content); err != nil {
		f.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to persist content")
		return false
	}

	article.HasContent = true
	article.Status = core.StatusFetched
	article.WordCount = wordCount
	article.ReadingTime = core.EstimateReadingTime(wordCount)
	if err := f.store.UpdateArticle(ctx, article); err != nil {
		f.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to update article")
		return false
	}

	f.log.Info().Int64("article_id", article.ID).Int("words", wordCount).
		Str("fetch_status", string(content.FetchStatus)).Msg("fetched article")
	return true
}

// recordFailure persists a failed fetch outcome and moves the article
// to fetch_failed. Always returns false.
func (f *Fetcher) recordFailure(ctx context.Context, article *core.Article, content *core.Content, status core.FetchStatus, message string) bool {
	content.FetchStatus = status
	content.FetchError = message
	content.FetchedAt = time.Now().UTC()
	if err := f.store.UpsertContent(ctx, content); err != nil {
		f.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to persist fetch failure")
	}

	article.Status = core.StatusFetchFailed
	if err := f.store.UpdateArticle(ctx, article); err != nil {
		f.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to update article status")
	}

	f.log.Warn().Int64("article_id", article.ID).Str("fetch_status", string(status)).
		Str("error", message).Msg("fetch failed")
	return false
}

// metadata holds the fields extracted alongside the main text.
type metadata struct {
	Title  string
	Author string
	Date   string
}

// extract pulls the main text and metadata out of raw HTML, falling
// back to document-level tags when the readability pass yields nothing.
func extract(html, pageURL string) (string, metadata) {
	var meta metadata
	var text string

	parsedURL, _ := url.Parse(pageURL)
	if article, err := readability.FromReader(strings.NewReader(html), parsedURL); err == nil {
		text = strings.TrimSpace(article.TextContent)
		meta.Title = strings.TrimSpace(article.Title)
		meta.Author = strings.TrimSpace(article.Byline)
		if article.PublishedTime != nil {
			meta.Date = article.PublishedTime.Format("2006-01-02")
		}
	}

	if meta.Title == "" || meta.Author == "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			if meta.Title == "" {
				meta.Title = strings.TrimSpace(doc.Find("head title").First().Text())
			}
			if meta.Title == "" {
				if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
					meta.Title = strings.TrimSpace(og)
				}
			}
			if meta.Author == "" {
				if author, ok := doc.Find("meta[name='author']").Attr("content"); ok {
					meta.Author = strings.TrimSpace(author)
				}
			}
		}
	}

	return text, meta
}

// scanPaywall checks the raw HTML for known paywall phrases.
func scanPaywall(html string) bool {
	lower := strings.ToLower(html)
	for _, indicator := range paywallIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncateError(message string) string {
	if len(message) > maxErrorLength {
		return message[:maxErrorLength]
	}
	return message
}

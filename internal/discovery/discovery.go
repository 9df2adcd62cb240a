// Package discovery turns search-service citations into pending
// articles, deduplicated against everything already curated.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"curator/internal/core"
	"curator/internal/dedup"
	"curator/internal/logger"
	"curator/internal/search"
	"curator/internal/store"
)

// maxTitleLength bounds titles derived from URL paths.
const maxTitleLength = 200

// maxErrorLength bounds error messages stored on execution records.
const maxErrorLength = 500

// RunSummary aggregates one discovery sweep across all enabled jobs.
type RunSummary struct {
	JobsRun    int `json:"jobs_run"`
	TotalFound int `json:"total_found"`
	TotalNew   int `json:"total_new"`
}

// Connector runs search jobs and records their articles.
type Connector struct {
	store    *store.Store
	provider search.Provider
	log      zerolog.Logger
}

// NewConnector creates a discovery connector.
func NewConnector(st *store.Store, provider search.Provider) *Connector {
	return &Connector{
		store:    st,
		provider: provider,
		log:      logger.With("discovery"),
	}
}

// RunJob executes one search job, creating a pending article for every
// citation URL not already known. A search-service failure is recorded
// on the execution record; the returned error covers only job lookup
// and storage problems.
func (c *Connector) RunJob(ctx context.Context, jobID int64) (*core.SearchExecution, error) {
	job, err := c.store.GetSearchJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("search job %d not found", jobID)
	}

	execution := &core.SearchExecution{
		SearchJobID: job.ID,
		Status:      core.ExecutionRunning,
	}
	if err := c.store.CreateExecution(ctx, execution); err != nil {
		return nil, err
	}

	result, err := c.provider.Search(ctx, job.Query)
	if err != nil {
		execution.Status = core.ExecutionError
		execution.ErrorMessage = truncateError(err.Error())
		execution.FinishedAt = time.Now().UTC()
		if updateErr := c.store.UpdateExecution(ctx, execution); updateErr != nil {
			return nil, updateErr
		}
		c.log.Warn().Int64("job_id", job.ID).Str("error", execution.ErrorMessage).
			Msg("search job failed")
		return execution, nil
	}

	found, created := c.ingestCitations(ctx, result.Citations)

	execution.Status = core.ExecutionCompleted
	execution.ArticlesFound = found
	execution.ArticlesNew = created
	execution.FinishedAt = time.Now().UTC()
	if err := c.store.UpdateExecution(ctx, execution); err != nil {
		return nil, err
	}

	c.log.Info().Int64("job_id", job.ID).Str("job", job.Name).
		Int("found", found).Int("new", created).Msg("search job complete")
	return execution, nil
}

// RunAll sweeps every enabled job. One job's failure never stops the
// sweep.
func (c *Connector) RunAll(ctx context.Context) (RunSummary, error) {
	jobs, err := c.store.ListEnabledSearchJobs(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()[:8]
	var summary RunSummary
	for _, job := range jobs {
		execution, err := c.RunJob(ctx, job.ID)
		if err != nil {
			c.log.Error().Err(err).Int64("job_id", job.ID).Msg("search job aborted")
			continue
		}
		summary.JobsRun++
		summary.TotalFound += execution.ArticlesFound
		summary.TotalNew += execution.ArticlesNew
	}

	c.log.Info().Str("run_id", runID).Int("jobs_run", summary.JobsRun).
		Int("total_found", summary.TotalFound).Int("total_new", summary.TotalNew).
		Msg("discovery sweep complete")
	return summary, nil
}

// AddArticle registers a single URL by hand. When the canonical form is
// already known it returns the existing article with created=false.
func (c *Connector) AddArticle(ctx context.Context, rawURL, title string) (*core.Article, bool, error) {
	hash := dedup.Hash(rawURL)
	existing, err := c.store.GetArticleByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if title == "" {
		title = titleFromURL(rawURL)
	}
	article := &core.Article{
		URL:         rawURL,
		URLHash:     hash,
		Title:       title,
		Source:      sourceFromURL(rawURL),
		ContentType: "article",
		Status:      core.StatusPending,
	}
	if err := c.store.CreateArticle(ctx, article); err != nil {
		return nil, false, err
	}
	return article, true, nil
}

// ingestCitations creates pending articles for the citation URLs not
// already known. In-batch dedup is by the cleaned URL string, so two
// distinct spellings of the same page both count as found; the
// canonical-hash lookup then suppresses creating a second article.
// Returns the count of valid citations and the count created.
func (c *Connector) ingestCitations(ctx context.Context, citations []string) (found, created int) {
	seen := make(map[string]bool)
	for _, raw := range citations {
		cited := strings.TrimRight(strings.TrimSpace(raw), ".")
		if !strings.HasPrefix(cited, "http") {
			continue
		}
		if seen[cited] {
			continue
		}
		seen[cited] = true
		found++

		hash := dedup.Hash(cited)
		existing, err := c.store.GetArticleByHash(ctx, hash)
		if err != nil {
			c.log.Error().Err(err).Str("url", cited).Msg("dedup lookup failed")
			continue
		}
		if existing != nil {
			continue
		}

		article := &core.Article{
			URL:         cited,
			URLHash:     hash,
			Title:       titleFromURL(cited),
			Source:      sourceFromURL(cited),
			ContentType: "article",
			Status:      core.StatusPending,
		}
		if err := c.store.CreateArticle(ctx, article); err != nil {
			c.log.Error().Err(err).Str("url", cited).Msg("failed to create article")
			continue
		}
		created++
	}
	return found, created
}

// titleFromURL derives a readable placeholder title from the last URL
// path segment. Fetching replaces it with the extracted title later.
func titleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	segment := path.Base(strings.TrimRight(parsed.Path, "/"))
	if ext := path.Ext(segment); ext != "" {
		segment = strings.TrimSuffix(segment, ext)
	}
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
	segment = strings.Join(strings.Fields(segment), " ")
	if segment == "" || segment == "." || segment == "/" {
		return parsed.Hostname()
	}

	title := titleCase(segment)
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}

// sourceFromURL reduces a URL to its hostname without a www. prefix.
func sourceFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func truncateError(message string) string {
	if len(message) > maxErrorLength {
		return message[:maxErrorLength]
	}
	return message
}

// Package enrich runs model-based analysis over fetched articles:
// summary, key findings, tags, relevance, and content classification.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/store"
)

const truncationMarker = "[... truncated for length]"

const systemPrompt = "You are a research analyst who reads articles and produces structured " +
	"analysis: a concise summary, the key findings, topical tags, a relevance " +
	"score between 0 and 1, and a content type classification. Ground every " +
	"field in the provided material and never invent findings."

// tagCategories is the closed set of tag categories the model may use.
var tagCategories = map[string]bool{
	"topic":       true,
	"stance":      true,
	"methodology": true,
	"policy_area": true,
	"sector":      true,
	"urgency":     true,
}

// contentTypes is the closed set of article classifications.
var contentTypes = map[string]bool{
	"article":         true,
	"paper":           true,
	"report":          true,
	"blog_post":       true,
	"policy_document": true,
	"news":            true,
	"other":           true,
}

// enrichmentSchema constrains the model's JSON output.
var enrichmentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString},
		"key_findings": {
			Type:        genai.TypeString,
			Description: "Bulleted prose, one finding per line.",
		},
		"tags": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name": {Type: genai.TypeString},
					"category": {
						Type: genai.TypeString,
						Enum: []string{"topic", "stance", "methodology", "policy_area", "sector", "urgency"},
					},
					"confidence": {Type: genai.TypeNumber},
				},
				Required: []string{"name", "category", "confidence"},
			},
		},
		"relevance_score": {Type: genai.TypeNumber},
		"content_type": {
			Type: genai.TypeString,
			Enum: []string{"article", "paper", "report", "blog_post", "policy_document", "news", "other"},
		},
		"word_count": {Type: genai.TypeInteger},
	},
	Required: []string{"summary", "key_findings", "tags", "relevance_score", "content_type"},
}

// enrichment is the model's structured answer.
type enrichment struct {
	Summary        string  `json:"summary"`
	KeyFindings    string  `json:"key_findings"`
	Tags           []tag   `json:"tags"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentType    string  `json:"content_type"`
	WordCount      int     `json:"word_count"`
}

type tag struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// BatchStats summarizes one enrichment batch.
type BatchStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Engine enriches fetched articles through the structured LLM boundary.
type Engine struct {
	store           *store.Store
	caller          llm.StructuredCaller
	maxContentWords int
	batchSize       int
	log             zerolog.Logger
}

// NewEngine creates an enrichment engine.
func NewEngine(st *store.Store, caller llm.StructuredCaller, cfg config.Enrich) *Engine {
	maxWords := cfg.MaxContentWords
	if maxWords <= 0 {
		maxWords = 12000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Engine{
		store:           st,
		caller:          caller,
		maxContentWords: maxWords,
		batchSize:       batchSize,
		log:             logger.With("enrich"),
	}
}

// EnrichOne enriches a single article by ID. Model failures move the
// article to error and return false without an error; the error is
// non-nil only for lookup and storage problems, or when the article is
// not in an enrichable state.
func (e *Engine) EnrichOne(ctx context.Context, articleID int64) (bool, error) {
	article, err := e.store.GetArticle(ctx, articleID)
	if err != nil {
		return false, err
	}
	if article == nil {
		return false, fmt.Errorf("article %d not found", articleID)
	}
	if !article.Status.Enrichable() {
		return false, fmt.Errorf("article %d is %s, not enrichable", articleID, article.Status)
	}
	return e.enrichArticle(ctx, article), nil
}

// EnrichPending enriches the oldest enrichable articles up to batchSize
// (0 means the configured default). One article's failure never aborts
// the batch.
func (e *Engine) EnrichPending(ctx context.Context, batchSize int) (BatchStats, error) {
	if batchSize <= 0 {
		batchSize = e.batchSize
	}
	articles, err := e.store.ListEnrichable(ctx, batchSize)
	if err != nil {
		return BatchStats{}, fmt.Errorf("failed to select enrichable articles: %w", err)
	}

	runID := uuid.NewString()[:8]
	stats := BatchStats{Total: len(articles)}
	for i := range articles {
		if e.enrichArticle(ctx, &articles[i]) {
			stats.Success++
		} else {
			stats.Failed++
		}
	}

	e.log.Info().Str("run_id", runID).Int("total", stats.Total).
		Int("success", stats.Success).Int("failed", stats.Failed).
		Msg("enrichment batch complete")
	return stats, nil
}

// enrichArticle runs one model call and persists the analysis. On any
// model failure the article moves to error with its prior fields
// untouched, so a later retry starts clean.
func (e *Engine) enrichArticle(ctx context.Context, article *core.Article) bool {
	content, err := e.store.GetContent(ctx, article.ID)
	if err != nil {
		e.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to load content")
		return false
	}

	userPrompt, fullText := e.buildPrompt(article, content)

	var result enrichment
	if err := e.caller.CallStructured(ctx, systemPrompt, userPrompt, enrichmentSchema, &result); err != nil {
		article.Status = core.StatusError
		if updateErr := e.store.UpdateArticle(ctx, article); updateErr != nil {
			e.log.Error().Err(updateErr).Int64("article_id", article.ID).Msg("failed to mark article errored")
		}
		e.log.Warn().Err(err).Int64("article_id", article.ID).Msg("enrichment failed")
		return false
	}

	e.apply(article, content, &result, fullText)
	if err := e.store.UpdateArticle(ctx, article); err != nil {
		e.log.Error().Err(err).Int64("article_id", article.ID).Msg("failed to persist enrichment")
		return false
	}
	e.persistTags(ctx, article.ID, result.Tags)

	e.log.Info().Int64("article_id", article.ID).Float64("relevance", article.Relevance()).
		Str("content_type", article.ContentType).Int("tags", len(result.Tags)).
		Msg("enriched article")
	return true
}

// buildPrompt selects the full-text prompt when usable content exists,
// the metadata-only prompt otherwise. Returns the prompt and whether
// full text backed it.
func (e *Engine) buildPrompt(article *core.Article, content *core.Content) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nSource: %s\nURL: %s\n", article.Title, article.Source, article.URL)
	if article.PublishedDate != "" {
		fmt.Fprintf(&b, "Published: %s\n", article.PublishedDate)
	}

	if content.HasUsableText() {
		b.WriteString("\nFull text:\n\n")
		b.WriteString(e.truncate(content.FullText))
		return b.String(), true
	}

	b.WriteString("\nThe article text could not be retrieved. Analyze from the metadata " +
		"above only, and keep the relevance score conservative.")
	return b.String(), false
}

// truncate caps the prompt text at the configured word budget.
func (e *Engine) truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= e.maxContentWords {
		return text
	}
	return strings.Join(words[:e.maxContentWords], " ") + "\n\n" + truncationMarker
}

// apply writes the model's analysis onto the article. The extracted
// word count always wins over the model's estimate when content exists.
func (e *Engine) apply(article *core.Article, content *core.Content, result *enrichment, hadFullText bool) {
	article.Summary = result.Summary
	article.KeyFindings = result.KeyFindings

	score := result.RelevanceScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	article.RelevanceScore = &score

	if contentTypes[result.ContentType] {
		article.ContentType = result.ContentType
	}

	wordCount := article.WordCount
	if hadFullText && content.WordCount > 0 {
		wordCount = content.WordCount
	} else if wordCount == 0 && result.WordCount > 0 {
		wordCount = result.WordCount
	}
	if wordCount > 0 {
		article.WordCount = wordCount
		article.ReadingTime = core.EstimateReadingTime(wordCount)
	}

	article.Status = core.StatusEnriched
}

// persistTags materializes the model's tags, creating each (name,
// category) pair once and linking it to the article. Tag failures are
// logged, not fatal: the enrichment itself already succeeded.
func (e *Engine) persistTags(ctx context.Context, articleID int64, tags []tag) {
	for _, t := range tags {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			continue
		}
		category := t.Category
		if !tagCategories[category] {
			category = "topic"
		}

		stored, err := e.store.GetOrCreateTag(ctx, name, category)
		if err != nil {
			e.log.Warn().Err(err).Str("tag", name).Msg("failed to create tag")
			continue
		}
		if err := e.store.LinkArticleTag(ctx, articleID, stored.ID, t.Confidence); err != nil {
			e.log.Warn().Err(err).Str("tag", name).Msg("failed to link tag")
		}
	}
}

// Package interrogate answers natural-language questions about the
// curated collection in three phases: plan the retrieval, retrieve and
// budget the articles, then synthesize a reading list.
package interrogate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"curator/internal/core"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/render"
	"curator/internal/store"
)

const (
	// fallbackTitle is the uniform response title for any phase failure.
	fallbackTitle = "Query could not be processed"

	// searchResultsPerTerm bounds the FTS lookup per planned term.
	searchResultsPerTerm = 50

	defaultTimeBudget  = 5
	defaultMaxArticles = 10
)

const planSystemPrompt = "You translate a reader's question about their article collection into a " +
	"retrieval plan: full-text search terms, tag and content-type filters, a " +
	"reading time budget in minutes, a result cap, and a sort preference. " +
	"Prefer a handful of precise search terms over many vague ones."

const synthesisSystemPrompt = "You are a librarian assembling a reading list that answers the reader's " +
	"question from the retrieved articles. Group them into labeled sections in " +
	"a sensible reading order, add a short note per article saying why it " +
	"earned its place, and close with discussion prompts. Cite articles only " +
	"by the numeric IDs provided."

// planSchema constrains the retrieval plan.
var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"search_terms": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"tag_filters": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"content_types": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"time_budget_minutes": {Type: genai.TypeInteger},
		"max_articles":        {Type: genai.TypeInteger},
		"sort_by": {
			Type: genai.TypeString,
			Enum: []string{"relevance", "date", "reading_time"},
		},
		"require_contrasting": {Type: genai.TypeBoolean},
	},
	Required: []string{"search_terms", "sort_by"},
}

// synthesisSchema constrains the reading-list answer.
var synthesisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"description": {Type: genai.TypeString},
		"sections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label": {Type: genai.TypeString},
					"article_ids": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeInteger},
					},
					"notes": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
				},
				Required: []string{"label", "article_ids"},
			},
		},
		"discussion_prompts": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"total_reading_time": {Type: genai.TypeInteger},
	},
	Required: []string{"title", "description", "sections", "discussion_prompts", "total_reading_time"},
}

// queryPlan is the model's retrieval plan. RequireContrasting is
// accepted so the schema stays stable, but no retrieval behavior hangs
// off it yet.
type queryPlan struct {
	SearchTerms        []string `json:"search_terms"`
	TagFilters         []string `json:"tag_filters"`
	ContentTypes       []string `json:"content_types"`
	TimeBudgetMinutes  int      `json:"time_budget_minutes"`
	MaxArticles        int      `json:"max_articles"`
	SortBy             string   `json:"sort_by"`
	RequireContrasting bool     `json:"require_contrasting"`
}

// listAnswer is the model's synthesized reading list.
type listAnswer struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Sections          []answerSection `json:"sections"`
	DiscussionPrompts []string        `json:"discussion_prompts"`
	TotalReadingTime  int             `json:"total_reading_time"`
}

type answerSection struct {
	Label      string   `json:"label"`
	ArticleIDs []int64  `json:"article_ids"`
	Notes      []string `json:"notes"`
}

// Response is the uniform answer shape. Failed queries carry the
// failure reason in Description with everything else empty.
type Response struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Sections          []ResponseSection `json:"sections"`
	DiscussionPrompts []string          `json:"discussion_prompts"`
	TotalReadingTime  int               `json:"total_reading_time"`
	ReadingListID     *int64            `json:"reading_list_id,omitempty"`
	Markdown          string            `json:"-"`
}

// ResponseSection is one labeled group of recommended articles.
type ResponseSection struct {
	Label    string         `json:"label"`
	Articles []core.Article `json:"articles"`
	Notes    []string       `json:"notes"`
}

// Pipeline runs interrogation queries.
type Pipeline struct {
	store  *store.Store
	caller llm.StructuredCaller
	log    zerolog.Logger
}

// NewPipeline creates an interrogation pipeline.
func NewPipeline(st *store.Store, caller llm.StructuredCaller) *Pipeline {
	return &Pipeline{
		store:  st,
		caller: caller,
		log:    logger.With("interrogate"),
	}
}

// Ask answers one question over the collection. The optional userID is
// recorded as the reading list's creator and on the audit record. Every
// query, including failed ones, leaves an audit record; the returned
// error covers only storage problems.
func (p *Pipeline) Ask(ctx context.Context, query string, userID *int64) (*Response, error) {
	plan, err := p.plan(ctx, query)
	if err != nil {
		return p.fallback(ctx, query, userID, "", fmt.Sprintf("Query planning failed: %v", err))
	}
	planJSON, _ := json.Marshal(plan)

	articles := p.retrieve(ctx, plan)
	if len(articles) == 0 {
		return p.fallback(ctx, query, userID, string(planJSON), "No matching articles were found in the collection.")
	}

	answer, err := p.synthesize(ctx, query, articles)
	if err != nil {
		return p.fallback(ctx, query, userID, string(planJSON), fmt.Sprintf("Answer synthesis failed: %v", err))
	}

	return p.persist(ctx, query, userID, string(planJSON), articles, answer)
}

// plan asks the model for a retrieval plan and applies defaults.
func (p *Pipeline) plan(ctx context.Context, query string) (*queryPlan, error) {
	var plan queryPlan
	prompt := fmt.Sprintf("Reader's question: %s", query)
	if err := p.caller.CallStructured(ctx, planSystemPrompt, prompt, planSchema, &plan); err != nil {
		return nil, err
	}
	if plan.MaxArticles <= 0 {
		plan.MaxArticles = defaultMaxArticles
	}
	if plan.SortBy == "" {
		plan.SortBy = "relevance"
	}
	return &plan, nil
}

// retrieve unions the FTS hits for every planned term, falls back to
// the top enriched articles when nothing matches, applies the plan's
// filters and sort, then greedily fills the time budget.
func (p *Pipeline) retrieve(ctx context.Context, plan *queryPlan) []core.Article {
	seen := make(map[int64]bool)
	var ids []int64
	for _, term := range plan.SearchTerms {
		hits, err := p.store.SearchArticleIDs(ctx, term, searchResultsPerTerm)
		if err != nil {
			p.log.Warn().Err(err).Str("term", term).Msg("search term failed")
			continue
		}
		for _, id := range hits {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		fallbackIDs, err := p.store.TopEnrichedIDs(ctx, searchResultsPerTerm)
		if err != nil {
			p.log.Warn().Err(err).Msg("retrieval fallback failed")
			return nil
		}
		ids = fallbackIDs
	}

	articles, err := p.store.ListArticlesByIDs(ctx, ids, plan.TagFilters, plan.ContentTypes)
	if err != nil {
		p.log.Warn().Err(err).Msg("retrieval load failed")
		return nil
	}

	sortArticles(articles, plan.SortBy)
	return budget(articles, plan.TimeBudgetMinutes, plan.MaxArticles)
}

// sortArticles orders candidates per the plan's preference.
func sortArticles(articles []core.Article, sortBy string) {
	switch sortBy {
	case "date":
		sort.SliceStable(articles, func(i, j int) bool {
			return articles[i].PublishedDate > articles[j].PublishedDate
		})
	case "reading_time":
		sort.SliceStable(articles, func(i, j int) bool {
			return readingTime(articles[i]) < readingTime(articles[j])
		})
	default:
		sort.SliceStable(articles, func(i, j int) bool {
			return articles[i].Relevance() > articles[j].Relevance()
		})
	}
}

// budget greedily selects articles that fit the remaining reading time,
// stopping at the article cap. A plan without a positive time budget
// applies only the cap. Articles with no known reading time are assumed
// to cost the default budget's worth.
func budget(articles []core.Article, timeBudget, maxArticles int) []core.Article {
	var selected []core.Article
	remaining := timeBudget
	for _, a := range articles {
		if len(selected) >= maxArticles {
			break
		}
		if timeBudget > 0 {
			cost := readingTime(a)
			if cost > remaining {
				continue
			}
			remaining -= cost
		}
		selected = append(selected, a)
	}
	return selected
}

func readingTime(a core.Article) int {
	if a.ReadingTime <= 0 {
		return defaultTimeBudget
	}
	return a.ReadingTime
}

// synthesize asks the model to assemble the reading list from the
// budgeted articles.
func (p *Pipeline) synthesize(ctx context.Context, query string, articles []core.Article) (*listAnswer, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Reader's question: %s\n\nRetrieved articles (%d):\n", query, len(articles))
	for _, a := range articles {
		fmt.Fprintf(&b, "\n[%d] %s\nSource: %s | Type: %s | Relevance: %.2f | Reading time: %d min\n",
			a.ID, a.Title, a.Source, a.ContentType, a.Relevance(), a.ReadingTime)
		if a.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
		}
	}

	var answer listAnswer
	if err := p.caller.CallStructured(ctx, synthesisSystemPrompt, b.String(), synthesisSchema, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// persist stores the reading list, its items, and the audit record,
// then assembles the response with its markdown export.
func (p *Pipeline) persist(ctx context.Context, query string, userID *int64, planJSON string, articles []core.Article, answer *listAnswer) (*Response, error) {
	known := make(map[int64]core.Article, len(articles))
	for _, a := range articles {
		known[a.ID] = a
	}

	list := &core.ReadingList{
		Title:             answer.Title,
		Description:       answer.Description,
		Query:             query,
		DiscussionPrompts: strings.Join(answer.DiscussionPrompts, "\n"),
		TotalReadingTime:  answer.TotalReadingTime,
		CreatedBy:         userID,
	}
	if err := p.store.CreateReadingList(ctx, list); err != nil {
		return nil, err
	}

	response := &Response{
		Title:             answer.Title,
		Description:       answer.Description,
		DiscussionPrompts: answer.DiscussionPrompts,
		TotalReadingTime:  answer.TotalReadingTime,
		ReadingListID:     &list.ID,
	}
	view := &render.ReadingListView{List: list}

	for _, sec := range answer.Sections {
		respSection := ResponseSection{Label: sec.Label}
		renderSection := render.ReadingSection{Label: sec.Label}
		position := 0
		for i, id := range sec.ArticleIDs {
			article, ok := known[id]
			if !ok {
				p.log.Warn().Int64("article_id", id).Msg("dropping recommendation of unknown article")
				continue
			}
			note := ""
			if i < len(sec.Notes) {
				note = sec.Notes[i]
			}
			item := &core.ReadingListItem{
				ReadingListID: list.ID,
				ArticleID:     id,
				Section:       sec.Label,
				Position:      position,
				Notes:         note,
			}
			if err := p.store.AddReadingListItem(ctx, item); err != nil {
				return nil, err
			}
			position++
			respSection.Articles = append(respSection.Articles, article)
			respSection.Notes = append(respSection.Notes, note)
			renderSection.Items = append(renderSection.Items, render.ReadingItem{Article: article, Notes: note})
		}
		if position > 0 {
			response.Sections = append(response.Sections, respSection)
			view.Sections = append(view.Sections, renderSection)
		}
	}

	resultJSON, _ := json.Marshal(answer)
	entry := &core.InterrogationLog{
		UserID:        userID,
		Query:         query,
		QueryPlan:     planJSON,
		Result:        string(resultJSON),
		ReadingListID: &list.ID,
	}
	if err := p.store.AddInterrogationLog(ctx, entry); err != nil {
		return nil, err
	}

	response.Markdown = render.ReadingList(view)
	p.log.Info().Int64("reading_list_id", list.ID).Int("sections", len(response.Sections)).
		Int("total_minutes", answer.TotalReadingTime).Msg("interrogation complete")
	return response, nil
}

// fallback audits a failed query and returns the uniform failure shape.
func (p *Pipeline) fallback(ctx context.Context, query string, userID *int64, planJSON, reason string) (*Response, error) {
	entry := &core.InterrogationLog{
		UserID:    userID,
		Query:     query,
		QueryPlan: planJSON,
		Result:    reason,
	}
	if err := p.store.AddInterrogationLog(ctx, entry); err != nil {
		return nil, err
	}

	p.log.Warn().Str("query", query).Str("reason", reason).Msg("interrogation fell back")
	return &Response{
		Title:             fallbackTitle,
		Description:       reason,
		Sections:          []ResponseSection{},
		DiscussionPrompts: []string{},
	}, nil
}

// Package digest synthesizes multi-article briefings: one structured
// model call over the period's enriched articles, persisted as sections
// with citations and rendered to markdown.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/render"
	"curator/internal/store"
)

const noArticlesMessage = "No enriched articles found for this period."

const systemPrompt = "You are an editor producing a briefing from analyzed articles. Group the " +
	"articles into coherent thematic sections, write an executive summary and a " +
	"trend analysis across the whole set, and propose discussion questions and " +
	"action items. Cite articles only by the numeric IDs provided; never invent " +
	"IDs or facts beyond the supplied analyses."

// synthesisSchema constrains the model's digest output.
var synthesisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":             {Type: genai.TypeString},
		"executive_summary": {Type: genai.TypeString},
		"sections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":     {Type: genai.TypeString},
					"narrative": {Type: genai.TypeString},
					"articles": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"article_id": {Type: genai.TypeInteger},
								"highlight":  {Type: genai.TypeString},
							},
							Required: []string{"article_id"},
						},
					},
				},
				Required: []string{"title", "narrative", "articles"},
			},
		},
		"trend_analysis": {Type: genai.TypeString},
		"discussion_questions": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"action_items": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"title", "executive_summary", "sections", "trend_analysis", "discussion_questions", "action_items"},
}

// synthesis is the model's structured answer.
type synthesis struct {
	Title               string         `json:"title"`
	ExecutiveSummary    string         `json:"executive_summary"`
	Sections            []synthSection `json:"sections"`
	TrendAnalysis       string         `json:"trend_analysis"`
	DiscussionQuestions []string       `json:"discussion_questions"`
	ActionItems         []string       `json:"action_items"`
}

type synthSection struct {
	Title     string          `json:"title"`
	Narrative string          `json:"narrative"`
	Articles  []synthCitation `json:"articles"`
}

type synthCitation struct {
	ArticleID int64  `json:"article_id"`
	Highlight string `json:"highlight"`
}

// Synthesizer generates digests over a time period.
type Synthesizer struct {
	store       *store.Store
	caller      llm.StructuredCaller
	maxArticles int
	outputDir   string
	log         zerolog.Logger
}

// NewSynthesizer creates a digest synthesizer.
func NewSynthesizer(st *store.Store, caller llm.StructuredCaller, cfg config.Digest) *Synthesizer {
	maxArticles := cfg.MaxArticles
	if maxArticles <= 0 {
		maxArticles = 50
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "digests"
	}
	return &Synthesizer{
		store:       st,
		caller:      caller,
		maxArticles: maxArticles,
		outputDir:   outputDir,
		log:         logger.With("digest"),
	}
}

// GenerateWeekly generates a digest over the trailing seven days.
func (s *Synthesizer) GenerateWeekly(ctx context.Context) (*core.Digest, error) {
	end := time.Now().UTC()
	return s.Generate(ctx, end.AddDate(0, 0, -7), end, "weekly")
}

// Generate synthesizes a digest for [start, end]. The digest row is
// created in the generating state before any model work, so a crash
// leaves an inspectable record. Synthesis failures are recorded on the
// digest, not returned as errors.
func (s *Synthesizer) Generate(ctx context.Context, start, end time.Time, digestType string) (*core.Digest, error) {
	digest := &core.Digest{
		Title: fmt.Sprintf("Digest: %s to %s",
			start.Format("2006-01-02"), end.Format("2006-01-02")),
		DigestType:  digestType,
		Status:      core.DigestGenerating,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if digestType == "weekly" {
		digest.Title = fmt.Sprintf("Weekly Digest: %s to %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if err := s.store.CreateDigest(ctx, digest); err != nil {
		return nil, err
	}

	articles, err := s.store.ListEnrichedBetween(ctx, start, end, s.maxArticles)
	if err != nil {
		return nil, s.fail(ctx, digest, err.Error())
	}
	if len(articles) == 0 {
		if err := s.fail(ctx, digest, noArticlesMessage); err != nil {
			return nil, err
		}
		s.log.Warn().Int64("digest_id", digest.ID).Msg("no articles for digest period")
		return digest, nil
	}

	var result synthesis
	if err := s.caller.CallStructured(ctx, systemPrompt, s.buildPrompt(articles), synthesisSchema, &result); err != nil {
		if failErr := s.fail(ctx, digest, fmt.Sprintf("Synthesis failed: %v", err)); failErr != nil {
			return nil, failErr
		}
		s.log.Warn().Err(err).Int64("digest_id", digest.ID).Msg("digest synthesis failed")
		return digest, nil
	}

	view, err := s.persist(ctx, digest, articles, &result)
	if err != nil {
		return nil, err
	}

	digest.FullMarkdown = render.Digest(view)
	digest.Status = core.DigestCompleted
	if err := s.store.UpdateDigest(ctx, digest); err != nil {
		return nil, err
	}

	name := render.Filename(end.Format("2006-01-02"), digest.Title)
	if path, err := render.WriteFile(s.outputDir, name, digest.FullMarkdown); err != nil {
		s.log.Warn().Err(err).Msg("failed to export digest file")
	} else {
		s.log.Info().Str("path", path).Msg("exported digest")
	}

	s.log.Info().Int64("digest_id", digest.ID).Int("articles", digest.ArticleCount).
		Int("sections", len(view.Sections)).Msg("digest complete")
	return digest, nil
}

// fail marks the digest errored with a reason in its summary field.
func (s *Synthesizer) fail(ctx context.Context, digest *core.Digest, reason string) error {
	digest.Status = core.DigestError
	digest.ExecutiveSummary = reason
	return s.store.UpdateDigest(ctx, digest)
}

// buildPrompt lays out one analysis block per article, identified by
// the numeric ID the model must cite.
func (s *Synthesizer) buildPrompt(articles []core.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Articles analyzed this period (%d):\n", len(articles))
	for _, a := range articles {
		fmt.Fprintf(&b, "\n[%d] %s\nSource: %s | Type: %s | Relevance: %.2f\n",
			a.ID, a.Title, a.Source, a.ContentType, a.Relevance())
		if a.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
		}
		if a.KeyFindings != "" {
			fmt.Fprintf(&b, "Key findings: %s\n", a.KeyFindings)
		}
	}
	return b.String()
}

// persist stores the synthesized sections plus the two generated
// closing sections, dropping citations of IDs outside the gathered set.
func (s *Synthesizer) persist(ctx context.Context, digest *core.Digest, articles []core.Article, result *synthesis) (*render.DigestView, error) {
	known := make(map[int64]core.Article, len(articles))
	for _, a := range articles {
		known[a.ID] = a
	}

	// The model's title replaces the period-derived placeholder.
	if result.Title != "" {
		digest.Title = result.Title
	}
	digest.ExecutiveSummary = result.ExecutiveSummary
	digest.TrendAnalysis = result.TrendAnalysis
	digest.ArticleCount = len(articles)

	view := &render.DigestView{Digest: digest}
	position := 0
	for _, sec := range result.Sections {
		section := core.DigestSection{
			DigestID:    digest.ID,
			Title:       sec.Title,
			SectionType: "theme",
			Markdown:    sec.Narrative,
			Position:    position,
		}
		if err := s.store.AddDigestSection(ctx, &section); err != nil {
			return nil, err
		}
		position++

		secView := render.SectionView{Section: section}
		for i, citation := range sec.Articles {
			article, ok := known[citation.ArticleID]
			if !ok {
				s.log.Warn().Int64("digest_id", digest.ID).Int64("article_id", citation.ArticleID).
					Msg("dropping citation of unknown article")
				continue
			}
			link := core.DigestArticle{
				SectionID:     section.ID,
				ArticleID:     citation.ArticleID,
				HighlightNote: citation.Highlight,
				Position:      i,
			}
			if err := s.store.AddDigestArticle(ctx, &link); err != nil {
				return nil, err
			}
			secView.Articles = append(secView.Articles, render.ArticleRef{
				Article:       article,
				HighlightNote: citation.Highlight,
			})
		}
		view.Sections = append(view.Sections, secView)
	}

	for _, closing := range []struct {
		title string
		items []string
		style func(int, string) string
	}{
		{"Discussion Questions", result.DiscussionQuestions, func(i int, item string) string {
			return fmt.Sprintf("%d. %s", i+1, item)
		}},
		{"Suggested Action Items", result.ActionItems, func(_ int, item string) string {
			return "- " + item
		}},
	} {
		if len(closing.items) == 0 {
			continue
		}
		lines := make([]string, 0, len(closing.items))
		for i, item := range closing.items {
			lines = append(lines, closing.style(i, item))
		}
		section := core.DigestSection{
			DigestID:    digest.ID,
			Title:       closing.title,
			SectionType: "recommendation",
			Markdown:    strings.Join(lines, "\n"),
			Position:    position,
		}
		if err := s.store.AddDigestSection(ctx, &section); err != nil {
			return nil, err
		}
		position++
		view.Sections = append(view.Sections, render.SectionView{Section: section})
	}

	return view, nil
}

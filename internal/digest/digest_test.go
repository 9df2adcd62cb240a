package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/dedup"
	"curator/internal/llm"
	"curator/internal/store"
)

func newTestSynthesizer(t *testing.T, caller llm.StructuredCaller) (*Synthesizer, *store.Store, string) {
	t.Helper()
	s, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	outputDir := filepath.Join(t.TempDir(), "digests")
	syn := NewSynthesizer(s, caller, config.Digest{MaxArticles: 50, OutputDir: outputDir})
	return syn, s, outputDir
}

func createEnriched(t *testing.T, s *store.Store, url, title string, relevance float64) *core.Article {
	t.Helper()
	a := &core.Article{
		URL:            url,
		URLHash:        dedup.Hash(url),
		Title:          title,
		Source:         "example.com",
		ContentType:    "article",
		Summary:        "Summary of " + title,
		KeyFindings:    "- finding one",
		RelevanceScore: &relevance,
		Status:         core.StatusEnriched,
	}
	if err := s.CreateArticle(context.Background(), a); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}
	return a
}

func period() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-time.Hour), now.Add(time.Hour)
}

func TestGenerate_Success(t *testing.T) {
	var first, second *core.Article

	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		return fmt.Sprintf(`{
			"title": "Capacity Week",
			"executive_summary": "Two stories dominated.",
			"sections": [{
				"title": "Infrastructure",
				"narrative": "Both pieces examine capacity planning.",
				"articles": [
					{"article_id": %d, "highlight": "the capacity numbers"},
					{"article_id": %d, "highlight": ""},
					{"article_id": 99999, "highlight": "hallucinated"}
				]
			}],
			"trend_analysis": "Capacity is the story of the quarter.",
			"discussion_questions": ["How much headroom is enough?"],
			"action_items": ["Review the capacity dashboard"]
		}`, first.ID, second.ID), nil
	}}

	syn, s, outputDir := newTestSynthesizer(t, caller)
	ctx := context.Background()
	first = createEnriched(t, s, "https://example.com/one", "Capacity Planning", 0.9)
	second = createEnriched(t, s, "https://example.com/two", "Datacenter Buildout", 0.7)

	start, end := period()
	digest, err := syn.Generate(ctx, start, end, "custom")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if digest.Status != core.DigestCompleted {
		t.Fatalf("status = %s, want completed", digest.Status)
	}
	if digest.ArticleCount != 2 {
		t.Errorf("article count = %d, want 2", digest.ArticleCount)
	}
	if digest.ExecutiveSummary != "Two stories dominated." {
		t.Errorf("executive summary = %q", digest.ExecutiveSummary)
	}
	// The model's title replaces the period placeholder, on the returned
	// digest and in the store.
	if digest.Title != "Capacity Week" {
		t.Errorf("title = %q, want Capacity Week", digest.Title)
	}
	stored, err := s.GetDigest(ctx, digest.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetDigest = %v, %v", stored, err)
	}
	if stored.Title != "Capacity Week" {
		t.Errorf("persisted title = %q, want Capacity Week", stored.Title)
	}

	sections, err := s.ListDigestSections(ctx, digest.ID)
	if err != nil {
		t.Fatalf("ListDigestSections failed: %v", err)
	}
	// One theme plus the two generated closing sections, in order.
	if len(sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(sections))
	}
	if sections[0].Title != "Infrastructure" || sections[0].SectionType != "theme" {
		t.Errorf("section[0] = %q/%s", sections[0].Title, sections[0].SectionType)
	}
	if sections[1].Title != "Discussion Questions" || sections[2].Title != "Suggested Action Items" {
		t.Errorf("closing sections = %q, %q", sections[1].Title, sections[2].Title)
	}
	if !strings.HasPrefix(sections[1].Markdown, "1. ") {
		t.Errorf("discussion questions not numbered: %q", sections[1].Markdown)
	}
	if !strings.HasPrefix(sections[2].Markdown, "- ") {
		t.Errorf("action items not bulleted: %q", sections[2].Markdown)
	}

	// The hallucinated citation was dropped.
	links, err := s.ListSectionArticles(ctx, sections[0].ID)
	if err != nil {
		t.Fatalf("ListSectionArticles failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("citations = %d, want 2", len(links))
	}
	if links[0].HighlightNote != "the capacity numbers" {
		t.Errorf("highlight = %q", links[0].HighlightNote)
	}

	if !strings.Contains(digest.FullMarkdown, "[Capacity Planning](https://example.com/one)") {
		t.Error("markdown missing cited article link")
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("exported files = %v, %v", entries, err)
	}
	if !strings.HasSuffix(entries[0].Name(), ".md") {
		t.Errorf("export name = %q", entries[0].Name())
	}
}

func TestGenerate_EmptyPeriod(t *testing.T) {
	syn, s, _ := newTestSynthesizer(t, &llm.MockCaller{})
	ctx := context.Background()

	start, end := period()
	digest, err := syn.Generate(ctx, start, end, "custom")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if digest.Status != core.DigestError {
		t.Fatalf("status = %s, want error", digest.Status)
	}
	if digest.ExecutiveSummary != noArticlesMessage {
		t.Errorf("reason = %q", digest.ExecutiveSummary)
	}

	stored, _ := s.GetDigest(ctx, digest.ID)
	if stored == nil || stored.Status != core.DigestError {
		t.Error("errored digest should persist for inspection")
	}
}

func TestGenerate_ModelFailure(t *testing.T) {
	syn, s, _ := newTestSynthesizer(t, &llm.MockCaller{}) // nil Reply: unavailable
	ctx := context.Background()
	createEnriched(t, s, "https://example.com/solo", "Solo Article", 0.5)

	start, end := period()
	digest, err := syn.Generate(ctx, start, end, "custom")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if digest.Status != core.DigestError {
		t.Fatalf("status = %s, want error", digest.Status)
	}
	if !strings.Contains(digest.ExecutiveSummary, "Synthesis failed") {
		t.Errorf("reason = %q", digest.ExecutiveSummary)
	}

	sections, _ := s.ListDigestSections(ctx, digest.ID)
	if len(sections) != 0 {
		t.Error("failed digest should carry no sections")
	}
}

func TestGenerate_CapsArticles(t *testing.T) {
	var sawPrompt string
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		sawPrompt = user
		return `{"executive_summary": "s", "sections": [], "trend_analysis": "t",
			"discussion_questions": [], "action_items": []}`, nil
	}}
	syn, s, _ := newTestSynthesizer(t, caller)
	syn.maxArticles = 2
	ctx := context.Background()

	createEnriched(t, s, "https://example.com/low", "Low Relevance", 0.2)
	createEnriched(t, s, "https://example.com/high", "High Relevance", 0.9)
	createEnriched(t, s, "https://example.com/mid", "Mid Relevance", 0.5)

	start, end := period()
	digest, err := syn.Generate(ctx, start, end, "custom")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if digest.ArticleCount != 2 {
		t.Errorf("article count = %d, want 2", digest.ArticleCount)
	}
	if !strings.Contains(sawPrompt, "High Relevance") || !strings.Contains(sawPrompt, "Mid Relevance") {
		t.Error("prompt should carry the two most relevant articles")
	}
	if strings.Contains(sawPrompt, "Low Relevance") {
		t.Error("prompt should omit articles beyond the cap")
	}
}

func TestGenerateWeekly_Title(t *testing.T) {
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		return `{"executive_summary": "s", "sections": [], "trend_analysis": "t",
			"discussion_questions": [], "action_items": []}`, nil
	}}
	syn, s, _ := newTestSynthesizer(t, caller)
	createEnriched(t, s, "https://example.com/wk", "Weekly Item", 0.6)

	digest, err := syn.GenerateWeekly(context.Background())
	if err != nil {
		t.Fatalf("GenerateWeekly failed: %v", err)
	}
	if !strings.HasPrefix(digest.Title, "Weekly Digest: ") {
		t.Errorf("title = %q", digest.Title)
	}
	if digest.DigestType != "weekly" {
		t.Errorf("digest type = %s", digest.DigestType)
	}
}

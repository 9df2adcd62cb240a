package enrich

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/dedup"
	"curator/internal/llm"
	"curator/internal/store"
)

func newTestEngine(t *testing.T, caller llm.StructuredCaller) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewEngine(s, caller, config.Enrich{BatchSize: 10, MaxContentWords: 12000}), s
}

func createFetched(t *testing.T, s *store.Store, url, text string) *core.Article {
	t.Helper()
	ctx := context.Background()
	a := &core.Article{
		URL:         url,
		URLHash:     dedup.Hash(url),
		Title:       "Fetched article",
		Source:      "example.com",
		ContentType: "article",
		Status:      core.StatusFetched,
	}
	if err := s.CreateArticle(ctx, a); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}
	content := &core.Content{
		ArticleID:   a.ID,
		FullText:    text,
		FetchStatus: core.FetchSuccess,
		WordCount:   len(strings.Fields(text)),
	}
	if err := s.UpsertContent(ctx, content); err != nil {
		t.Fatalf("UpsertContent failed: %v", err)
	}
	return a
}

func goodReply() string {
	return `{
		"summary": "A careful look at consensus protocols in practice.",
		"key_findings": "- Raft dominates new systems\n- Paxos remains in legacy cores",
		"tags": [
			{"name": "Consensus", "category": "topic", "confidence": 0.9},
			{"name": "empirical survey", "category": "methodology", "confidence": 0.8}
		],
		"relevance_score": 0.85,
		"content_type": "paper",
		"word_count": 4200
	}`
}

func TestEnrichOne_FullText(t *testing.T) {
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		if !strings.Contains(user, "Full text:") {
			return "", fmt.Errorf("expected full-text prompt, got: %s", user)
		}
		return goodReply(), nil
	}}
	e, s := newTestEngine(t, caller)
	ctx := context.Background()

	text := strings.Repeat("consensus protocols in distributed systems ", 100)
	a := createFetched(t, s, "https://example.com/consensus", text)

	ok, err := e.EnrichOne(ctx, a.ID)
	if err != nil {
		t.Fatalf("EnrichOne failed: %v", err)
	}
	if !ok {
		t.Fatal("EnrichOne = false, want true")
	}

	updated, _ := s.GetArticle(ctx, a.ID)
	if updated.Status != core.StatusEnriched {
		t.Fatalf("status = %s, want enriched", updated.Status)
	}
	if updated.Summary == "" || updated.Relevance() != 0.85 {
		t.Errorf("summary/relevance not applied: %q %.2f", updated.Summary, updated.Relevance())
	}
	if updated.ContentType != "paper" {
		t.Errorf("content_type = %s, want paper", updated.ContentType)
	}

	// Extracted word count wins over the model's estimate.
	if updated.WordCount != 500 {
		t.Errorf("word count = %d, want 500 from extracted text", updated.WordCount)
	}
	if updated.ReadingTime != core.EstimateReadingTime(500) {
		t.Errorf("reading time = %d", updated.ReadingTime)
	}

	// Key findings are stored as the model's bulleted prose.
	if !strings.HasPrefix(updated.KeyFindings, "- Raft") || !strings.Contains(updated.KeyFindings, "\n- Paxos") {
		t.Errorf("key findings = %q", updated.KeyFindings)
	}

	tags, err := s.TagsForArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("TagsForArticle failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %d, want 2", len(tags))
	}
	for _, tag := range tags {
		if tag.Name != strings.ToLower(tag.Name) {
			t.Errorf("tag name %q not lowercased", tag.Name)
		}
	}
}

func TestEnrichOne_MetadataOnlyForFailedFetch(t *testing.T) {
	var sawPrompt string
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		sawPrompt = user
		return goodReply(), nil
	}}
	e, s := newTestEngine(t, caller)
	ctx := context.Background()

	a := &core.Article{
		URL:     "https://example.com/unreachable",
		URLHash: dedup.Hash("https://example.com/unreachable"),
		Title:   "Unreachable article",
		Source:  "example.com",
		Status:  core.StatusFetchFailed,
	}
	if err := s.CreateArticle(ctx, a); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	ok, err := e.EnrichOne(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("EnrichOne = (%v, %v), want (true, nil)", ok, err)
	}
	if strings.Contains(sawPrompt, "Full text:") {
		t.Error("metadata-only article should not get a full-text prompt")
	}
	if !strings.Contains(sawPrompt, "could not be retrieved") {
		t.Errorf("prompt missing metadata-only framing: %s", sawPrompt)
	}

	// With no extracted text, the model's word count estimate is used.
	updated, _ := s.GetArticle(ctx, a.ID)
	if updated.WordCount != 4200 {
		t.Errorf("word count = %d, want model estimate 4200", updated.WordCount)
	}
	if updated.Status != core.StatusEnriched {
		t.Errorf("status = %s, want enriched", updated.Status)
	}
}

func TestEnrichOne_TruncatesLongContent(t *testing.T) {
	var sawPrompt string
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		sawPrompt = user
		return goodReply(), nil
	}}
	e, s := newTestEngine(t, caller)
	e.maxContentWords = 50
	ctx := context.Background()

	text := strings.Repeat("word ", 200)
	a := createFetched(t, s, "https://example.com/long", text)

	if _, err := e.EnrichOne(ctx, a.ID); err != nil {
		t.Fatalf("EnrichOne failed: %v", err)
	}
	if !strings.Contains(sawPrompt, truncationMarker) {
		t.Error("long content should carry the truncation marker")
	}
	if strings.Count(sawPrompt, "word") != 50 {
		t.Errorf("prompt carries %d words, want 50", strings.Count(sawPrompt, "word"))
	}
}

func TestEnrichOne_ModelFailureMarksError(t *testing.T) {
	e, s := newTestEngine(t, &llm.MockCaller{}) // nil Reply: service unavailable
	ctx := context.Background()

	a := createFetched(t, s, "https://example.com/doomed", strings.Repeat("text ", 200))
	ok, err := e.EnrichOne(ctx, a.ID)
	if err != nil {
		t.Fatalf("EnrichOne returned error for model failure: %v", err)
	}
	if ok {
		t.Fatal("EnrichOne = true, want false")
	}

	updated, _ := s.GetArticle(ctx, a.ID)
	if updated.Status != core.StatusError {
		t.Errorf("status = %s, want error", updated.Status)
	}
	if updated.Summary != "" || updated.RelevanceScore != nil {
		t.Error("failed enrichment must not write partial analysis")
	}
}

func TestEnrichOne_MalformedReplyMarksError(t *testing.T) {
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		return "not json at all", nil
	}}
	e, s := newTestEngine(t, caller)
	ctx := context.Background()

	a := createFetched(t, s, "https://example.com/garbled", strings.Repeat("text ", 200))
	ok, err := e.EnrichOne(ctx, a.ID)
	if err != nil || ok {
		t.Fatalf("EnrichOne = (%v, %v), want (false, nil)", ok, err)
	}

	updated, _ := s.GetArticle(ctx, a.ID)
	if updated.Status != core.StatusError {
		t.Errorf("status = %s, want error", updated.Status)
	}
}

func TestEnrichOne_RejectsWrongState(t *testing.T) {
	e, s := newTestEngine(t, &llm.MockCaller{})
	ctx := context.Background()

	a := &core.Article{
		URL:     "https://example.com/still-pending",
		URLHash: dedup.Hash("https://example.com/still-pending"),
		Title:   "Pending",
		Status:  core.StatusPending,
	}
	if err := s.CreateArticle(ctx, a); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}
	if _, err := e.EnrichOne(ctx, a.ID); err == nil {
		t.Error("expected error for a pending article")
	}
}

func TestEnrichPending_BatchIsolation(t *testing.T) {
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		if strings.Contains(user, "/bad") {
			return "", fmt.Errorf("simulated outage")
		}
		return goodReply(), nil
	}}
	e, s := newTestEngine(t, caller)
	ctx := context.Background()

	createFetched(t, s, "https://example.com/bad", strings.Repeat("text ", 200))
	good := createFetched(t, s, "https://example.com/good", strings.Repeat("text ", 200))

	stats, err := e.EnrichPending(ctx, 0)
	if err != nil {
		t.Fatalf("EnrichPending failed: %v", err)
	}
	if stats.Total != 2 || stats.Success != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want total 2, success 1, failed 1", stats)
	}

	updated, _ := s.GetArticle(ctx, good.ID)
	if updated.Status != core.StatusEnriched {
		t.Errorf("good article status = %s, want enriched", updated.Status)
	}
}

func TestApply_ClampsRelevance(t *testing.T) {
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		return `{"summary": "s", "key_findings": "- f", "tags": [],
			"relevance_score": 1.7, "content_type": "newsletter"}`, nil
	}}
	e, s := newTestEngine(t, caller)
	ctx := context.Background()

	a := createFetched(t, s, "https://example.com/clamp", strings.Repeat("text ", 200))
	if _, err := e.EnrichOne(ctx, a.ID); err != nil {
		t.Fatalf("EnrichOne failed: %v", err)
	}

	updated, _ := s.GetArticle(ctx, a.ID)
	if updated.Relevance() != 1.0 {
		t.Errorf("relevance = %.2f, want clamped to 1.0", updated.Relevance())
	}
	// Unknown content type keeps the existing classification.
	if updated.ContentType != "article" {
		t.Errorf("content_type = %s, want article retained", updated.ContentType)
	}
}

func TestApply_ClosedVocabularies(t *testing.T) {
	caller := &llm.MockCaller{Reply: func(system, user string) (string, error) {
		return `{"summary": "s", "key_findings": "- f",
			"tags": [
				{"name": "Skeptical", "category": "stance", "confidence": 0.7},
				{"name": "Healthcare", "category": "vertical", "confidence": 0.6}
			],
			"relevance_score": 0.5, "content_type": "policy_document"}`, nil
	}}
	e, s := newTestEngine(t, caller)
	ctx := context.Background()

	a := createFetched(t, s, "https://example.com/vocab", strings.Repeat("text ", 200))
	if _, err := e.EnrichOne(ctx, a.ID); err != nil {
		t.Fatalf("EnrichOne failed: %v", err)
	}

	updated, _ := s.GetArticle(ctx, a.ID)
	if updated.ContentType != "policy_document" {
		t.Errorf("content_type = %s, want policy_document", updated.ContentType)
	}

	tags, err := s.TagsForArticle(ctx, a.ID)
	if err != nil || len(tags) != 2 {
		t.Fatalf("tags = %d, %v", len(tags), err)
	}
	byName := map[string]string{}
	for _, tag := range tags {
		byName[tag.Name] = tag.Category
	}
	if byName["skeptical"] != "stance" {
		t.Errorf("stance category not kept: %v", byName)
	}
	// Categories outside the closed set fall back to topic.
	if byName["healthcare"] != "topic" {
		t.Errorf("invalid category not remapped: %v", byName)
	}
}

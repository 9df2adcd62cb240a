package interrogate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"curator/internal/core"
	"curator/internal/dedup"
	"curator/internal/llm"
	"curator/internal/store"
)

func newTestPipeline(t *testing.T, caller llm.StructuredCaller) (*Pipeline, *store.Store) {
	t.Helper()
	s, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewPipeline(s, caller), s
}

func createEnriched(t *testing.T, s *store.Store, url, title string, relevance float64, readingTime int) *core.Article {
	t.Helper()
	a := &core.Article{
		URL:            url,
		URLHash:        dedup.Hash(url),
		Title:          title,
		Source:         "example.com",
		ContentType:    "article",
		Summary:        "Notes on " + title,
		RelevanceScore: &relevance,
		ReadingTime:    readingTime,
		Status:         core.StatusEnriched,
	}
	if err := s.CreateArticle(context.Background(), a); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}
	return a
}

// splitCaller routes plan and synthesis calls by their system prompts.
func splitCaller(plan func() (string, error), synth func(user string) (string, error)) *llm.MockCaller {
	return &llm.MockCaller{Reply: func(system, user string) (string, error) {
		if strings.Contains(system, "retrieval plan") {
			return plan()
		}
		return synth(user)
	}}
}

func planReply(terms ...string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = fmt.Sprintf("%q", term)
	}
	return fmt.Sprintf(`{"search_terms": [%s], "sort_by": "relevance",
		"time_budget_minutes": 60, "max_articles": 10}`, strings.Join(quoted, ", "))
}

func TestAsk_Success(t *testing.T) {
	var first, second *core.Article
	caller := splitCaller(
		func() (string, error) { return planReply("consensus"), nil },
		func(user string) (string, error) {
			return fmt.Sprintf(`{
				"title": "Understanding Consensus",
				"description": "From the basics to the edge cases.",
				"sections": [{
					"label": "Start Here",
					"article_ids": [%d, %d, 424242],
					"notes": ["the canonical intro", "what breaks in practice"]
				}],
				"discussion_prompts": ["Which guarantees do you actually need?"],
				"total_reading_time": 20
			}`, first.ID, second.ID), nil
		},
	)
	p, s := newTestPipeline(t, caller)
	ctx := context.Background()

	first = createEnriched(t, s, "https://example.com/intro", "Consensus Basics", 0.9, 8)
	second = createEnriched(t, s, "https://example.com/edge", "Consensus Edge Cases", 0.8, 12)
	createEnriched(t, s, "https://example.com/other", "Unrelated Gardening", 0.95, 3)

	resp, err := p.Ask(ctx, "how do I learn consensus?", nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Title != "Understanding Consensus" {
		t.Fatalf("title = %q", resp.Title)
	}
	if resp.ReadingListID == nil {
		t.Fatal("expected a persisted reading list")
	}
	if len(resp.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(resp.Sections))
	}

	// The hallucinated ID was dropped; notes stay aligned.
	section := resp.Sections[0]
	if len(section.Articles) != 2 {
		t.Fatalf("articles = %d, want 2", len(section.Articles))
	}
	if section.Notes[0] != "the canonical intro" {
		t.Errorf("note = %q", section.Notes[0])
	}
	if resp.TotalReadingTime != 20 {
		t.Errorf("total reading time = %d, want the model's 20", resp.TotalReadingTime)
	}
	list, err := s.GetReadingList(ctx, *resp.ReadingListID)
	if err != nil || list == nil {
		t.Fatalf("GetReadingList = %v, %v", list, err)
	}
	if list.TotalReadingTime != 20 {
		t.Errorf("persisted total reading time = %d, want 20", list.TotalReadingTime)
	}

	items, err := s.ListReadingListItems(ctx, *resp.ReadingListID)
	if err != nil {
		t.Fatalf("ListReadingListItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("persisted items = %d, want 2", len(items))
	}
	if items[0].Position != 0 || items[1].Position != 1 {
		t.Errorf("positions = %d, %d", items[0].Position, items[1].Position)
	}

	logs, err := s.ListInterrogationLogs(ctx, 10)
	if err != nil || len(logs) != 1 {
		t.Fatalf("logs = %d, %v", len(logs), err)
	}
	if logs[0].ReadingListID == nil || *logs[0].ReadingListID != *resp.ReadingListID {
		t.Error("audit record should reference the reading list")
	}
	if !strings.Contains(logs[0].QueryPlan, "consensus") {
		t.Errorf("query plan not audited: %q", logs[0].QueryPlan)
	}

	if !strings.Contains(resp.Markdown, "# Understanding Consensus") {
		t.Error("markdown export missing title")
	}
}

func TestAsk_PlanFailure(t *testing.T) {
	p, s := newTestPipeline(t, &llm.MockCaller{}) // nil Reply: unavailable
	ctx := context.Background()

	resp, err := p.Ask(ctx, "anything", nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Title != fallbackTitle {
		t.Fatalf("title = %q, want %q", resp.Title, fallbackTitle)
	}
	if !strings.Contains(resp.Description, "Query planning failed") {
		t.Errorf("description = %q", resp.Description)
	}
	if resp.ReadingListID != nil || len(resp.Sections) != 0 || resp.TotalReadingTime != 0 {
		t.Error("fallback response must be empty apart from the reason")
	}

	logs, _ := s.ListInterrogationLogs(ctx, 10)
	if len(logs) != 1 {
		t.Fatalf("failed query should still be audited, logs = %d", len(logs))
	}
	if logs[0].ReadingListID != nil {
		t.Error("failed query audit must not reference a reading list")
	}
}

func TestAsk_SynthesisFailure(t *testing.T) {
	caller := splitCaller(
		func() (string, error) { return planReply("consensus"), nil },
		func(string) (string, error) { return "", fmt.Errorf("simulated outage") },
	)
	p, s := newTestPipeline(t, caller)
	ctx := context.Background()
	createEnriched(t, s, "https://example.com/a", "Consensus Basics", 0.9, 5)

	resp, err := p.Ask(ctx, "how do I learn consensus?", nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Title != fallbackTitle || !strings.Contains(resp.Description, "Answer synthesis failed") {
		t.Errorf("fallback = %q / %q", resp.Title, resp.Description)
	}

	logs, _ := s.ListInterrogationLogs(ctx, 10)
	if len(logs) != 1 || logs[0].QueryPlan == "" {
		t.Error("audit should keep the successful plan")
	}
}

func TestAsk_EmptyCollection(t *testing.T) {
	caller := splitCaller(
		func() (string, error) { return planReply("anything at all"), nil },
		func(string) (string, error) { return "", fmt.Errorf("should not be called") },
	)
	p, _ := newTestPipeline(t, caller)

	resp, err := p.Ask(context.Background(), "what do you have?", nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Title != fallbackTitle || !strings.Contains(resp.Description, "No matching articles") {
		t.Errorf("fallback = %q / %q", resp.Title, resp.Description)
	}
}

func TestAsk_FallbackRetrieval(t *testing.T) {
	// The planned term matches nothing, but enriched articles exist, so
	// retrieval falls back to the most relevant ones.
	var a *core.Article
	caller := splitCaller(
		func() (string, error) { return planReply("zanzibar"), nil },
		func(user string) (string, error) {
			if !strings.Contains(user, "Unmatched Title") {
				return "", fmt.Errorf("fallback articles missing from prompt: %s", user)
			}
			return fmt.Sprintf(`{"title": "Best Available", "description": "d",
				"sections": [{"label": "All", "article_ids": [%d], "notes": []}],
				"discussion_prompts": [], "total_reading_time": 6}`, a.ID), nil
		},
	)
	p, s := newTestPipeline(t, caller)
	a = createEnriched(t, s, "https://example.com/fallback", "Unmatched Title", 0.7, 6)

	resp, err := p.Ask(context.Background(), "anything relevant?", nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Title != "Best Available" || len(resp.Sections) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestBudget_Greedy(t *testing.T) {
	mk := func(id int64, minutes int) core.Article {
		return core.Article{ID: id, ReadingTime: minutes}
	}
	articles := []core.Article{mk(1, 8), mk(2, 20), mk(3, 6), mk(4, 2)}

	selected := budget(articles, 16, 10)
	if len(selected) != 3 {
		t.Fatalf("selected = %d, want 3", len(selected))
	}
	// 8 fits, 20 skipped, 6 fits, 2 fits: exactly the budget.
	total := 0
	for _, a := range selected {
		total += a.ReadingTime
	}
	if total != 16 {
		t.Errorf("total = %d, want 16", total)
	}

	capped := budget(articles, 100, 2)
	if len(capped) != 2 {
		t.Errorf("capped = %d, want 2", len(capped))
	}

	// Unknown reading time costs the default budget.
	unknown := budget([]core.Article{mk(1, 0)}, defaultTimeBudget, 10)
	if len(unknown) != 1 {
		t.Errorf("unknown reading time should fit exactly the default budget")
	}

	// Without a time budget only the article cap applies.
	uncapped := budget(articles, 0, 10)
	if len(uncapped) != 4 {
		t.Errorf("no budget selected %d, want all 4", len(uncapped))
	}
}

func TestAsk_NoTimeBudgetKeepsLongArticles(t *testing.T) {
	var long *core.Article
	caller := splitCaller(
		func() (string, error) {
			return `{"search_terms": ["capacity"], "sort_by": "relevance"}`, nil
		},
		func(user string) (string, error) {
			return fmt.Sprintf(`{"title": "The Long Read", "description": "d",
				"sections": [{"label": "All", "article_ids": [%d], "notes": []}],
				"discussion_prompts": [], "total_reading_time": 30}`, long.ID), nil
		},
	)
	p, s := newTestPipeline(t, caller)
	long = createEnriched(t, s, "https://example.com/long", "Capacity Deep Dive", 0.9, 30)

	resp, err := p.Ask(context.Background(), "what about capacity?", nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Title != "The Long Read" || resp.ReadingListID == nil {
		t.Fatalf("plan without a time budget must not exclude long articles: %+v", resp)
	}
}

func TestAsk_RecordsCreator(t *testing.T) {
	var a *core.Article
	caller := splitCaller(
		func() (string, error) { return planReply("consensus"), nil },
		func(user string) (string, error) {
			return fmt.Sprintf(`{"title": "t", "description": "d",
				"sections": [{"label": "All", "article_ids": [%d], "notes": []}],
				"discussion_prompts": [], "total_reading_time": 5}`, a.ID), nil
		},
	)
	p, s := newTestPipeline(t, caller)
	ctx := context.Background()
	a = createEnriched(t, s, "https://example.com/who", "Consensus Basics", 0.9, 5)

	userID := int64(7)
	resp, err := p.Ask(ctx, "how do I learn consensus?", &userID)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	list, err := s.GetReadingList(ctx, *resp.ReadingListID)
	if err != nil || list == nil {
		t.Fatalf("GetReadingList = %v, %v", list, err)
	}
	if list.CreatedBy == nil || *list.CreatedBy != userID {
		t.Error("reading list should record its creator")
	}

	logs, _ := s.ListInterrogationLogs(ctx, 10)
	if len(logs) != 1 || logs[0].UserID == nil || *logs[0].UserID != userID {
		t.Error("audit record should carry the user")
	}
}

func TestSortArticles(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	articles := []core.Article{
		{ID: 1, RelevanceScore: score(0.3), PublishedDate: "2026-08-01", ReadingTime: 2},
		{ID: 2, RelevanceScore: score(0.9), PublishedDate: "2026-07-01", ReadingTime: 9},
		{ID: 3, PublishedDate: "2026-08-20", ReadingTime: 5},
	}

	sortArticles(articles, "relevance")
	if articles[0].ID != 2 || articles[2].ID != 3 {
		t.Errorf("relevance order = %v", ids(articles))
	}

	sortArticles(articles, "date")
	if articles[0].ID != 3 || articles[2].ID != 2 {
		t.Errorf("date order = %v", ids(articles))
	}

	sortArticles(articles, "reading_time")
	if articles[0].ID != 1 || articles[2].ID != 2 {
		t.Errorf("reading time order = %v", ids(articles))
	}
}

func ids(articles []core.Article) []int64 {
	out := make([]int64, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return out
}

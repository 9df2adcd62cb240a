package core

import "time"

// Status is the lifecycle state of an article in the pipeline.
type Status string

const (
	StatusPending     Status = "pending"
	StatusFetched     Status = "fetched"
	StatusFetchFailed Status = "fetch_failed"
	StatusEnriched    Status = "enriched"
	StatusError       Status = "error"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFetched, StatusFetchFailed, StatusEnriched, StatusError:
		return true
	}
	return false
}

// Enrichable reports whether an article in this state may be enriched.
// fetch_failed articles stay eligible via the metadata-only prompt.
func (s Status) Enrichable() bool {
	return s == StatusFetched || s == StatusFetchFailed
}

// FetchStatus classifies the outcome of a content fetch attempt.
type FetchStatus string

const (
	FetchPending FetchStatus = "pending"
	FetchSuccess FetchStatus = "success"
	FetchPartial FetchStatus = "partial"
	FetchPaywall FetchStatus = "paywall"
	FetchFailed  FetchStatus = "failed"
)

// DigestStatus tracks a digest through generation.
type DigestStatus string

const (
	DigestGenerating DigestStatus = "generating"
	DigestCompleted  DigestStatus = "completed"
	DigestError      DigestStatus = "error"
)

// ExecutionStatus tracks a single search job run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionError     ExecutionStatus = "error"
)

// Article is the canonical record for a discovered or manually added URL.
type Article struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	URLHash        string    `json:"url_hash"` // SHA-256 of the normalized URL, unique
	Title          string    `json:"title"`
	Source         string    `json:"source"`
	PublishedDate  string    `json:"published_date,omitempty"` // ISO date string, may be empty
	ContentType    string    `json:"content_type"`
	Summary        string    `json:"summary,omitempty"`
	KeyFindings    string    `json:"key_findings,omitempty"`
	RelevanceScore *float64  `json:"relevance_score,omitempty"` // nil until enriched
	WordCount      int       `json:"word_count,omitempty"`
	ReadingTime    int       `json:"reading_time_minutes,omitempty"`
	HasContent     bool      `json:"has_content"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Relevance returns the relevance score with nil treated as 0.
func (a Article) Relevance() float64 {
	if a.RelevanceScore == nil {
		return 0
	}
	return *a.RelevanceScore
}

// ArticleAuthor is an author name attached to an article.
type ArticleAuthor struct {
	ID        int64  `json:"id"`
	ArticleID int64  `json:"article_id"`
	Name      string `json:"name"`
}

// Content holds the fetched payload for an article, one-to-one with Article.
// It is created lazily on the first fetch attempt and overwritten on re-fetch.
type Content struct {
	ID              int64       `json:"id"`
	ArticleID       int64       `json:"article_id"`
	FullText        string      `json:"full_text,omitempty"`
	ContentHash     string      `json:"content_hash,omitempty"`
	FetchStatus     FetchStatus `json:"fetch_status"`
	FetchError      string      `json:"fetch_error,omitempty"`
	HTTPStatus      int         `json:"http_status,omitempty"`
	ExtractedTitle  string      `json:"extracted_title,omitempty"`
	ExtractedAuthor string      `json:"extracted_author,omitempty"`
	ExtractedDate   string      `json:"extracted_date,omitempty"`
	WordCount       int         `json:"word_count,omitempty"`
	FetchedAt       time.Time   `json:"fetched_at,omitempty"`
}

// HasUsableText reports whether the content can back a full-text
// enrichment prompt.
func (c *Content) HasUsableText() bool {
	if c == nil {
		return false
	}
	return (c.FetchStatus == FetchSuccess || c.FetchStatus == FetchPartial) && c.FullText != ""
}

// Tag is a (name, category) pair, unique per pair.
type Tag struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ArticleTag links an article to a tag with the model's confidence.
type ArticleTag struct {
	ID         int64   `json:"id"`
	ArticleID  int64   `json:"article_id"`
	TagID      int64   `json:"tag_id"`
	Confidence float64 `json:"confidence"`
}

// TagWithConfidence is a tag joined with its link confidence for one article.
type TagWithConfidence struct {
	Tag
	Confidence float64 `json:"confidence"`
}

// SearchJob is a named recurring discovery query.
type SearchJob struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Schedule  string    `json:"schedule"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchExecution records one run of a search job.
type SearchExecution struct {
	ID            int64           `json:"id"`
	SearchJobID   int64           `json:"search_job_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at,omitempty"`
	Status        ExecutionStatus `json:"status"`
	ArticlesFound int             `json:"articles_found"`
	ArticlesNew   int             `json:"articles_new"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}

// Digest is a generated multi-article briefing.
type Digest struct {
	ID               int64        `json:"id"`
	Title            string       `json:"title"`
	DigestType       string       `json:"digest_type"`
	Status           DigestStatus `json:"status"`
	PeriodStart      time.Time    `json:"period_start"`
	PeriodEnd        time.Time    `json:"period_end"`
	ExecutiveSummary string       `json:"executive_summary,omitempty"`
	TrendAnalysis    string       `json:"trend_analysis,omitempty"`
	FullMarkdown     string       `json:"full_markdown,omitempty"`
	ArticleCount     int          `json:"article_count"`
	CreatedAt        time.Time    `json:"created_at"`
}

// DigestSection is one ordered thematic section of a digest.
type DigestSection struct {
	ID          int64  `json:"id"`
	DigestID    int64  `json:"digest_id"`
	Title       string `json:"title"`
	SectionType string `json:"section_type"` // theme or recommendation
	Markdown    string `json:"content_markdown"`
	Position    int    `json:"position"`
}

// DigestArticle cites an article inside a digest section.
type DigestArticle struct {
	ID            int64  `json:"id"`
	SectionID     int64  `json:"section_id"`
	ArticleID     int64  `json:"article_id"`
	HighlightNote string `json:"highlight_note,omitempty"`
	Position      int    `json:"position"`
}

// ReadingList is the persisted output of an interrogation query.
type ReadingList struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Query             string    `json:"query,omitempty"`
	DiscussionPrompts string    `json:"discussion_prompts,omitempty"` // newline-joined
	TotalReadingTime  int       `json:"total_reading_time,omitempty"`
	CreatedBy         *int64    `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ReadingListItem is one article in a reading list, grouped by section label.
type ReadingListItem struct {
	ID            int64  `json:"id"`
	ReadingListID int64  `json:"reading_list_id"`
	ArticleID     int64  `json:"article_id"`
	Section       string `json:"section"`
	Position      int    `json:"position"`
	Notes         string `json:"notes,omitempty"`
}

// InterrogationLog is the audit record of one interrogation query.
type InterrogationLog struct {
	ID            int64     `json:"id"`
	UserID        *int64    `json:"user_id,omitempty"`
	Query         string    `json:"query"`
	QueryPlan     string    `json:"query_plan,omitempty"` // raw plan JSON
	Result        string    `json:"result,omitempty"`     // raw synthesis JSON or failure reason
	ReadingListID *int64    `json:"reading_list_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

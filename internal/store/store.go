// Package store persists the pipeline's records in SQLite, including
// the FTS5 index backing the full-text search boundary.
//
// go-sqlite3 compiles FTS5 in only under the sqlite_fts5 build tag, so
// every build and test run needs -tags sqlite_fts5 (the Makefile
// targets pass it). Without the tag NewStore fails creating the schema
// with "no such module: fts5".
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"curator/internal/core"
)

// Store wraps the SQLite database holding articles, content, tags,
// search jobs, digests, reading lists, and the interrogation log.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "curator.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// initialize creates the tables, the FTS5 index, and its triggers.
func (s *Store) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			url_hash TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			published_date TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT 'article',
			summary TEXT NOT NULL DEFAULT '',
			key_findings TEXT NOT NULL DEFAULT '',
			relevance_score REAL,
			word_count INTEGER NOT NULL DEFAULT 0,
			reading_time_minutes INTEGER NOT NULL DEFAULT 0,
			has_content INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_status ON articles (status);`,
		`CREATE TABLE IF NOT EXISTS article_authors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL REFERENCES articles (id),
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS article_content (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL UNIQUE REFERENCES articles (id),
			full_text TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			fetch_status TEXT NOT NULL DEFAULT 'pending',
			fetch_error TEXT NOT NULL DEFAULT '',
			http_status INTEGER NOT NULL DEFAULT 0,
			extracted_title TEXT NOT NULL DEFAULT '',
			extracted_author TEXT NOT NULL DEFAULT '',
			extracted_date TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			fetched_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'topic',
			UNIQUE (name, category)
		);`,
		`CREATE TABLE IF NOT EXISTS article_tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL REFERENCES articles (id),
			tag_id INTEGER NOT NULL REFERENCES tags (id),
			confidence REAL NOT NULL DEFAULT 1.0,
			UNIQUE (article_id, tag_id)
		);`,
		`CREATE TABLE IF NOT EXISTS search_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			query TEXT NOT NULL,
			schedule TEXT NOT NULL DEFAULT 'daily',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS search_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			search_job_id INTEGER NOT NULL REFERENCES search_jobs (id),
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			status TEXT NOT NULL DEFAULT 'running',
			articles_found INTEGER NOT NULL DEFAULT 0,
			articles_new INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS digests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			digest_type TEXT NOT NULL DEFAULT 'manual',
			status TEXT NOT NULL DEFAULT 'generating',
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			executive_summary TEXT NOT NULL DEFAULT '',
			trend_analysis TEXT NOT NULL DEFAULT '',
			full_markdown TEXT NOT NULL DEFAULT '',
			article_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS digest_sections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			digest_id INTEGER NOT NULL REFERENCES digests (id),
			title TEXT NOT NULL,
			section_type TEXT NOT NULL DEFAULT 'theme',
			content_markdown TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS digest_articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			section_id INTEGER NOT NULL REFERENCES digest_sections (id),
			article_id INTEGER NOT NULL REFERENCES articles (id),
			highlight_note TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS reading_lists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL DEFAULT '',
			discussion_prompts TEXT NOT NULL DEFAULT '',
			total_reading_time INTEGER NOT NULL DEFAULT 0,
			created_by INTEGER,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reading_list_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reading_list_id INTEGER NOT NULL REFERENCES reading_lists (id),
			article_id INTEGER NOT NULL REFERENCES articles (id),
			section TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS interrogation_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			query TEXT NOT NULL,
			query_plan TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT '',
			reading_list_id INTEGER,
			created_at DATETIME NOT NULL
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
			title, summary, content='articles', content_rowid='id'
		);`,
		`CREATE TRIGGER IF NOT EXISTS articles_fts_insert AFTER INSERT ON articles BEGIN
			INSERT INTO articles_fts (rowid, title, summary) VALUES (new.id, new.title, new.summary);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS articles_fts_delete AFTER DELETE ON articles BEGIN
			INSERT INTO articles_fts (articles_fts, rowid, title, summary) VALUES ('delete', old.id, old.title, old.summary);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS articles_fts_update AFTER UPDATE ON articles BEGIN
			INSERT INTO articles_fts (articles_fts, rowid, title, summary) VALUES ('delete', old.id, old.title, old.summary);
			INSERT INTO articles_fts (rowid, title, summary) VALUES (new.id, new.title, new.summary);
		END;`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const articleColumns = `id, url, url_hash, title, source, published_date, content_type,
	summary, key_findings, relevance_score, word_count, reading_time_minutes,
	has_content, status, created_at, updated_at`

func scanArticle(row interface{ Scan(...any) error }) (*core.Article, error) {
	var a core.Article
	var relevance sql.NullFloat64
	var status string
	err := row.Scan(
		&a.ID, &a.URL, &a.URLHash, &a.Title, &a.Source, &a.PublishedDate,
		&a.ContentType, &a.Summary, &a.KeyFindings, &relevance,
		&a.WordCount, &a.ReadingTime, &a.HasContent, &status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if relevance.Valid {
		a.RelevanceScore = &relevance.Float64
	}
	a.Status = core.Status(status)
	return &a, nil
}

// CreateArticle inserts a new article and assigns its ID. The caller is
// expected to have checked the dedup hash first; a duplicate hash fails
// on the unique constraint.
func (s *Store) CreateArticle(ctx context.Context, a *core.Article) error {
	if !a.Status.Valid() {
		return fmt.Errorf("invalid article status %q", a.Status)
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (url, url_hash, title, source, published_date, content_type,
			summary, key_findings, relevance_score, word_count, reading_time_minutes,
			has_content, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.URL, a.URLHash, a.Title, a.Source, a.PublishedDate, a.ContentType,
		a.Summary, a.KeyFindings, relevanceValue(a.RelevanceScore), a.WordCount,
		a.ReadingTime, a.HasContent, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// UpdateArticle overwrites an article's mutable fields.
func (s *Store) UpdateArticle(ctx context.Context, a *core.Article) error {
	if !a.Status.Valid() {
		return fmt.Errorf("invalid article status %q", a.Status)
	}
	a.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET url = ?, title = ?, source = ?, published_date = ?,
			content_type = ?, summary = ?, key_findings = ?, relevance_score = ?,
			word_count = ?, reading_time_minutes = ?, has_content = ?, status = ?,
			updated_at = ?
		WHERE id = ?`,
		a.URL, a.Title, a.Source, a.PublishedDate, a.ContentType, a.Summary,
		a.KeyFindings, relevanceValue(a.RelevanceScore), a.WordCount,
		a.ReadingTime, a.HasContent, string(a.Status), a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update article %d: %w", a.ID, err)
	}
	return nil
}

func relevanceValue(score *float64) any {
	if score == nil {
		return nil
	}
	return *score
}

// GetArticle returns an article by ID, or (nil, nil) when absent.
func (s *Store) GetArticle(ctx context.Context, id int64) (*core.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	return a, nil
}

// GetArticleByHash returns the article with the given dedup hash, or
// (nil, nil) when no article carries it.
func (s *Store) GetArticleByHash(ctx context.Context, hash string) (*core.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE url_hash = ?`, hash)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	return a, nil
}

// ListArticlesByStatus returns up to limit articles in the given state,
// oldest first.
func (s *Store) ListArticlesByStatus(ctx context.Context, status core.Status, limit int) ([]core.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status = ? ORDER BY created_at, id LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles by status: %w", err)
	}
	return collectArticles(rows)
}

// ListEnrichable returns up to limit articles eligible for enrichment
// (fetched or fetch_failed), oldest first.
func (s *Store) ListEnrichable(ctx context.Context, limit int) ([]core.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status IN (?, ?) ORDER BY created_at, id LIMIT ?`,
		string(core.StatusFetched), string(core.StatusFetchFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrichable articles: %w", err)
	}
	return collectArticles(rows)
}

// ListEnrichedBetween returns up to limit enriched articles created in
// [start, end], ordered by relevance descending with nulls last.
func (s *Store) ListEnrichedBetween(ctx context.Context, start, end time.Time, limit int) ([]core.Article, error) {
	query, args, err := sq.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"status": string(core.StatusEnriched)}).
		Where(sq.GtOrEq{"created_at": start}).
		Where(sq.LtOrEq{"created_at": end}).
		OrderBy("relevance_score IS NULL", "relevance_score DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build gather query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to gather enriched articles: %w", err)
	}
	return collectArticles(rows)
}

// TopEnrichedIDs returns the IDs of the highest-relevance enriched
// articles, used as the retrieval fallback when full-text search finds
// nothing.
func (s *Store) TopEnrichedIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM articles WHERE status = ?
		ORDER BY relevance_score IS NULL, relevance_score DESC LIMIT ?`,
		string(core.StatusEnriched), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top enriched articles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchArticleIDs runs a ranked FTS5 lookup for one term and returns
// matching article IDs. A malformed term yields no rows, not an error.
func (s *Store) SearchArticleIDs(ctx context.Context, term string, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid FROM articles_fts WHERE articles_fts MATCH ? ORDER BY rank LIMIT ?`,
		term, limit)
	if err != nil {
		// FTS5 rejects terms with unbalanced quotes or operators; treat
		// as no matches the way the search boundary requires.
		return nil, nil
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan fts row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListArticlesByIDs loads articles by ID set, optionally requiring at
// least one of the named tags and restricting content types.
func (s *Store) ListArticlesByIDs(ctx context.Context, ids []int64, tagFilters, contentTypes []string) ([]core.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	builder := sq.Select(articleColumns).From("articles").Where(sq.Eq{"id": ids})

	if len(tagFilters) > 0 {
		subSQL, subArgs, err := sq.Select("1").
			From("article_tags").
			Join("tags ON tags.id = article_tags.tag_id").
			Where("article_tags.article_id = articles.id").
			Where(sq.Eq{"tags.name": tagFilters}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build tag filter: %w", err)
		}
		builder = builder.Where("EXISTS ("+subSQL+")", subArgs...)
	}
	if len(contentTypes) > 0 {
		builder = builder.Where(sq.Eq{"content_type": contentTypes})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieval query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles by ids: %w", err)
	}
	return collectArticles(rows)
}

func collectArticles(rows *sql.Rows) ([]core.Article, error) {
	defer rows.Close()
	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// AddAuthor attaches an author name to an article.
func (s *Store) AddAuthor(ctx context.Context, articleID int64, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO article_authors (article_id, name) VALUES (?, ?)`, articleID, name)
	if err != nil {
		return fmt.Errorf("failed to add author: %w", err)
	}
	return nil
}

// HasAuthors reports whether any author rows exist for the article.
func (s *Store) HasAuthors(ctx context.Context, articleID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM article_authors WHERE article_id = ?`, articleID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count authors: %w", err)
	}
	return count > 0, nil
}

// GetContent returns the content record for an article, or (nil, nil)
// when none exists yet.
func (s *Store) GetContent(ctx context.Context, articleID int64) (*core.Content, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, article_id, full_text, content_hash, fetch_status, fetch_error,
			http_status, extracted_title, extracted_author, extracted_date,
			word_count, fetched_at
		FROM article_content WHERE article_id = ?`, articleID)

	var c core.Content
	var status string
	var fetchedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.ArticleID, &c.FullText, &c.ContentHash, &status, &c.FetchError,
		&c.HTTPStatus, &c.ExtractedTitle, &c.ExtractedAuthor, &c.ExtractedDate,
		&c.WordCount, &fetchedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}
	c.FetchStatus = core.FetchStatus(status)
	if fetchedAt.Valid {
		c.FetchedAt = fetchedAt.Time
	}
	return &c, nil
}

// UpsertContent writes the content record for an article, overwriting
// any previous fetch attempt.
func (s *Store) UpsertContent(ctx context.Context, c *core.Content) error {
	var fetchedAt any
	if !c.FetchedAt.IsZero() {
		fetchedAt = c.FetchedAt
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO article_content (article_id, full_text, content_hash, fetch_status,
			fetch_error, http_status, extracted_title, extracted_author, extracted_date,
			word_count, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (article_id) DO UPDATE SET
			full_text = excluded.full_text,
			content_hash = excluded.content_hash,
			fetch_status = excluded.fetch_status,
			fetch_error = excluded.fetch_error,
			http_status = excluded.http_status,
			extracted_title = excluded.extracted_title,
			extracted_author = excluded.extracted_author,
			extracted_date = excluded.extracted_date,
			word_count = excluded.word_count,
			fetched_at = excluded.fetched_at`,
		c.ArticleID, c.FullText, c.ContentHash, string(c.FetchStatus), c.FetchError,
		c.HTTPStatus, c.ExtractedTitle, c.ExtractedAuthor, c.ExtractedDate,
		c.WordCount, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert content: %w", err)
	}
	if c.ID == 0 {
		if id, err := res.LastInsertId(); err == nil {
			c.ID = id
		}
	}
	return nil
}

// GetOrCreateTag returns the tag with the given (name, category) pair,
// creating it when absent. Uniqueness is enforced by the schema.
func (s *Store) GetOrCreateTag(ctx context.Context, name, category string) (core.Tag, error) {
	tag := core.Tag{Name: name, Category: category}
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ? AND category = ?`, name, category).Scan(&tag.ID)
	if err == nil {
		return tag, nil
	}
	if err != sql.ErrNoRows {
		return core.Tag{}, fmt.Errorf("failed to look up tag: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (name, category) VALUES (?, ?)
		 ON CONFLICT (name, category) DO NOTHING`, name, category)
	if err != nil {
		return core.Tag{}, fmt.Errorf("failed to create tag: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		tag.ID = id
	}
	if tag.ID == 0 {
		// Lost a race with a concurrent insert; read it back.
		if err := s.db.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE name = ? AND category = ?`, name, category).Scan(&tag.ID); err != nil {
			return core.Tag{}, fmt.Errorf("failed to re-read tag: %w", err)
		}
	}
	return tag, nil
}

// LinkArticleTag attaches a tag to an article if the pair is not
// already linked. Re-enrichment never duplicates links.
func (s *Store) LinkArticleTag(ctx context.Context, articleID, tagID int64, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_tags (article_id, tag_id, confidence) VALUES (?, ?, ?)
		ON CONFLICT (article_id, tag_id) DO NOTHING`,
		articleID, tagID, confidence)
	if err != nil {
		return fmt.Errorf("failed to link article tag: %w", err)
	}
	return nil
}

// TagsForArticle returns the tags linked to one article.
func (s *Store) TagsForArticle(ctx context.Context, articleID int64) ([]core.TagWithConfidence, error) {
	byArticle, err := s.TagsForArticles(ctx, []int64{articleID})
	if err != nil {
		return nil, err
	}
	return byArticle[articleID], nil
}

// TagsForArticles batch-loads tags for a set of articles, keyed by
// article ID.
func (s *Store) TagsForArticles(ctx context.Context, articleIDs []int64) (map[int64][]core.TagWithConfidence, error) {
	result := make(map[int64][]core.TagWithConfidence)
	if len(articleIDs) == 0 {
		return result, nil
	}

	query, args, err := sq.Select("article_tags.article_id", "tags.id", "tags.name", "tags.category", "article_tags.confidence").
		From("article_tags").
		Join("tags ON tags.id = article_tags.tag_id").
		Where(sq.Eq{"article_tags.article_id": articleIDs}).
		OrderBy("tags.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tag lookup: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID int64
		var tag core.TagWithConfidence
		if err := rows.Scan(&articleID, &tag.ID, &tag.Name, &tag.Category, &tag.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		result[articleID] = append(result[articleID], tag)
	}
	return result, rows.Err()
}

// CreateSearchJob inserts a search job and assigns its ID.
func (s *Store) CreateSearchJob(ctx context.Context, job *core.SearchJob) error {
	job.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO search_jobs (name, query, schedule, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		job.Name, job.Query, job.Schedule, job.Enabled, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert search job: %w", err)
	}
	job.ID, err = res.LastInsertId()
	return err
}

// GetSearchJob returns a job by ID, or (nil, nil) when absent.
func (s *Store) GetSearchJob(ctx context.Context, id int64) (*core.SearchJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, query, schedule, enabled, created_at
		FROM search_jobs WHERE id = ?`, id)
	var job core.SearchJob
	err := row.Scan(&job.ID, &job.Name, &job.Query, &job.Schedule, &job.Enabled, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan search job: %w", err)
	}
	return &job, nil
}

// ListEnabledSearchJobs returns all enabled jobs in creation order.
func (s *Store) ListEnabledSearchJobs(ctx context.Context) ([]core.SearchJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, query, schedule, enabled, created_at
		FROM search_jobs WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list search jobs: %w", err)
	}
	defer rows.Close()

	var jobs []core.SearchJob
	for rows.Next() {
		var job core.SearchJob
		if err := rows.Scan(&job.ID, &job.Name, &job.Query, &job.Schedule, &job.Enabled, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetSearchJobEnabled flips a job's enabled flag.
func (s *Store) SetSearchJobEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE search_jobs SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update search job %d: %w", id, err)
	}
	return nil
}

// CreateExecution inserts a run record for a search job.
func (s *Store) CreateExecution(ctx context.Context, e *core.SearchExecution) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO search_executions (search_job_id, started_at, status,
			articles_found, articles_new, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.SearchJobID, e.StartedAt, string(e.Status), e.ArticlesFound, e.ArticlesNew, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// UpdateExecution overwrites a run record's outcome fields.
func (s *Store) UpdateExecution(ctx context.Context, e *core.SearchExecution) error {
	var finishedAt any
	if !e.FinishedAt.IsZero() {
		finishedAt = e.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE search_executions SET finished_at = ?, status = ?, articles_found = ?,
			articles_new = ?, error_message = ?
		WHERE id = ?`,
		finishedAt, string(e.Status), e.ArticlesFound, e.ArticlesNew, e.ErrorMessage, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update execution %d: %w", e.ID, err)
	}
	return nil
}

// CreateDigest inserts a digest row and assigns its ID.
func (s *Store) CreateDigest(ctx context.Context, d *core.Digest) error {
	d.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO digests (title, digest_type, status, period_start, period_end,
			executive_summary, trend_analysis, full_markdown, article_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Title, d.DigestType, string(d.Status), d.PeriodStart, d.PeriodEnd,
		d.ExecutiveSummary, d.TrendAnalysis, d.FullMarkdown, d.ArticleCount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert digest: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// UpdateDigest overwrites a digest's mutable fields.
func (s *Store) UpdateDigest(ctx context.Context, d *core.Digest) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE digests SET title = ?, status = ?, executive_summary = ?,
			trend_analysis = ?, full_markdown = ?, article_count = ?
		WHERE id = ?`,
		d.Title, string(d.Status), d.ExecutiveSummary, d.TrendAnalysis,
		d.FullMarkdown, d.ArticleCount, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update digest %d: %w", d.ID, err)
	}
	return nil
}

// GetDigest returns a digest by ID, or (nil, nil) when absent.
func (s *Store) GetDigest(ctx context.Context, id int64) (*core.Digest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, digest_type, status, period_start, period_end,
			executive_summary, trend_analysis, full_markdown, article_count, created_at
		FROM digests WHERE id = ?`, id)
	var d core.Digest
	var status string
	err := row.Scan(&d.ID, &d.Title, &d.DigestType, &status, &d.PeriodStart,
		&d.PeriodEnd, &d.ExecutiveSummary, &d.TrendAnalysis, &d.FullMarkdown,
		&d.ArticleCount, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan digest: %w", err)
	}
	d.Status = core.DigestStatus(status)
	return &d, nil
}

// AddDigestSection inserts a section and assigns its ID.
func (s *Store) AddDigestSection(ctx context.Context, sec *core.DigestSection) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO digest_sections (digest_id, title, section_type, content_markdown, position)
		VALUES (?, ?, ?, ?, ?)`,
		sec.DigestID, sec.Title, sec.SectionType, sec.Markdown, sec.Position)
	if err != nil {
		return fmt.Errorf("failed to insert digest section: %w", err)
	}
	sec.ID, err = res.LastInsertId()
	return err
}

// AddDigestArticle links an article into a digest section.
func (s *Store) AddDigestArticle(ctx context.Context, da *core.DigestArticle) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO digest_articles (section_id, article_id, highlight_note, position)
		VALUES (?, ?, ?, ?)`,
		da.SectionID, da.ArticleID, da.HighlightNote, da.Position)
	if err != nil {
		return fmt.Errorf("failed to insert digest article: %w", err)
	}
	da.ID, err = res.LastInsertId()
	return err
}

// ListDigestSections returns a digest's sections in position order.
func (s *Store) ListDigestSections(ctx context.Context, digestID int64) ([]core.DigestSection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, digest_id, title, section_type, content_markdown, position
		FROM digest_sections WHERE digest_id = ? ORDER BY position`, digestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest sections: %w", err)
	}
	defer rows.Close()

	var sections []core.DigestSection
	for rows.Next() {
		var sec core.DigestSection
		if err := rows.Scan(&sec.ID, &sec.DigestID, &sec.Title, &sec.SectionType, &sec.Markdown, &sec.Position); err != nil {
			return nil, fmt.Errorf("failed to scan digest section: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// ListSectionArticles returns a section's article links in position order.
func (s *Store) ListSectionArticles(ctx context.Context, sectionID int64) ([]core.DigestArticle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, article_id, highlight_note, position
		FROM digest_articles WHERE section_id = ? ORDER BY position`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list section articles: %w", err)
	}
	defer rows.Close()

	var links []core.DigestArticle
	for rows.Next() {
		var da core.DigestArticle
		if err := rows.Scan(&da.ID, &da.SectionID, &da.ArticleID, &da.HighlightNote, &da.Position); err != nil {
			return nil, fmt.Errorf("failed to scan section article: %w", err)
		}
		links = append(links, da)
	}
	return links, rows.Err()
}

// CreateReadingList inserts a reading list and assigns its ID.
func (s *Store) CreateReadingList(ctx context.Context, rl *core.ReadingList) error {
	rl.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_lists (title, description, query, discussion_prompts,
			total_reading_time, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rl.Title, rl.Description, rl.Query, rl.DiscussionPrompts,
		rl.TotalReadingTime, rl.CreatedBy, rl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading list: %w", err)
	}
	rl.ID, err = res.LastInsertId()
	return err
}

// GetReadingList returns a reading list by ID, or (nil, nil) when
// absent.
func (s *Store) GetReadingList(ctx context.Context, id int64) (*core.ReadingList, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, query, discussion_prompts,
			total_reading_time, created_by, created_at
		FROM reading_lists WHERE id = ?`, id)
	var rl core.ReadingList
	var createdBy sql.NullInt64
	err := row.Scan(&rl.ID, &rl.Title, &rl.Description, &rl.Query,
		&rl.DiscussionPrompts, &rl.TotalReadingTime, &createdBy, &rl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reading list: %w", err)
	}
	if createdBy.Valid {
		rl.CreatedBy = &createdBy.Int64
	}
	return &rl, nil
}

// AddReadingListItem inserts one item into a reading list.
func (s *Store) AddReadingListItem(ctx context.Context, item *core.ReadingListItem) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_list_items (reading_list_id, article_id, section, position, notes)
		VALUES (?, ?, ?, ?, ?)`,
		item.ReadingListID, item.ArticleID, item.Section, item.Position, item.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert reading list item: %w", err)
	}
	item.ID, err = res.LastInsertId()
	return err
}

// ListReadingListItems returns a reading list's items ordered by
// section then position.
func (s *Store) ListReadingListItems(ctx context.Context, readingListID int64) ([]core.ReadingListItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reading_list_id, article_id, section, position, notes
		FROM reading_list_items WHERE reading_list_id = ? ORDER BY section, position`, readingListID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reading list items: %w", err)
	}
	defer rows.Close()

	var items []core.ReadingListItem
	for rows.Next() {
		var item core.ReadingListItem
		if err := rows.Scan(&item.ID, &item.ReadingListID, &item.ArticleID, &item.Section, &item.Position, &item.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan reading list item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AddInterrogationLog writes one audit record for a query.
func (s *Store) AddInterrogationLog(ctx context.Context, entry *core.InterrogationLog) error {
	entry.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO interrogation_log (user_id, query, query_plan, result, reading_list_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Query, entry.QueryPlan, entry.Result, entry.ReadingListID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert interrogation log: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// ListInterrogationLogs returns the most recent audit entries.
func (s *Store) ListInterrogationLogs(ctx context.Context, limit int) ([]core.InterrogationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, query, query_plan, result, reading_list_id, created_at
		FROM interrogation_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interrogation logs: %w", err)
	}
	defer rows.Close()

	var entries []core.InterrogationLog
	for rows.Next() {
		var entry core.InterrogationLog
		var userID, readingListID sql.NullInt64
		if err := rows.Scan(&entry.ID, &userID, &entry.Query, &entry.QueryPlan, &entry.Result, &readingListID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interrogation log: %w", err)
		}
		if userID.Valid {
			entry.UserID = &userID.Int64
		}
		if readingListID.Valid {
			entry.ReadingListID = &readingListID.Int64
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

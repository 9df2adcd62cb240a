// Package render produces the markdown outputs: digest documents and
// reading-list exports. Rendering is deterministic so the same stored
// rows always produce the same document.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"curator/internal/core"
)

// DigestView is a digest assembled with its sections and cited articles,
// in render order.
type DigestView struct {
	Digest   *core.Digest
	Sections []SectionView
}

// SectionView pairs a section with its cited articles.
type SectionView struct {
	Section  core.DigestSection
	Articles []ArticleRef
}

// ArticleRef is one citation inside a section.
type ArticleRef struct {
	Article       core.Article
	HighlightNote string
}

// ReadingListView is a reading list assembled for export, with items
// grouped under their section labels in order.
type ReadingListView struct {
	List     *core.ReadingList
	Sections []ReadingSection
}

// ReadingSection groups reading-list items under one label.
type ReadingSection struct {
	Label string
	Items []ReadingItem
}

// ReadingItem is one article in a reading list.
type ReadingItem struct {
	Article core.Article
	Notes   string
}

// Digest renders a complete digest document.
func Digest(view *DigestView) string {
	d := view.Digest
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	fmt.Fprintf(&b, "**Period:** %s to %s\n", d.PeriodStart.Format("2006-01-02"), d.PeriodEnd.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Articles reviewed:** %d\n\n", d.ArticleCount)

	if d.ExecutiveSummary != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(strings.TrimSpace(d.ExecutiveSummary))
		b.WriteString("\n\n")
	}

	for _, sec := range view.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Section.Title)
		if sec.Section.Markdown != "" {
			b.WriteString(strings.TrimSpace(sec.Section.Markdown))
			b.WriteString("\n\n")
		}
		if len(sec.Articles) > 0 {
			b.WriteString("**Sources:**\n\n")
			for _, ref := range sec.Articles {
				fmt.Fprintf(&b, "- [%s](%s)", ref.Article.Title, ref.Article.URL)
				if ref.HighlightNote != "" {
					fmt.Fprintf(&b, " - %s", ref.HighlightNote)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if d.TrendAnalysis != "" {
		b.WriteString("## Trend Analysis\n\n")
		b.WriteString(strings.TrimSpace(d.TrendAnalysis))
		b.WriteString("\n\n")
	}

	b.WriteString("---\n\n*Generated by Curator*\n")
	return b.String()
}

// ReadingList renders a reading list as a standalone markdown export.
func ReadingList(view *ReadingListView) string {
	list := view.List
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", list.Title)
	if list.Description != "" {
		b.WriteString(strings.TrimSpace(list.Description))
		b.WriteString("\n\n")
	}
	if list.TotalReadingTime > 0 {
		fmt.Fprintf(&b, "**Total reading time:** ~%d minutes\n\n", list.TotalReadingTime)
	}

	for _, sec := range view.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Label)
		for i, item := range sec.Items {
			fmt.Fprintf(&b, "%d. [%s](%s)", i+1, item.Article.Title, item.Article.URL)
			if item.Article.ReadingTime > 0 {
				fmt.Fprintf(&b, " (%d min)", item.Article.ReadingTime)
			}
			b.WriteString("\n")
			if item.Notes != "" {
				fmt.Fprintf(&b, "   %s\n", item.Notes)
			}
		}
		b.WriteString("\n")
	}

	if list.DiscussionPrompts != "" {
		b.WriteString("## Discussion Prompts\n\n")
		n := 0
		for _, prompt := range strings.Split(list.DiscussionPrompts, "\n") {
			prompt = strings.TrimSpace(prompt)
			if prompt == "" {
				continue
			}
			n++
			fmt.Fprintf(&b, "%d. %s\n", n, prompt)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n*Generated by Curator*\n")
	return b.String()
}

// WriteFile writes a rendered document into the output directory,
// creating the directory as needed, and returns the file path.
func WriteFile(outputDir, name, markdown string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Filename builds a date-stamped markdown filename from a title.
func Filename(date, title string) string {
	return fmt.Sprintf("%s-%s.md", date, Slug(title))
}

// Slug reduces a title to a lowercase hyphenated token.
func Slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

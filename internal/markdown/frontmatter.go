package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adrg/frontmatter"

	"github.com/jgchk/blog-sub001/internal/content"
)

var (
	// ErrNotAPost is returned for files that are not <root>/<slug>/index.md
	ErrNotAPost = errors.New("not a post path")

	// ErrMissingTitle is returned for posts without a title
	ErrMissingTitle = errors.New("front matter is missing a title")
)

// Parser builds articles from post files below a content root
type Parser struct {
	contentRoot string
}

// NewParser creates a parser for posts below contentRoot
func NewParser(contentRoot string) *Parser {
	return &Parser{contentRoot: content.CleanRoot(contentRoot)}
}

type frontMatterEnvelope struct {
	Title   string    `yaml:"title"`
	Summary string    `yaml:"summary"`
	Author  string    `yaml:"author"`
	Date    time.Time `yaml:"date"`
	Draft   bool      `yaml:"draft"`
	Tags    []string  `yaml:"tags"`
	Aliases []string  `yaml:"aliases"`
}

// Parse extracts the front matter and body of a post. Drafts parse
// successfully with Draft set; the caller decides whether to publish them.
func (p *Parser) Parse(file content.File) (content.Article, error) {
	slug, ok := content.SlugFromPath(p.contentRoot, file.Path)
	if !ok {
		return content.Article{}, fmt.Errorf("%s: %w", file.Path, ErrNotAPost)
	}

	var meta frontMatterEnvelope
	body, err := frontmatter.Parse(bytes.NewReader(file.Content), &meta)
	if err != nil {
		return content.Article{}, fmt.Errorf("parse frontmatter: %w", err)
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		return content.Article{}, ErrMissingTitle
	}

	return content.Article{
		Slug:       slug,
		SourcePath: file.Path,
		Title:      title,
		Summary:    strings.TrimSpace(meta.Summary),
		Author:     strings.TrimSpace(meta.Author),
		Date:       meta.Date,
		Draft:      meta.Draft,
		Tags:       nonEmpty(meta.Tags),
		Aliases:    nonEmpty(meta.Aliases),
		Body:       body,
	}, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package markdown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgchk/blog-sub001/internal/content"
)

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	src := `---
title: "  Hello World "
summary: First post
author: Jane
date: 2024-02-03T00:00:00Z
tags: [TypeScript, " ", Go]
aliases:
  - Greetings
---
Body with [[Second Post]].
`

	article, err := NewParser("posts").Parse(content.File{Path: "posts/hello-world/index.md", Content: []byte(src)})
	require.NoError(t, err)

	assert.Equal(t, "hello-world", article.Slug)
	assert.Equal(t, "posts/hello-world/index.md", article.SourcePath)
	assert.Equal(t, "Hello World", article.Title)
	assert.Equal(t, "First post", article.Summary)
	assert.Equal(t, "Jane", article.Author)
	assert.True(t, article.Date.Equal(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, article.Draft)
	assert.Equal(t, []string{"TypeScript", "Go"}, article.Tags)
	assert.Equal(t, []string{"Greetings"}, article.Aliases)
	assert.Contains(t, string(article.Body), "Body with [[Second Post]].")
	assert.NotContains(t, string(article.Body), "title:")
}

func TestParser_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		source  string
		wantErr error
	}{
		{name: "missing title", path: "posts/a/index.md", source: "---\ntags: [go]\n---\nbody", wantErr: ErrMissingTitle},
		{name: "no front matter", path: "posts/a/index.md", source: "just text", wantErr: ErrMissingTitle},
		{name: "nested path", path: "posts/a/b/index.md", source: "---\ntitle: x\n---\n", wantErr: ErrNotAPost},
		{name: "asset path", path: "posts/a/cover.png", source: "", wantErr: ErrNotAPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewParser("posts").Parse(content.File{Path: tt.path, Content: []byte(tt.source)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParser_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := NewParser("posts").Parse(content.File{
		Path:    "posts/a/index.md",
		Content: []byte("---\ntitle: [unclosed\n---\nbody"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse frontmatter")
}

func TestParser_Draft(t *testing.T) {
	t.Parallel()

	article, err := NewParser("posts").Parse(content.File{
		Path:    "posts/wip/index.md",
		Content: []byte("---\ntitle: WIP\ndraft: true\n---\n"),
	})
	require.NoError(t, err)
	assert.True(t, article.Draft)
}

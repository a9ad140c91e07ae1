package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgchk/blog-sub001/internal/content"
)

func TestRenderer_RenderArticle(t *testing.T) {
	t.Parallel()

	article := content.Article{
		Slug:   "hello",
		Title:  "Hello <World>",
		Author: "Jane",
		Tags:   []string{"C++", "Go"},
		Body:   []byte("# Intro\n\nSee [[Second|the sequel]] and [[Nowhere]].\n"),
	}
	links := []content.CrossLink{
		{SourceSlug: "hello", LinkText: "Second", ResolvedSlug: "second"},
		{SourceSlug: "hello", LinkText: "Nowhere"},
		{SourceSlug: "other", LinkText: "Nowhere", ResolvedSlug: "should-not-apply"},
	}

	out, err := NewRenderer("My Blog").RenderArticle(article, links)
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>Hello &lt;World&gt; | My Blog</title>")
	assert.Contains(t, page, `<h1 id="intro">Intro</h1>`)
	assert.Contains(t, page, `<a class="crosslink" href="/second/">the sequel</a>`)
	assert.Contains(t, page, `<span class="crosslink-broken" title="Unresolved link: Nowhere">Nowhere</span>`)
	assert.NotContains(t, page, "should-not-apply")
	assert.Contains(t, page, `<a href="/tags/c-plus-plus/">C&#43;&#43;</a>`)
	assert.Contains(t, page, `<a href="/tags/go/">Go</a>`)
}

func TestRenderer_EscapesLinkText(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer("b").RenderArticle(content.Article{
		Slug:  "a",
		Title: "A",
		Body:  []byte("[[<script>]]"),
	}, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
}

func TestRenderer_RenderTagPage(t *testing.T) {
	t.Parallel()

	idx := content.BuildTagIndex([]content.Article{
		{Slug: "a", Tags: []string{"TypeScript"}},
		{Slug: "b", Tags: []string{"typescript"}},
	})
	tag, ok := idx.Tag("typescript")
	require.True(t, ok)

	out, err := NewRenderer("My Blog").RenderTagPage(tag, []content.Article{{Slug: "a", Title: "First"}})
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>TypeScript | My Blog</title>")
	assert.Contains(t, page, "2 posts")
	assert.Contains(t, page, `<a href="/a/">First</a>`)
	assert.Contains(t, page, `<a href="/b/">b</a>`)
}

package markdown

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/jgchk/blog-sub001/internal/content"
)

// BrokenLinkClass marks cross-links that did not resolve
const BrokenLinkClass = "crosslink-broken"

// Renderer produces the published HTML pages. It is safe for concurrent use.
type Renderer struct {
	engine   goldmark.Markdown
	siteName string
}

// NewRenderer creates a renderer. siteName appears in page titles.
func NewRenderer(siteName string) *Renderer {
	return &Renderer{
		engine: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.TaskList, extension.Footnote),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			// cross-link anchors are injected as inline HTML
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		siteName: siteName,
	}
}

type articlePage struct {
	SiteName string
	Title    string
	Summary  string
	Author   string
	Date     string
	Tags     []content.Tag
	Body     template.HTML
}

type tagPage struct {
	SiteName string
	Tag      content.TagWithStats
	Articles []tagPageArticle
}

type tagPageArticle struct {
	Slug  string
	Title string
	Date  string
}

// RenderArticle renders the article page. links are the resolutions of the
// article's cross-links; anything without a resolution is marked broken.
func (r *Renderer) RenderArticle(article content.Article, links []content.CrossLink) ([]byte, error) {
	resolved := make(map[string]string, len(links))
	for _, l := range links {
		if l.SourceSlug == article.Slug && l.Resolved() {
			resolved[l.LinkText] = l.ResolvedSlug
		}
	}

	source := content.ReplaceCrossLinks(article.Body, func(ref content.LinkRef) string {
		text := html.EscapeString(ref.DisplayText())
		if slug, ok := resolved[ref.Text]; ok {
			return fmt.Sprintf(`<a class="crosslink" href="/%s/">%s</a>`, slug, text)
		}
		return fmt.Sprintf(`<span class="%s" title="Unresolved link: %s">%s</span>`,
			BrokenLinkClass, html.EscapeString(ref.Text), text)
	})

	var body bytes.Buffer
	if err := r.engine.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("markdown convert: %w", err)
	}

	tags := make([]content.Tag, 0, len(article.Tags))
	for _, name := range article.Tags {
		if tag := content.NewTag(name); tag.Slug != "" {
			tags = append(tags, tag)
		}
	}

	page := articlePage{
		SiteName: r.siteName,
		Title:    article.Title,
		Summary:  article.Summary,
		Author:   article.Author,
		Date:     formatDate(article.Date),
		Tags:     tags,
		//nolint:gosec // goldmark output of repository content is trusted
		Body: template.HTML(body.String()),
	}

	var out bytes.Buffer
	if err := articleTemplate.Execute(&out, page); err != nil {
		return nil, fmt.Errorf("article template: %w", err)
	}
	return out.Bytes(), nil
}

// RenderTagPage renders the listing page of one tag. articles supplies titles
// for the tag's article slugs; unknown slugs are listed by slug.
func (r *Renderer) RenderTagPage(tag content.TagWithStats, articles []content.Article) ([]byte, error) {
	bySlug := make(map[string]content.Article, len(articles))
	for _, a := range articles {
		bySlug[a.Slug] = a
	}

	page := tagPage{SiteName: r.siteName, Tag: tag}
	for _, slug := range tag.Articles {
		entry := tagPageArticle{Slug: slug, Title: slug}
		if a, ok := bySlug[slug]; ok {
			entry.Title = a.Title
			entry.Date = formatDate(a.Date)
		}
		page.Articles = append(page.Articles, entry)
	}

	var out bytes.Buffer
	if err := tagTemplate.Execute(&out, page); err != nil {
		return nil, fmt.Errorf("tag template: %w", err)
	}
	return out.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

var articleTemplate = template.Must(template.New("article").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} | {{.SiteName}}</title>
{{- if .Summary}}
<meta name="description" content="{{.Summary}}">
{{- end}}
</head>
<body>
<article>
<h1>{{.Title}}</h1>
{{- if or .Author .Date}}
<p class="meta">{{if .Author}}{{.Author}}{{end}}{{if and .Author .Date}} · {{end}}{{if .Date}}<time datetime="{{.Date}}">{{.Date}}</time>{{end}}</p>
{{- end}}
{{.Body}}
{{- if .Tags}}
<ul class="tags">
{{- range .Tags}}
<li><a href="/tags/{{.Slug}}/">{{.Name}}</a></li>
{{- end}}
</ul>
{{- end}}
</article>
</body>
</html>
`))

var tagTemplate = template.Must(template.New("tag").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Tag.Name}} | {{.SiteName}}</title>
</head>
<body>
<h1>Posts tagged “{{.Tag.Name}}”</h1>
<p class="count">{{.Tag.Count}} posts</p>
<ul>
{{- range .Articles}}
<li><a href="/{{.Slug}}/">{{.Title}}</a>{{if .Date}} <time datetime="{{.Date}}">{{.Date}}</time>{{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))

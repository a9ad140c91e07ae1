package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// IssueBrokenCrossLink is the validation code for a cross-link that matches no article
const IssueBrokenCrossLink = "broken_crosslink"

// crossLinkPattern matches [[Target]] and [[Target|label]]
var crossLinkPattern = regexp.MustCompile(`\[\[([^\[\]|\n]+)(?:\|([^\[\]\n]+))?\]\]`)

// LinkRef is a cross-link occurrence in a markdown body
type LinkRef struct {
	// Raw is the full matched text, brackets included
	Raw string
	// Text is the reference used for resolution
	Text string
	// Label is the optional display text after the pipe
	Label string
}

// DisplayText returns the label if present, the link text otherwise
func (l LinkRef) DisplayText() string {
	if l.Label != "" {
		return l.Label
	}
	return l.Text
}

// ExtractCrossLinks returns the cross-links in body in order of appearance
func ExtractCrossLinks(body []byte) []LinkRef {
	matches := crossLinkPattern.FindAllSubmatch(body, -1)
	refs := make([]LinkRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, LinkRef{
			Raw:   string(m[0]),
			Text:  strings.TrimSpace(string(m[1])),
			Label: strings.TrimSpace(string(m[2])),
		})
	}
	return refs
}

// ReplaceCrossLinks rewrites every cross-link in body with the output of fn
func ReplaceCrossLinks(body []byte, fn func(LinkRef) string) []byte {
	return crossLinkPattern.ReplaceAllFunc(body, func(match []byte) []byte {
		refs := ExtractCrossLinks(match)
		if len(refs) == 0 {
			return match
		}
		return []byte(fn(refs[0]))
	})
}

// NormalizeLinkKey folds case and drops whitespace, underscores and hyphens so
// that "Hello World", "hello_world" and "hello-world" compare equal.
func NormalizeLinkKey(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CrossLink is the resolution of one link from a source article
type CrossLink struct {
	SourceSlug   string `json:"sourceArticleSlug"`
	LinkText     string `json:"linkText"`
	ResolvedSlug string `json:"resolvedSlug,omitempty"`
}

// Resolved reports whether the link points at a known article
func (c CrossLink) Resolved() bool {
	return c.ResolvedSlug != ""
}

// ValidationIssue is a non-fatal problem found while preparing an article
type ValidationIssue struct {
	Code        string `json:"code"`
	ArticleSlug string `json:"articleSlug"`
	LinkText    string `json:"linkText,omitempty"`
	Message     string `json:"message"`
}

// CrossLinkResolver resolves link text against the titles, slugs and aliases
// of an article set.
type CrossLinkResolver struct {
	keys map[string]string
}

// NewCrossLinkResolver indexes articles. When two articles claim the same
// normalized key the earlier one keeps it.
func NewCrossLinkResolver(articles []Article) *CrossLinkResolver {
	r := &CrossLinkResolver{keys: make(map[string]string)}
	for _, a := range articles {
		r.add(a.Title, a.Slug)
		r.add(a.Slug, a.Slug)
		for _, alias := range a.Aliases {
			r.add(alias, a.Slug)
		}
	}
	return r
}

func (r *CrossLinkResolver) add(text, slug string) {
	key := NormalizeLinkKey(text)
	if key == "" {
		return
	}
	if _, taken := r.keys[key]; taken {
		return
	}
	r.keys[key] = slug
}

// Lookup returns the slug matching text
func (r *CrossLinkResolver) Lookup(text string) (string, bool) {
	slug, ok := r.keys[NormalizeLinkKey(text)]
	return slug, ok
}

// Resolve resolves a single link from source
func (r *CrossLinkResolver) Resolve(source, text string) CrossLink {
	link := CrossLink{SourceSlug: source, LinkText: text}
	if slug, ok := r.Lookup(text); ok {
		link.ResolvedSlug = slug
	}
	return link
}

// ResolveAll resolves every cross-link of every article. Unresolved links are
// reported as broken_crosslink issues and are also present, unresolved, in the
// returned links.
func (r *CrossLinkResolver) ResolveAll(articles []Article) ([]CrossLink, []ValidationIssue) {
	var (
		links  []CrossLink
		issues []ValidationIssue
	)
	for _, a := range articles {
		for _, ref := range ExtractCrossLinks(a.Body) {
			link := r.Resolve(a.Slug, ref.Text)
			links = append(links, link)
			if !link.Resolved() {
				issues = append(issues, ValidationIssue{
					Code:        IssueBrokenCrossLink,
					ArticleSlug: a.Slug,
					LinkText:    ref.Text,
					Message:     fmt.Sprintf("cross-link %q does not match any article", ref.Text),
				})
			}
		}
	}
	return links, issues
}

package content

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	tagWhitespace = regexp.MustCompile(`[\s_]+`)
	tagInvalid    = regexp.MustCompile(`[^a-z0-9-]`)
	tagHyphens    = regexp.MustCompile(`-{2,}`)
)

// Tag is an immutable tag value. Slug is derived from Name by NormalizeTagSlug.
type Tag struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// NewTag builds a Tag from its display name
func NewTag(name string) Tag {
	name = strings.TrimSpace(name)
	return Tag{Slug: NormalizeTagSlug(name), Name: name}
}

// NormalizeTagSlug derives the URL-safe slug of a tag name. A "+" becomes the
// word "plus" so that "C++" reads as "c-plus-plus" rather than "c".
func NormalizeTagSlug(name string) string {
	s := strings.ReplaceAll(name, "+", " plus ")
	s = strings.ToLower(s)
	s = tagWhitespace.ReplaceAllString(s, "-")
	s = tagInvalid.ReplaceAllString(s, "")
	s = tagHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// TagWithStats is a tag together with the articles that declare it.
// The count is always derived from Articles.
type TagWithStats struct {
	Tag
	Articles []string `json:"articles"`
}

// Count returns the number of distinct articles carrying the tag
func (t TagWithStats) Count() int {
	return len(t.Articles)
}

// MarshalJSON adds the derived count to the serialized form
func (t TagWithStats) MarshalJSON() ([]byte, error) {
	articles := t.Articles
	if articles == nil {
		articles = []string{}
	}
	return json.Marshal(struct {
		Slug     string   `json:"slug"`
		Name     string   `json:"name"`
		Count    int      `json:"count"`
		Articles []string `json:"articles"`
	}{
		Slug:     t.Slug,
		Name:     t.Name,
		Count:    len(articles),
		Articles: articles,
	})
}

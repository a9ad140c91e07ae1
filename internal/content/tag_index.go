package content

import (
	"encoding/json"
	"sort"
)

// TagIndex maps tags to the articles declaring them. It is built once from an
// article set and is read-only afterwards.
type TagIndex struct {
	order   []string
	entries map[string]*tagEntry
}

type tagEntry struct {
	tag      Tag
	articles []string
	seen     map[string]struct{}
}

// BuildTagIndex aggregates the tags of articles. The first spelling seen for a
// slug becomes its display name, and every article is listed at most once per tag.
func BuildTagIndex(articles []Article) *TagIndex {
	idx := &TagIndex{entries: make(map[string]*tagEntry)}

	for _, article := range articles {
		for _, name := range article.Tags {
			tag := NewTag(name)
			if tag.Slug == "" {
				continue
			}

			entry, ok := idx.entries[tag.Slug]
			if !ok {
				entry = &tagEntry{tag: tag, seen: make(map[string]struct{})}
				idx.entries[tag.Slug] = entry
				idx.order = append(idx.order, tag.Slug)
			}

			if _, dup := entry.seen[article.Slug]; dup {
				continue
			}
			entry.seen[article.Slug] = struct{}{}
			entry.articles = append(entry.articles, article.Slug)
		}
	}

	return idx
}

// Len returns the number of distinct tags
func (idx *TagIndex) Len() int {
	return len(idx.order)
}

// Tag returns the tag with the given slug
func (idx *TagIndex) Tag(slug string) (TagWithStats, bool) {
	entry, ok := idx.entries[slug]
	if !ok {
		return TagWithStats{}, false
	}
	return entry.stats(), true
}

// AllTags returns every tag ordered by descending article count. Tags with
// equal counts keep the order in which they were first seen.
func (idx *TagIndex) AllTags() []TagWithStats {
	tags := make([]TagWithStats, 0, len(idx.order))
	for _, slug := range idx.order {
		tags = append(tags, idx.entries[slug].stats())
	}
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Count() > tags[j].Count()
	})
	return tags
}

// MostUsed returns the tag with the most articles, or false for an empty index
func (idx *TagIndex) MostUsed() (TagWithStats, bool) {
	tags := idx.AllTags()
	if len(tags) == 0 {
		return TagWithStats{}, false
	}
	return tags[0], true
}

// ArticlesByTag returns a copy of the article slugs for a tag
func (idx *TagIndex) ArticlesByTag(slug string) []string {
	entry, ok := idx.entries[slug]
	if !ok {
		return []string{}
	}
	return append([]string(nil), entry.articles...)
}

// MarshalJSON serializes the index as {"tags": [...], "totalTags": n}
func (idx *TagIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tags      []TagWithStats `json:"tags"`
		TotalTags int            `json:"totalTags"`
	}{
		Tags:      idx.AllTags(),
		TotalTags: idx.Len(),
	})
}

func (e *tagEntry) stats() TagWithStats {
	return TagWithStats{
		Tag:      e.tag,
		Articles: append([]string(nil), e.articles...),
	}
}

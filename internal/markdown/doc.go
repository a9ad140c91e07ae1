// Package markdown turns post sources into articles and articles into HTML.
//
// Parser reads the YAML front matter of a post's index.md and validates it.
// Renderer converts the markdown body with goldmark, substitutes resolved
// cross-links with anchors and marks unresolved ones, and wraps the result in
// the page layout. Tag listing pages are rendered from the tag index.
package markdown

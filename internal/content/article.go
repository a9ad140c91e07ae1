package content

import "time"

// Article is a parsed post, ready to be indexed and rendered
type Article struct {
	// Slug is the post directory name and the published path segment
	Slug string
	// SourcePath is the repository path of the post's index.md
	SourcePath string

	Title   string
	Summary string
	Author  string
	Date    time.Time
	Draft   bool
	Tags    []string
	// Aliases are alternative names other posts may use in cross-links
	Aliases []string

	// Body is the markdown body with the front matter removed
	Body []byte
}

// File is a raw file fetched from the content repository
type File struct {
	Path    string
	Content []byte
}

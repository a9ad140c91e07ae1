package content

import (
	"path"
	"strings"

	"github.com/goliatone/go-slug"
)

// PostFileName is the only file name recognised as a post
const PostFileName = "index.md"

// CleanRoot normalises a content root such as "/posts/" to "posts"
func CleanRoot(root string) string {
	root = path.Clean("/" + strings.TrimSpace(root))
	return strings.Trim(root, "/")
}

// relative returns p relative to root, or false when p is outside root
func relative(root, p string) (string, bool) {
	root = CleanRoot(root)
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if root == "" {
		return p, p != ""
	}
	if !strings.HasPrefix(p, root+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, root+"/"), true
}

// IsUnderRoot reports whether p lives below the content root
func IsUnderRoot(root, p string) bool {
	_, ok := relative(root, p)
	return ok
}

// SlugFromPath returns the post slug for a path of exactly <root>/<slug>/index.md.
// Nested or differently named files are not posts.
func SlugFromPath(root, p string) (string, bool) {
	rel, ok := relative(root, p)
	if !ok {
		return "", false
	}
	parts := strings.Split(rel, "/")
	if len(parts) != 2 || parts[1] != PostFileName {
		return "", false
	}
	if !slug.IsValid(parts[0]) {
		return "", false
	}
	return parts[0], true
}

// AssetFromPath splits a file colocated with a post into its post slug and its
// path relative to the post directory. index.md and dot files are not assets.
func AssetFromPath(root, p string) (postSlug, name string, ok bool) {
	rel, ok := relative(root, p)
	if !ok {
		return "", "", false
	}
	postSlug, name, found := strings.Cut(rel, "/")
	if !found || name == "" || name == PostFileName {
		return "", "", false
	}
	if !slug.IsValid(postSlug) {
		return "", "", false
	}
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", "", false
		}
	}
	return postSlug, name, true
}

// PostPath returns the repository path of a post's index.md
func PostPath(root, postSlug string) string {
	return path.Join(CleanRoot(root), postSlug, PostFileName)
}

// Package sources provides the content fetchers that read blog posts from
// their source of truth.
//
// Current implementations:
//   - GitFetcher: clones a remote repository into memory and serves files
//     pinned to a commit. The last clone is reused while requests name the
//     same commit, so per-file fetches of one sync share a single clone.
//   - FilesystemFetcher: serves a local checkout, for development and for
//     one-shot rebuilds from a working copy.
//
// NewFetcher picks the implementation from the repository configuration.
package sources

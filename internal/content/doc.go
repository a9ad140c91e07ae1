// Package content holds the blog's article model and the derived structures
// rebuilt on every sync: the tag index and the cross-link table.
//
// Everything in this package is a pure function of the article set. Indices are
// never patched in place; a sync builds fresh ones from the current articles so
// that deleted posts cannot leave stale entries behind.
package content

package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/jgchk/blog-sub001/internal/content"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/notify"
	"github.com/jgchk/blog-sub001/internal/otel"
	"github.com/jgchk/blog-sub001/internal/retry"
	"github.com/jgchk/blog-sub001/internal/status"
	"github.com/jgchk/blog-sub001/internal/storage"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
)

const (
	// TagsDir is the storage directory of the tag pages
	TagsDir = "tags"
	// TagListingKey is the JSON listing of every tag
	TagListingKey = TagsDir + "/index.json"

	pageFileName    = "index.html"
	htmlContentType = "text/html; charset=utf-8"
	jsonContentType = "application/json"

	// maxInvalidationPaths is the number of wildcard paths CloudFront accepts
	// in flight; larger sets are collapsed into a purge of everything.
	maxInvalidationPaths = 15
)

var errReservedSlug = fmt.Errorf("slug %q is reserved for tag pages", TagsDir)

// PageKey is the storage key of an article page
func PageKey(slug string) string {
	return path.Join(slug, pageFileName)
}

// TagPageKey is the storage key of a tag page
func TagPageKey(tagSlug string) string {
	return path.Join(TagsDir, tagSlug, pageFileName)
}

// run holds the state of one sync. Fields are written by the goroutine
// driving the run; workers only read them and report through indexed slices.
type run struct {
	o       *Orchestrator
	req     Request
	started time.Time

	changed map[string]bool
	removed []string

	files     map[string]content.File
	present   map[string]bool
	articles  []content.Article
	bySlug    map[string]content.Article
	affected  []content.Article
	unpublish map[string]bool
	links     map[string][]content.CrossLink
	index     *content.TagIndex

	rendered      map[string][]byte
	assets        map[string][]content.File
	removedAssets []string

	deleted          []string
	tagPages         int
	cacheInvalidated bool

	failures map[string]ArticleFailure
	errs     []status.SyncError
}

func newRun(o *Orchestrator, req Request) *run {
	return &run{
		o:         o,
		req:       req,
		started:   time.Now(),
		changed:   make(map[string]bool),
		files:     make(map[string]content.File),
		present:   make(map[string]bool),
		bySlug:    make(map[string]content.Article),
		unpublish: make(map[string]bool),
		links:     make(map[string][]content.CrossLink),
		index:     content.BuildTagIndex(nil),
		rendered:  make(map[string][]byte),
		assets:    make(map[string][]content.File),
		failures:  make(map[string]ArticleFailure),
	}
}

func (r *run) full() bool {
	return r.req.Kind == KindFull
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	r.o.tracker.StartSync(ctx, r.req.SyncID, r.req.Commit())
	logger.Infof("Sync '%s': starting %s sync of %s", r.req.SyncID, r.req.Kind, r.req.Commit())

	stages := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseReading, r.read},
		{PhaseRendering, r.render},
		{PhaseUploading, r.upload},
		{PhaseInvalidating, r.invalidate},
	}
	for _, stage := range stages {
		r.o.setPhase(r.req.SyncID, stage.phase)

		stageCtx, span := otel.StartSpan(ctx, r.o.tracer, "sync."+strings.ToLower(string(stage.phase)))
		err := stage.fn(stageCtx)
		if err == nil && ctx.Err() != nil {
			err = &Error{Kind: ErrorKindInternal, Err: fmt.Errorf("sync aborted: %w", ctx.Err())}
		}
		otel.EndSpan(span, err)

		if err != nil {
			return r.fail(ctx, err)
		}
	}
	return r.complete(ctx), nil
}

// read resolves the file set, fetches it and parses every post
func (r *run) read(ctx context.Context) error {
	root := r.o.contentRoot
	ref := r.req.RepositoryRef

	var changed []string
	if !r.full() {
		changed, r.removed = r.req.Changes.Filter(root)
	}
	for _, p := range changed {
		r.changed[p] = true
	}

	fetched, err := r.fetchChanged(ctx, changed)
	if err != nil {
		return err
	}

	all := retry.Execute(ctx, r.o.retry, func(ctx context.Context) ([]content.File, error) {
		return r.o.fetcher.FetchAll(ctx, ref)
	})
	if !all.Success() {
		return &Error{Kind: ErrorKindFetch, Err: fmt.Errorf("fetch repository at %q after %d attempts: %w",
			ref, all.Attempts, all.LastError())}
	}
	for _, f := range all.Value {
		if content.IsUnderRoot(root, f.Path) {
			r.files[f.Path] = f
		}
	}
	for _, f := range fetched {
		r.files[f.Path] = f
	}
	for _, p := range r.removed {
		delete(r.files, p)
	}

	r.parse()
	r.planRemovals()

	r.index = content.BuildTagIndex(r.articles)
	resolver := content.NewCrossLinkResolver(r.articles)
	links, issues := resolver.ResolveAll(r.affected)
	for _, l := range links {
		r.links[l.SourceSlug] = append(r.links[l.SourceSlug], l)
	}
	for _, issue := range issues {
		logger.Warnf("Sync '%s': article '%s': %s", r.req.SyncID, issue.ArticleSlug, issue.Message)
	}

	logger.Infof("Sync '%s': read %d files, %d articles (%d to render, %d to unpublish), %d tags",
		r.req.SyncID, len(r.files), len(r.articles), len(r.affected), len(r.unpublish), r.index.Len())
	return nil
}

// fetchChanged fetches each changed path on its own so that one unreadable
// file only fails its article. It fails when no path could be read.
func (r *run) fetchChanged(ctx context.Context, paths []string) ([]content.File, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	files := make([]content.File, len(paths))
	errs := make([]error, len(paths))
	r.o.parallel(len(paths), func(i int) {
		res := retry.Execute(ctx, r.o.retry, func(ctx context.Context) ([]content.File, error) {
			got, err := r.o.fetcher.FetchChanged(ctx, r.req.RepositoryRef, paths[i:i+1])
			if err == nil && len(got) != 1 {
				err = fmt.Errorf("expected 1 file, got %d", len(got))
			}
			return got, err
		})
		if res.Success() {
			files[i] = res.Value[0]
			return
		}
		errs[i] = fmt.Errorf("fetch %s after %d attempts: %w", paths[i], res.Attempts, res.LastError())
	})

	var (
		out    []content.File
		failed []error
	)
	for i, p := range paths {
		if errs[i] == nil {
			out = append(out, files[i])
			continue
		}
		failed = append(failed, errs[i])
		if slug, ok := r.postSlug(p); ok {
			r.recordFailure(&Error{Kind: ErrorKindFetch, Slug: slug, Err: errs[i]})
		}
	}
	if len(out) == 0 {
		return nil, &Error{Kind: ErrorKindFetch, Err: multierr.Combine(failed...)}
	}
	return out, nil
}

// postSlug returns the slug of the post a post or asset path belongs to
func (r *run) postSlug(p string) (string, bool) {
	if slug, ok := content.SlugFromPath(r.o.contentRoot, p); ok {
		return slug, true
	}
	slug, _, ok := content.AssetFromPath(r.o.contentRoot, p)
	return slug, ok
}

// parse builds the published article set and the articles to render
func (r *run) parse() {
	paths := slices.Sorted(maps.Keys(r.files))
	for _, p := range paths {
		slug, ok := content.SlugFromPath(r.o.contentRoot, p)
		if !ok {
			continue
		}
		r.present[slug] = true
		target := r.full() || r.req.Force || r.changed[p]

		article, err := r.o.parser.Parse(r.files[p])
		if err == nil && slug == TagsDir {
			err = errReservedSlug
		}
		if err != nil {
			if target {
				r.recordFailure(&Error{Kind: ErrorKindParse, Slug: slug, Err: err})
			} else {
				logger.Warnf("Sync '%s': skipping unparseable post '%s': %v", r.req.SyncID, slug, err)
			}
			continue
		}

		if article.Draft {
			if target {
				r.unpublish[slug] = true
			}
			continue
		}

		r.articles = append(r.articles, article)
		r.bySlug[slug] = article
		if _, failed := r.failures[slug]; target && !failed {
			r.affected = append(r.affected, article)
		}
	}
}

// planRemovals marks removed posts for unpublishing and collects removed assets
func (r *run) planRemovals() {
	for _, p := range r.removed {
		if slug, ok := content.SlugFromPath(r.o.contentRoot, p); ok {
			if _, exists := r.bySlug[slug]; !exists {
				r.unpublish[slug] = true
			}
		}
	}
	for _, p := range r.removed {
		slug, name, ok := content.AssetFromPath(r.o.contentRoot, p)
		if ok && !r.unpublish[slug] {
			r.removedAssets = append(r.removedAssets, path.Join(slug, name))
		}
	}
}

// render renders the affected articles and queues their assets
func (r *run) render(ctx context.Context) error {
	pages := make([][]byte, len(r.affected))
	errs := make([]error, len(r.affected))
	r.o.parallel(len(r.affected), func(i int) {
		article := r.affected[i]
		res := retry.Execute(ctx, r.o.retry, func(context.Context) ([]byte, error) {
			return r.o.renderer.RenderArticle(article, r.links[article.Slug])
		})
		if res.Success() {
			pages[i] = res.Value
			return
		}
		errs[i] = fmt.Errorf("render after %d attempts: %w", res.Attempts, res.LastError())
	})

	for i, article := range r.affected {
		if errs[i] != nil {
			r.recordFailure(&Error{Kind: ErrorKindRender, Slug: article.Slug, Err: errs[i]})
			continue
		}
		r.rendered[article.Slug] = pages[i]
	}

	r.queueAssets()
	return nil
}

// queueAssets selects the colocated files to copy: every asset of a rendered
// article, and changed assets of published articles that were not re-rendered.
func (r *run) queueAssets() {
	for _, p := range slices.Sorted(maps.Keys(r.files)) {
		slug, _, ok := content.AssetFromPath(r.o.contentRoot, p)
		if !ok {
			continue
		}
		if _, failed := r.failures[slug]; failed {
			continue
		}
		_, rendered := r.rendered[slug]
		_, published := r.bySlug[slug]
		if rendered || (published && r.changed[p]) {
			r.assets[slug] = append(r.assets[slug], r.files[p])
		}
	}
}

// upload publishes pages and assets, applies deletions and regenerates tag pages
func (r *run) upload(ctx context.Context) error {
	slugs := slices.Sorted(maps.Keys(r.rendered))
	for slug := range r.assets {
		if _, ok := r.rendered[slug]; !ok {
			slugs = append(slugs, slug)
		}
	}
	slices.Sort(slugs)

	errs := make([]error, len(slugs))
	r.o.parallel(len(slugs), func(i int) {
		errs[i] = r.publish(ctx, slugs[i])
	})
	for i, slug := range slugs {
		if errs[i] != nil {
			delete(r.rendered, slug)
			r.recordFailure(&Error{Kind: ErrorKindStorage, Slug: slug, Err: errs[i]})
		}
	}

	if r.full() {
		r.planStale(ctx)
	}
	r.applyDeletions(ctx)
	r.publishTags(ctx)
	return nil
}

func (r *run) publish(ctx context.Context, slug string) error {
	if page, ok := r.rendered[slug]; ok {
		if err := r.write(ctx, PageKey(slug), page, htmlContentType); err != nil {
			return err
		}
	}
	for _, f := range r.assets[slug] {
		_, name, _ := content.AssetFromPath(r.o.contentRoot, f.Path)
		key := path.Join(slug, name)
		if err := r.write(ctx, key, f.Content, storage.ContentTypeFor(key)); err != nil {
			return err
		}
	}
	return nil
}

// planStale marks published articles whose post no longer exists in the
// repository. A post that exists but failed this run keeps its published page.
func (r *run) planStale(ctx context.Context) {
	keys, err := r.list(ctx, "")
	if err != nil {
		r.recordError(&Error{Kind: ErrorKindStorage, Err: fmt.Errorf("list published pages: %w", err)})
		return
	}
	for _, key := range keys {
		slug, file, ok := strings.Cut(key, "/")
		if !ok || file != pageFileName || slug == TagsDir {
			continue
		}
		if _, failed := r.failures[slug]; failed || r.present[slug] {
			continue
		}
		r.unpublish[slug] = true
	}
}

func (r *run) applyDeletions(ctx context.Context) {
	slugs := slices.Sorted(maps.Keys(r.unpublish))
	removed := make([]bool, len(slugs))
	errs := make([]error, len(slugs))
	r.o.parallel(len(slugs), func(i int) {
		removed[i], errs[i] = r.deleteArticle(ctx, slugs[i])
	})
	for i, slug := range slugs {
		switch {
		case errs[i] != nil:
			r.recordFailure(&Error{Kind: ErrorKindStorage, Slug: slug, Err: errs[i]})
		case removed[i]:
			r.deleted = append(r.deleted, slug)
		}
	}

	assetErrs := make([]error, len(r.removedAssets))
	r.o.parallel(len(r.removedAssets), func(i int) {
		assetErrs[i] = r.delete(ctx, r.removedAssets[i])
	})
	for i, key := range r.removedAssets {
		if assetErrs[i] != nil {
			slug, _, _ := strings.Cut(key, "/")
			r.recordFailure(&Error{Kind: ErrorKindStorage, Slug: slug, Err: assetErrs[i]})
		}
	}
}

// deleteArticle removes every key of a published article. It reports whether
// anything was published.
func (r *run) deleteArticle(ctx context.Context, slug string) (bool, error) {
	keys, err := r.list(ctx, slug+"/")
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if err := r.delete(ctx, key); err != nil {
			return false, err
		}
	}
	// the page itself is deleted even if the listing missed it
	if err := r.delete(ctx, PageKey(slug)); err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// publishTags writes a page per tag and the tag listing, then removes the
// pages of tags that no longer exist
func (r *run) publishTags(ctx context.Context) {
	tags := r.index.AllTags()
	errs := make([]error, len(tags))
	r.o.parallel(len(tags), func(i int) {
		tag := tags[i]
		res := retry.Execute(ctx, r.o.retry, func(context.Context) ([]byte, error) {
			return r.o.renderer.RenderTagPage(tag, r.articles)
		})
		if !res.Success() {
			errs[i] = &Error{Kind: ErrorKindRender, Err: fmt.Errorf("tag page %q: %w", tag.Slug, res.LastError())}
			return
		}
		if err := r.write(ctx, TagPageKey(tag.Slug), res.Value, htmlContentType); err != nil {
			errs[i] = &Error{Kind: ErrorKindStorage, Err: fmt.Errorf("tag page %q: %w", tag.Slug, err)}
		}
	})
	for _, err := range errs {
		if err != nil {
			r.recordError(err)
			continue
		}
		r.tagPages++
	}

	listing, err := json.Marshal(r.index)
	if err == nil {
		err = r.write(ctx, TagListingKey, listing, jsonContentType)
	}
	if err != nil {
		r.recordError(&Error{Kind: ErrorKindStorage, Err: fmt.Errorf("tag listing: %w", err)})
	}

	keys, err := r.list(ctx, TagsDir+"/")
	if err != nil {
		r.recordError(&Error{Kind: ErrorKindStorage, Err: fmt.Errorf("list tag pages: %w", err)})
		return
	}
	for _, key := range keys {
		tagSlug, _, nested := strings.Cut(strings.TrimPrefix(key, TagsDir+"/"), "/")
		if !nested {
			continue
		}
		if _, ok := r.index.Tag(tagSlug); ok {
			continue
		}
		if err := r.delete(ctx, key); err != nil {
			r.recordError(&Error{Kind: ErrorKindStorage, Err: fmt.Errorf("stale tag page %q: %w", tagSlug, err)})
		}
	}
}

// invalidate purges the CDN paths of everything this sync touched. An
// exhausted invalidation is recorded but does not fail the sync.
func (r *run) invalidate(ctx context.Context) error {
	paths := r.invalidationPaths()
	if len(paths) == 0 {
		return nil
	}

	res := retry.Execute(ctx, r.o.retry, func(ctx context.Context) (string, error) {
		return r.o.invalidator.Invalidate(ctx, paths)
	})
	if !res.Success() {
		r.recordError(&Error{Kind: ErrorKindInvalidation, Err: fmt.Errorf("invalidate %d paths after %d attempts: %w",
			len(paths), res.Attempts, res.LastError())})
		return nil
	}

	r.cacheInvalidated = true
	logger.Infof("Sync '%s': requested invalidation %s for %d paths", r.req.SyncID, res.Value, len(paths))
	return nil
}

func (r *run) invalidationPaths() []string {
	slugs := make(map[string]bool)
	for slug := range r.rendered {
		slugs[slug] = true
	}
	for slug := range r.assets {
		slugs[slug] = true
	}
	for _, slug := range r.deleted {
		slugs[slug] = true
	}
	for _, key := range r.removedAssets {
		slug, _, _ := strings.Cut(key, "/")
		slugs[slug] = true
	}
	if len(slugs) == 0 && !r.full() {
		return nil
	}

	paths := make([]string, 0, len(slugs)+1)
	for _, slug := range slices.Sorted(maps.Keys(slugs)) {
		paths = append(paths, "/"+slug+"/*")
	}
	paths = append(paths, "/"+TagsDir+"/*")

	if r.full() || len(paths) > maxInvalidationPaths {
		return []string{"/*"}
	}
	return paths
}

// complete finalizes a run that went through every stage
func (r *run) complete(ctx context.Context) *Result {
	r.o.setPhase(r.req.SyncID, PhaseComplete)

	processed := len(r.rendered) + len(r.deleted)
	alerting := r.o.tracker.ShouldAlert()
	final, _ := r.o.tracker.CompleteSync(ctx, r.req.SyncID, processed, len(r.failures), r.errs)
	result := r.result(true)
	r.o.metrics.RecordContent(ctx, len(r.bySlug), r.index.Len())

	logger.Infof("Sync '%s': completed in %dms: %d rendered, %d failed, %d deleted, %d tag pages",
		r.req.SyncID, result.DurationMs, len(result.ArticlesRendered), len(result.ArticlesFailed),
		len(result.ArticlesDeleted), result.TagPagesGenerated)

	switch {
	case failedStatus(final) && !alerting && r.o.tracker.ShouldAlert():
		r.o.send(ctx, r.alert(fmt.Sprintf("%d articles failed to publish.", len(result.ArticlesFailed))))
	case len(result.ArticlesFailed) > 0:
		r.o.send(ctx, notify.Notification{
			Subject:  fmt.Sprintf("Blog sync %s: %d articles failed", r.req.SyncID, len(result.ArticlesFailed)),
			Body:     failureSummary(result),
			Severity: notify.SeverityWarning,
			Metadata: r.metadata(),
		})
	}
	return result
}

// fail finalizes a run stopped by an infrastructure error
func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	r.o.setPhase(r.req.SyncID, PhaseFailed)

	var syncErr *Error
	if !errors.As(err, &syncErr) {
		err = &Error{Kind: ErrorKindInternal, Err: err}
	}
	logger.Errorf("Sync '%s' failed: %v", r.req.SyncID, err)

	alerting := r.o.tracker.ShouldAlert()
	r.o.tracker.FailSync(ctx, r.req.SyncID, statusError(err))
	result := r.result(false)

	// Critical only on the run that crosses the threshold
	if !alerting && r.o.tracker.ShouldAlert() {
		r.o.send(ctx, r.alert(err.Error()))
	} else {
		r.o.send(ctx, notify.Notification{
			Subject:  fmt.Sprintf("Blog sync %s failed", r.req.SyncID),
			Body:     fmt.Sprintf("Sync of commit %s failed: %v", r.req.Commit(), err),
			Severity: notify.SeverityError,
			Metadata: r.metadata(),
		})
	}
	return result, err
}

func (r *run) alert(detail string) notify.Notification {
	failures := r.o.tracker.ConsecutiveFailures()
	return notify.Notification{
		Subject: fmt.Sprintf("Blog sync alert: %d consecutive failures", failures),
		Body: fmt.Sprintf("Sync %s of commit %s failed. %s\nPublishing has failed %d times in a row (threshold %d).",
			r.req.SyncID, r.req.Commit(), detail, failures, tracker.AlertThreshold),
		Severity: notify.SeverityCritical,
		Metadata: r.metadata(),
	}
}

func (r *run) metadata() map[string]string {
	return map[string]string{
		"syncId": r.req.SyncID,
		"commit": r.req.Commit(),
		"kind":   string(r.req.Kind),
	}
}

func failureSummary(result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync %s published %d articles; these failed:\n", result.SyncID, len(result.ArticlesRendered))
	for _, f := range result.ArticlesFailed {
		fmt.Fprintf(&b, "- %s: %s\n", f.Slug, f.Error)
	}
	return b.String()
}

// result builds the immutable outcome of the run
func (r *run) result(finished bool) *Result {
	rendered := slices.Sorted(maps.Keys(r.rendered))
	if rendered == nil {
		rendered = []string{}
	}
	failed := make([]ArticleFailure, 0, len(r.failures))
	for _, slug := range slices.Sorted(maps.Keys(r.failures)) {
		failed = append(failed, r.failures[slug])
	}
	deleted := slices.Clone(r.deleted)
	if deleted == nil {
		deleted = []string{}
	}

	return &Result{
		SyncID:            r.req.SyncID,
		Success:           finished && len(failed) == 0,
		ArticlesRendered:  rendered,
		ArticlesFailed:    failed,
		ArticlesDeleted:   deleted,
		TagPagesGenerated: r.tagPages,
		CacheInvalidated:  r.cacheInvalidated,
		DurationMs:        time.Since(r.started).Milliseconds(),
	}
}

// recordFailure marks an article as not published. The first failure of an
// article is the one reported.
func (r *run) recordFailure(err *Error) {
	if _, seen := r.failures[err.Slug]; !seen {
		r.failures[err.Slug] = ArticleFailure{Slug: err.Slug, Error: err.Err.Error()}
	}
	r.errs = append(r.errs, statusError(err))
	logger.Warnf("Sync '%s': %v", r.req.SyncID, err)
}

// recordError records a failure that is not tied to an article
func (r *run) recordError(err error) {
	r.errs = append(r.errs, statusError(err))
	logger.Warnf("Sync '%s': %v", r.req.SyncID, err)
}

func (r *run) write(ctx context.Context, key string, data []byte, contentType string) error {
	res := r.o.retry.Do(ctx, func(ctx context.Context) error {
		return r.o.storage.Write(ctx, key, data, contentType)
	})
	if !res.Success() {
		return fmt.Errorf("write %s after %d attempts: %w", key, res.Attempts, res.LastError())
	}
	return nil
}

func (r *run) delete(ctx context.Context, key string) error {
	res := r.o.retry.Do(ctx, func(ctx context.Context) error {
		return r.o.storage.Delete(ctx, key)
	})
	if !res.Success() {
		return fmt.Errorf("delete %s after %d attempts: %w", key, res.Attempts, res.LastError())
	}
	return nil
}

func (r *run) list(ctx context.Context, prefix string) ([]string, error) {
	res := retry.Execute(ctx, r.o.retry, func(ctx context.Context) ([]string, error) {
		return r.o.storage.List(ctx, prefix)
	})
	if !res.Success() {
		return nil, fmt.Errorf("list %q after %d attempts: %w", prefix, res.Attempts, res.LastError())
	}
	return res.Value, nil
}

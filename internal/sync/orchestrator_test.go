package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	cdnmocks "github.com/jgchk/blog-sub001/internal/cdn/mocks"
	"github.com/jgchk/blog-sub001/internal/content"
	"github.com/jgchk/blog-sub001/internal/markdown"
	"github.com/jgchk/blog-sub001/internal/notify"
	notifymocks "github.com/jgchk/blog-sub001/internal/notify/mocks"
	"github.com/jgchk/blog-sub001/internal/retry"
	sourcemocks "github.com/jgchk/blog-sub001/internal/sources/mocks"
	"github.com/jgchk/blog-sub001/internal/status"
	"github.com/jgchk/blog-sub001/internal/storage"
	"github.com/jgchk/blog-sub001/internal/sync/mocks"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
)

const testRef = "abc123"

func post(slug, title string, tags ...string) content.File {
	body := fmt.Sprintf("---\ntitle: %s\ntags: [%s]\n---\nBody of %s.\n", title, strings.Join(tags, ", "), slug)
	return content.File{Path: "posts/" + slug + "/index.md", Content: []byte(body)}
}

func noWaitRetry() *retry.Handler {
	return retry.New(
		retry.Options{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 2},
		retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
}

// failingRenderer fails every attempt to render one article
type failingRenderer struct {
	*markdown.Renderer
	slug     string
	attempts atomic.Int32
}

func (f *failingRenderer) RenderArticle(a content.Article, links []content.CrossLink) ([]byte, error) {
	if a.Slug == f.slug {
		f.attempts.Add(1)
		return nil, errors.New("template exploded")
	}
	return f.Renderer.RenderArticle(a, links)
}

type fixture struct {
	fetcher     *sourcemocks.MockContentFetcher
	notifier    *notifymocks.MockNotifier
	invalidator *cdnmocks.MockInvalidator
	store       *storage.FileStorage
	tracker     *tracker.Tracker
}

func newOrchestrator(t *testing.T, renderer Renderer) (*Orchestrator, *fixture) {
	t.Helper()
	return newOrchestratorWithStorage(t, renderer, nil)
}

// newOrchestratorWithStorage lets wrap sit between the orchestrator and the fixture store
func newOrchestratorWithStorage(
	t *testing.T, renderer Renderer, wrap func(storage.Storage) storage.Storage,
) (*Orchestrator, *fixture) {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		fetcher:     sourcemocks.NewMockContentFetcher(ctrl),
		notifier:    notifymocks.NewMockNotifier(ctrl),
		invalidator: cdnmocks.NewMockInvalidator(ctrl),
		store:       storage.NewFileStorageFs(afero.NewMemMapFs()),
		tracker:     tracker.New(),
	}
	if renderer == nil {
		renderer = markdown.NewRenderer("Test Blog")
	}
	var store storage.Storage = f.store
	if wrap != nil {
		store = wrap(f.store)
	}

	o, err := New(Dependencies{
		Fetcher:     f.fetcher,
		Parser:      markdown.NewParser("posts"),
		Renderer:    renderer,
		Storage:     store,
		Notifier:    f.notifier,
		Invalidator: f.invalidator,
		Tracker:     f.tracker,
		Retry:       noWaitRetry(),
		ContentRoot: "posts",
		Workers:     2,
	})
	require.NoError(t, err)
	return o, f
}

// serve makes the fetcher answer from files
func (f *fixture) serve(files ...content.File) {
	byPath := make(map[string]content.File, len(files))
	for _, file := range files {
		byPath[file.Path] = file
	}
	f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).Return(files, nil).AnyTimes()
	f.fetcher.EXPECT().FetchChanged(gomock.Any(), testRef, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, paths []string) ([]content.File, error) {
			var out []content.File
			for _, p := range paths {
				file, ok := byPath[p]
				if !ok {
					return nil, fmt.Errorf("%s: not found", p)
				}
				out = append(out, file)
			}
			return out, nil
		}).AnyTimes()
}

// failingWrites fails every write of one key
type failingWrites struct {
	storage.Storage
	key      string
	attempts atomic.Int32
}

func (s *failingWrites) Write(ctx context.Context, key string, data []byte, contentType string) error {
	if key == s.key {
		s.attempts.Add(1)
		return errors.New("s3 down")
	}
	return s.Storage.Write(ctx, key, data, contentType)
}

func (f *fixture) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.store.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{})
	require.Error(t, err)
	for _, name := range []string{"fetcher", "parser", "renderer", "storage"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestOrchestrator_Sync_IsolatesRenderFailure(t *testing.T) {
	t.Parallel()

	renderer := &failingRenderer{Renderer: markdown.NewRenderer("Test Blog"), slug: "b"}
	o, f := newOrchestrator(t, renderer)
	f.serve(post("a", "Alpha", "Go"), post("b", "Beta", "Go"), post("c", "Gamma"))

	f.invalidator.EXPECT().Invalidate(gomock.Any(), []string{"/a/*", "/c/*", "/tags/*"}).Return("inv-1", nil)
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n notify.Notification) error {
			assert.Equal(t, notify.SeverityWarning, n.Severity)
			assert.Contains(t, n.Body, "b: render after 3 attempts: template exploded")
			return nil
		})

	result, err := o.Sync(context.Background(), Request{
		Kind:          KindIncremental,
		RepositoryRef: testRef,
		Changes: &ChangeSet{Added: []string{
			"posts/a/index.md", "posts/b/index.md", "posts/c/index.md", "README.md",
		}},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"a", "c"}, result.ArticlesRendered)
	require.Len(t, result.ArticlesFailed, 1)
	assert.Equal(t, "b", result.ArticlesFailed[0].Slug)
	assert.True(t, result.CacheInvalidated)
	assert.Equal(t, 1, result.TagPagesGenerated)
	assert.Equal(t, int32(3), renderer.attempts.Load())

	assert.True(t, f.exists(t, "a/index.html"))
	assert.True(t, f.exists(t, "c/index.html"))
	assert.False(t, f.exists(t, "b/index.html"))
	assert.True(t, f.exists(t, "tags/go/index.html"))
	assert.Equal(t, PhaseComplete, o.Phase())

	tracked, ok := f.tracker.GetSync(result.SyncID)
	require.True(t, ok)
	assert.Equal(t, status.StateFailed, tracked.State)
	assert.Equal(t, 2, tracked.ArticlesProcessed)
	assert.Equal(t, 1, tracked.ArticlesFailed)
	require.Len(t, tracked.Errors, 1)
	assert.Equal(t, status.ErrorKindRender, tracked.Errors[0].Kind)
	assert.Equal(t, "b", tracked.Errors[0].ArticleSlug)
}

func TestOrchestrator_Sync_FullSyncRebuildsTagIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, f := newOrchestrator(t, nil)
	f.invalidator.EXPECT().Invalidate(gomock.Any(), []string{"/*"}).Return("inv", nil).Times(2)

	first := []content.File{post("a", "Alpha", "Go"), post("b", "Beta", "Rust", "Go")}
	second := []content.File{post("a", "Alpha", "Go")}
	gomock.InOrder(
		f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).Return(first, nil),
		f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).Return(second, nil),
	)

	result, err := o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"a", "b"}, result.ArticlesRendered)
	assert.Equal(t, 2, result.TagPagesGenerated)
	assert.True(t, f.exists(t, "tags/rust/index.html"))

	result, err = o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"a"}, result.ArticlesRendered)
	assert.Equal(t, []string{"b"}, result.ArticlesDeleted)
	assert.Equal(t, 1, result.TagPagesGenerated)

	assert.False(t, f.exists(t, "b/index.html"))
	assert.False(t, f.exists(t, "tags/rust/index.html"))
	assert.True(t, f.exists(t, "tags/go/index.html"))

	listing, err := f.store.Read(ctx, TagListingKey)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"tags":[{"slug":"go","name":"Go","count":1,"articles":["a"]}],"totalTags":1}`,
		string(listing))
}

func TestOrchestrator_Sync_RemovalsDraftsAndAssets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, f := newOrchestrator(t, nil)
	for _, key := range []string{"old/index.html", "old/diagram.svg", "draft/index.html", "a/stale.png"} {
		require.NoError(t, f.store.Write(ctx, key, []byte("published"), ""))
	}

	draft := content.File{
		Path:    "posts/draft/index.md",
		Content: []byte("---\ntitle: Not yet\ndraft: true\n---\nWIP\n"),
	}
	cover := content.File{Path: "posts/a/cover.png", Content: []byte("png")}
	f.serve(post("a", "Alpha"), cover, draft)
	f.invalidator.EXPECT().Invalidate(gomock.Any(), []string{"/a/*", "/draft/*", "/old/*", "/tags/*"}).Return("inv", nil)

	result, err := o.Sync(ctx, Request{
		RepositoryRef: testRef,
		Changes: &ChangeSet{
			Added:    []string{"posts/a/index.md", "posts/a/cover.png"},
			Modified: []string{"posts/draft/index.md"},
			Removed:  []string{"posts/old/index.md", "posts/old/diagram.svg", "posts/a/stale.png"},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"a"}, result.ArticlesRendered)
	assert.Equal(t, []string{"draft", "old"}, result.ArticlesDeleted)

	assert.True(t, f.exists(t, "a/index.html"))
	assert.True(t, f.exists(t, "a/cover.png"))
	assert.False(t, f.exists(t, "a/stale.png"))
	assert.False(t, f.exists(t, "old/index.html"))
	assert.False(t, f.exists(t, "old/diagram.svg"))
	assert.False(t, f.exists(t, "draft/index.html"))
}

func TestOrchestrator_Sync_ParseFailure(t *testing.T) {
	t.Parallel()

	o, f := newOrchestrator(t, nil)
	untitled := content.File{Path: "posts/untitled/index.md", Content: []byte("---\ntags: [go]\n---\nbody\n")}
	f.serve(post("a", "Alpha"), untitled)
	f.invalidator.EXPECT().Invalidate(gomock.Any(), gomock.Any()).Return("inv", nil)
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("sns down"))

	result, err := o.Sync(context.Background(), Request{
		RepositoryRef: testRef,
		Changes:       &ChangeSet{Modified: []string{"posts/a/index.md", "posts/untitled/index.md"}},
	})
	require.NoError(t, err, "notification errors are swallowed")

	assert.Equal(t, []string{"a"}, result.ArticlesRendered)
	require.Len(t, result.ArticlesFailed, 1)
	assert.Equal(t, "untitled", result.ArticlesFailed[0].Slug)
	assert.Contains(t, result.ArticlesFailed[0].Error, markdown.ErrMissingTitle.Error())

	tracked, ok := f.tracker.GetSync(result.SyncID)
	require.True(t, ok)
	assert.Equal(t, status.ErrorKindParse, tracked.Errors[0].Kind)
}

func TestOrchestrator_Sync_FetchFailureFailsRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, f := newOrchestrator(t, nil)
	f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).Return(nil, errors.New("connection refused")).Times(12)

	var severities []notify.Severity
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n notify.Notification) error {
			severities = append(severities, n.Severity)
			return nil
		}).Times(4)

	for i := range 4 {
		result, err := o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef, SyncID: fmt.Sprintf("sync-%d", i)})
		require.Error(t, err)

		var syncErr *Error
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, ErrorKindFetch, syncErr.Kind)
		assert.False(t, result.Success)
		assert.Equal(t, PhaseFailed, o.Phase())
	}

	// Critical once when the streak reaches the threshold, not on every later failure
	assert.Equal(t, []notify.Severity{
		notify.SeverityError, notify.SeverityError, notify.SeverityCritical, notify.SeverityError,
	}, severities)
	assert.True(t, f.tracker.ShouldAlert())
	assert.Equal(t, 4, f.tracker.ConsecutiveFailures())

	tracked, ok := f.tracker.GetSync("sync-2")
	require.True(t, ok)
	assert.Equal(t, status.StateFailed, tracked.State)
	assert.Equal(t, status.ErrorKindFetch, tracked.Errors[0].Kind)
}

func TestOrchestrator_Sync_AllChangedFetchesFail(t *testing.T) {
	t.Parallel()

	o, f := newOrchestrator(t, nil)
	f.fetcher.EXPECT().FetchChanged(gomock.Any(), testRef, gomock.Any()).
		Return(nil, errors.New("timeout")).Times(3)
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	result, err := o.Sync(context.Background(), Request{
		RepositoryRef: testRef,
		Changes:       &ChangeSet{Added: []string{"posts/a/index.md"}},
	})
	require.Error(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.ArticlesFailed, 1)
	assert.Equal(t, "a", result.ArticlesFailed[0].Slug)
}

func TestOrchestrator_Sync_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, f := newOrchestrator(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).DoAndReturn(
		func(context.Context, string) ([]content.File, error) {
			close(started)
			<-release
			return nil, nil
		})
	f.invalidator.EXPECT().Invalidate(gomock.Any(), gomock.Any()).Return("inv", nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef})
		done <- err
	}()
	<-started
	assert.True(t, o.IsSyncInProgress())

	result, err := o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef})
	require.ErrorIs(t, err, ErrSyncInProgress)
	assert.False(t, result.Success)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.IsSyncInProgress())
}

func TestOrchestrator_Abort(t *testing.T) {
	t.Parallel()

	o, f := newOrchestrator(t, nil)
	assert.False(t, o.Abort(), "nothing to abort while idle")

	started := make(chan struct{})
	f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).DoAndReturn(
		func(ctx context.Context, _ string) ([]content.File, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Sync(context.Background(), Request{Kind: KindFull, RepositoryRef: testRef, SyncID: "sync-abort"})
		done <- err
	}()
	<-started
	assert.True(t, o.Abort())

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseFailed, o.Phase())

	tracked, ok := f.tracker.GetSync("sync-abort")
	require.True(t, ok)
	assert.Equal(t, status.StateFailed, tracked.State)
}

func TestOrchestrator_Sync_TagPageFailureIsNotAnArticleFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockRenderer(ctrl)
	renderer.EXPECT().RenderArticle(gomock.Any(), gomock.Any()).Return([]byte("<p>page</p>"), nil)
	renderer.EXPECT().RenderTagPage(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad template")).Times(3)

	o, f := newOrchestrator(t, renderer)
	f.serve(post("a", "Alpha", "Go"))
	f.invalidator.EXPECT().Invalidate(gomock.Any(), gomock.Any()).Return("", errors.New("throttled")).Times(3)

	result, err := o.Sync(context.Background(), Request{
		RepositoryRef: testRef,
		Changes:       &ChangeSet{Added: []string{"posts/a/index.md"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.TagPagesGenerated)
	assert.False(t, result.CacheInvalidated)

	tracked, ok := f.tracker.GetSync(result.SyncID)
	require.True(t, ok)
	assert.Equal(t, status.StateCompleted, tracked.State)
	kinds := make([]status.ErrorKind, 0, len(tracked.Errors))
	for _, e := range tracked.Errors {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []status.ErrorKind{status.ErrorKindRender, status.ErrorKindInvalidation}, kinds)
}

func TestOrchestrator_Sync_UsesParser(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	parser := mocks.NewMockParser(ctrl)
	parser.EXPECT().Parse(gomock.Any()).Return(content.Article{Slug: "tags", Title: "Tags"}, nil)

	fetcher := sourcemocks.NewMockContentFetcher(ctrl)
	fetcher.EXPECT().FetchAll(gomock.Any(), testRef).Return([]content.File{post("tags", "Tags")}, nil)

	o, err := New(Dependencies{
		Fetcher:     fetcher,
		Parser:      parser,
		Renderer:    markdown.NewRenderer("b"),
		Storage:     storage.NewFileStorageFs(afero.NewMemMapFs()),
		Notifier:    notify.NewLogNotifier(),
		Retry:       noWaitRetry(),
		ContentRoot: "posts",
	})
	require.NoError(t, err)

	result, err := o.Sync(context.Background(), Request{Kind: KindFull, RepositoryRef: testRef})
	require.NoError(t, err)
	require.Len(t, result.ArticlesFailed, 1)
	assert.Equal(t, "tags", result.ArticlesFailed[0].Slug)
	assert.Contains(t, result.ArticlesFailed[0].Error, "reserved")
}

func TestOrchestrator_Sync_FullSyncKeepsPageOfFailedPost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, f := newOrchestrator(t, nil)
	untitled := content.File{Path: "posts/b/index.md", Content: []byte("---\ntags: [go]\n---\nbody\n")}
	gomock.InOrder(
		f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).
			Return([]content.File{post("a", "Alpha", "go"), post("b", "Beta", "go"), post("c", "Gamma")}, nil),
		f.fetcher.EXPECT().FetchAll(gomock.Any(), testRef).
			Return([]content.File{post("a", "Alpha", "go"), untitled}, nil),
	)
	f.invalidator.EXPECT().Invalidate(gomock.Any(), []string{"/*"}).Return("inv", nil).Times(2)
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	first, err := o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, first.ArticlesRendered)
	require.True(t, f.exists(t, PageKey("b")))

	second, err := o.Sync(ctx, Request{Kind: KindFull, RepositoryRef: testRef})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, []string{"a"}, second.ArticlesRendered)
	require.Len(t, second.ArticlesFailed, 1)
	assert.Equal(t, "b", second.ArticlesFailed[0].Slug)
	assert.Equal(t, []string{"c"}, second.ArticlesDeleted, "only the post gone from the repository is unpublished")

	assert.True(t, f.exists(t, PageKey("b")), "a post that failed to parse keeps its published page")
	assert.False(t, f.exists(t, PageKey("c")))
	assert.True(t, f.exists(t, PageKey("a")))
}

func TestOrchestrator_Sync_StorageFailureIsolatesArticle(t *testing.T) {
	t.Parallel()

	var store *failingWrites
	o, f := newOrchestratorWithStorage(t, nil, func(s storage.Storage) storage.Storage {
		store = &failingWrites{Storage: s, key: PageKey("b")}
		return store
	})
	f.serve(post("a", "Alpha", "go"), post("b", "Beta", "go"), post("c", "Gamma"))
	f.invalidator.EXPECT().Invalidate(gomock.Any(), gomock.Any()).Return("inv", nil)

	var sent notify.Notification
	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n notify.Notification) error {
			sent = n
			return nil
		})

	result, err := o.Sync(context.Background(), Request{Kind: KindFull, RepositoryRef: testRef})
	require.NoError(t, err, "a per-article storage failure does not fail the run")

	assert.False(t, result.Success)
	assert.Equal(t, []string{"a", "c"}, result.ArticlesRendered)
	require.Len(t, result.ArticlesFailed, 1)
	assert.Equal(t, "b", result.ArticlesFailed[0].Slug)
	assert.Contains(t, result.ArticlesFailed[0].Error, "s3 down")
	assert.Equal(t, int32(3), store.attempts.Load(), "the write is retried before giving up")

	assert.True(t, f.exists(t, PageKey("a")))
	assert.True(t, f.exists(t, PageKey("c")))
	assert.False(t, f.exists(t, PageKey("b")))
	assert.True(t, f.exists(t, TagPageKey("go")), "tag pages are still published")

	tracked, ok := f.tracker.GetSync(result.SyncID)
	require.True(t, ok)
	assert.Equal(t, status.StateFailed, tracked.State)
	require.Len(t, tracked.Errors, 1)
	assert.Equal(t, status.ErrorKindStorage, tracked.Errors[0].Kind)
	assert.Equal(t, "b", tracked.Errors[0].ArticleSlug)
	assert.Equal(t, notify.SeverityWarning, sent.Severity)
}

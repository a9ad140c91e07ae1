package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jgchk/blog-sub001/internal/api/webhook"
	"github.com/jgchk/blog-sub001/internal/api/webhook/mocks"
	"github.com/jgchk/blog-sub001/internal/status"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
	"github.com/jgchk/blog-sub001/internal/sync/coordinator"
	runnermocks "github.com/jgchk/blog-sub001/internal/sync/coordinator/mocks"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
)

var testSecret = []byte("s3cret")

const pushToMain = `{
	"ref": "refs/heads/main",
	"after": "abc123",
	"repository": {"full_name": "jgchk/blog"},
	"commits": [
		{"id": "abc122", "added": ["posts/hello/index.md"], "modified": [], "removed": []},
		{"id": "abc123", "added": [], "modified": ["posts/hello/index.md", "README.md"], "removed": ["posts/old/index.md"]}
	]
}`

func testConfig() webhook.Config {
	return webhook.Config{
		Secret:      testSecret,
		Branch:      "main",
		ContentRoot: "posts",
	}
}

func newDelivery(t *testing.T, event, body, signature string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set(webhook.EventHeader, event)
	}
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	return req
}

func signed(t *testing.T, event, body string) *http.Request {
	t.Helper()
	return newDelivery(t, event, body, webhook.Sign(testSecret, []byte(body)))
}

// newCoordinatorRouter wires the webhook to a real coordinator that is never
// started, so queued syncs are only registered with the tracker
func newCoordinatorRouter(t *testing.T) (http.Handler, *tracker.Tracker) {
	t.Helper()

	ctrl := gomock.NewController(t)
	tr := tracker.New()
	coord := coordinator.New(runnermocks.NewMockRunner(ctrl), tr)

	router, err := webhook.Router(coord, testConfig())
	require.NoError(t, err)
	return router, tr
}

func TestRouter_RequiresSecretAndQueue(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	_, err := webhook.Router(mocks.NewMockQueue(ctrl), webhook.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")

	_, err = webhook.Router(nil, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue")
}

func TestHandleDelivery_AcceptsPush(t *testing.T) {
	t.Parallel()

	router, tr := newCoordinatorRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signed(t, "push", pushToMain))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp webhook.AcceptedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, webhook.StatusAccepted, resp.Status)
	assert.NotEmpty(t, resp.SyncID)

	s, ok := tr.GetSync(resp.SyncID)
	require.True(t, ok)
	assert.Equal(t, status.StatePending, s.State)
	assert.Equal(t, "abc123", s.CommitHash)
}

func TestHandleDelivery_QueuedRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	queue := mocks.NewMockQueue(ctrl)
	queue.EXPECT().
		Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req pkgsync.Request) (string, error) {
			assert.Equal(t, pkgsync.KindIncremental, req.Kind)
			assert.Equal(t, "abc123", req.RepositoryRef)
			assert.Equal(t, "abc123", req.CommitID)
			require.NotNil(t, req.Changes)
			assert.Equal(t, []string{"posts/hello/index.md"}, req.Changes.Added)
			assert.Equal(t, []string{"README.md"}, req.Changes.Modified)
			assert.Equal(t, []string{"posts/old/index.md"}, req.Changes.Removed)
			return "sync-1", nil
		})

	router, err := webhook.Router(queue, testConfig())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signed(t, "push", pushToMain))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"syncId":"sync-1","status":"accepted"}`, rr.Body.String())
}

func TestHandleDelivery_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		request    func(t *testing.T) *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name: "tampered body with original signature",
			request: func(t *testing.T) *http.Request {
				t.Helper()
				sig := webhook.Sign(testSecret, []byte(pushToMain))
				tampered := strings.Replace(pushToMain, "posts/old", "posts/other", 1)
				return newDelivery(t, "push", tampered, sig)
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid signature",
		},
		{
			name: "wrong secret",
			request: func(t *testing.T) *http.Request {
				t.Helper()
				return newDelivery(t, "push", pushToMain, webhook.Sign([]byte("other"), []byte(pushToMain)))
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid signature",
		},
		{
			name: "missing signature",
			request: func(t *testing.T) *http.Request {
				t.Helper()
				return newDelivery(t, "push", pushToMain, "")
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid signature",
		},
		{
			name: "empty body",
			request: func(t *testing.T) *http.Request {
				t.Helper()
				return signed(t, "push", "")
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "request body is required",
		},
		{
			name: "invalid JSON",
			request: func(t *testing.T) *http.Request {
				t.Helper()
				return signed(t, "push", `{"ref": `)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, tr := newCoordinatorRouter(t)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, tt.request(t))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantError+`"}`, rr.Body.String())
			assert.Equal(t, 0, tr.Total())
		})
	}
}

func TestHandleDelivery_Ignored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		event      string
		body       string
		wantReason string
	}{
		{
			name:       "feature branch",
			event:      "push",
			body:       strings.Replace(pushToMain, "refs/heads/main", "refs/heads/feature-x", 1),
			wantReason: "branch",
		},
		{
			name:       "tag push",
			event:      "push",
			body:       strings.Replace(pushToMain, "refs/heads/main", "refs/tags/v1", 1),
			wantReason: "branch",
		},
		{
			name:       "ping event",
			event:      "ping",
			body:       `{"zen": "Keep it logically awesome."}`,
			wantReason: "event",
		},
		{
			name:       "missing event header",
			event:      "",
			body:       pushToMain,
			wantReason: "event",
		},
		{
			name:  "no paths under the content root",
			event: "push",
			body: `{"ref": "refs/heads/main", "after": "def456", "commits": [
				{"id": "def456", "added": ["docs/guide.md"], "modified": ["postscript/index.md"], "removed": []}
			]}`,
			wantReason: "no content changes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, tr := newCoordinatorRouter(t)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, signed(t, tt.event, tt.body))

			require.Equal(t, http.StatusOK, rr.Code)

			var resp webhook.IgnoredResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, webhook.StatusIgnored, resp.Status)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.Equal(t, 0, tr.Total(), "ignored deliveries must not touch the tracker")
		})
	}
}

func TestHandleDelivery_QueueErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "queue full",
			err:        coordinator.ErrQueueFull,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "sync queue is full",
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to queue sync",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			queue := mocks.NewMockQueue(ctrl)
			queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("", tt.err)

			router, err := webhook.Router(queue, testConfig())
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, signed(t, "push", pushToMain))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantError+`"}`, rr.Body.String())
		})
	}
}

func TestHandleDelivery_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	cfg := testConfig()
	cfg.MaxBodyBytes = 16

	router, err := webhook.Router(mocks.NewMockQueue(ctrl), cfg)
	require.NoError(t, err)

	body := bytes.Repeat([]byte("a"), 64)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signed(t, "push", string(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

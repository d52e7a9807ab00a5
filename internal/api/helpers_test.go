package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-gateway/internal/audit"
	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

const (
	testToken = "caller-token-0123456789abcdef0123456789"
	otherTok  = "second-token-0123456789abcdef0123456789"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService records calls. Failures and delays are keyed by call prefix
// ("folders", "content", ...).
type fakeService struct {
	mu      sync.Mutex
	calls   []string
	callers []authz.Caller
	fail    map[string]error
	delay   map[string]time.Duration
	depth   int
	content string
	panics  bool
	pings   int

	// detached holds the kinds whose context could never be canceled.
	detached []string
}

func (f *fakeService) note(ctx context.Context, kind, call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, kind+":"+call)

	if c, ok := authz.CallerFrom(ctx); ok {
		f.callers = append(f.callers, c)
	}

	if ctx.Done() == nil {
		f.detached = append(f.detached, kind)
	}

	err := f.fail[kind]
	d := f.delay[kind]
	f.mu.Unlock()

	if f.panics {
		panic("boom")
	}

	if d > 0 {
		time.Sleep(d)
	}

	return err
}

func (f *fakeService) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeService) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pings
}

func (f *fakeService) detachedKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.detached...)
}

func (f *fakeService) ListFolders(ctx context.Context, parent string) (resource.ListResult, error) {
	if err := f.note(ctx, "folders", parent); err != nil {
		return resource.ListResult{}, err
	}

	return resource.ListResult{
		Success: true,
		Items:   []resource.Item{{Name: "Reports", Type: resource.TypeFolder}},
		Count:   1,
	}, nil
}

func (f *fakeService) ListDocuments(ctx context.Context, folder string) (resource.ListResult, error) {
	if err := f.note(ctx, "documents", folder); err != nil {
		return resource.ListResult{}, err
	}

	return resource.ListResult{Success: true, Items: []resource.Item{}}, nil
}

func (f *fakeService) GetDocumentContent(ctx context.Context, folder, name string) (resource.ContentResult, error) {
	if err := f.note(ctx, "content", folder+"|"+name); err != nil {
		return resource.ContentResult{}, err
	}

	return resource.ContentResult{
		Success: true,
		Content: "hello",
		File:    resource.FileRef{Name: name, Path: folder + "/" + name},
		Type:    resource.ContentText,
	}, nil
}

func (f *fakeService) GetFolderTree(ctx context.Context, parent string, maxDepth int) (resource.TreeResult, error) {
	f.mu.Lock()
	f.depth = maxDepth
	f.mu.Unlock()

	if err := f.note(ctx, "tree", parent); err != nil {
		return resource.TreeResult{}, err
	}

	return resource.TreeResult{Success: true, Folder: "root", Tree: resource.Tree{Items: []resource.TreeNode{}}}, nil
}

func (f *fakeService) CreateFolder(ctx context.Context, parent, name string) (resource.MutationResult, error) {
	if err := f.note(ctx, "mkdir", parent+"|"+name); err != nil {
		return resource.MutationResult{}, err
	}

	return resource.MutationResult{Success: true, Message: "Folder '" + name + "' created successfully"}, nil
}

func (f *fakeService) UploadDocument(ctx context.Context, folder, name, content string, isBase64 bool) (resource.MutationResult, error) {
	f.mu.Lock()
	f.content = content
	f.mu.Unlock()

	call := folder + "|" + name
	if isBase64 {
		call += "|b64"
	}

	if err := f.note(ctx, "upload", call); err != nil {
		return resource.MutationResult{}, err
	}

	return resource.MutationResult{Success: true, Bytes: int64(len(content))}, nil
}

func (f *fakeService) UpdateDocument(ctx context.Context, folder, name, content string, _ bool) (resource.MutationResult, error) {
	f.mu.Lock()
	f.content = content
	f.mu.Unlock()

	if err := f.note(ctx, "update", folder+"|"+name); err != nil {
		return resource.MutationResult{}, err
	}

	return resource.MutationResult{Success: true}, nil
}

func (f *fakeService) DeleteItem(ctx context.Context, path string) (resource.MutationResult, error) {
	if err := f.note(ctx, "delete", path); err != nil {
		return resource.MutationResult{}, err
	}

	return resource.MutationResult{Success: true}, nil
}

func (f *fakeService) Connectivity(context.Context) string {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()

	return resource.Connected
}

// memRecorder is an in-memory audit.Recorder.
type memRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memRecorder) Record(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, e)

	return nil
}

func (m *memRecorder) snapshot() []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]audit.Event(nil), m.events...)
}

var errNotFound = fault.New(fault.NotFound, "resource", "folder not found")

type testEnv struct {
	svc *fakeService
	rec *memRecorder
	s   *Server
	srv *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{svc: &fakeService{}, rec: &memRecorder{}}

	opts := Options{
		Service: env.svc,
		Gate:    authz.NewGate([]string{testToken, otherTok}, testLogger()),
		Audit:   env.rec,
		Version: "test",
		Metrics: true,
	}

	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(opts, testLogger())
	require.NoError(t, err)

	s.nowFunc = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	env.s = s
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)

	return env
}

// do sends a request with the test token unless token is "-".
func (env *testEnv) do(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, env.srv.URL+path, reader)
	require.NoError(t, err)

	switch token {
	case "-":
	case "":
		req.Header.Set("Authorization", "Bearer "+testToken)
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

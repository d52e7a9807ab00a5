package resource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/internal/graph"
)

var testDrive = driveid.New("b!drive")

// fakeStore is an in-memory Store. Folders are keys of children; files
// live in content.
type fakeStore struct {
	mu        sync.Mutex
	children  map[string][]graph.Item
	content   map[string][]byte
	failList  map[string]error
	calls     []string
	pingErr   error
	listDelay time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		children: map[string][]graph.Item{"": nil},
		content:  map[string][]byte{},
		failList: map[string]error{},
	}
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

// addFolder creates p and any missing ancestors.
func (f *fakeStore) addFolder(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addFolderLocked(p)
}

func (f *fakeStore) addFolderLocked(p string) {
	if _, ok := f.children[p]; ok || p == "" {
		return
	}

	parent := parentOf(p)
	f.addFolderLocked(parent)
	f.children[p] = nil
	f.children[parent] = append(f.children[parent], graph.Item{
		ID: "id-" + p, Name: path.Base(p), IsFolder: true, ChildCount: 0,
		ModifiedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	})
}

func (f *fakeStore) addFile(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addFileLocked(p, data)
}

func (f *fakeStore) addFileLocked(p string, data []byte) graph.Item {
	parent := parentOf(p)
	f.addFolderLocked(parent)

	item := graph.Item{
		ID: "id-" + p, Name: path.Base(p), Size: int64(len(data)),
		MimeType: "text/plain", WebURL: "https://example.test/" + p,
	}

	kids := f.children[parent]
	for i := range kids {
		if kids[i].Name == item.Name {
			kids[i] = item
			f.content[p] = data

			return item
		}
	}

	f.children[parent] = append(kids, item)
	f.content[p] = data

	return item
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}

	return dir
}

func (f *fakeStore) ListChildren(_ context.Context, drive driveid.ID, p string) ([]graph.Item, error) {
	f.record("list:" + p)

	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !drive.Equal(testDrive) {
		return nil, fmt.Errorf("unexpected drive %s", drive)
	}

	if err := f.failList[p]; err != nil {
		return nil, err
	}

	kids, ok := f.children[p]
	if !ok {
		return nil, &graph.GraphError{StatusCode: 404, Message: "itemNotFound", Err: graph.ErrNotFound}
	}

	return append([]graph.Item(nil), kids...), nil
}

func (f *fakeStore) GetContent(_ context.Context, _ driveid.ID, p string, _ int64) ([]byte, error) {
	f.record("get:" + p)

	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.content[p]
	if !ok {
		return nil, &graph.GraphError{StatusCode: 404, Message: "itemNotFound", Err: graph.ErrNotFound}
	}

	return data, nil
}

func (f *fakeStore) PutContent(_ context.Context, _ driveid.ID, p string, data []byte) (*graph.Item, error) {
	f.record("put:" + p)

	f.mu.Lock()
	defer f.mu.Unlock()

	item := f.addFileLocked(p, append([]byte(nil), data...))

	return &item, nil
}

func (f *fakeStore) CreateFolder(_ context.Context, _ driveid.ID, parent, name string) (*graph.Item, error) {
	f.record("mkdir:" + parent + "|" + name)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.children[parent]; !ok {
		return nil, &graph.GraphError{StatusCode: 404, Message: "parent missing", Err: graph.ErrNotFound}
	}

	final := name
	for n := 1; ; n++ {
		if _, taken := f.children[joinPath(parent, final)]; !taken {
			break
		}

		final = fmt.Sprintf("%s %d", name, n)
	}

	f.addFolderLocked(joinPath(parent, final))

	return &graph.Item{ID: "id-" + final, Name: final, IsFolder: true}, nil
}

func (f *fakeStore) DeleteItem(_ context.Context, _ driveid.ID, p string) error {
	f.record("delete:" + p)

	f.mu.Lock()
	defer f.mu.Unlock()

	_, isFile := f.content[p]
	_, isDir := f.children[p]

	if !isFile && !isDir {
		return &graph.GraphError{StatusCode: 404, Message: "itemNotFound", Err: graph.ErrNotFound}
	}

	delete(f.content, p)
	delete(f.children, p)

	parent := parentOf(p)
	kids := f.children[parent]

	for i := range kids {
		if kids[i].Name == path.Base(p) {
			f.children[parent] = append(kids[:i:i], kids[i+1:]...)

			break
		}
	}

	return nil
}

func (f *fakeStore) Ping(context.Context, driveid.ID) error {
	return f.pingErr
}

func newTestOps(t *testing.T, store Store, opts Options) *Operations {
	t.Helper()

	ops, err := New(store, testDrive, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return ops
}

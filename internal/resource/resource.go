// Package resource implements the gateway's document operations on top of a
// single SharePoint document library. Every transport (MCP, HTTP,
// WebSocket) consumes the Service interface; Operations is the local
// implementation backed by a Store.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/internal/graph"
)

// Tree depth limits. DefaultTreeDepth applies when a caller gives no depth.
const (
	DefaultTreeDepth = 3
	MaxTreeDepth     = 15
)

const pingTimeout = 5 * time.Second

// Connectivity states reported by Service.Connectivity.
const (
	Connected    = "connected"
	Disconnected = "disconnected"
)

// Store is the remote document store. *graph.Client satisfies it.
type Store interface {
	ListChildren(ctx context.Context, drive driveid.ID, path string) ([]graph.Item, error)
	GetContent(ctx context.Context, drive driveid.ID, path string, maxBytes int64) ([]byte, error)
	PutContent(ctx context.Context, drive driveid.ID, path string, data []byte) (*graph.Item, error)
	CreateFolder(ctx context.Context, drive driveid.ID, parentPath, name string) (*graph.Item, error)
	DeleteItem(ctx context.Context, drive driveid.ID, path string) error
	Ping(ctx context.Context, drive driveid.ID) error
}

// Service is the set of operations exposed to callers. Paths are relative
// to the configured base library.
type Service interface {
	ListFolders(ctx context.Context, parent string) (ListResult, error)
	ListDocuments(ctx context.Context, folder string) (ListResult, error)
	GetDocumentContent(ctx context.Context, folder, name string) (ContentResult, error)
	GetFolderTree(ctx context.Context, parent string, maxDepth int) (TreeResult, error)
	CreateFolder(ctx context.Context, parent, name string) (MutationResult, error)
	UploadDocument(ctx context.Context, folder, name, content string, isBase64 bool) (MutationResult, error)
	UpdateDocument(ctx context.Context, folder, name, content string, isBase64 bool) (MutationResult, error)
	DeleteItem(ctx context.Context, path string) (MutationResult, error)
	Connectivity(ctx context.Context) string
}

// Usable reports whether svc can serve calls. A nil pointer held in a
// non-nil Service counts as absent.
func Usable(svc Service) bool {
	if svc == nil {
		return false
	}

	v := reflect.ValueOf(svc)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !v.IsNil()
	default:
		return true
	}
}

// LocalFiles moves documents between the store and the gateway host's
// filesystem. Only the stdio MCP transport offers it.
type LocalFiles interface {
	UploadFromPath(ctx context.Context, folder, localPath, newName string) (MutationResult, error)
	DownloadToPath(ctx context.Context, folder, name, localPath string) (MutationResult, error)
}

// Options tunes Operations. Zero values select the defaults.
type Options struct {
	BaseLibrary        string
	MaxTreeDepth       int
	MaxFoldersPerLevel int   // concurrent subtree fetches per level, 0 = unlimited
	MaxContentBytes    int64 // download limit, 0 = graph.DefaultMaxContentSize
	MaxUploadBytes     int64 // 0 = unlimited
}

// Operations is the Store-backed Service.
type Operations struct {
	store  Store
	drive  driveid.ID
	base   string
	opts   Options
	logger *slog.Logger
}

var (
	_ Service    = (*Operations)(nil)
	_ LocalFiles = (*Operations)(nil)
)

// New returns Operations serving drive through store. The base library is
// normalized once here.
func New(store Store, drive driveid.ID, opts Options, logger *slog.Logger) (*Operations, error) {
	if store == nil {
		return nil, errors.New("resource: store is required")
	}

	if drive.IsZero() {
		return nil, errors.New("resource: drive is required")
	}

	base, err := cleanPath(opts.BaseLibrary)
	if err != nil {
		return nil, err
	}

	if opts.MaxTreeDepth <= 0 || opts.MaxTreeDepth > MaxTreeDepth {
		opts.MaxTreeDepth = MaxTreeDepth
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Operations{
		store:  store,
		drive:  drive,
		base:   base,
		opts:   opts,
		logger: logger,
	}, nil
}

// Drive returns the backing drive.
func (o *Operations) Drive() driveid.ID {
	return o.drive
}

// BaseLibrary returns the normalized base library path.
func (o *Operations) BaseLibrary() string {
	return o.base
}

// Connectivity probes the drive and reports Connected or Disconnected.
func (o *Operations) Connectivity(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := o.store.Ping(ctx, o.drive); err != nil {
		o.logger.Warn("store connectivity check failed", slog.String("error", err.Error()))

		return Disconnected
	}

	return Connected
}

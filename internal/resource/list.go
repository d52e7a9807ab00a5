package resource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/sharepoint-gateway/internal/graph"
)

// ListFolders lists the folders directly under parent (the base library
// when empty).
func (o *Operations) ListFolders(ctx context.Context, parent string) (ListResult, error) {
	return o.list(ctx, "list folders", parent, true)
}

// ListDocuments lists the files directly under folder (the base library
// when empty).
func (o *Operations) ListDocuments(ctx context.Context, folder string) (ListResult, error) {
	return o.list(ctx, "list documents", folder, false)
}

func (o *Operations) list(ctx context.Context, op, rel string, folders bool) (ListResult, error) {
	path, err := o.resolve(rel)
	if err != nil {
		return ListResult{}, err
	}

	o.logger.Info(op, slog.String("path", path), slog.String("requested", rel))

	children, err := o.store.ListChildren(ctx, o.drive, path)
	if err != nil {
		return ListResult{}, fmt.Errorf("resource: %s in %q: %w", op, rel, err)
	}

	items := filterKind(children, folders)

	o.logger.Debug("listed items", slog.String("path", path), slog.Int("count", len(items)))

	return ListResult{Success: true, Items: items, Count: len(items)}, nil
}

// filterKind keeps folders or files from one children listing, in store
// order. The result is never nil.
func filterKind(children []graph.Item, folders bool) []Item {
	items := make([]Item, 0, len(children))

	for i := range children {
		if children[i].IsFolder == folders {
			items = append(items, shapeItem(&children[i]))
		}
	}

	return items
}

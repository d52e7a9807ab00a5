package resource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// CreateFolder creates name under parent. The store renames on a name
// clash, so the created folder's name is reported back.
func (o *Operations) CreateFolder(ctx context.Context, parent, name string) (MutationResult, error) {
	if err := checkName("folderName", name); err != nil {
		return MutationResult{}, err
	}

	dir, err := o.resolve(parent)
	if err != nil {
		return MutationResult{}, err
	}

	name = strings.TrimSpace(name)

	o.logger.Info("creating folder", slog.String("parent", dir), slog.String("name", name))

	item, err := o.store.CreateFolder(ctx, o.drive, dir, name)
	if err != nil {
		return MutationResult{}, fmt.Errorf("resource: create folder %q: %w", name, err)
	}

	shaped := shapeItem(item)

	return MutationResult{
		Success: true,
		Message: fmt.Sprintf("Folder '%s' created successfully", shaped.Name),
		Item:    &shaped,
		Path:    joinPath(dir, item.Name),
	}, nil
}

// DeleteItem deletes the file or folder at path. Folders go with their
// contents. The base library itself cannot be deleted.
func (o *Operations) DeleteItem(ctx context.Context, path string) (MutationResult, error) {
	const op = "resource: delete item"

	rel, err := cleanPath(path)
	if err != nil {
		return MutationResult{}, err
	}

	if rel == "" {
		return MutationResult{}, fault.New(fault.Validation, op, "path is required")
	}

	full := joinPath(o.base, rel)

	o.logger.Info("deleting item", slog.String("path", full))

	if err := o.store.DeleteItem(ctx, o.drive, full); err != nil {
		return MutationResult{}, fmt.Errorf("%s %q: %w", op, rel, err)
	}

	return MutationResult{
		Success: true,
		Message: fmt.Sprintf("Item '%s' deleted successfully", rel),
		Path:    full,
	}, nil
}

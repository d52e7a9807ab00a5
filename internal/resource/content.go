package resource

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// GetDocumentContent fetches a document. Bytes that are valid UTF-8 are
// returned as text; anything else is base64 with type binary. This is a
// heuristic: binary data that happens to be valid UTF-8 comes back as text.
func (o *Operations) GetDocumentContent(ctx context.Context, folder, name string) (ContentResult, error) {
	path, err := o.resolveFile(folder, name)
	if err != nil {
		return ContentResult{}, err
	}

	o.logger.Info("getting document content", slog.String("path", path))

	data, err := o.store.GetContent(ctx, o.drive, path, o.opts.MaxContentBytes)
	if err != nil {
		return ContentResult{}, fmt.Errorf("resource: get content of %q: %w", name, err)
	}

	res := ContentResult{
		Success: true,
		File:    FileRef{Name: name, Path: path},
	}

	if utf8.Valid(data) {
		res.Content = string(data)
		res.Type = ContentText
	} else {
		res.Content = base64.StdEncoding.EncodeToString(data)
		res.Type = ContentBinary
	}

	return res, nil
}

// UploadDocument creates or replaces a document. content is taken verbatim
// unless isBase64 is set.
func (o *Operations) UploadDocument(ctx context.Context, folder, name, content string, isBase64 bool) (MutationResult, error) {
	data, err := decodeContent(content, isBase64)
	if err != nil {
		return MutationResult{}, err
	}

	return o.put(ctx, "upload document", folder, name, data, false)
}

// UpdateDocument replaces an existing document; a missing document is a
// NotFound error rather than a create.
func (o *Operations) UpdateDocument(ctx context.Context, folder, name, content string, isBase64 bool) (MutationResult, error) {
	data, err := decodeContent(content, isBase64)
	if err != nil {
		return MutationResult{}, err
	}

	return o.put(ctx, "update document", folder, name, data, true)
}

func decodeContent(content string, isBase64 bool) ([]byte, error) {
	if !isBase64 {
		return []byte(content), nil
	}

	// Tolerate line-wrapped base64.
	compact := strings.Join(strings.Fields(content), "")

	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fault.New(fault.Validation, "resource: content", "content is not valid base64")
	}

	return data, nil
}

func (o *Operations) put(ctx context.Context, op, folder, name string, data []byte, mustExist bool) (MutationResult, error) {
	path, err := o.resolveFile(folder, name)
	if err != nil {
		return MutationResult{}, err
	}

	if o.opts.MaxUploadBytes > 0 && int64(len(data)) > o.opts.MaxUploadBytes {
		return MutationResult{}, fault.New(fault.Validation, "resource: "+op,
			fmt.Sprintf("content is %d bytes, above the %d byte upload limit", len(data), o.opts.MaxUploadBytes))
	}

	if mustExist {
		if err := o.requireFile(ctx, folder, name); err != nil {
			return MutationResult{}, err
		}
	}

	o.logger.Info(op, slog.String("path", path), slog.Int("size", len(data)))

	item, err := o.store.PutContent(ctx, o.drive, path, data)
	if err != nil {
		return MutationResult{}, fmt.Errorf("resource: %s %q: %w", op, name, err)
	}

	shaped := shapeItem(item)
	verb := "uploaded"

	if mustExist {
		verb = "updated"
	}

	return MutationResult{
		Success: true,
		Message: fmt.Sprintf("File '%s' %s successfully", shaped.Name, verb),
		Item:    &shaped,
		Path:    path,
		Bytes:   int64(len(data)),
	}, nil
}

// requireFile checks that folder holds a file called name.
func (o *Operations) requireFile(ctx context.Context, folder, name string) error {
	dir, err := o.resolve(folder)
	if err != nil {
		return err
	}

	children, err := o.store.ListChildren(ctx, o.drive, dir)
	if err != nil {
		return fmt.Errorf("resource: update document %q: %w", name, err)
	}

	for i := range children {
		if !children[i].IsFolder && strings.EqualFold(children[i].Name, strings.TrimSpace(name)) {
			return nil
		}
	}

	return fault.New(fault.NotFound, "resource: update document", fmt.Sprintf("file '%s' not found", name))
}

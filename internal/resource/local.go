package resource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// UploadFromPath uploads a file from the gateway host into folder, keeping
// its base name unless newName is given.
func (o *Operations) UploadFromPath(ctx context.Context, folder, localPath, newName string) (MutationResult, error) {
	const op = "resource: upload from path"

	if localPath == "" {
		return MutationResult{}, fault.New(fault.Validation, op, "file_path is required")
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return MutationResult{}, fault.Wrap(fault.NotFound, op, err)
	}

	if info.IsDir() {
		return MutationResult{}, fault.New(fault.Validation, op, fmt.Sprintf("%s is a directory", localPath))
	}

	if o.opts.MaxUploadBytes > 0 && info.Size() > o.opts.MaxUploadBytes {
		return MutationResult{}, fault.New(fault.Validation, op,
			fmt.Sprintf("%s is %d bytes, above the %d byte upload limit", localPath, info.Size(), o.opts.MaxUploadBytes))
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return MutationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	name := newName
	if name == "" {
		name = filepath.Base(localPath)
	}

	return o.put(ctx, "upload document", folder, name, data, false)
}

// DownloadToPath saves a document to the gateway host. A localPath naming an
// existing directory receives the file under its store name.
func (o *Operations) DownloadToPath(ctx context.Context, folder, name, localPath string) (MutationResult, error) {
	const op = "resource: download to path"

	if localPath == "" {
		return MutationResult{}, fault.New(fault.Validation, op, "local_path is required")
	}

	path, err := o.resolveFile(folder, name)
	if err != nil {
		return MutationResult{}, err
	}

	data, err := o.store.GetContent(ctx, o.drive, path, o.opts.MaxContentBytes)
	if err != nil {
		return MutationResult{}, fmt.Errorf("%s %q: %w", op, name, err)
	}

	target := localPath
	if info, statErr := os.Stat(localPath); statErr == nil && info.IsDir() {
		target = filepath.Join(localPath, name)
	}

	if err := os.WriteFile(target, data, 0o600); err != nil {
		return MutationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	o.logger.Info("downloaded document", slog.String("path", path), slog.String("local_path", target))

	return MutationResult{
		Success: true,
		Message: fmt.Sprintf("File '%s' downloaded to %s", name, target),
		Path:    target,
		Bytes:   int64(len(data)),
	}, nil
}

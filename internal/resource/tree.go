package resource

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/graph"
)

const rootFolderLabel = "root"

// GetFolderTree returns the tree under parent down to maxDepth levels.
// Depth 0 yields a truncated empty tree without touching the store; depths
// above the configured maximum are clamped. A listing failure, including
// one on parent itself, is recorded on the affected subtree and never fails
// the call.
func (o *Operations) GetFolderTree(ctx context.Context, parent string, maxDepth int) (TreeResult, error) {
	const op = "resource: folder tree"

	if maxDepth < 0 {
		return TreeResult{}, fault.New(fault.Validation, op, "maxDepth must not be negative")
	}

	if maxDepth > o.opts.MaxTreeDepth {
		o.logger.Debug("clamping tree depth",
			slog.Int("requested", maxDepth),
			slog.Int("max", o.opts.MaxTreeDepth),
		)

		maxDepth = o.opts.MaxTreeDepth
	}

	path, err := o.resolve(parent)
	if err != nil {
		return TreeResult{}, err
	}

	label := parent
	if label == "" {
		label = rootFolderLabel
	}

	result := TreeResult{Success: true, Folder: label}

	if maxDepth == 0 {
		result.Tree = truncatedTree()

		return result, nil
	}

	o.logger.Info("building folder tree", slog.String("path", path), slog.Int("depth", maxDepth))

	result.Tree = o.subtree(ctx, path, maxDepth)

	return result, nil
}

func truncatedTree() Tree {
	return Tree{Items: []TreeNode{}, Truncated: true}
}

// subtree lists path and expands it.
func (o *Operations) subtree(ctx context.Context, path string, depth int) Tree {
	if depth <= 0 {
		return truncatedTree()
	}

	children, err := o.store.ListChildren(ctx, o.drive, path)
	if err != nil {
		o.logger.Warn("subtree listing failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return Tree{Items: []TreeNode{}, Error: fault.Message(err)}
	}

	return o.expand(ctx, path, children, depth)
}

// expand shapes one level, folders first, and descends into every folder
// concurrently. Each goroutine writes only its own node.
func (o *Operations) expand(ctx context.Context, path string, children []graph.Item, depth int) Tree {
	var folders, files []*graph.Item

	for i := range children {
		if children[i].IsFolder {
			folders = append(folders, &children[i])
		} else {
			files = append(files, &children[i])
		}
	}

	nodes := make([]TreeNode, len(folders), len(children))

	var g errgroup.Group
	if o.opts.MaxFoldersPerLevel > 0 {
		g.SetLimit(o.opts.MaxFoldersPerLevel)
	}

	for i, f := range folders {
		nodes[i] = TreeNode{Item: shapeItem(f)}
		childPath := joinPath(path, f.Name)

		g.Go(func() error {
			sub := o.subtree(ctx, childPath, depth-1)
			nodes[i].Children = &sub

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // subtree failures are recorded on the node

	for _, f := range files {
		nodes = append(nodes, TreeNode{Item: shapeItem(f)})
	}

	return Tree{Items: nodes}
}

package resource

import (
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/graph"
)

// ItemType distinguishes folders from files.
type ItemType string

const (
	TypeFolder ItemType = "folder"
	TypeFile   ItemType = "file"
)

// ContentType reports how GetDocumentContent encoded the bytes.
type ContentType string

const (
	ContentText   ContentType = "text"
	ContentBinary ContentType = "binary"
)

const unknownName = "Unknown"

// Item is a normalized store entry as callers see it.
type Item struct {
	Name         string   `json:"name"`
	Type         ItemType `json:"type"`
	Size         int64    `json:"size"`
	WebURL       string   `json:"webUrl"`
	LastModified string   `json:"lastModified"` // RFC 3339
	MimeType     string   `json:"mimeType"`     // files only
}

// shapeItem builds an Item from a store record. Always rebuilt from source.
func shapeItem(it *graph.Item) Item {
	out := Item{
		Name:   it.Name,
		Type:   TypeFile,
		Size:   it.Size,
		WebURL: it.WebURL,
	}

	if out.Name == "" {
		out.Name = unknownName
	}

	if it.IsFolder {
		out.Type = TypeFolder
	} else {
		out.MimeType = it.MimeType
	}

	if !it.ModifiedAt.IsZero() {
		out.LastModified = it.ModifiedAt.UTC().Format(time.RFC3339)
	}

	return out
}

// ListResult is returned by ListFolders and ListDocuments.
type ListResult struct {
	Success bool   `json:"success"`
	Items   []Item `json:"items"`
	Count   int    `json:"count"`
}

// FileRef names a document in a ContentResult.
type FileRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ContentResult is returned by GetDocumentContent.
type ContentResult struct {
	Success bool        `json:"success"`
	Content string      `json:"content"`
	File    FileRef     `json:"file"`
	Type    ContentType `json:"type"`
}

// TreeNode is an item plus, for folders, its subtree.
type TreeNode struct {
	Item
	Children *Tree `json:"children,omitempty"`
}

// Tree is one level of a folder tree. Truncated marks depth exhaustion;
// Error marks a subtree whose listing failed.
type Tree struct {
	Items     []TreeNode `json:"items"`
	Truncated bool       `json:"truncated"`
	Error     string     `json:"error,omitempty"`
}

// TreeResult is returned by GetFolderTree.
type TreeResult struct {
	Success bool   `json:"success"`
	Folder  string `json:"folder"`
	Tree    Tree   `json:"tree"`
}

// MutationResult is returned by operations that change the store.
type MutationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Item    *Item  `json:"item,omitempty"`
	Path    string `json:"path,omitempty"`
	Bytes   int64  `json:"bytes,omitempty"`
}

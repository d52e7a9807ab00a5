package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
)

// listChildrenPageSize is the $top value for ListChildren requests.
// 200 is the maximum allowed by the Graph API for drive item collections.
const listChildrenPageSize = 200

// Timestamp validation bounds: timestamps outside this range are dropped
// and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// conflictRename asks Graph to pick a free name instead of failing or
// replacing on a name collision.
const conflictRename = "rename"

// encodePathSegments URL-encodes each segment of a slash-separated path.
// Characters like #, ?, %, and spaces are encoded per-segment so the
// resulting path is safe for interpolation into Graph API URLs.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// drivePrefix is the /drives/{id} prefix for every drive-scoped call.
func drivePrefix(drive driveid.ID) string {
	return "/drives/" + url.PathEscape(drive.String())
}

// itemPath addresses an item by its path relative to the drive root. The
// empty path is the root itself.
func itemPath(drive driveid.ID, remotePath string) string {
	if remotePath == "" {
		return drivePrefix(drive) + "/root"
	}

	return drivePrefix(drive) + "/root:/" + encodePathSegments(remotePath) + ":"
}

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Unexported; callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	WebURL               string       `json:"webUrl"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
// Folder vs file is decided by the folder facet alone.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:         d.ID,
		Name:       d.Name,
		Size:       d.Size,
		ETag:       d.ETag,
		WebURL:     d.WebURL,
		IsFolder:   d.Folder != nil,
		ChildCount: ChildCountUnknown,
	}

	if d.Folder != nil {
		item.ChildCount = d.Folder.ChildCount
	}

	// File facet, nil-safe at each level
	if d.File != nil {
		item.MimeType = d.File.MimeType

		if d.File.Hashes != nil {
			item.QuickXorHash = d.File.Hashes.QuickXorHash
		}
	}

	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, d.ID, logger)

	return item
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Empty, invalid or out-of-range timestamps yield the zero time.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, dropping",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, dropping",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}

// decodeItem decodes a single driveItem body.
func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// GetItemByPath retrieves a drive item by its path relative to the drive
// root. The empty path returns the root folder.
func (c *Client) GetItemByPath(ctx context.Context, drive driveid.ID, remotePath string) (*Item, error) {
	c.logger.Debug("getting item by path",
		slog.String("drive_id", drive.String()),
		slog.String("path", remotePath),
	)

	resp, err := c.Do(ctx, http.MethodGet, itemPath(drive, remotePath), nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}

// ListChildren returns all children of the folder at remotePath (the root
// when empty), handling pagination automatically.
func (c *Client) ListChildren(ctx context.Context, drive driveid.ID, remotePath string) ([]Item, error) {
	apiPath := fmt.Sprintf("%s/children?$top=%d", itemPath(drive, remotePath), listChildrenPageSize)

	c.logger.Info("listing children",
		slog.String("drive_id", drive.String()),
		slog.String("path", remotePath),
	)

	var items []Item

	page := 1

	for apiPath != "" {
		pageItems, nextPath, err := c.listChildrenPage(ctx, apiPath, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		apiPath = nextPath
		page++
	}

	c.logger.Debug("listed children complete",
		slog.String("path", remotePath),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// listChildrenPage fetches a single page of children and returns the items
// and the next page path (empty if no more pages).
func (c *Client) listChildrenPage(ctx context.Context, path string, page int) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("graph: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(items)),
	)

	var nextPath string
	if lcr.NextLink != "" {
		var stripErr error

		nextPath, stripErr = c.stripBaseURL(lcr.NextLink)
		if stripErr != nil {
			return nil, "", stripErr
		}
	}

	return items, nextPath, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
// Returns an error if the URL doesn't start with the expected base.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// CreateFolder creates a folder named name under parentPath (the root when
// empty). A name collision is resolved by Graph renaming the new folder, so
// the returned item's Name may differ from name.
func (c *Client) CreateFolder(ctx context.Context, drive driveid.ID, parentPath, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("drive_id", drive.String()),
		slog.String("parent_path", parentPath),
		slog.String("name", name),
	)

	path := itemPath(drive, parentPath) + "/children"

	reqBody := createFolderRequest{
		Name:             name,
		Folder:           folderFacet{},
		ConflictBehavior: conflictRename,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}

var errDeleteRoot = errors.New("graph: refusing to delete the drive root")

// DeleteItem deletes the file or folder at remotePath. Returns nil on
// success (HTTP 204) and an error wrapping ErrNotFound when nothing exists
// at that path.
func (c *Client) DeleteItem(ctx context.Context, drive driveid.ID, remotePath string) error {
	if remotePath == "" {
		return errDeleteRoot
	}

	c.logger.Info("deleting item",
		slog.String("drive_id", drive.String()),
		slog.String("path", remotePath),
	)

	resp, err := c.Do(ctx, http.MethodDelete, itemPath(drive, remotePath), nil)
	if err != nil {
		return err
	}

	// 204 No Content: drain and close to reuse connection.
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("graph: draining delete response body: %w", copyErr)
	}

	return nil
}

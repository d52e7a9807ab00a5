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

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/pkg/quickxorhash"
)

// DefaultMaxContentSize bounds GetContent when the caller passes no limit.
const DefaultMaxContentSize = 250 * 1024 * 1024

// ErrContentTooLarge is returned when a download exceeds the size limit.
var ErrContentTooLarge = errors.New("graph: content exceeds size limit")

// GetContent downloads the file at remotePath. Graph answers with a 302 to a
// pre-authenticated URL; net/http follows it and drops the Authorization
// header when the redirect leaves the Graph host. maxBytes <= 0 applies
// DefaultMaxContentSize.
func (c *Client) GetContent(ctx context.Context, drive driveid.ID, remotePath string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxContentSize
	}

	c.logger.Info("downloading content",
		slog.String("drive_id", drive.String()),
		slog.String("path", remotePath),
	)

	resp, err := c.Do(ctx, http.MethodGet, itemPath(drive, remotePath)+"/content", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("graph: reading content: %w", err)
	}

	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrContentTooLarge, maxBytes)
	}

	c.logger.Debug("download complete",
		slog.String("path", remotePath),
		slog.Int("bytes", len(data)),
	)

	return data, nil
}

// PutContent creates or replaces the file at remotePath with data in one
// request. The digest Graph reports back is checked against a local
// QuickXorHash; a mismatch is logged, not returned.
func (c *Client) PutContent(ctx context.Context, drive driveid.ID, remotePath string, data []byte) (*Item, error) {
	if remotePath == "" {
		return nil, errors.New("graph: upload path is empty")
	}

	c.logger.Info("uploading content",
		slog.String("drive_id", drive.String()),
		slog.String("path", remotePath),
		slog.Int("size", len(data)),
	)

	resp, err := c.do(ctx, http.MethodPut, itemPath(drive, remotePath)+"/content",
		"application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dir driveItemResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&dir); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload response: %w", decErr)
	}

	item := dir.toItem(c.logger)

	if item.QuickXorHash != "" && !quickxorhash.Matches(data, item.QuickXorHash) {
		c.logger.Warn("uploaded content hash mismatch",
			slog.String("path", remotePath),
			slog.String("remote_hash", item.QuickXorHash),
			slog.String("local_hash", quickxorhash.Sum64(data)),
		)
	}

	return &item, nil
}

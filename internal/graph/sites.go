package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
)

type siteResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

type driveResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	WebURL    string `json:"webUrl"`
}

type drivesListResponse struct {
	Value []driveResponse `json:"value"`
}

func (d *driveResponse) toDrive() Drive {
	return Drive{
		ID:        driveid.New(d.ID),
		Name:      d.Name,
		DriveType: d.DriveType,
		WebURL:    d.WebURL,
	}
}

// ResolveSite looks a site up by hostname and server-relative path.
func (c *Client) ResolveSite(ctx context.Context, ref driveid.SiteRef) (*Site, error) {
	c.logger.Info("resolving site", slog.String("site", ref.String()))

	path := "/sites/" + ref.Host + ":" + encodePathSegments(ref.Path)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr siteResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("graph: decoding site response: %w", err)
	}

	c.logger.Debug("resolved site",
		slog.String("site_id", sr.ID),
		slog.String("display_name", sr.DisplayName),
	)

	return &Site{ID: sr.ID, DisplayName: sr.DisplayName, WebURL: sr.WebURL}, nil
}

// SiteDrives lists the document libraries of a site, in Graph order.
func (c *Client) SiteDrives(ctx context.Context, siteID string) ([]Drive, error) {
	// Site IDs are "host,siteGUID,webGUID"; the commas must stay literal.
	resp, err := c.Do(ctx, http.MethodGet, "/sites/"+siteID+"/drives", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dlr drivesListResponse
	if err := json.NewDecoder(resp.Body).Decode(&dlr); err != nil {
		return nil, fmt.Errorf("graph: decoding drives response: %w", err)
	}

	drives := make([]Drive, 0, len(dlr.Value))
	for i := range dlr.Value {
		drives = append(drives, dlr.Value[i].toDrive())
	}

	c.logger.Debug("listed site drives",
		slog.String("site_id", siteID),
		slog.Int("count", len(drives)),
	)

	return drives, nil
}

// Ping checks that the drive is reachable with the current service token.
func (c *Client) Ping(ctx context.Context, drive driveid.ID) error {
	resp, err := c.Do(ctx, http.MethodGet, drivePrefix(drive)+"?$select=id", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return nil
}

// ErrNoDrive is returned when a site has no document library to serve.
var ErrNoDrive = errors.New("graph: no matching document library")

// SelectDrive picks the library named name (case-insensitive), or the first
// one when name is empty.
func SelectDrive(drives []Drive, name string) (Drive, error) {
	if len(drives) == 0 {
		return Drive{}, ErrNoDrive
	}

	if name == "" {
		return drives[0], nil
	}

	for _, d := range drives {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}

	return Drive{}, fmt.Errorf("%w: %q", ErrNoDrive, name)
}

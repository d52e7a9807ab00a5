package graph

import (
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
)

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a drive item (file or folder) in a document library.
// Fields are normalized from the Graph API response; callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	Size         int64
	ETag         string
	WebURL       string
	IsFolder     bool // set only when the record carries a folder facet
	MimeType     string
	QuickXorHash string    // base64-encoded
	ModifiedAt   time.Time // zero when absent or unparseable
	ChildCount   int       // ChildCountUnknown if not present
}

// Site is a SharePoint site resolved from its URL.
type Site struct {
	ID          string
	DisplayName string
	WebURL      string
}

// Drive is a document library of a site.
type Drive struct {
	ID        driveid.ID
	Name      string
	DriveType string
	WebURL    string
}

package driveid

import (
	"fmt"
	"net/url"
	"strings"
)

// SiteRef identifies a SharePoint site by hostname and server-relative path,
// e.g. contoso.sharepoint.com and /sites/Engineering.
type SiteRef struct {
	Host string
	Path string // always starts with "/", never ends with one
}

// ParseSiteURL parses a site URL such as
// https://contoso.sharepoint.com/sites/Engineering. The scheme must be https
// and the path must name a site below the host root.
func ParseSiteURL(raw string) (SiteRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return SiteRef{}, fmt.Errorf("driveid: invalid site URL %q: %w", raw, err)
	}

	if u.Scheme != "https" {
		return SiteRef{}, fmt.Errorf("driveid: site URL %q must use https", raw)
	}

	if u.Hostname() == "" {
		return SiteRef{}, fmt.Errorf("driveid: site URL %q has no host", raw)
	}

	path := "/" + strings.Trim(u.Path, "/")
	if path == "/" {
		return SiteRef{}, fmt.Errorf("driveid: site URL %q has no site path", raw)
	}

	return SiteRef{Host: strings.ToLower(u.Hostname()), Path: path}, nil
}

// IsZero reports whether the reference is unset.
func (s SiteRef) IsZero() bool {
	return s.Host == ""
}

// GraphKey returns the "{host}:{path}" form used in /sites/{host}:{path}.
func (s SiteRef) GraphKey() string {
	return s.Host + ":" + s.Path
}

// String returns the site URL.
func (s SiteRef) String() string {
	return "https://" + s.Host + s.Path
}

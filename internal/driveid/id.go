// Package driveid provides type-safe identity types for the backing store:
//   - ID: a Graph drive identifier, kept verbatim (SharePoint "b!" IDs are
//     base64 and case-sensitive)
//   - SiteRef: a SharePoint site parsed from its URL
//
// This is a leaf package with zero external dependencies beyond stdlib.
package driveid

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strings"
)

// ID is a Graph API drive identifier. The zero value (ID{}) represents an
// absent or unresolved drive.
type ID struct {
	value string
}

// New creates an ID from a raw API drive identifier. Surrounding whitespace
// is trimmed; case is preserved.
func New(raw string) ID {
	return ID{value: strings.TrimSpace(raw)}
}

// String returns the drive ID string.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value ID.
func (id ID) IsZero() bool {
	return id.value == ""
}

// Equal reports whether two IDs are identical. Comparison is case-sensitive.
func (id ID) Equal(other ID) bool {
	return id.value == other.value
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	*id = New(string(text))
	return nil
}

// Scan implements sql.Scanner for reading drive IDs from SQLite. SQL NULL
// produces the zero ID.
func (id *ID) Scan(src any) error {
	if src == nil {
		*id = ID{}
		return nil
	}

	switch v := src.(type) {
	case string:
		*id = New(v)
		return nil
	case []byte:
		*id = New(string(v))
		return nil
	default:
		return fmt.Errorf("driveid.ID.Scan: unsupported type %T", src)
	}
}

// Value implements driver.Valuer for writing drive IDs to SQLite. The zero
// ID writes SQL NULL to match the Scan behavior.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = ID{}
	_ encoding.TextUnmarshaler = (*ID)(nil)
	_ fmt.Stringer             = ID{}
	_ driver.Valuer            = ID{}
	_ sql.Scanner              = (*ID)(nil)
)

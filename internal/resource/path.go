package resource

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// cleanPath NFC-normalizes p and drops empty segments, so leading, trailing
// and doubled slashes disappear. Dot segments are rejected.
func cleanPath(p string) (string, error) {
	p = norm.NFC.String(strings.TrimSpace(p))

	segments := strings.Split(p, "/")
	kept := segments[:0]

	for _, seg := range segments {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", fault.New(fault.Validation, "resource: path", fmt.Sprintf("path segment %q is not allowed", seg))
		}

		kept = append(kept, seg)
	}

	return strings.Join(kept, "/"), nil
}

// ResolvePath joins a caller path onto the base library. With an empty base
// the caller path addresses the drive root directly. The result never has a
// leading, trailing or doubled slash.
func ResolvePath(base, rel string) (string, error) {
	b, err := cleanPath(base)
	if err != nil {
		return "", err
	}

	r, err := cleanPath(rel)
	if err != nil {
		return "", err
	}

	return joinPath(b, r), nil
}

func joinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "/" + b
	}
}

// checkName validates a single file or folder name.
func checkName(field, name string) error {
	const op = "resource: name"

	name = strings.TrimSpace(name)

	switch {
	case name == "":
		return fault.New(fault.Validation, op, field+" is required")
	case name == "." || name == "..":
		return fault.New(fault.Validation, op, fmt.Sprintf("%s %q is not allowed", field, name))
	case strings.ContainsAny(name, `/\`):
		return fault.New(fault.Validation, op, fmt.Sprintf("%s %q must not contain a path separator", field, name))
	}

	return nil
}

// resolve maps a caller path under the base library.
func (o *Operations) resolve(rel string) (string, error) {
	r, err := cleanPath(rel)
	if err != nil {
		return "", err
	}

	return joinPath(o.base, r), nil
}

// resolveFile maps folder + name under the base library.
func (o *Operations) resolveFile(folder, name string) (string, error) {
	if err := checkName("fileName", name); err != nil {
		return "", err
	}

	dir, err := o.resolve(folder)
	if err != nil {
		return "", err
	}

	return joinPath(dir, norm.NFC.String(strings.TrimSpace(name))), nil
}

// Package fault defines the gateway's error taxonomy. Every error that
// crosses a transport boundary is classified into a Kind, and each
// transport maps the Kind onto its own status representation.
package fault

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// Kind classifies an error for transport mapping.
type Kind int

// Error kinds. Unknown is the zero value and maps to an internal error.
const (
	Unknown Kind = iota
	Configuration
	CertificateFormat
	Auth
	Authorization
	Validation
	NotFound
	RemoteStore
	Unavailable
)

var kindNames = map[Kind]string{
	Unknown:           "internal error",
	Configuration:     "configuration error",
	CertificateFormat: "certificate format error",
	Auth:              "store authentication error",
	Authorization:     "unauthorized",
	Validation:        "bad request",
	NotFound:          "not found",
	RemoteStore:       "remote store error",
	Unavailable:       "service unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return kindNames[Unknown]
}

// Error is a classified error. Op names the operation that failed and Msg is
// a caller-safe message; Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if msg == "" {
		msg = e.Kind.String()
	}

	if e.Op != "" {
		return e.Op + ": " + msg
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind with no Op, Msg or cause set,
// so errors.Is(err, &fault.Error{Kind: fault.NotFound}) works as a kind check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns a classified error with a message and no cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// classifiers map foreign errors (e.g. graph sentinels) onto kinds.
var classifiers []func(error) (Kind, bool)

// RegisterClassifier adds a function consulted by KindOf for errors that are
// not *Error. Intended to be called from package init functions.
func RegisterClassifier(fn func(error) (Kind, bool)) {
	classifiers = append(classifiers, fn)
}

// KindOf returns the kind of the outermost classified error in err's chain,
// falling back to registered classifiers and finally Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Kind != Unknown {
		return fe.Kind
	}

	for _, fn := range classifiers {
		if k, ok := fn(err); ok {
			return k
		}
	}

	return Unknown
}

// Message returns the caller-safe message for err with any credential
// material scrubbed.
func Message(err error) string {
	if err == nil {
		return ""
	}

	return Redact(err.Error())
}

// HTTPStatus maps a kind onto an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Auth, Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`),
	regexp.MustCompile(`(?i)(client_assertion|access_token|token)=[^&\s"]+`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),
}

// Redact removes bearer tokens, assertions and JWT-shaped strings from s.
func Redact(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllStringFunc(s, func(m string) string {
			if i := strings.IndexAny(m, "= "); i >= 0 {
				return m[:i+1] + "[REDACTED]"
			}

			return "[REDACTED]"
		})
	}

	return s
}

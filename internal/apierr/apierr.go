// Package apierr is the error taxonomy shared by every remote operation.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failure independently of the transport.
type Kind string

const (
	KindUnauthenticated      Kind = "unauthenticated"
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindValidation           Kind = "validation"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindNetwork              Kind = "network"
	KindUnexpected           Kind = "unexpected"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrUnsupportedMediaType = &Error{Kind: KindUnsupportedMediaType}
	ErrPayloadTooLarge      = &Error{Kind: KindPayloadTooLarge}
	ErrNetwork              = &Error{Kind: KindNetwork}
	ErrUnexpected           = &Error{Kind: KindUnexpected}
)

// Error is a classified failure of operation Op.
type Error struct {
	Kind    Kind
	Op      string
	Status  int               // HTTP status, 0 when no response was received
	Message string            // server supplied message, may be empty
	Fields  map[string]string // per-field messages for KindValidation
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(op string, kind Kind, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Validation builds a KindValidation error carrying per-field messages.
func Validation(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Fields: fields}
}

// Network wraps a transport failure.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// FromStatus maps an HTTP error status to a Kind. hint is used for a bare 400,
// which older backends return for business rule failures (duplicate views,
// insufficient funds, rejected media). An empty hint means KindValidation.
func FromStatus(op string, status int, message string, hint Kind) *Error {
	e := &Error{Op: op, Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthenticated
	case status == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusConflict:
		e.Kind = KindConflict
	case status == http.StatusPaymentRequired:
		e.Kind = KindInsufficientFunds
	case status == http.StatusRequestEntityTooLarge:
		e.Kind = KindPayloadTooLarge
	case status == http.StatusUnsupportedMediaType:
		e.Kind = KindUnsupportedMediaType
	case status == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
	case status == http.StatusBadRequest:
		e.Kind = hint
		if e.Kind == "" {
			e.Kind = KindValidation
		}
	default:
		e.Kind = KindUnexpected
	}
	return e
}

// KindOf returns the Kind of err, or KindUnexpected for unclassified errors.
// A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// FieldErrors returns the per-field messages carried by err, if any.
func FieldErrors(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

var fallbacks = map[Kind]string{
	KindUnauthenticated:      "Please sign in again",
	KindUnauthorized:         "You do not have access to this action",
	KindNotFound:             "Not found",
	KindConflict:             "Already done",
	KindInsufficientFunds:    "Insufficient balance",
	KindValidation:           "Please check the form",
	KindUnsupportedMediaType: "Unsupported file type",
	KindPayloadTooLarge:      "File is too large",
	KindNetwork:              "Network error, try again",
}

// Message is the single user facing line for err: the server message when there
// is one, otherwise a generic text for the kind, otherwise fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return fallback
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind == KindValidation && len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys[0] + ": " + e.Fields[keys[0]]
	}
	if m, ok := fallbacks[e.Kind]; ok {
		return m
	}
	return fallback
}

// Package failures defines the error taxonomy shared by every component that
// talks to a remote service. Callers inspect failures only through the Is*
// helpers; raw transport errors never leave a component boundary.
package failures

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfigMissing Kind = "config_missing"
	KindConfigInvalid Kind = "config_invalid"
	KindNetwork       Kind = "network_error"
	KindUpstream      Kind = "upstream_error"
	KindMalformed     Kind = "malformed_response"
	KindNotFound      Kind = "not_found"
)

var (
	// ErrConfigMissing indicates a required credential is absent.
	ErrConfigMissing = errors.New("configuration required")

	// ErrConfigInvalid indicates a credential was explicitly rejected.
	ErrConfigInvalid = errors.New("configuration invalid")

	// ErrNetwork indicates a transport failure.
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates the bounded wait elapsed before a reply arrived.
	ErrTimeout = errors.New("request timed out")

	// ErrCanceled indicates the caller aborted the request.
	ErrCanceled = errors.New("request canceled")

	// ErrUpstream indicates a proxied service answered with a non-2xx status.
	ErrUpstream = errors.New("upstream error")

	// ErrMalformed indicates a reply that could not be interpreted.
	ErrMalformed = errors.New("malformed response")

	// ErrNotFound indicates the requested definition does not exist upstream.
	ErrNotFound = errors.New("not found")
)

var kindSentinels = map[Kind]error{
	KindConfigMissing: ErrConfigMissing,
	KindConfigInvalid: ErrConfigInvalid,
	KindNetwork:       ErrNetwork,
	KindUpstream:      ErrUpstream,
	KindMalformed:     ErrMalformed,
	KindNotFound:      ErrNotFound,
}

// Error is the boundary error every remote-facing component returns.
type Error struct {
	Kind    Kind   // Failure class
	Op      string // Operation being performed (e.g. "gateway.Generate")
	Message string // Short human-readable message
	Status  int    // HTTP status for upstream failures
	Details string // Raw diagnostic detail (response body, cause chain)
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	msg := e.Summary()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Err)
	}

	return msg
}

// Summary is the short line shown to a user; Details stays behind a disclosure.
func (e *Error) Summary() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	case e.Message != "":
		return e.Message
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind as well as the wrapped chain.
func (e *Error) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && sentinel == target {
		return true
	}

	return errors.Is(e.Err, target)
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// ConfigMissing builds a ConfigMissing failure naming what is absent.
func ConfigMissing(op, message string) *Error {
	return New(KindConfigMissing, op, message)
}

// Upstream builds a failure for a non-2xx reply, keeping the body as detail.
func Upstream(op string, status int, body string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Op:      op,
		Message: "upstream service returned an error",
		Status:  status,
		Details: body,
	}
}

// Network builds a transport failure.
func Network(op string, err error) *Error {
	return Wrap(KindNetwork, op, "network error", err)
}

// Timeout builds a transport failure caused by the bounded wait elapsing.
func Timeout(op string, err error) *Error {
	return Wrap(KindNetwork, op, "request timed out", errors.Join(ErrTimeout, err))
}

// Canceled builds a transport failure caused by the caller aborting.
func Canceled(op string, err error) *Error {
	return Wrap(KindNetwork, op, "request canceled", errors.Join(ErrCanceled, err))
}

// KindOf returns the kind of err, or "" when err is not a failures.Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return ""
}

// DetailsOf returns the diagnostic detail attached to err, if any.
func DetailsOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Details
	}

	return ""
}

// SummaryOf returns the short user-facing line for err.
func SummaryOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Summary()
	}

	return err.Error()
}

func IsConfigMissing(err error) bool {
	return errors.Is(err, ErrConfigMissing)
}

func IsConfigInvalid(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Package apperr defines the tagged error kinds returned by the setup and
// diagram pipelines. Each pipeline stage returns either a value or an *Error
// carrying one Kind plus enough context (path, reference, HTTP status) for the
// launcher to render a precise message and pick an exit code.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the failure classes surfaced to callers.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEnvironment is a missing or invalid runtime setting.
	KindEnvironment
	// KindDetection means no recognizable project structure was found.
	KindDetection
	// KindArtifactMissing means a project was found without build output.
	// It is absorbed per signal and reported as a warning.
	KindArtifactMissing
	// KindAmbiguousArtifact is never returned as an error; it tags the
	// warning emitted for low-confidence firmware groups.
	KindAmbiguousArtifact
	KindNetwork
	KindValidation
	KindIO
	// KindReference means the user input could not be normalized to a
	// project identifier.
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "EnvironmentError"
	case KindDetection:
		return "DetectionError"
	case KindArtifactMissing:
		return "ArtifactMissingError"
	case KindAmbiguousArtifact:
		return "AmbiguousArtifact"
	case KindNetwork:
		return "NetworkError"
	case KindValidation:
		return "ValidationError"
	case KindIO:
		return "IOError"
	case KindReference:
		return "ReferenceError"
	default:
		return "Error"
	}
}

// ExitCode maps a kind to the launcher's process exit status.
func (k Kind) ExitCode() int {
	switch k {
	case KindReference:
		return 2
	case KindDetection:
		return 3
	case KindNetwork:
		return 4
	case KindValidation:
		return 5
	case KindIO:
		return 6
	default:
		return 1
	}
}

// Error is the concrete error type for every pipeline failure.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "probe" or "fetch".
	Op string
	// Path is the filesystem path involved, if any.
	Path string
	// Ref is the project reference involved, if any.
	Ref string
	// Status is the HTTP status code of the last response (0 when none).
	Status int
	// Attempts is the number of network attempts made (0 when not applicable).
	Attempts int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(strings.ToLower(strings.TrimSuffix(e.Kind.String(), "Error")))
		b.WriteString(" error")
	}
	var ctx []string
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.Ref != "" {
		ctx = append(ctx, "ref="+e.Ref)
	}
	if e.Status != 0 {
		ctx = append(ctx, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Attempts != 0 {
		ctx = append(ctx, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, &Error{Kind: K}) matches any
// error of kind K.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// New builds an *Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an *Error of the given kind around err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath sets Path and returns e for chaining.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithRef sets Ref and returns e for chaining.
func (e *Error) WithRef(ref string) *Error {
	e.Ref = ref
	return e
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// transientError marks a network failure that may resolve on retry.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// ABOUTME: Error kinds reported by the routing core
// ABOUTME: Sentinel errors, kind classification and component-scoped wrapping
package hound

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// Kind classifies an error for callers that map errors onto a wire protocol
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindOutOfMemory
	KindAlreadyExists
	KindNotFound
	KindBusy
	KindUnsupported
)

// Standard error variables, one per kind
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrBusy            = errors.New("busy")
	ErrUnsupported     = errors.New("unsupported")
)

var kindErrors = []struct {
	kind Kind
	errs []error
}{
	{KindInvalidArgument, []error{ErrInvalidArgument, audio.ErrInvalidFormat}},
	{KindOutOfMemory, []error{ErrOutOfMemory}},
	{KindAlreadyExists, []error{ErrAlreadyExists}},
	{KindNotFound, []error{ErrNotFound}},
	{KindBusy, []error{ErrBusy}},
	{KindUnsupported, []error{ErrUnsupported, audio.ErrUnsupportedFormat}},
}

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err, or KindUnknown
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, ke := range kindErrors {
		for _, target := range ke.errs {
			if errors.Is(err, target) {
				return ke.kind
			}
		}
	}
	return KindUnknown
}

// wrap adds component and method context while keeping the chain for errors.Is
func wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// newError wraps a sentinel with a detail message and call-site context
func newError(sentinel error, component, method, action, detail string) error {
	return wrap(fmt.Errorf("%w: %s", sentinel, detail), component, method, action)
}

// asUnsupported tags an owner error as Unsupported unless it already carries a kind
func asUnsupported(err error) error {
	if KindOf(err) != KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnsupported, err)
}

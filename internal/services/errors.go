package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahana-project/ewaste-api/internal/store"
	"github.com/sahana-project/ewaste-api/types"
)

// Kind classifies service errors for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var (
	ErrValidation = errors.New("validation failed")

	ErrUnauthenticated    = errors.New("not authorized, no valid token")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("your account has been deactivated")
	ErrAccountNotFound    = errors.New("account no longer exists")

	ErrForbidden     = errors.New("not authorized to perform this action")
	ErrForbiddenRole = errors.New("signup is only allowed for user, collector, and organization roles")

	ErrNotFound     = errors.New("account not found")
	ErrItemNotFound = errors.New("e-waste post not found")
	ErrBulkNotFound = errors.New("bulk e-waste post not found")

	ErrEmailTaken = errors.New("user already exists with this email")
)

// ValidationError reports every rejected input field with a reason.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError reports a single rejected field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

var kindTable = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrValidation}},
	{KindAuthentication, []error{ErrUnauthenticated, ErrInvalidCredentials, ErrAccountDeactivated, ErrAccountNotFound}},
	{KindAuthorization, []error{ErrForbidden, ErrForbiddenRole}},
	{KindNotFound, []error{ErrNotFound, ErrItemNotFound, ErrBulkNotFound}},
	{KindConflict, []error{
		ErrEmailTaken,
		types.ErrNotBookable,
		types.ErrAlreadyCollected,
		types.ErrAlreadySold,
		types.ErrStateChanged,
	}},
}

// KindOf reports the kind of err. Unrecognized errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, entry := range kindTable {
		for _, target := range entry.errs {
			if errors.Is(err, target) {
				return entry.kind
			}
		}
	}
	return KindInternal
}

// notFound maps a store miss onto the caller's not-found sentinel.
func notFound(err error, sentinel error) error {
	if errors.Is(err, store.ErrNotFound) {
		return sentinel
	}
	return err
}

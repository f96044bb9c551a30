// Package fserr defines the storage-independent failure categories every
// accessor maps its low-level errors into.
package fserr

import (
	"errors"
	"fmt"
)

// Kind is a semantic failure category.
type Kind int

const (
	// KindNotFound: the abstract path has no backing resource.
	KindNotFound Kind = iota + 1
	// KindNotReadable: the resource exists but cannot be read or listed.
	KindNotReadable
	// KindInvalidModification: a write, delete or create failed.
	KindInvalidModification
)

// Sentinels for errors.Is checks.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotReadable         = errors.New("not readable")
	ErrInvalidModification = errors.New("invalid modification")
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindNotReadable:
		return "NotReadable"
	case KindInvalidModification:
		return "InvalidModification"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindNotReadable:
		return ErrNotReadable
	case KindInvalidModification:
		return ErrInvalidModification
	default:
		return nil
	}
}

// ParseKind is the inverse of Kind.String. Unknown names return 0.
func ParseKind(s string) Kind {
	switch s {
	case "NotFound":
		return KindNotFound
	case "NotReadable":
		return KindNotReadable
	case "InvalidModification":
		return KindInvalidModification
	default:
		return 0
	}
}

// Error is a classified failure attributed to one accessor and one abstract path.
type Error struct {
	Kind     Kind
	Accessor string // name of the originating backend (usually its root)
	FullPath string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Kind, e.Accessor, e.FullPath)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NotFound builds a KindNotFound error.
func NotFound(accessor, fullPath string, cause error) error {
	return &Error{Kind: KindNotFound, Accessor: accessor, FullPath: fullPath, Err: cause}
}

// NotReadable builds a KindNotReadable error.
func NotReadable(accessor, fullPath string, cause error) error {
	return &Error{Kind: KindNotReadable, Accessor: accessor, FullPath: fullPath, Err: cause}
}

// InvalidModification builds a KindInvalidModification error.
func InvalidModification(accessor, fullPath string, cause error) error {
	return &Error{Kind: KindInvalidModification, Accessor: accessor, FullPath: fullPath, Err: cause}
}

// New builds an error of the given kind.
func New(kind Kind, accessor, fullPath string, cause error) error {
	return &Error{Kind: kind, Accessor: accessor, FullPath: fullPath, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

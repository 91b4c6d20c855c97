// Package apperr tags errors with the failure category they belong to so that
// transports can map them to status codes and callers can branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a failure category.
type Kind string

const (
	KindChunking        Kind = "chunking"
	KindRetrieval       Kind = "retrieval"
	KindMemory          Kind = "memory"
	KindDecoding        Kind = "decoding"
	KindModelInvocation Kind = "model_invocation"
	KindInvalidRequest  Kind = "invalid_request"
	KindInternal        Kind = "internal"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrChunking        = errors.New("chunking error")
	ErrRetrieval       = errors.New("retrieval error")
	ErrMemory          = errors.New("memory error")
	ErrDecoding        = errors.New("decoding error")
	ErrModelInvocation = errors.New("model invocation error")
	ErrInvalidRequest  = errors.New("invalid request")
)

var sentinels = map[Kind]error{
	KindChunking:        ErrChunking,
	KindRetrieval:       ErrRetrieval,
	KindMemory:          ErrMemory,
	KindDecoding:        ErrDecoding,
	KindModelInvocation: ErrModelInvocation,
	KindInvalidRequest:  ErrInvalidRequest,
}

// Error is an error tagged with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New wraps err with kind and op. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Chunking tags err as a chunking failure.
func Chunking(op string, err error) error { return New(KindChunking, op, err) }

// Retrieval tags err as a retrieval failure.
func Retrieval(op string, err error) error { return New(KindRetrieval, op, err) }

// Memory tags err as a memory failure.
func Memory(op string, err error) error { return New(KindMemory, op, err) }

// Decoding tags err as a decoding failure.
func Decoding(op string, err error) error { return New(KindDecoding, op, err) }

// ModelInvocation tags err as a model collaborator failure.
func ModelInvocation(op string, err error) error { return New(KindModelInvocation, op, err) }

// InvalidRequest tags err as a caller mistake.
func InvalidRequest(op string, err error) error { return New(KindInvalidRequest, op, err) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

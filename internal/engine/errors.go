package engine

import (
	"errors"
	"fmt"
)

var (
	ErrPlanningUnsupported = errors.New("site metadata inconsistent, using a single chunk")
	ErrChunkTransport      = errors.New("chunk transport error")
	ErrChunkTimeout        = fmt.Errorf("%w: no progress before stall timeout", ErrChunkTransport)
	ErrRangeIgnored        = fmt.Errorf("%w: server ignored range request", ErrChunkTransport)
	ErrMergeSizeMismatch   = errors.New("merged size mismatch")
	ErrMergeHashMismatch   = errors.New("merged hash mismatch")
	ErrCanceled            = errors.New("download canceled by caller")
	ErrDoubleCompletion    = errors.New("output already published for request")
	ErrUnknownHandle       = errors.New("unknown request handle")
)

// Error carries a sentinel plus a human readable detail.
type Error struct {
	Err    error
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

func transportError(index int, format string, args ...any) error {
	return &ChunkError{
		Index: index,
		Err:   &Error{Err: ErrChunkTransport, Detail: fmt.Sprintf(format, args...)},
	}
}

package engine

import (
	"context"
	"sync/atomic"
)

// CancellationToken is a one-way flag shared by a request and its workers.
// Once canceled it stays canceled; Done is closed exactly once.
type CancellationToken struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	canceled atomic.Bool
}

func NewCancellationToken(parent context.Context) *CancellationToken {
	ctx, cancel := context.WithCancelCause(parent)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel reports whether this call was the one that flipped the flag.
func (t *CancellationToken) Cancel(cause error) bool {
	if !t.canceled.CompareAndSwap(false, true) {
		return false
	}
	t.cancel(cause)
	return true
}

func (t *CancellationToken) Canceled() bool {
	return t.canceled.Load()
}

func (t *CancellationToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Cause is nil until the token is canceled.
func (t *CancellationToken) Cause() error {
	if !t.canceled.Load() {
		return nil
	}
	return context.Cause(t.ctx)
}

func (t *CancellationToken) Context() context.Context {
	return t.ctx
}

// release frees the context resources without marking the token canceled.
func (t *CancellationToken) release() {
	t.cancel(context.Canceled)
}

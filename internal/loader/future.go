package loader

import (
	"context"

	"github.com/conneroisu/modloader/internal/types"
)

// Future is the pending or settled outcome of a module request. Every caller
// attached to the same load attempt receives the same Future, so all of them
// observe the same handle or the same error.
type Future struct {
	done   chan struct{}
	handle types.ModuleHandle
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(handle types.ModuleHandle, err error) *Future {
	f := newFuture()
	f.resolve(handle, err)
	return f
}

// resolve settles the future. It must be called exactly once.
func (f *Future) resolve(handle types.ModuleHandle, err error) {
	f.handle = handle
	f.err = err
	close(f.done)
}

// Done is closed once the future has settled
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has settled without blocking
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx is done. Abandoning the wait
// does not cancel the underlying load.
func (f *Future) Wait(ctx context.Context) (types.ModuleHandle, error) {
	select {
	case <-f.done:
		return f.handle, f.err
	default:
	}

	select {
	case <-f.done:
		return f.handle, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

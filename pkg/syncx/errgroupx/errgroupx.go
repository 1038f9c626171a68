// Package errgroupx wraps golang.org/x/sync/errgroup with a context bound to
// the lifetime of the group, so member goroutines cannot outlive it by
// accident.
package errgroupx

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Group runs a set of goroutines that share a cancelation scope: the first
// member to return an error, or a call to Cancel, stops the rest.
type Group struct {
	inner   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	recover bool
}

// WithContext creates a Group as a child of the given context.
func WithContext(ctx context.Context) *Group {
	scope, cancel := context.WithCancel(ctx)
	inner, groupCtx := errgroup.WithContext(scope)
	return &Group{inner: inner, ctx: groupCtx, cancel: cancel}
}

// WithRecover makes the group absorb panics from member goroutines and report
// them, with a stack, as errors from Wait.
func (g *Group) WithRecover() *Group {
	g.recover = true
	return g
}

// Go launches f as a member of the group. When f returns an error, the
// group-scoped context passed to every member is canceled.
func (g *Group) Go(f func(ctx context.Context) error) {
	g.inner.Go(func() error {
		if g.recover {
			return runRecovered(g.ctx, f)
		}
		return f(g.ctx)
	})
}

func runRecovered(ctx context.Context, f func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s\n%s", rec, debug.Stack())
		}
	}()
	return f(ctx)
}

// Wait blocks until every member has returned and reports the first error.
func (g *Group) Wait() error {
	return g.inner.Wait()
}

// Cancel stops the group without waiting for members to exit.
func (g *Group) Cancel() {
	g.cancel()
}

// Close cancels the group and waits for it.
func (g *Group) Close() error {
	g.cancel()
	return g.Wait()
}

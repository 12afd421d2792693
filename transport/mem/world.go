// File: transport/mem/world.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mem

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RankFunc is the body executed by one rank.
type RankFunc func(ctx context.Context, ep *Endpoint) error

// Run executes fn once per endpoint of f, each in its own goroutine, and
// returns the first error. The shared context is canceled on the first failure
// so blocked ranks unwind.
func (f *Fabric) Run(ctx context.Context, fn RankFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range f.endpoints {
		ep := ep
		g.Go(func() error { return fn(gctx, ep) })
	}
	return g.Wait()
}

// Run builds an n-rank intra fabric and executes fn on every rank.
func Run(ctx context.Context, n int, fn RankFunc) error {
	return NewFabric(n).Run(ctx, fn)
}

// InterRankFunc is the body executed by one rank of an inter fabric; group
// is 0 for the first group and 1 for the second.
type InterRankFunc func(ctx context.Context, group int, ep *Endpoint) error

// RunInter builds a two-group fabric and executes fn on every rank.
func RunInter(ctx context.Context, a, b int, fn InterRankFunc) error {
	f := NewInterFabric(a, b)
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range f.endpoints {
		group := 0
		if i >= a {
			group = 1
		}
		ep := ep
		g.Go(func() error { return fn(gctx, group, ep) })
	}
	return g.Wait()
}

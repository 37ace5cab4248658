// Package component is the lifecycle framework for the daemon's
// long-running pieces: the event loop, the metrics exporter, the
// watchdog. Components start in registration order and stop in
// reverse.
package component

import (
	"context"
	"sync"
)

type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Base supplies the context-and-waitgroup plumbing components embed.
type Base struct {
	name   string
	Ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBase(name string) *Base {
	return &Base{name: name}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) StartContext(parentCtx context.Context) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	b.Ctx, b.cancel = context.WithCancel(parentCtx)
}

func (b *Base) StopContext() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Go runs fn on a tracked goroutine; StopContext waits for it.
func (b *Base) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

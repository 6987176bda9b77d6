package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/takutakahashi/agentapi-push/pkg/worker"
)

var errHostStopped = errors.New("background handler stopped")

type job struct {
	ctx   context.Context
	event worker.Event
	done  chan error
}

// host is the handler's own execution context: a single goroutine that
// processes one event at a time, independent of any application view.
type host struct {
	handler worker.EventHandler
	jobs    chan job
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newHost(handler worker.EventHandler) *host {
	h := &host{
		handler: handler,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *host) run() {
	defer h.wg.Done()
	for {
		select {
		case j := <-h.jobs:
			j.done <- h.handler.Handle(j.ctx, j.event)
		case <-h.quit:
			return
		}
	}
}

// dispatch hands event to the loop and waits until the handler is done
// with it.
func (h *host) dispatch(ctx context.Context, event worker.Event) error {
	done := make(chan error, 1)
	select {
	case h.jobs <- job{ctx: ctx, event: event, done: done}:
	case <-h.quit:
		return errHostStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *host) stop() {
	h.once.Do(func() { close(h.quit) })
	h.wg.Wait()
}

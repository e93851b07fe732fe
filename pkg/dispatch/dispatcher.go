// Package dispatch runs work on a single control goroutine. External
// collaborators post their callbacks here so that the state they touch is
// never entered concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("dispatcher stopped")

type Task func(ctx context.Context)

type ctxKey struct{}

type Dispatcher struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pending []Task
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a dispatcher. Call Run to start the control goroutine.
func New(initialCapacity int, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &Dispatcher{
		logger:  logger,
		pending: make([]Task, 0, initialCapacity),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Post enqueues a task without blocking. Tasks run in posting order.
func (d *Dispatcher) Post(task Task) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.pending = append(d.pending, task)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the control goroutine and waits for its result. Called from
// the control goroutine itself, fn runs inline.
func (d *Dispatcher) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if OnControlThread(ctx) {
		return fn(ctx)
	}

	result := make(chan error, 1)
	err := d.Post(func(runCtx context.Context) {
		if ctx.Err() != nil {
			result <- ctx.Err()
			return
		}
		result <- fn(withCaller(runCtx, ctx))
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Call is Do for functions with a result.
func Call[T any](ctx context.Context, d *Dispatcher, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := d.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

// Run drains the queue until ctx is done or Stop is called. Tasks still
// queued at that point are dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	defer d.markStopped()

	runCtx := context.WithValue(ctx, ctxKey{}, d)
	for {
		for _, task := range d.drain() {
			d.execute(runCtx, task)
		}

		select {
		case <-d.wake:
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends Run and waits for the task in progress to return.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

// Pending reports queued tasks that have not started yet.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// OnControlThread reports whether ctx was handed out by a running dispatcher.
func OnControlThread(ctx context.Context) bool {
	_, ok := ctx.Value(ctxKey{}).(*Dispatcher)
	return ok
}

func (d *Dispatcher) drain() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return nil
	}
	tasks := d.pending
	d.pending = make([]Task, 0, cap(tasks))
	return tasks
}

func (d *Dispatcher) execute(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Dispatched task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task(ctx)
}

func (d *Dispatcher) markStopped() {
	d.mu.Lock()
	d.stopped = true
	d.pending = nil
	d.mu.Unlock()
}

// withCaller keeps the control-thread marker while carrying the caller's
// values and deadline.
func withCaller(runCtx, callerCtx context.Context) context.Context {
	return context.WithValue(callerCtx, ctxKey{}, runCtx.Value(ctxKey{}))
}

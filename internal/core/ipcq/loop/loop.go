// Package loop provides the execution contexts actors run on.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/internal/core/observability/log"
)

var (
	_ ipcq.Dispatcher = (*Loop)(nil)
	_ ipcq.Dispatcher = (*Manual)(nil)
)

var ErrClosed = errors.New("loop is closed")

// Loop runs posted tasks one at a time, in post order, on the goroutine that
// calls Run.
type Loop struct {
	name   string
	logger log.Log

	mu     sync.Mutex
	tasks  []func()
	timers map[*time.Timer]struct{}
	closed bool

	wake chan struct{}
	done chan struct{}
}

func New(name string, logger log.Log) *Loop {
	if logger == nil {
		logger = log.Provide()
	}
	return &Loop{
		name:   name,
		logger: logger.Named("loop").With(log.String("loop", name)),
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start() {
	go func() { _ = l.Run(context.Background()) }()
}

// Run processes tasks until Close is called or ctx is done. Tasks posted
// before Close still run.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		batch, closed := l.drain()
		for _, task := range batch {
			l.runTask(task)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			_ = l.Close()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Post implements ipcq.Dispatcher.
func (l *Loop) Post(task func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	l.signal()
	return nil
}

// DelayedDispatch implements ipcq.Dispatcher.
func (l *Loop) DelayedDispatch(task func(), delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		delete(l.timers, timer)
		l.mu.Unlock()
		_ = l.Post(task)
	})
	l.timers[timer] = struct{}{}
	return nil
}

// Invoke posts fn and waits for it to finish.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and cancels pending delayed tasks. Run returns
// once the already queued tasks are done.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for timer := range l.timers {
		timer.Stop()
	}
	clear(l.timers)
	l.mu.Unlock()

	l.signal()
	return nil
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) drain() ([]func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.tasks
	l.tasks = nil
	return batch, l.closed
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Task panicked", log.String("panic", fmt.Sprint(r)))
		}
	}()
	task()
}

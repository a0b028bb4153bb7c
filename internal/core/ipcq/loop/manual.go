package loop

import (
	"sync"
	"time"

	"github.com/zeusync/ipcq/pkg/sequence"
)

type manualTimer struct {
	at   time.Duration
	seq  uint64
	task func()
}

// Manual is a Dispatcher driven by the caller. Posted tasks run on
// RunPending and delayed tasks once Advance moves the virtual clock past
// their deadline.
type Manual struct {
	inline bool

	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	tasks  []func()
	timers *sequence.PriorityQueue[*manualTimer]
	closed bool
}

func NewManual() *Manual {
	return &Manual{timers: sequence.NewPriorityQueue[*manualTimer]()}
}

// NewInline returns a Manual whose Post runs the task on the caller's
// goroutine before returning. Delayed tasks still wait for Advance.
func NewInline() *Manual {
	m := NewManual()
	m.inline = true
	return m
}

// Post implements ipcq.Dispatcher.
func (m *Manual) Post(task func()) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.inline {
		m.mu.Unlock()
		task()
		return nil
	}
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	return nil
}

// DelayedDispatch implements ipcq.Dispatcher.
func (m *Manual) DelayedDispatch(task func(), delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.seq++
	at := m.now + delay
	// The queue pops the highest priority first.
	m.timers.Enqueue(&manualTimer{at: at, seq: m.seq, task: task}, -int(at))
	return nil
}

// RunPending runs queued tasks, including ones posted while running, until
// none are left. It returns the number of tasks run.
func (m *Manual) RunPending() int {
	ran := 0
	for {
		m.mu.Lock()
		batch := m.tasks
		m.tasks = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		for _, task := range batch {
			task()
			ran++
		}
	}
}

// Advance moves the clock forward by d, queues every delayed task that became
// due in deadline order and runs everything pending.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	var due []*manualTimer
	for {
		next, ok := m.timers.Peek()
		if !ok || next.at > m.now {
			break
		}
		m.timers.Dequeue()
		due = append(due, next)
	}
	m.mu.Unlock()

	ordered := sequence.From(due).Sort(func(a, b *manualTimer) bool {
		if a.at != b.at {
			return a.at < b.at
		}
		return a.seq < b.seq
	}).Collect()

	for _, t := range ordered {
		_ = m.Post(t.task)
	}
	return m.RunPending()
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// PendingTasks returns the number of posted tasks not yet run.
func (m *Manual) PendingTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// PendingTimers returns the number of delayed tasks not yet due.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers.Len()
}

// Close makes every later Post and DelayedDispatch fail.
func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

package asyncredis

import (
	"errors"
	"sync"
)

// ErrLoopClosed is returned by Post once the loop has been closed.
var ErrLoopClosed = errors.New("asyncredis: event loop closed")

// EventLoop serializes the work of connections and pools.
//
// All connection state, pool state and transport events are only touched from
// tasks posted to the loop, so none of them needs a lock. Completion callbacks
// run on the loop as well and must not block.
type EventLoop interface {
	// Post schedules fn to run on the loop. It must not block waiting for fn.
	Post(fn func()) error
}

// Loop is an EventLoop running its tasks in order on a single goroutine.
// Post never blocks, and tasks may post further tasks.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewEventLoop starts a loop goroutine. Close stops it.
func NewEventLoop() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close rejects new tasks, runs the ones already queued and waits for the loop
// goroutine to exit. It must not be called from a task.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.stopped
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)

	var batch []func()
	for range l.wake {
		l.mu.Lock()
		batch, l.queue = l.queue, batch[:0]
		closed := l.closed
		l.mu.Unlock()

		for i, fn := range batch {
			l.runTask(fn)
			batch[i] = nil
		}

		if closed {
			l.mu.Lock()
			remaining := len(l.queue)
			l.mu.Unlock()
			if remaining == 0 {
				return
			}
			// Tasks queued by the last batch still run.
			select {
			case l.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("event loop task panicked: %v", r)
		}
	}()
	fn()
}

// InlineLoop runs every task immediately on the posting goroutine.
//
// It suits embedders whose calls and transport events are already serialized,
// and tests driving a connection by hand. It is not safe with NetDialer, whose
// reader goroutines post concurrently.
type InlineLoop struct{}

func (InlineLoop) Post(fn func()) error {
	fn()
	return nil
}

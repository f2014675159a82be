package client

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// loop runs posted functions one at a time, in post order, on a single
// goroutine. Posting never blocks, so transport readers and timer goroutines
// can hand work to the session without waiting on user callbacks.
type loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []func()

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newLoop(logger *slog.Logger) *loop {
	return &loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// post queues fn. It returns false once the loop has stopped.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// run processes the queue until stop is called.
func (l *loop) run() {
	for {
		select {
		case <-l.wake:
			if !l.drain() {
				return
			}
		case <-l.done:
			return
		}
	}
}

// drain executes everything queued so far. It returns false if the loop was
// stopped by one of the executed functions.
func (l *loop) drain() bool {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return true
		}
		for _, fn := range batch {
			l.execute(fn)
			select {
			case <-l.done:
				return false
			default:
			}
		}
	}
}

// execute runs fn with panic recovery.
func (l *loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("session loop panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// stop ends the loop. Functions posted afterwards are dropped.
func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// defaultQueueSize bounds the run queue. At one video emission per interval
// plus one audio batch per packet, 64 pending tasks means the consumer has
// stalled for several seconds; dropping beats unbounded growth.
const defaultQueueSize = 64

// Sentinel errors reported by Submit. Both mean the payload was not and
// will not be delivered.
var (
	ErrClosed = errors.New("dispatch: loop closed")
	ErrBusy   = errors.New("dispatch: run queue full")
)

// Loop is the consumer's execution context: a bounded run queue drained by
// a single goroutine. Tasks execute strictly in submission order, one at a
// time, never on the submitter's goroutine. This is the explicit handoff
// point between the blocking decode worker and the cooperative consumer
// side.
type Loop struct {
	tasks  chan func()
	log    *slog.Logger
	closed atomic.Bool
	done   chan struct{}
}

// NewLoop creates a Loop with the given queue depth. A depth of zero or
// less selects the default. If log is nil, slog.Default() is used.
func NewLoop(queueSize int, log *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		log:   log.With("component", "dispatch-loop"),
		done:  make(chan struct{}),
	}
}

// Run drains the queue until the context is cancelled. It must be running
// for Submit to make progress. Tasks still queued at cancellation are
// discarded, not flushed. After Run returns the loop is permanently closed;
// it cannot be restarted.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.closed.Store(true)
		close(l.done)
		l.log.Debug("dispatch loop closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-l.tasks:
			task()
		}
	}
}

// Submit schedules task for asynchronous execution without ever blocking
// the caller. It returns ErrClosed after the loop has shut down and ErrBusy
// when the queue is full; in both cases the task is dropped.
func (l *Loop) Submit(task func()) error {
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.tasks <- task:
		return nil
	default:
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
		return ErrBusy
	}
}

// Done is closed when the loop has shut down permanently. The decode worker
// watches this to stop once no consumer remains.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

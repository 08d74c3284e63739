package atlas

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lexmap/lexmap/internal/frames"
)

// QueueState is the rebuild queue's position in its lifecycle:
// Idle → Scheduled (debounce pending) → Running → {Idle | Scheduled}.
type QueueState string

const (
	QueueIdle      QueueState = "idle"
	QueueScheduled QueueState = "scheduled"
	QueueRunning   QueueState = "running"
)

// QueueHooks are the event callbacks the queue reports through. Any hook
// may be nil. Hooks run on the worker goroutine inside a panic boundary.
type QueueHooks struct {
	OnRebuildStarted   func()
	OnRebuildCompleted func(*RebuildResult)
	OnRebuildFailed    func(*RebuildResult)
}

// RebuildQueue is the event-driven rebuild coordinator. Frame ingestions
// restart a debounce timer; when it fires, a request lands in a single-slot
// channel consumed by one dedicated worker, which runs
// fetchFrames → rebuild → validate and reports through the hooks.
//
// The capacity-1 request channel is the whole coalescing story: a request
// arriving while a rebuild runs parks in the slot and fires right after the
// current rebuild finishes, so the queue always eventually reflects the most
// recent ingestion — while never running two rebuilds at once and never
// mapping ingestions 1:1 to rebuilds.
type RebuildQueue struct {
	fetch     FetchFramesFunc
	rebuilder *Rebuilder
	debounce  time.Duration
	hooks     QueueHooks
	logger    *zap.Logger

	requests chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup

	mu           sync.Mutex
	timer        *time.Timer
	timerPending bool
	state        QueueState
	stopped      bool
}

// NewRebuildQueue creates the queue and starts its worker goroutine. A
// non-positive debounce falls back to DefaultDebounce; a nil logger falls
// back to zap.NewNop(). Stop must be called to release the worker.
func NewRebuildQueue(fetch FetchFramesFunc, rebuilder *Rebuilder, debounce time.Duration, hooks QueueHooks, logger *zap.Logger) *RebuildQueue {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &RebuildQueue{
		fetch:     fetch,
		rebuilder: rebuilder,
		debounce:  debounce,
		hooks:     hooks,
		logger:    logger,
		requests:  make(chan struct{}, 1),
		quit:      make(chan struct{}),
		state:     QueueIdle,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// NotifyFrameIngested restarts the debounce timer. Rapid ingestions within
// the quiet period coalesce into one rebuild.
func (q *RebuildQueue) NotifyFrameIngested(frame frames.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}

	q.logger.Debug("frame ingested",
		zap.String("frame_id", frame.ID),
		zap.Strings("modules", frame.Modules))

	if q.state == QueueIdle {
		q.state = QueueScheduled
	}
	q.timerPending = true
	if q.timer == nil {
		q.timer = time.AfterFunc(q.debounce, q.enqueue)
	} else {
		q.timer.Reset(q.debounce)
	}
}

// enqueue fires on debounce expiry and drops a request into the single
// slot. If the slot is already full a rebuild is pending anyway, so the
// request folds into it.
func (q *RebuildQueue) enqueue() {
	q.mu.Lock()
	q.timerPending = false
	q.mu.Unlock()
	select {
	case q.requests <- struct{}{}:
	default:
	}
}

// State returns the queue's current lifecycle state.
func (q *RebuildQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// worker is the only goroutine that rebuilds. One request, one rebuild.
func (q *RebuildQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case <-q.requests:
			q.runOnce()
		}
	}
}

// runOnce executes a single rebuild cycle and reports through the hooks.
// An operational error or validation failure releases the running state
// regardless, so the queue can never wedge.
func (q *RebuildQueue) runOnce() {
	q.setState(QueueRunning)
	q.callHook("started", func() {
		if q.hooks.OnRebuildStarted != nil {
			q.hooks.OnRebuildStarted()
		}
	})

	result := executeRebuild(q.fetch, q.rebuilder)

	if result.Success {
		q.logger.Info("atlas rebuilt",
			zap.Int("frames", result.FrameCount),
			zap.Int64("duration_ms", result.DurationMs))
		q.callHook("completed", func() {
			if q.hooks.OnRebuildCompleted != nil {
				q.hooks.OnRebuildCompleted(result)
			}
		})
	} else {
		q.logger.Warn("atlas rebuild failed", zap.String("error", result.Err))
		q.callHook("failed", func() {
			if q.hooks.OnRebuildFailed != nil {
				q.hooks.OnRebuildFailed(result)
			}
		})
	}

	// Back to Idle unless a request parked in the slot (or the timer is
	// still pending) while we were running.
	q.mu.Lock()
	if len(q.requests) > 0 || q.timerPending {
		q.state = QueueScheduled
	} else {
		q.state = QueueIdle
	}
	q.mu.Unlock()
}

func (q *RebuildQueue) setState(s QueueState) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
}

// callHook runs a hook inside a panic boundary so a broken subscriber
// cannot kill the worker.
func (q *RebuildQueue) callHook(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("rebuild hook panicked",
				zap.String("hook", name), zap.Any("panic", rec))
		}
	}()
	fn()
}

// Stop cancels any pending debounce timer and shuts the worker down. An
// in-flight rebuild runs to completion first; its result is delivered to
// the hooks and then discarded.
func (q *RebuildQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()

	close(q.quit)
	q.wg.Wait()
}

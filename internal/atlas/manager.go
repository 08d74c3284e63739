package atlas

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrManagerDisposed is returned to callers whose rebuild was cancelled by
// Dispose before a result existed.
var ErrManagerDisposed = errors.New("atlas: rebuild manager disposed")

// DefaultDebounce is the quiet period both coordinators wait for before
// firing a rebuild.
const DefaultDebounce = 500 * time.Millisecond

// RebuildCallback observes every completed rebuild, success or failure.
type RebuildCallback func(*RebuildResult)

// RebuildManager is the fan-in rebuild coordinator: every TriggerRebuild
// call issued while a debounce window is open or a rebuild is in flight
// blocks on — and receives — the identical *RebuildResult. Bursts of
// triggers collapse into one rebuild fired after the debounce quiet period.
//
// The manager is constructed explicitly by the composition root and owned
// for the process lifetime; there is no lazily-checked global.
type RebuildManager struct {
	fetch     FetchFramesFunc
	rebuilder *Rebuilder
	debounce  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	ticket    *rebuildTicket // non-nil while Scheduled or Running
	timer     *time.Timer
	running   bool
	disposed  bool
	callbacks []RebuildCallback
}

// rebuildTicket is one rebuild cycle's shared outcome. All callers that fan
// in on the cycle block on done; complete settles it exactly once.
type rebuildTicket struct {
	done   chan struct{}
	once   sync.Once
	result *RebuildResult
	err    error
}

func (t *rebuildTicket) complete(result *RebuildResult, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}

// NewRebuildManager creates a manager over the injected frame source and
// rebuilder. A non-positive debounce falls back to DefaultDebounce; a nil
// logger falls back to zap.NewNop().
func NewRebuildManager(fetch FetchFramesFunc, rebuilder *Rebuilder, debounce time.Duration, logger *zap.Logger) *RebuildManager {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RebuildManager{
		fetch:     fetch,
		rebuilder: rebuilder,
		debounce:  debounce,
		logger:    logger,
	}
}

// OnRebuild registers a callback fired after every completed rebuild,
// success or failure. A panicking callback is recovered and logged so it
// cannot block delivery to the others.
func (m *RebuildManager) OnRebuild(cb RebuildCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// TriggerRebuild requests a rebuild and blocks until its result exists.
//
// While the debounce timer is pending, each call resets it, so a burst of
// triggers runs one rebuild after the last call's quiet period. While a
// rebuild is running it is never interrupted; late callers join the same
// ticket and observe the identical result. A failed rebuild resolves with
// Success=false and a nil error — the only error this method returns is
// ErrManagerDisposed.
func (m *RebuildManager) TriggerRebuild() (*RebuildResult, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrManagerDisposed
	}

	if m.ticket == nil {
		m.ticket = &rebuildTicket{done: make(chan struct{})}
		m.timer = time.AfterFunc(m.debounce, m.fire)
	} else if !m.running {
		// Still in the debounce window: push the deadline out.
		m.timer.Reset(m.debounce)
	}
	t := m.ticket
	m.mu.Unlock()

	<-t.done
	return t.result, t.err
}

// fire runs when the debounce timer expires: it transitions the pending
// ticket from Scheduled to Running and executes the rebuild.
func (m *RebuildManager) fire() {
	m.mu.Lock()
	if m.disposed || m.ticket == nil {
		m.mu.Unlock()
		return
	}
	t := m.ticket
	m.running = true
	m.mu.Unlock()

	result := executeRebuild(m.fetch, m.rebuilder)

	m.mu.Lock()
	m.running = false
	if m.ticket == t {
		m.ticket = nil
	}
	callbacks := append([]RebuildCallback(nil), m.callbacks...)
	m.mu.Unlock()

	if !result.Success {
		m.logger.Warn("atlas rebuild failed", zap.String("error", result.Err))
	}

	t.complete(result, nil)
	for _, cb := range callbacks {
		m.invoke(cb, result)
	}
}

// invoke runs one subscriber inside its own error boundary: a panic is
// recovered and logged, never propagated, so one broken subscriber cannot
// starve the rest.
func (m *RebuildManager) invoke(cb RebuildCallback, result *RebuildResult) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("rebuild callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(result)
}

// Dispose cancels any pending debounce timer and fails still-waiting
// callers with ErrManagerDisposed — no meaningful result will ever exist
// for them. An in-flight rebuild runs to completion; its result is simply
// discarded. Further TriggerRebuild calls fail immediately.
func (m *RebuildManager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	if m.ticket != nil {
		m.ticket.complete(nil, ErrManagerDisposed)
		m.ticket = nil
	}
}

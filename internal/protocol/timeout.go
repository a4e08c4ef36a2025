package protocol

import (
	"sync"
	"time"
)

// DefaultRequestTimeout is used when RequestOptions.Timeout is zero.
const DefaultRequestTimeout = 60 * time.Second

// timeoutEntry tracks one outgoing request's timer and its reset budget.
type timeoutEntry struct {
	timer                  *time.Timer
	onTimeout              func()
	start                  time.Time
	elapsedBeforeLastReset time.Duration
	timeout                time.Duration
	maxTotalTimeout        time.Duration
	resetOnProgress        bool
}

// timeoutResetResult is returned by reset: a reset fails (without being
// applied) once the elapsed time has already reached maxTotalTimeout, and the caller
// translates that into a timeout error on the outgoing request.
type timeoutResetResult struct {
	Success               bool
	MaxTotalTimeoutExceed *maxTotalTimeoutExceeded
}

type maxTotalTimeoutExceeded struct {
	Elapsed         time.Duration
	MaxTotalTimeout time.Duration
}

// timeoutManager owns exactly one timer per outgoing request and tracks
// cumulative elapsed time so progress-triggered resets can be refused once
// maxTotalTimeout is spent.
type timeoutManager struct {
	mu      sync.Mutex
	entries map[string]*timeoutEntry
}

func newTimeoutManager() *timeoutManager {
	return &timeoutManager{entries: make(map[string]*timeoutEntry)}
}

type timeoutSetupOptions struct {
	Timeout         time.Duration
	MaxTotalTimeout time.Duration
	ResetOnProgress bool
	OnTimeout       func()
}

func (m *timeoutManager) setup(id string, opts timeoutSetupOptions) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[id]; ok {
		existing.timer.Stop()
	}

	entry := &timeoutEntry{
		onTimeout:       opts.OnTimeout,
		start:           time.Now(),
		timeout:         timeout,
		maxTotalTimeout: opts.MaxTotalTimeout,
		resetOnProgress: opts.ResetOnProgress,
	}
	entry.timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		_, stillPresent := m.entries[id]
		m.mu.Unlock()
		if stillPresent && entry.onTimeout != nil {
			entry.onTimeout()
		}
	})
	m.entries[id] = entry
}

// reset extends an entry's per-request timer by its original timeout
// duration, failing if the cumulative elapsed time has already passed
// maxTotalTimeout. Entries without resetOnProgress report success and
// leave their timer untouched.
func (m *timeoutManager) reset(id string) timeoutResetResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return timeoutResetResult{Success: false}
	}
	if !entry.resetOnProgress {
		return timeoutResetResult{Success: true}
	}

	elapsed := time.Since(entry.start)
	if entry.maxTotalTimeout > 0 && elapsed >= entry.maxTotalTimeout {
		return timeoutResetResult{
			Success: false,
			MaxTotalTimeoutExceed: &maxTotalTimeoutExceeded{
				Elapsed:         elapsed,
				MaxTotalTimeout: entry.maxTotalTimeout,
			},
		}
	}

	entry.timer.Stop()
	entry.timer = time.AfterFunc(entry.timeout, func() {
		m.mu.Lock()
		_, stillPresent := m.entries[id]
		m.mu.Unlock()
		if stillPresent && entry.onTimeout != nil {
			entry.onTimeout()
		}
	})
	return timeoutResetResult{Success: true}
}

func (m *timeoutManager) cleanup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[id]; ok {
		entry.timer.Stop()
		delete(m.entries, id)
	}
}

func (m *timeoutManager) clearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.entries {
		entry.timer.Stop()
		delete(m.entries, id)
	}
}

func (m *timeoutManager) get(id string) (*timeoutEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	return entry, ok
}

func (m *timeoutManager) getElapsed(id string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return 0, false
	}
	return time.Since(entry.start), true
}

func (m *timeoutManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

package protocol

import "sync"

// ProgressCallback receives progress notifications for an in-flight
// request.
type ProgressCallback func(progress int64, total *int64, message *string)

// progressManager maps message ids to progress callbacks and routes
// "notifications/progress" notifications to them. A handler normally
// lives for the duration of its request; retain extends it for task-backed
// requests that keep emitting progress after the initial response.
type progressManager struct {
	mu       sync.RWMutex
	handlers map[string]ProgressCallback
	retained map[string]bool
}

func newProgressManager() *progressManager {
	return &progressManager{
		handlers: make(map[string]ProgressCallback),
		retained: make(map[string]bool),
	}
}

func (m *progressManager) registerHandler(id string, cb ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[id] = cb
}

// removeHandler drops a handler unless it has been retained; a task-create
// response extends the handler's lifetime past the owning request's normal
// completion.
func (m *progressManager) removeHandler(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retained[id] {
		return
	}
	delete(m.handlers, id)
}

// retain marks a handler as surviving its request's normal cleanup path.
func (m *progressManager) retain(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[id]; ok {
		m.retained[id] = true
	}
}

// release forgets a retained handler once its task has reached a terminal
// state.
func (m *progressManager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retained, id)
	delete(m.handlers, id)
}

func (m *progressManager) dispatch(id string, progress int64, total *int64, message *string) {
	m.mu.RLock()
	cb := m.handlers[id]
	m.mu.RUnlock()
	if cb != nil {
		cb(progress, total, message)
	}
}

func (m *progressManager) clearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[string]ProgressCallback)
	m.retained = make(map[string]bool)
}

// Package task implements the server-side deferred execution subsystem and
// its client half: a request carrying params.task is executed in the
// background, its progress and eventual result queued instead of written
// straight to the transport, and retrieved later through tasks/get,
// tasks/result (long-poll), tasks/list, and tasks/cancel.
package task

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Status is a task's lifecycle state. The three terminal states are
// absorbing: once reached, no further transition occurs.
type Status string

const (
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// IsTerminal reports whether a status can no longer transition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the server-side record of one deferred operation.
type Task struct {
	ID          string
	Status      Status
	CreatedAt   time.Time
	TTL         time.Duration
	Result      []byte
	ResultError error
	RelatedCall string // the originating method, e.g. "tools/call"
}

// Store persists tasks. MemoryStore is the reference implementation;
// embedding applications may supply a durable one (e.g. backed by a
// database) without changing Manager.
type Store interface {
	Create(t *Task) error
	Get(id string) (*Task, bool)
	Update(id string, mutate func(*Task)) (*Task, error)
	List(cursor string, pageSize int) (tasks []*Task, nextCursor string, err error)
	Delete(id string)
}

// MemoryStore is an in-process Store backed by a mutex-guarded map.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) Create(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return errors.Errorf("task: id %q already exists", t.ID)
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	return nil
}

func (s *MemoryStore) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *MemoryStore) Update(id string, mutate func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.Errorf("task: unknown id %q", id)
	}
	mutate(t)
	return t, nil
}

func (s *MemoryStore) List(cursor string, pageSize int) ([]*Task, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if cursor != "" {
		found := false
		for i, id := range s.order {
			if id == cursor {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, "", errors.Errorf("task: invalid cursor %q", cursor)
		}
	}
	if pageSize <= 0 {
		pageSize = len(s.order)
	}

	end := start + pageSize
	if end > len(s.order) {
		end = len(s.order)
	}

	page := make([]*Task, 0, end-start)
	for _, id := range s.order[start:end] {
		page = append(page, s.tasks[id])
	}

	nextCursor := ""
	if end < len(s.order) {
		nextCursor = s.order[end-1]
	}
	return page, nextCursor, nil
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// QueuedMessageType tags what a QueuedMessage carries.
type QueuedMessageType string

const (
	QueuedRequest      QueuedMessageType = "request"
	QueuedNotification QueuedMessageType = "notification"
	QueuedDone         QueuedMessageType = "done"
)

// QueuedMessage is a side-channel message produced while a task runs:
// either a server-initiated request/notification a handler sent from
// inside a task context (e.g. an elicitation mid-task), or the sentinel
// marking that the task reached a terminal state.
type QueuedMessage struct {
	Type          QueuedMessageType
	Method        string
	Params        json.RawMessage
	CorrelationID string // set for Type == QueuedRequest; keys Manager.pending
	Timestamp     time.Time
}

// MessageQueue buffers QueuedMessages per task and lets callers block
// until one arrives, which is what keeps the tasks/result long-poll open
// until the task handler produces something to deliver.
type MessageQueue struct {
	mu      sync.Mutex
	queues  map[string]*list.List
	waiters map[string]chan struct{}
}

// NewMessageQueue builds an empty MessageQueue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		queues:  make(map[string]*list.List),
		waiters: make(map[string]chan struct{}),
	}
}

func (q *MessageQueue) Enqueue(taskID string, msg QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	queue, ok := q.queues[taskID]
	if !ok {
		queue = list.New()
		q.queues[taskID] = queue
	}
	queue.PushBack(msg)
	if waiter, ok := q.waiters[taskID]; ok {
		close(waiter)
		delete(q.waiters, taskID)
	}
}

// Drain removes and returns every currently-queued message for taskID.
func (q *MessageQueue) Drain(taskID string) []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	queue, ok := q.queues[taskID]
	if !ok {
		return nil
	}
	out := make([]QueuedMessage, 0, queue.Len())
	for e := queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(QueuedMessage))
	}
	queue.Init()
	return out
}

// Wait blocks until a message is enqueued for taskID or ctx is done.
func (q *MessageQueue) Wait(ctx context.Context, taskID string) error {
	q.mu.Lock()
	if queue, ok := q.queues[taskID]; ok && queue.Len() > 0 {
		q.mu.Unlock()
		return nil
	}
	waiter, ok := q.waiters[taskID]
	if !ok {
		waiter = make(chan struct{})
		q.waiters[taskID] = waiter
	}
	q.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewTaskID generates a fresh task identifier.
func NewTaskID() string { return uuid.New().String() }

package task

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	store := NewMemoryStore()
	id := NewTaskID()
	if err := store.Create(&Task{ID: id, Status: StatusWorking, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := store.Get(id)
	if !ok {
		t.Fatal("Get: expected task to exist")
	}
	if got.Status != StatusWorking {
		t.Fatalf("Status = %v, want %v", got.Status, StatusWorking)
	}

	updated, err := store.Update(id, func(tt *Task) { tt.Status = StatusCompleted })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Fatalf("Status after update = %v, want %v", updated.Status, StatusCompleted)
	}
}

func TestMemoryStore_CreateDuplicateIDFails(t *testing.T) {
	store := NewMemoryStore()
	t1 := &Task{ID: "dup", Status: StatusWorking}
	if err := store.Create(t1); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := store.Create(t1); err == nil {
		t.Fatal("expected second Create with the same id to fail")
	}
}

func TestMemoryStore_UpdateUnknownIDFails(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Update("missing", func(*Task) {}); err == nil {
		t.Fatal("expected Update on an unknown id to fail")
	}
}

func TestMemoryStore_ListPagination(t *testing.T) {
	store := NewMemoryStore()
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id := NewTaskID()
		ids = append(ids, id)
		if err := store.Create(&Task{ID: id, Status: StatusWorking}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	page1, cursor1, err := store.List("", 2)
	if err != nil {
		t.Fatalf("List page1: %v", err)
	}
	if len(page1) != 2 || cursor1 == "" {
		t.Fatalf("page1 = %d items, cursor %q; want 2 items and a cursor", len(page1), cursor1)
	}

	page2, cursor2, err := store.List(cursor1, 2)
	if err != nil {
		t.Fatalf("List page2: %v", err)
	}
	if len(page2) != 2 || cursor2 == "" {
		t.Fatalf("page2 = %d items, cursor %q; want 2 items and a cursor", len(page2), cursor2)
	}

	page3, cursor3, err := store.List(cursor2, 2)
	if err != nil {
		t.Fatalf("List page3: %v", err)
	}
	if len(page3) != 1 || cursor3 != "" {
		t.Fatalf("page3 = %d items, cursor %q; want 1 item and no cursor", len(page3), cursor3)
	}
}

func TestMemoryStore_ListInvalidCursorFails(t *testing.T) {
	store := NewMemoryStore()
	if _, _, err := store.List("does-not-exist", 10); err == nil {
		t.Fatal("expected List with an invalid cursor to fail")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	id := NewTaskID()
	store.Create(&Task{ID: id, Status: StatusWorking})
	store.Delete(id)
	if _, ok := store.Get(id); ok {
		t.Fatal("expected task to be gone after Delete")
	}
}

func TestMessageQueue_EnqueueDrain(t *testing.T) {
	q := NewMessageQueue()
	q.Enqueue("t1", QueuedMessage{Type: QueuedNotification, Method: "notifications/progress", Params: []byte(`{"progress":1}`)})
	q.Enqueue("t1", QueuedMessage{Type: QueuedDone})

	msgs := q.Drain("t1")
	if len(msgs) != 2 {
		t.Fatalf("Drain = %d messages, want 2", len(msgs))
	}
	if msgs[1].Type != QueuedDone {
		t.Fatal("expected second message to be the Done marker")
	}

	if again := q.Drain("t1"); len(again) != 0 {
		t.Fatalf("second Drain = %d messages, want 0", len(again))
	}
}

func TestMessageQueue_WaitUnblocksOnEnqueue(t *testing.T) {
	q := NewMessageQueue()
	done := make(chan error, 1)
	go func() {
		done <- q.Wait(context.Background(), "t1")
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue("t1", QueuedMessage{Type: QueuedDone})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Enqueue")
	}
}

func TestMessageQueue_WaitRespectsContextCancellation(t *testing.T) {
	q := NewMessageQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Wait(ctx, "never-arrives"); err == nil {
		t.Fatal("expected Wait to return an error for an already-cancelled context")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusWorking:       false,
		StatusInputRequired: false,
		StatusCompleted:     true,
		StatusFailed:        true,
		StatusCancelled:     true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	attempts map[string]int
	sent     chan Message
}

func newFlakySink(failures int) *flakySink {
	return &flakySink{failures: failures, attempts: map[string]int{}, sent: make(chan Message, 16)}
}

func (s *flakySink) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	s.attempts[msg.ID]++
	n := s.attempts[msg.ID]
	s.mu.Unlock()

	if n <= s.failures {
		return errors.New("smtp unavailable")
	}
	s.sent <- msg
	return nil
}

func (s *flakySink) attemptsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func startDispatcher(t *testing.T, d *Dispatcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("dispatcher did not stop")
		}
	}
}

func TestDispatcherRetriesUntilDelivered(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFlakySink(2)
	d := NewDispatcher(sink, 2, 8, fastPolicy(5))
	stop := startDispatcher(t, d)
	defer stop()

	if err := d.Enqueue(context.Background(), Message{ID: "m1", To: "a@example.com", Subject: "hi"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case msg := <-sink.sent:
		if msg.ID != "m1" {
			t.Fatalf("expected m1, got %s", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message was not delivered")
	}

	if got := sink.attemptsFor("m1"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFlakySink(100)
	d := NewDispatcher(sink, 1, 8, fastPolicy(3))
	stop := startDispatcher(t, d)

	if err := d.Enqueue(context.Background(), Message{ID: "m2", To: "a@example.com"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.attemptsFor("m2") < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	stop()

	if got := sink.attemptsFor("m2"); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestDispatcherSkipsMessagesWithoutRecipient(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFlakySink(0)
	d := NewDispatcher(sink, 1, 8, fastPolicy(3))
	stop := startDispatcher(t, d)

	if err := d.Enqueue(context.Background(), Message{ID: "nobody"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := d.Enqueue(context.Background(), Message{ID: "somebody", To: "b@example.com"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-sink.sent:
	case <-time.After(2 * time.Second):
		t.Fatalf("message was not delivered")
	}
	stop()

	if got := sink.attemptsFor("nobody"); got != 0 {
		t.Fatalf("expected no send attempts for a message without recipient, got %d", got)
	}
}

func TestDispatcherEnqueueReportsFullQueue(t *testing.T) {
	d := NewDispatcher(newFlakySink(0), 1, 1, fastPolicy(1))

	if err := d.Enqueue(context.Background(), Message{To: "a@example.com"}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := d.Enqueue(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcherDrainsOnShutdownAndRejectsLateMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFlakySink(0)
	d := NewDispatcher(sink, 1, 8, fastPolicy(1))
	for i := 0; i < 3; i++ {
		if err := d.Enqueue(context.Background(), Message{To: "a@example.com"}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if len(sink.sent) != 3 {
		t.Fatalf("expected 3 drained messages, got %d", len(sink.sent))
	}
	if err := d.Enqueue(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
}

package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDeliverStopsWithoutDeadLetterWhenContextEnds(t *testing.T) {
	sink := newFlakySink(1000)
	policy := RetryPolicy{MaxAttempts: 5, InitialInterval: 200 * time.Millisecond, MaxInterval: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := deliver(ctx, sink, Message{ID: "m-cancel", To: "a@example.com"}, policy)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if got := sink.attemptsFor("m-cancel"); got >= policy.MaxAttempts {
		t.Fatalf("expected the budget to be left unspent, got %d attempts", got)
	}
}

func TestDeliverReportsExhaustedBudget(t *testing.T) {
	sink := newFlakySink(1000)

	err := deliver(context.Background(), sink, Message{ID: "m-dead", To: "a@example.com"}, fastPolicy(3))
	if err == nil || errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected a dead-letter error, got %v", err)
	}
	if got := sink.attemptsFor("m-dead"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDeliverWithoutRecipientIsNotInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := deliver(ctx, newFlakySink(0), Message{ID: "m-nobody"}, fastPolicy(3))
	if errors.Is(err, ErrInterrupted) {
		t.Fatalf("a message without recipient should not be requeued, got %v", err)
	}
}

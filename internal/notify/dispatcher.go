package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/metrics"
)

const defaultDrainTimeout = 10 * time.Second

// Dispatcher is an in-process queue drained by a fixed pool of workers.
type Dispatcher struct {
	sink         Sink
	policy       RetryPolicy
	workers      int
	drainTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Message
}

func NewDispatcher(sink Sink, workers, queueSize int, policy RetryPolicy) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		sink:         sink,
		policy:       policy,
		workers:      workers,
		drainTimeout: defaultDrainTimeout,
		queue:        make(chan Message, queueSize),
	}
}

// Enqueue never blocks; a full buffer is reported as ErrQueueFull.
func (d *Dispatcher) Enqueue(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		metrics.RecordNotification("dropped")
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Messages already
// queued are drained for at most drainTimeout before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	deliverCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range d.queue {
				_ = deliver(deliverCtx, d.sink, msg, d.policy)
			}
		}()
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	pending := len(d.queue)
	d.mu.Unlock()

	if pending > 0 {
		log.Printf("[NOTIFY] [INFO] draining %d queued notifications", pending)
	}
	timer := time.AfterFunc(d.drainTimeout, cancel)
	defer timer.Stop()

	wg.Wait()
	return nil
}

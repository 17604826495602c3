// Package notify delivers chat notification events to users through a set of sinks: the
// live user queue, the mongo inbox, Expo push and a kafka topic.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/api"
	"github.com/h-like/sleeprism-chat/logging"
	"github.com/h-like/sleeprism-chat/models"
)

// Sink receives every dispatched event
type Sink interface {
	Name() string
	Deliver(ctx context.Context, userID uint, ev models.NotificationEvent) error
}

// Fanout hands an event to every sink. A failing sink is logged and does not stop the rest.
type Fanout []Sink

// Deliver hands ev to every sink
func (f Fanout) Deliver(ctx context.Context, userID uint, ev models.NotificationEvent) {
	for _, s := range f {
		if err := s.Deliver(ctx, userID, ev); err != nil {
			api.NotificationSinkErrors.WithLabelValues(s.Name()).Inc()
			zap.S().Warnw("notification sink failed",
				"sink", s.Name(),
				"userId", userID,
				"type", ev.Type,
				"error", err)
		}
	}
}

type job struct {
	userID uint
	ev     models.NotificationEvent
}

// Dispatcher is the async front of the sinks. Dispatch never blocks; when the queue is full
// the event is dropped.
type Dispatcher struct {
	sinks   Fanout
	queue   chan job
	workers int
	timeout time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher creates a dispatcher with the given worker count and queue size
func NewDispatcher(sinks Fanout, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan job, queueSize),
		workers: workers,
		timeout: 15 * time.Second,
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	logging.New("notify").Infow("notification dispatcher started", "workers", d.workers, "queueSize", cap(d.queue), "sinks", len(d.sinks))
}

// Stop stops accepting events and waits for the queue to drain
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Dispatch implements chat.Notifier. The caller's context is not carried into delivery,
// which outlives the request that raised the event.
func (d *Dispatcher) Dispatch(_ context.Context, userID uint, ev models.NotificationEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}
	select {
	case d.queue <- job{userID: userID, ev: ev}:
	default:
		api.NotificationsDropped.Inc()
		zap.S().Warnw("notification queue full, dropping event", "userId", userID, "type", ev.Type)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		d.sinks.Deliver(ctx, j.userID, j.ev)
		cancel()
		api.NotificationsDispatched.Inc()
	}
}

package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/h-like/sleeprism-chat/logging"
	"github.com/h-like/sleeprism-chat/models"
)

// BreakerSettings tunes a Breaker
type BreakerSettings struct {
	// CallTimeout bounds one delivery attempt
	CallTimeout time.Duration
	// MaxFailures consecutive failures open the breaker
	MaxFailures uint32
	// OpenTimeout is how long an open breaker rejects before letting one trial through
	OpenTimeout time.Duration
}

// Breaker guards a remote sink with a circuit breaker. While it is open, Deliver fails fast
// with gobreaker.ErrOpenState so a hung endpoint cannot hold up the dispatcher workers.
type Breaker struct {
	sink    Sink
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewBreaker wraps sink
func NewBreaker(sink Sink, cfg BreakerSettings) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 1
	}
	log := logging.New("notify")
	st := gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infow("circuit breaker state", "sink", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{
		sink:    sink,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: cfg.CallTimeout,
	}
}

// Name implements Sink
func (b *Breaker) Name() string { return b.sink.Name() }

// State reports the breaker state
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Deliver implements Sink
func (b *Breaker) Deliver(ctx context.Context, userID uint, ev models.NotificationEvent) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		if b.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}
		return nil, b.sink.Deliver(ctx, userID, ev)
	})
	return err
}

package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatcherConfig configures the async notification dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the number of pending events. Default: 256
	QueueSize int

	// MaxTries is the number of delivery attempts per event. Default: 5
	MaxTries uint

	// InitialInterval is the first retry delay. Default: 500ms
	InitialInterval time.Duration

	// MaxInterval caps the retry delay. Default: 30s
	MaxInterval time.Duration

	// SendTimeout bounds a single delivery attempt. Default: 10s
	SendTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *DispatcherConfig) ApplyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxTries == 0 {
		c.MaxTries = 5
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 10 * time.Second
	}
}

// ErrPermanent marks a send failure that must not be retried.
var ErrPermanent = errors.New("permanent notification failure")

// Dispatcher queues events and delivers them on a background goroutine,
// retrying failed sends with exponential backoff.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig

	queue  chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher. Call Start before publishing.
func NewDispatcher(sender Sender, cfg DispatcherConfig) *Dispatcher {
	cfg.ApplyDefaults()

	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the delivery loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.loop(ctx)
	})
}

// Stop drains queued events and waits for the loop to exit, or for ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})

	select {
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish enqueues an event. When the queue is full the event is dropped.
func (d *Dispatcher) Publish(event Event) {
	select {
	case <-d.stopCh:
		log.Warn().Str("app_id", event.ApplicationID.String()).Str("outcome", string(event.Outcome)).
			Msg("Dispatcher stopped, dropping notification")
		telemetry.GetMetrics().NotificationsDroppedTotal.Add(context.Background(), 1)
		return
	default:
	}

	select {
	case d.queue <- event:
	default:
		log.Warn().
			Str("app_id", event.ApplicationID.String()).
			Str("outcome", string(event.Outcome)).
			Int("queue_size", d.cfg.QueueSize).
			Msg("Notification queue full, dropping notification")
		telemetry.GetMetrics().NotificationsDroppedTotal.Add(context.Background(), 1)
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.doneCh)

	log.Debug().Int("queue_size", d.cfg.QueueSize).Msg("Notification dispatcher started")

	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)

		case <-d.stopCh:
			// final drain
			for {
				select {
				case event := <-d.queue:
					d.deliver(ctx, event)
				default:
					log.Debug().Msg("Notification dispatcher stopped")
					return
				}
			}

		case <-ctx.Done():
			log.Debug().Int("pending", len(d.queue)).Msg("Notification dispatcher context cancelled")
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	started := time.Now()
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("outcome", string(event.Outcome)))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		if err := d.sender.Send(sendCtx, event); err != nil {
			if errors.Is(err, ErrPermanent) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("app_id", event.ApplicationID.String()).
				Str("outcome", string(event.Outcome)).
				Dur("next_retry", next).
				Msg("Failed to send notification, will retry")
		}),
	)

	m.NotificationDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		m.NotificationsFailedTotal.Add(ctx, 1, attrs)
		log.Error().
			Err(err).
			Str("app_id", event.ApplicationID.String()).
			Str("outcome", string(event.Outcome)).
			Msg("Giving up on notification")
		return
	}

	m.NotificationsSentTotal.Add(ctx, 1, attrs)
	log.Info().
		Str("app_id", event.ApplicationID.String()).
		Str("outcome", string(event.Outcome)).
		Dur("duration", time.Since(started)).
		Msg("Notification sent")
}

package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultOutboxSize  = 64
	DefaultSendTimeout = 15 * time.Second
)

// Outbox delivers notifications on one background goroutine in the order
// they were queued. Send never blocks, so a stalled notifier cannot hold up
// the probe that raised the alert.
type Outbox struct {
	d       *Dispatcher
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan *Notification
	done   chan struct{}
}

func NewOutbox(d *Dispatcher, size int, timeout time.Duration) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	o := &Outbox{
		d:       d,
		timeout: timeout,
		queue:   make(chan *Notification, size),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// Send queues n. It reports false when n was dropped because the queue is
// full or the outbox is closed.
func (o *Outbox) Send(n *Notification) bool {
	if n == nil {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	reason := "closed"
	if !o.closed {
		select {
		case o.queue <- n:
			return true
		default:
			reason = "queue full"
		}
	}
	o.d.log.Warn("alert_dropped",
		zap.Int64("site_id", n.Site.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("reason", reason),
	)
	return false
}

func (o *Outbox) run() {
	defer close(o.done)
	for n := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		o.d.Dispatch(ctx, n)
		cancel()
	}
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end. It is safe to call more than once.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"wishlist_backend/internal/metrics"
)

// Broadcaster publishes events for every process and feeds events from the
// relay into the local hub. With no relay it degrades to the local hub.
type Broadcaster struct {
	hub     *Hub
	relay   Relay
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// resubscribe throttles reconnect attempts after the relay drops.
	resubscribe *rate.Limiter
	inflight    sync.WaitGroup
	outbound    *roomQueue
	inbound     *roomQueue
}

// NewBroadcaster builds a Broadcaster. relay may be nil. timeout bounds each
// relay publish.
func NewBroadcaster(hub *Hub, relay Relay, timeout time.Duration, log logrus.FieldLogger, m *metrics.Metrics) *Broadcaster {
	b := &Broadcaster{
		hub:         hub,
		relay:       relay,
		timeout:     timeout,
		log:         log,
		metrics:     m,
		resubscribe: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	b.outbound = newRoomQueue(&b.inflight)
	b.inbound = newRoomQueue(&b.inflight)
	return b
}

// Publish sends msg to the relay, or straight to the local hub when there is
// no relay or the relay publish fails. It never returns an error: realtime
// delivery is best effort.
func (b *Broadcaster) Publish(ctx context.Context, msg Message) {
	if b.relay != nil {
		data, err := json.Marshal(msg)
		if err != nil {
			b.log.WithError(err).WithField("event", msg.Event).Warn("failed to encode ws event")
			return
		}

		pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err = b.relay.Publish(pubCtx, data)
		cancel()
		if err == nil {
			b.metrics.RelayMessages.WithLabelValues("publish", "ok").Inc()
			return
		}

		b.metrics.RelayMessages.WithLabelValues("publish", "error").Inc()
		b.log.WithError(err).WithFields(logrus.Fields{
			"event":       msg.Event,
			"wishlist_id": msg.WishlistID,
		}).Warn("relay publish failed, broadcasting locally")
	}

	b.hub.BroadcastToRoom(ctx, msg.WishlistID, msg)
}

// Emit publishes msg in the background so the caller's response is not held
// up by socket I/O. Messages for one wishlist are published in the order they
// were emitted. Wait blocks until every emitted message is handled.
func (b *Broadcaster) Emit(msg Message) {
	b.outbound.push(msg.WishlistID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*b.timeout)
		defer cancel()
		b.Publish(ctx, msg)
	})
}

// Wait blocks until in-flight emits and relayed deliveries finish or ctx is
// done. Call it after the HTTP server and Run have stopped.
func (b *Broadcaster) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run subscribes to the relay and delivers every received message to the
// local hub only, never back to the relay. It resubscribes when the
// subscription ends and returns when ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	if b.relay == nil {
		b.log.Warn("no relay configured, realtime updates are limited to this process")
		return
	}

	for {
		if err := b.resubscribe.Wait(ctx); err != nil {
			break
		}

		sub, err := b.relay.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.log.WithError(err).Warn("relay subscribe failed")
			continue
		}

		b.log.Info("relay subscriber started")
		b.consume(ctx, sub)
		if err := sub.Close(); err != nil {
			b.log.WithError(err).Debug("relay subscription close failed")
		}
		if ctx.Err() != nil {
			break
		}
		b.log.Warn("relay subscription ended, resubscribing")
	}

	b.log.Info("relay subscriber stopped")
}

func (b *Broadcaster) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.Messages():
			if !ok {
				return
			}
			b.deliver(data)
		}
	}
}

// deliver hands one relayed message to the hub without blocking the
// subscriber loop on socket writes. Relay order is kept per wishlist.
func (b *Broadcaster) deliver(data []byte) {
	var envelope struct {
		WishlistID uuid.UUID `json:"wishlist_id"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.WishlistID == uuid.Nil {
		b.metrics.RelayMessages.WithLabelValues("receive", "invalid").Inc()
		b.log.WithError(err).Warn("dropping malformed relay message")
		return
	}
	b.metrics.RelayMessages.WithLabelValues("receive", "ok").Inc()

	b.inbound.push(envelope.WishlistID, func() {
		b.hub.broadcastRaw(context.Background(), envelope.WishlistID, data)
	})
}

// roomQueue runs jobs one at a time per wishlist, in the order they were
// pushed. A wishlist has a drain goroutine exactly while it has an entry in
// pending.
type roomQueue struct {
	mu      sync.Mutex
	pending map[uuid.UUID][]func()
	wg      *sync.WaitGroup
}

func newRoomQueue(wg *sync.WaitGroup) *roomQueue {
	return &roomQueue{pending: make(map[uuid.UUID][]func()), wg: wg}
}

func (q *roomQueue) push(wishlistID uuid.UUID, job func()) {
	q.mu.Lock()
	jobs, draining := q.pending[wishlistID]
	q.pending[wishlistID] = append(jobs, job)
	if !draining {
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if !draining {
		go q.drain(wishlistID)
	}
}

func (q *roomQueue) drain(wishlistID uuid.UUID) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.pending[wishlistID]
		if len(jobs) == 0 {
			delete(q.pending, wishlistID)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.pending[wishlistID] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

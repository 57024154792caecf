package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessageHandler consumes an inbound message.
type MessageHandler func(ctx context.Context, msg Message)

type dedupKey struct {
	sender uuid.UUID
	sentAt int64
}

// Receiver dispatches inbound messages to registered handlers. Redeliveries
// of the same {sender, sent_at} within the window are dropped. Handlers run
// one message at a time in arrival order.
type Receiver struct {
	mu       sync.Mutex
	window   time.Duration
	seen     map[dedupKey]time.Time
	handlers []MessageHandler
	log      zerolog.Logger
	now      func() time.Time
}

func NewReceiver(window time.Duration, log zerolog.Logger) *Receiver {
	return &Receiver{
		window: window,
		seen:   make(map[dedupKey]time.Time),
		log:    log.With().Str("component", "messaging").Logger(),
		now:    time.Now,
	}
}

// OnMessage registers h for every accepted message.
func (r *Receiver) OnMessage(h MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Deliver accepts msg and runs the handlers. It reports false for a
// duplicate.
func (r *Receiver) Deliver(ctx context.Context, msg Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	key := dedupKey{sender: msg.SenderID, sentAt: msg.SentAt.UnixNano()}
	if _, dup := r.seen[key]; dup {
		r.log.Debug().Str("sender_id", msg.SenderID.String()).Msg("duplicate message dropped")
		return false, nil
	}
	r.seen[key] = now

	for _, h := range r.handlers {
		h(ctx, msg)
	}
	return true, nil
}

// sweep forgets keys older than the window; caller holds the lock.
func (r *Receiver) sweep(now time.Time) {
	for k, at := range r.seen {
		if now.Sub(at) >= r.window {
			delete(r.seen, k)
		}
	}
}

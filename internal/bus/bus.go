// Package bus implements the agent lifecycle event bus: subscription
// registry, publish/match/deliver path, and periodic expiry sweep.
package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mistakeknot/vigil/internal/core"
	"github.com/mistakeknot/vigil/internal/log"
	"github.com/mistakeknot/vigil/internal/names"
)

// notificationSource tags every notification the bus enqueues.
const notificationSource = "event-bus"

// deliveryTimeout bounds a single enqueue attempt so one slow queue
// cannot starve the publish loop.
const deliveryTimeout = 5 * time.Second

// MessageQueue is the downstream delivery collaborator. Enqueue
// failures are logged by the bus and never propagate to publishers.
type MessageQueue interface {
	Enqueue(ctx context.Context, n core.Notification) (core.Notification, error)
}

// ThreadStore optionally enriches notifications with external thread
// file paths for the event's session. Best-effort and read-only.
type ThreadStore interface {
	FindThreadsForAgent(ctx context.Context, sessionName string) ([]core.ThreadRecord, error)
}

// DeliverySignal is emitted once per successful match, for observers
// and metrics hooks.
type DeliverySignal struct {
	SubscriptionID    string         `json:"subscription_id"`
	SubscriberSession string         `json:"subscriber_session"`
	EventID           string         `json:"event_id"`
	EventType         core.EventType `json:"event_type"`
}

// Config holds the bus limits. Zero values fall back to defaults.
type Config struct {
	MaxPerSession int           // subscriptions per subscriber session
	MaxTotal      int           // subscriptions across all subscribers
	DefaultTTL    time.Duration // applied when input omits a TTL
	MaxTTL        time.Duration // hard upper bound on any TTL
	SweepInterval time.Duration // expiry sweep period
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxPerSession: 10,
		MaxTotal:      200,
		DefaultTTL:    30 * time.Minute,
		MaxTTL:        24 * time.Hour,
		SweepInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPerSession <= 0 {
		c.MaxPerSession = d.MaxPerSession
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = d.MaxTotal
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.MaxTTL <= 0 {
		c.MaxTTL = d.MaxTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

// SubscribeInput is the request to create a subscription.
type SubscribeInput struct {
	EventTypes        []core.EventType
	Filter            core.SubscriptionFilter
	SubscriberSession string
	OneShot           *bool          // nil defaults to true
	TTL               *time.Duration // nil defaults to Config.DefaultTTL; clamped to [0, MaxTTL]
	MessageTemplate   string
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	SubscriptionCount int    `json:"subscription_count"`
	DeliveryCount     uint64 `json:"delivery_count"`
}

// Bus matches published agent events against registered subscriptions
// and pushes formatted notifications into the message queue. All
// registry access is guarded by a single mutex; Publish snapshots the
// registry, matches outside the lock, then commits removals in one
// batch.
type Bus struct {
	mu         sync.Mutex
	cfg        Config
	subs       map[string]core.Subscription
	deliveries uint64
	queue      MessageQueue
	threads    ThreadStore
	listeners  []func(DeliverySignal)
	closed     bool

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	nowFunc func() time.Time // for tests
	logger  zerolog.Logger
}

// New creates a bus and starts its expiry sweep.
func New(cfg Config) *Bus {
	b := &Bus{
		cfg:       cfg.withDefaults(),
		subs:      make(map[string]core.Subscription),
		sweepDone: make(chan struct{}),
		nowFunc:   time.Now,
		logger:    log.With("bus"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.sweepCancel = cancel
	go b.sweepLoop(ctx)
	return b
}

// SetQueue late-binds the delivery queue. The bus runs without one;
// matched notifications are then logged and dropped.
func (b *Bus) SetQueue(q MessageQueue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = q
}

// SetThreadStore late-binds the optional thread store.
func (b *Bus) SetThreadStore(ts ThreadStore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads = ts
}

// OnDelivered registers a listener invoked synchronously for every
// successful match. Register listeners before publishing traffic.
func (b *Bus) OnDelivered(fn func(DeliverySignal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Subscribe validates the input, enforces quotas, and registers a new
// subscription. No delivery or external call happens here.
func (b *Bus) Subscribe(input SubscribeInput) (core.Subscription, error) {
	if err := validateInput(input); err != nil {
		return core.Subscription{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.Subscription{}, ErrBusClosed
	}

	perSession := 0
	for _, s := range b.subs {
		if s.SubscriberSession == input.SubscriberSession {
			perSession++
		}
	}
	if perSession >= b.cfg.MaxPerSession {
		return core.Subscription{}, ErrSessionLimit
	}
	if len(b.subs) >= b.cfg.MaxTotal {
		return core.Subscription{}, ErrGlobalLimit
	}

	ttl := b.cfg.DefaultTTL
	if input.TTL != nil {
		ttl = *input.TTL
		if ttl < 0 {
			ttl = 0
		}
		if ttl > b.cfg.MaxTTL {
			ttl = b.cfg.MaxTTL
		}
	}

	oneShot := true
	if input.OneShot != nil {
		oneShot = *input.OneShot
	}

	now := b.nowFunc().UTC()
	sub := core.Subscription{
		ID:                uuid.NewString(),
		Label:             names.Label(),
		EventTypes:        append([]core.EventType(nil), input.EventTypes...),
		Filter:            input.Filter,
		SubscriberSession: input.SubscriberSession,
		OneShot:           oneShot,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
		MessageTemplate:   input.MessageTemplate,
	}
	b.subs[sub.ID] = sub

	b.logger.Debug().
		Str("subscription", sub.ID).
		Str("label", sub.Label).
		Str("subscriber", sub.SubscriberSession).
		Time("expires_at", sub.ExpiresAt).
		Msg("subscription registered")
	return copySubscription(sub), nil
}

// Unsubscribe removes the subscription if present. Idempotent.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	return true
}

// Publish matches the event against every currently registered,
// non-expired subscription and delivers a notification per match.
// It never returns an error to the caller; delivery failures are
// logged and swallowed.
func (b *Bus) Publish(ev core.AgentEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	snapshot := make([]core.Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		snapshot = append(snapshot, s)
	}
	queue := b.queue
	threads := b.threads
	listeners := append([]func(DeliverySignal){}, b.listeners...)
	now := b.nowFunc().UTC()
	b.mu.Unlock()
	var remove []string
	var delivered uint64

	for _, sub := range snapshot {
		if sub.Expired(now) {
			remove = append(remove, sub.ID)
			continue
		}
		if !sub.WantsType(ev.Type) {
			continue
		}
		if !sub.Filter.Matches(ev) {
			continue
		}

		b.deliver(ev, sub, queue, threads)
		delivered++
		signal := DeliverySignal{
			SubscriptionID:    sub.ID,
			SubscriberSession: sub.SubscriberSession,
			EventID:           ev.ID,
			EventType:         ev.Type,
		}
		for _, fn := range listeners {
			fn(signal)
		}

		if sub.OneShot {
			remove = append(remove, sub.ID)
		}
	}

	b.mu.Lock()
	for _, id := range remove {
		delete(b.subs, id)
	}
	b.deliveries += delivered
	b.mu.Unlock()
}

// deliver formats and enqueues one notification. Errors never escape:
// a failed push is logged and the match still counts as consumed for
// one-shot subscriptions (fire-and-forget, at-most-once).
func (b *Bus) deliver(ev core.AgentEvent, sub core.Subscription, queue MessageQueue, threads ThreadStore) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	content := b.formatNotification(ctx, ev, sub, threads)

	if queue == nil {
		b.logger.Warn().
			Str("subscription", sub.ID).
			Str("label", sub.Label).
			Msg("no message queue configured, dropping notification")
		return
	}

	_, err := queue.Enqueue(ctx, core.Notification{
		Content:        content,
		ConversationID: sub.SubscriberSession,
		Source:         notificationSource,
	})
	if err != nil {
		b.logger.Error().Err(err).
			Str("subscription", sub.ID).
			Str("event", ev.ID).
			Msg("notification enqueue failed")
	}
}

// ListSubscriptions returns registered subscriptions, optionally
// restricted to one subscriber. Entries past their expiry are hidden
// even if the sweep has not removed them yet.
func (b *Bus) ListSubscriptions(subscriberSession string) []core.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc().UTC()
	out := make([]core.Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.Expired(now) {
			continue
		}
		if subscriberSession != "" && s.SubscriberSession != subscriberSession {
			continue
		}
		out = append(out, copySubscription(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetSubscription returns the subscription by id. Expired entries are
// treated as absent, matching ListSubscriptions.
func (b *Bus) GetSubscription(id string) (core.Subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok || s.Expired(b.nowFunc().UTC()) {
		return core.Subscription{}, false
	}
	return copySubscription(s), true
}

// Stats returns current registry size and total deliveries.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc().UTC()
	count := 0
	for _, s := range b.subs {
		if !s.Expired(now) {
			count++
		}
	}
	return Stats{SubscriptionCount: count, DeliveryCount: b.deliveries}
}

// Cleanup stops the sweep and clears the registry. The bus is inert
// afterwards: Publish no-ops and Subscribe returns ErrBusClosed.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.subs = make(map[string]core.Subscription)
	b.mu.Unlock()

	b.sweepCancel()
	<-b.sweepDone
}

func (b *Bus) sweepLoop(ctx context.Context) {
	defer close(b.sweepDone)

	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepExpired()
		}
	}
}

// sweepExpired removes every subscription past its expiry. This keeps
// memory bounded even with zero event traffic.
func (b *Bus) sweepExpired() {
	b.mu.Lock()
	now := b.nowFunc().UTC()
	var removed []string
	for id, s := range b.subs {
		if s.Expired(now) {
			delete(b.subs, id)
			removed = append(removed, s.Label)
		}
	}
	b.mu.Unlock()

	if len(removed) > 0 {
		b.logger.Info().Int("count", len(removed)).Strs("labels", removed).Msg("swept expired subscriptions")
	}
}

func copySubscription(s core.Subscription) core.Subscription {
	s.EventTypes = append([]core.EventType(nil), s.EventTypes...)
	return s
}

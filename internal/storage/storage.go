package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/vigil/internal/core"
	"github.com/mistakeknot/vigil/internal/glob"
)

// ErrNotFound is returned when a notification id does not exist.
var ErrNotFound = fmt.Errorf("not found")

// Queue accepts formatted notifications for eventual delivery to a
// subscriber's conversation. Enqueue assigns the id and timestamps.
type Queue interface {
	Enqueue(ctx context.Context, n core.Notification) (core.Notification, error)
	Pending(ctx context.Context, conversationID string, limit int) ([]core.Notification, error)
	MarkDelivered(ctx context.Context, id string) error
	PurgeDelivered(ctx context.Context, olderThan time.Time) (int, error)
}

// ThreadStore maps agent session names to external thread files used
// to enrich notification text.
type ThreadStore interface {
	RegisterThread(ctx context.Context, rec core.ThreadRecord) error
	FindThreadsForAgent(ctx context.Context, sessionName string) ([]core.ThreadRecord, error)
	RemoveThread(ctx context.Context, sessionPattern, filePath string) (bool, error)
}

// InMemory implements Queue and ThreadStore without persistence.
// Used by tests and by hosts that embed the bus without a database.
type InMemory struct {
	mu            sync.Mutex
	notifications map[string]core.Notification
	threads       []core.ThreadRecord
}

func NewInMemory() *InMemory {
	return &InMemory{notifications: make(map[string]core.Notification)}
}

func (m *InMemory) Enqueue(_ context.Context, n core.Notification) (core.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Status = core.NotificationPending
	m.notifications[n.ID] = n
	return n, nil
}

func (m *InMemory) Pending(_ context.Context, conversationID string, limit int) ([]core.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Notification
	for _, n := range m.notifications {
		if n.Status != core.NotificationPending {
			continue
		}
		if conversationID != "" && n.ConversationID != conversationID {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) MarkDelivered(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.Status != core.NotificationPending {
		return ErrNotFound
	}
	n.Status = core.NotificationDelivered
	n.DeliveredAt = time.Now().UTC()
	m.notifications[id] = n
	return nil
}

func (m *InMemory) PurgeDelivered(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, n := range m.notifications {
		if n.Status == core.NotificationDelivered && n.DeliveredAt.Before(olderThan) {
			delete(m.notifications, id)
			removed++
		}
	}
	return removed, nil
}

func (m *InMemory) RegisterThread(_ context.Context, rec core.ThreadRecord) error {
	if err := glob.Validate(rec.SessionPattern); err != nil {
		return fmt.Errorf("session pattern: %w", err)
	}
	if rec.FilePath == "" {
		return fmt.Errorf("file path required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.threads {
		if existing.SessionPattern == rec.SessionPattern && existing.FilePath == rec.FilePath {
			return nil
		}
	}
	m.threads = append(m.threads, rec)
	return nil
}

func (m *InMemory) FindThreadsForAgent(_ context.Context, sessionName string) ([]core.ThreadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.ThreadRecord
	for _, rec := range m.threads {
		if matchesSession(rec.SessionPattern, sessionName) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *InMemory) RemoveThread(_ context.Context, sessionPattern, filePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.threads {
		if rec.SessionPattern == sessionPattern && rec.FilePath == filePath {
			m.threads = append(m.threads[:i], m.threads[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func matchesSession(pattern, sessionName string) bool {
	if !glob.IsPattern(pattern) {
		return pattern == sessionName
	}
	return glob.Match(pattern, sessionName)
}

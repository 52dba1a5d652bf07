package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mistakeknot/vigil/internal/core"
	"github.com/mistakeknot/vigil/internal/storage"
)

func TestEnqueuePendingDelivered(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	n, err := st.Enqueue(ctx, core.Notification{
		Content:        "Bob is now idle",
		ConversationID: "orc",
		Source:         "bus",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := st.Pending(ctx, "orc", 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Content != "Bob is now idle" {
		t.Fatalf("expected one pending notification, got %+v", pending)
	}

	if err := st.MarkDelivered(ctx, n.ID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	pending, _ = st.Pending(ctx, "orc", 0)
	if len(pending) != 0 {
		t.Fatalf("expected drained queue, got %d pending", len(pending))
	}
}

func TestMarkDeliveredMissing(t *testing.T) {
	st := newTestStore(t)
	err := st.MarkDelivered(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkDeliveredIdempotenceGuard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	n, _ := st.Enqueue(ctx, core.Notification{Content: "x", ConversationID: "c"})
	if err := st.MarkDelivered(ctx, n.ID); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Second delivery of the same id no longer matches a pending row.
	if err := st.MarkDelivered(ctx, n.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delivery, got %v", err)
	}
}

func TestPendingOrderAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := st.Enqueue(ctx, core.Notification{
			Content:        string(rune('a' + i)),
			ConversationID: "c",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	pending, err := st.Pending(ctx, "c", 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Content != "a" || pending[1].Content != "b" {
		t.Fatalf("expected oldest-first limited results, got %+v", pending)
	}
}

func TestPurgeDeliveredRespectsRetention(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old, _ := st.Enqueue(ctx, core.Notification{Content: "old", ConversationID: "c"})
	recent, _ := st.Enqueue(ctx, core.Notification{Content: "recent", ConversationID: "c"})
	_ = st.MarkDelivered(ctx, old.ID)
	_ = st.MarkDelivered(ctx, recent.ID)

	// Cutoff in the future purges both; cutoff in the past purges none.
	purged, err := st.PurgeDelivered(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected nothing purged before cutoff, got %d", purged)
	}
	purged, _ = st.PurgeDelivered(ctx, time.Now().UTC().Add(time.Minute))
	if purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}
}

func TestThreadRegistrationAndLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.RegisterThread(ctx, core.ThreadRecord{SessionPattern: "agent-joe", FilePath: "/threads/joe.md"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.RegisterThread(ctx, core.ThreadRecord{SessionPattern: "agent-*", FilePath: "/threads/fleet.md"}); err != nil {
		t.Fatalf("register glob: %v", err)
	}
	// Duplicate registration is a no-op.
	if err := st.RegisterThread(ctx, core.ThreadRecord{SessionPattern: "agent-joe", FilePath: "/threads/joe.md"}); err != nil {
		t.Fatalf("duplicate register: %v", err)
	}

	recs, err := st.FindThreadsForAgent(ctx, "agent-joe")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 thread records, got %+v", recs)
	}

	recs, _ = st.FindThreadsForAgent(ctx, "worker-9")
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %+v", recs)
	}

	removed, err := st.RemoveThread(ctx, "agent-*", "/threads/fleet.md")
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, _ = st.RemoveThread(ctx, "agent-*", "/threads/fleet.md")
	if removed {
		t.Fatal("second removal should report false")
	}
}

func TestRegisterThreadRejectsBadInput(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.RegisterThread(ctx, core.ThreadRecord{SessionPattern: "", FilePath: "/x"}); err == nil {
		t.Fatal("expected error for empty pattern")
	}
	if err := st.RegisterThread(ctx, core.ThreadRecord{SessionPattern: "agent-*", FilePath: ""}); err == nil {
		t.Fatal("expected error for empty file path")
	}
}

package bus

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mistakeknot/vigil/internal/core"
)

func TestTemplateSubstitution(t *testing.T) {
	b, q := newTestBus(t, Config{})
	mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
		MessageTemplate:   "{memberName} is now {newValue}",
	})

	b.Publish(idleEvent("s1"))

	got := q.all()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0].Content != "Bob is now idle" {
		t.Fatalf("expected exact substitution, got %q", got[0].Content)
	}
}

func TestTemplateSubstitutionIsGlobal(t *testing.T) {
	b, q := newTestBus(t, Config{})
	mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
		MessageTemplate:   "{memberName} and {memberName} on {teamName}, type {eventType}, {previousValue}->{newValue}",
	})

	b.Publish(idleEvent("s1"))

	got := q.all()
	want := "Bob and Bob on builders, type agent:idle, busy->idle"
	if got[0].Content != want {
		t.Fatalf("got %q, want %q", got[0].Content, want)
	}
}

func TestTemplateAllPlaceholders(t *testing.T) {
	b, q := newTestBus(t, Config{})
	mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
		MessageTemplate:   "{sessionName}|{memberId}|{teamId}",
	})

	b.Publish(idleEvent("s1"))

	if got := q.all()[0].Content; got != "s1|m-1|t-1" {
		t.Fatalf("got %q", got)
	}
}

func TestDefaultFormatting(t *testing.T) {
	b, q := newTestBus(t, Config{})
	sub := mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
	})

	b.Publish(idleEvent("s1"))

	got := q.all()[0].Content
	prefix := fmt.Sprintf("[VIGIL:%s:%s]", sub.ID, core.EventAgentIdle)
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("default message must start with %q, got %q", prefix, got)
	}
	for _, fragment := range []string{"Bob", "busy", "idle", "builders"} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("default message missing %q: %q", fragment, got)
		}
	}
}

func TestThreadEnrichment(t *testing.T) {
	b, q := newTestBus(t, Config{})
	b.SetThreadStore(&fakeThreads{recs: []core.ThreadRecord{
		{SessionPattern: "s1", FilePath: "/threads/a.md"},
		{SessionPattern: "s1", FilePath: "/threads/b.md"},
	}})
	mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
		MessageTemplate:   "{memberName} is now {newValue}",
	})

	b.Publish(idleEvent("s1"))

	got := q.all()[0].Content
	want := "Bob is now idle [threads: /threads/a.md, /threads/b.md]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestThreadEnrichmentEmptyResultChangesNothing(t *testing.T) {
	b, q := newTestBus(t, Config{})
	b.SetThreadStore(&fakeThreads{})
	mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
		MessageTemplate:   "{memberName} is now {newValue}",
	})

	b.Publish(idleEvent("s1"))

	if got := q.all()[0].Content; got != "Bob is now idle" {
		t.Fatalf("empty thread result must leave content unchanged, got %q", got)
	}
}

func TestThreadLookupFailureIsNonFatal(t *testing.T) {
	b, q := newTestBus(t, Config{})
	b.SetThreadStore(&fakeThreads{err: errors.New("store down")})
	mustSubscribe(t, b, SubscribeInput{
		SubscriberSession: "orc",
		EventTypes:        []core.EventType{core.EventAgentIdle},
		MessageTemplate:   "{memberName} is now {newValue}",
	})

	b.Publish(idleEvent("s1"))

	if got := q.all()[0].Content; got != "Bob is now idle" {
		t.Fatalf("thread store failure must not alter content, got %q", got)
	}
}

package httpapi

import (
	"net/http"
	"testing"

	"github.com/mistakeknot/vigil/internal/core"
)

func subscribeBody(session string) map[string]any {
	return map[string]any{
		"event_types":        []string{"agent:idle"},
		"subscriber_session": session,
	}
}

func TestCreateSubscription(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/subscriptions", map[string]any{
		"event_types":        []string{"agent:idle", "agent:busy"},
		"subscriber_session": "orc",
		"filter":             map[string]string{"team_id": "t-1"},
		"ttl_seconds":        120,
	})
	requireStatus(t, resp, http.StatusCreated)
	sub := decodeJSON[core.Subscription](t, resp)

	if sub.ID == "" {
		t.Fatalf("expected generated id")
	}
	if sub.Label == "" {
		t.Fatalf("expected generated label")
	}
	if !sub.OneShot {
		t.Fatalf("one_shot should default to true")
	}
	if sub.Filter.TeamID != "t-1" {
		t.Fatalf("filter not preserved: %+v", sub.Filter)
	}
	if got := sub.ExpiresAt.Sub(sub.CreatedAt); got.Seconds() != 120 {
		t.Fatalf("expected 120s ttl, got %v", got)
	}
}

func TestCreateSubscriptionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/subscriptions", map[string]any{
		"event_types": []string{"agent:idle"},
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.post(t, "/api/subscriptions", map[string]any{
		"event_types":        []string{"agent:exploded"},
		"subscriber_session": "orc",
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestCreateSubscriptionSessionCap(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 10; i++ {
		resp := env.post(t, "/api/subscriptions", subscribeBody("orc"))
		requireStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}
	resp := env.post(t, "/api/subscriptions", subscribeBody("orc"))
	requireStatus(t, resp, http.StatusTooManyRequests)
	resp.Body.Close()

	// Other sessions are unaffected by one session hitting its cap.
	resp = env.post(t, "/api/subscriptions", subscribeBody("other"))
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

func TestListSubscriptionsBySession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/subscriptions", subscribeBody("orc"))
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
	resp = env.post(t, "/api/subscriptions", subscribeBody("other"))
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.get(t, "/api/subscriptions?session=orc")
	requireStatus(t, resp, http.StatusOK)
	list := decodeJSON[listSubscriptionsResponse](t, resp)
	if len(list.Subscriptions) != 1 {
		t.Fatalf("expected 1 subscription for orc, got %d", len(list.Subscriptions))
	}
	if list.Subscriptions[0].SubscriberSession != "orc" {
		t.Fatalf("wrong subscriber: %q", list.Subscriptions[0].SubscriberSession)
	}

	resp = env.get(t, "/api/subscriptions")
	requireStatus(t, resp, http.StatusOK)
	list = decodeJSON[listSubscriptionsResponse](t, resp)
	if len(list.Subscriptions) != 2 {
		t.Fatalf("expected 2 subscriptions total, got %d", len(list.Subscriptions))
	}
}

func TestGetAndDeleteSubscription(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/subscriptions", subscribeBody("orc"))
	requireStatus(t, resp, http.StatusCreated)
	created := decodeJSON[core.Subscription](t, resp)

	resp = env.get(t, "/api/subscriptions/"+created.ID)
	requireStatus(t, resp, http.StatusOK)
	got := decodeJSON[core.Subscription](t, resp)
	if got.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, got.ID)
	}

	resp = env.delete(t, "/api/subscriptions/"+created.ID)
	requireStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = env.get(t, "/api/subscriptions/"+created.ID)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = env.delete(t, "/api/subscriptions/"+created.ID)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

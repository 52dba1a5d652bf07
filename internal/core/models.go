package core

import "time"

type EventType string

const (
	EventAgentIdle     EventType = "agent:idle"
	EventAgentBusy     EventType = "agent:busy"
	EventAgentActive   EventType = "agent:active"
	EventAgentInactive EventType = "agent:inactive"
)

// KnownEventTypes lists every lifecycle event type the bus accepts.
func KnownEventTypes() []EventType {
	return []EventType{EventAgentIdle, EventAgentBusy, EventAgentActive, EventAgentInactive}
}

// ValidEventType reports whether t is a recognized lifecycle event type.
func ValidEventType(t EventType) bool {
	switch t {
	case EventAgentIdle, EventAgentBusy, EventAgentActive, EventAgentInactive:
		return true
	}
	return false
}

// AgentEvent describes a single observed lifecycle transition of a
// managed agent session. Events are immutable; the publisher creates
// one per detected status change.
type AgentEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	SessionName   string    `json:"session_name"`
	MemberID      string    `json:"member_id"`
	MemberName    string    `json:"member_name"`
	TeamID        string    `json:"team_id"`
	TeamName      string    `json:"team_name"`
	ChangedField  string    `json:"changed_field,omitempty"`
	PreviousValue string    `json:"previous_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SubscriptionFilter narrows which events a subscription matches.
// Every field that is set must equal the corresponding event field;
// empty fields impose no constraint.
type SubscriptionFilter struct {
	SessionName string `json:"session_name,omitempty"`
	MemberID    string `json:"member_id,omitempty"`
	TeamID      string `json:"team_id,omitempty"`
}

// Empty reports whether the filter imposes no constraints at all.
func (f SubscriptionFilter) Empty() bool {
	return f.SessionName == "" && f.MemberID == "" && f.TeamID == ""
}

// Matches reports whether every set filter field equals the
// corresponding event field.
func (f SubscriptionFilter) Matches(ev AgentEvent) bool {
	if f.SessionName != "" && f.SessionName != ev.SessionName {
		return false
	}
	if f.MemberID != "" && f.MemberID != ev.MemberID {
		return false
	}
	if f.TeamID != "" && f.TeamID != ev.TeamID {
		return false
	}
	return true
}

// Subscription is a standing request to be notified when matching
// events occur. Entries are never mutated after creation; they are
// removed by unsubscribe, expiry, or one-shot consumption.
type Subscription struct {
	ID                string             `json:"id"`
	Label             string             `json:"label"`
	EventTypes        []EventType        `json:"event_types"`
	Filter            SubscriptionFilter `json:"filter"`
	SubscriberSession string             `json:"subscriber_session"`
	OneShot           bool               `json:"one_shot"`
	CreatedAt         time.Time          `json:"created_at"`
	ExpiresAt         time.Time          `json:"expires_at"`
	MessageTemplate   string             `json:"message_template,omitempty"`
}

// WantsType reports whether the subscription's event type set contains t.
func (s Subscription) WantsType(t EventType) bool {
	for _, et := range s.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Expired reports whether the subscription's TTL has elapsed at now.
func (s Subscription) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// NotificationStatus tracks a queued notification through delivery.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationDelivered NotificationStatus = "delivered"
)

// Notification is one formatted message bound for a subscriber's
// conversation, persisted until the delivery layer drains it.
type Notification struct {
	ID             string             `json:"id"`
	Content        string             `json:"content"`
	ConversationID string             `json:"conversation_id"`
	Source         string             `json:"source"`
	Status         NotificationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	DeliveredAt    time.Time          `json:"delivered_at,omitempty"`
}

// ThreadRecord associates an external thread file with the agent
// sessions it documents. SessionPattern may be a literal session name
// or a glob covering a family of sessions.
type ThreadRecord struct {
	SessionPattern string    `json:"session_pattern"`
	FilePath       string    `json:"file_path"`
	CreatedAt      time.Time `json:"created_at"`
}

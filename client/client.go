// Package client provides a Go client for the vigil event bus server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	APIKey  string
	Team    string
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = strings.TrimSpace(key)
	}
}

func WithTeam(team string) Option {
	return func(c *Client) {
		c.Team = strings.TrimSpace(team)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

type Filter struct {
	SessionName string `json:"session_name,omitempty"`
	MemberID    string `json:"member_id,omitempty"`
	TeamID      string `json:"team_id,omitempty"`
}

type SubscribeRequest struct {
	EventTypes        []string `json:"event_types"`
	Filter            Filter   `json:"filter"`
	SubscriberSession string   `json:"subscriber_session"`
	OneShot           *bool    `json:"one_shot,omitempty"`
	TTLSeconds        *int64   `json:"ttl_seconds,omitempty"`
	MessageTemplate   string   `json:"message_template,omitempty"`
}

type Subscription struct {
	ID                string    `json:"id"`
	Label             string    `json:"label"`
	EventTypes        []string  `json:"event_types"`
	Filter            Filter    `json:"filter"`
	SubscriberSession string    `json:"subscriber_session"`
	OneShot           bool      `json:"one_shot"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	MessageTemplate   string    `json:"message_template,omitempty"`
}

type Event struct {
	ID            string `json:"id,omitempty"`
	Type          string `json:"type"`
	SessionName   string `json:"session_name"`
	MemberID      string `json:"member_id,omitempty"`
	MemberName    string `json:"member_name,omitempty"`
	TeamID        string `json:"team_id,omitempty"`
	TeamName      string `json:"team_name,omitempty"`
	ChangedField  string `json:"changed_field,omitempty"`
	PreviousValue string `json:"previous_value,omitempty"`
	NewValue      string `json:"new_value,omitempty"`
}

type Notification struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	DeliveredAt    time.Time `json:"delivered_at,omitempty"`
}

type ThreadRecord struct {
	SessionPattern string    `json:"session_pattern"`
	FilePath       string    `json:"file_path"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

type Stats struct {
	SubscriptionCount int    `json:"subscription_count"`
	DeliveryCount     uint64 `json:"delivery_count"`
}

type subscriptionsResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

type notificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

type threadsResponse struct {
	Threads []ThreadRecord `json:"threads"`
}

type publishResponse struct {
	EventID string `json:"event_id"`
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error) {
	if req.Filter.TeamID == "" {
		req.Filter.TeamID = c.Team
	}
	resp, err := c.postJSON(ctx, "/api/subscriptions", req)
	if err != nil {
		return Subscription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return Subscription{}, fmt.Errorf("subscribe failed: %d", resp.StatusCode)
	}
	var out Subscription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Subscription{}, err
	}
	return out, nil
}

func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/api/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unsubscribe failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) ListSubscriptions(ctx context.Context, session string) ([]Subscription, error) {
	endpoint := "/api/subscriptions"
	if session != "" {
		endpoint += "?session=" + url.QueryEscape(session)
	}
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list subscriptions failed: %d", resp.StatusCode)
	}
	var out subscriptionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Subscriptions, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	resp, err := c.get(ctx, "/api/subscriptions/"+url.PathEscape(id))
	if err != nil {
		return Subscription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Subscription{}, fmt.Errorf("get subscription failed: %d", resp.StatusCode)
	}
	var out Subscription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Subscription{}, err
	}
	return out, nil
}

// PublishEvent submits an event for matching. The server assigns an ID
// when the event omits one.
func (c *Client) PublishEvent(ctx context.Context, ev Event) (string, error) {
	if ev.TeamID == "" {
		ev.TeamID = c.Team
	}
	resp, err := c.postJSON(ctx, "/api/events", ev)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("publish failed: %d", resp.StatusCode)
	}
	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	resp, err := c.get(ctx, "/api/stats")
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("stats failed: %d", resp.StatusCode)
	}
	var out Stats
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// Pending fetches queued notifications for a conversation, oldest first.
func (c *Client) Pending(ctx context.Context, conversationID string, limit int) ([]Notification, error) {
	endpoint := "/api/notifications/" + url.PathEscape(conversationID)
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pending failed: %d", resp.StatusCode)
	}
	var out notificationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) MarkDelivered(ctx context.Context, notificationID string) error {
	resp, err := c.postJSON(ctx, "/api/notifications/"+url.PathEscape(notificationID)+"/delivered", map[string]string{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("mark delivered failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) RegisterThread(ctx context.Context, rec ThreadRecord) error {
	resp, err := c.postJSON(ctx, "/api/threads", rec)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("register thread failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) FindThreads(ctx context.Context, session string) ([]ThreadRecord, error) {
	resp, err := c.get(ctx, "/api/threads?session="+url.QueryEscape(session))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("find threads failed: %d", resp.StatusCode)
	}
	var out threadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Threads, nil
}

func (c *Client) RemoveThread(ctx context.Context, sessionPattern, filePath string) error {
	values := url.Values{}
	values.Set("session_pattern", sessionPattern)
	values.Set("file_path", filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/api/threads?"+values.Encode(), nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remove thread failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	return c.HTTP.Do(req)
}

func (c *Client) applyHeaders(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/apperr"
	"taskhive/internal/logging"
	"taskhive/internal/postgres"
)

// PushSubscription is one browser push endpoint.
type PushSubscription struct {
	ID        string
	UserID    string
	Endpoint  string
	P256DHKey string
	AuthKey   string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertPushSubscription registers an endpoint, reactivating and re-keying
// it when the browser resubscribes.
func (s *Store) UpsertPushSubscription(ctx context.Context, userID, endpoint, p256dh, auth string) (*PushSubscription, error) {
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, apperr.Validation("endpoint and keys are required")
	}
	sub := &PushSubscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		Endpoint:  endpoint,
		P256DHKey: p256dh,
		AuthKey:   auth,
		Active:    true,
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh_key, auth_key, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW(),NOW())
ON CONFLICT (endpoint) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    p256dh_key = EXCLUDED.p256dh_key,
    auth_key = EXCLUDED.auth_key,
    active = TRUE,
    updated_at = NOW()
RETURNING id, created_at, updated_at`, sub.ID, userID, endpoint, p256dh, auth)
	if err := row.Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert push subscription: %w", err)
	}
	return sub, nil
}

// DeletePushSubscription removes an endpoint registration.
func (s *Store) DeletePushSubscription(ctx context.Context, userID, endpoint string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("push subscription")
	}
	return nil
}

// ActivePushSubscriptions lists the user's live endpoints.
func (s *Store) ActivePushSubscriptions(ctx context.Context, q postgres.Querier, userID string) ([]*PushSubscription, error) {
	rows, err := q.Query(ctx, `
SELECT id, user_id, endpoint, p256dh_key, auth_key, active, created_at, updated_at
FROM push_subscriptions
WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256DHKey, &sub.AuthKey,
			&sub.Active, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// DeactivatePushSubscription flags an endpoint dead after a permanent
// delivery failure.
func (s *Store) DeactivatePushSubscription(ctx context.Context, q postgres.Querier, id string) error {
	_, err := q.Exec(ctx,
		`UPDATE push_subscriptions SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate push subscription: %w", err)
	}
	return nil
}

// PushSender delivers fire-and-forget pushes to the vendor endpoints.
type PushSender struct {
	client *http.Client
	store  *Store
	logger logging.Logger
}

// NewPushSender builds the sender with a short per-call timeout.
func NewPushSender(store *Store, logger logging.Logger) *PushSender {
	return &PushSender{
		client: &http.Client{Timeout: 10 * time.Second},
		store:  store,
		logger: logging.OrNop(logger),
	}
}

// pushMessage is the payload posted to an endpoint.
type pushMessage struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ActionURL string `json:"action_url,omitempty"`
}

// Send fans the notification out to every active endpoint of the user.
// Transient failures are returned for retry; permanent ones (endpoint gone,
// keys rejected) deactivate the subscription and are swallowed.
func (p *PushSender) Send(ctx context.Context, q postgres.Querier, userID string, n *Notification) error {
	subs, err := p.store.ActivePushSubscriptions(ctx, q, userID)
	if err != nil {
		return err
	}

	var firstTransient error
	for _, sub := range subs {
		err := p.deliver(ctx, sub, n)
		if err == nil {
			continue
		}
		if apperr.IsPermanent(err) {
			p.logger.Info("push endpoint gone, deactivating: user=%s endpoint=%s", userID, sub.Endpoint)
			if derr := p.store.DeactivatePushSubscription(ctx, q, sub.ID); derr != nil {
				return derr
			}
			continue
		}
		p.logger.Warn("push delivery failed: user=%s endpoint=%s err=%v", userID, sub.Endpoint, err)
		if firstTransient == nil {
			firstTransient = err
		}
	}
	return firstTransient
}

func (p *PushSender) deliver(ctx context.Context, sub *PushSubscription, n *Notification) error {
	payload, err := json.Marshal(pushMessage{Title: n.Title, Body: n.Body, ActionURL: n.ActionURL})
	if err != nil {
		return &apperr.PermanentError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return &apperr.PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Push-P256DH", sub.P256DHKey)
	req.Header.Set("X-Push-Auth", sub.AuthKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return &apperr.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone ||
		resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return &apperr.PermanentError{Err: fmt.Errorf("push endpoint rejected"), StatusCode: resp.StatusCode}
	default:
		return &apperr.TransientError{Err: fmt.Errorf("push delivery failed"), StatusCode: resp.StatusCode}
	}
}

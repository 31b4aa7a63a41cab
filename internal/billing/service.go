package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/credit"
	"taskhive/internal/events"
	"taskhive/internal/logging"
	"taskhive/internal/notify"
	"taskhive/internal/postgres"
	"taskhive/internal/user"
)

// Gateway is the payment provider port. Only checkout-session creation and
// remote cancellation go outbound; everything else arrives via webhooks.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, userID, email string) (string, error)
	CancelSubscription(ctx context.Context, externalID string) error
}

// WebhookPayload is the decoded body of a gateway webhook.
type WebhookPayload struct {
	EventID        string     `json:"event_id"`
	Type           string     `json:"type"`
	SubscriptionID string     `json:"subscription_id"`
	UserID         string     `json:"user_id"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
}

// Service processes webhooks, runs the daily sweep, and serves the
// subscription endpoints.
type Service struct {
	db      postgres.DB
	store   *Store
	users   *user.Store
	credits *credit.Service
	notify  *notify.Service
	bus     *events.Bus
	gateway Gateway
	secret  []byte
	logger  logging.Logger

	now func() time.Time
}

// NewService wires the billing service. gateway may be nil when checkout is
// disabled; webhooks still process.
func NewService(db postgres.DB, store *Store, users *user.Store, credits *credit.Service, notifier *notify.Service, bus *events.Bus, gateway Gateway, webhookSecret string, logger logging.Logger) (*Service, error) {
	if db == nil || store == nil || users == nil || credits == nil || bus == nil {
		return nil, errors.New("billing service requires db, store, users, credits, and bus")
	}
	return &Service{
		db:      db,
		store:   store,
		users:   users,
		credits: credits,
		notify:  notifier,
		bus:     bus,
		gateway: gateway,
		secret:  []byte(webhookSecret),
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// VerifySignature checks the hex HMAC-SHA256 signature the gateway sends in
// Cko-Signature against the raw request body.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// ProcessWebhook applies one gateway event. Replays of an already-seen
// event_id return nil without touching state; the caller answers 200 either
// way.
func (s *Service) ProcessWebhook(ctx context.Context, payload WebhookPayload) error {
	if payload.EventID == "" || payload.Type == "" {
		return apperr.Validation("webhook payload missing event_id or type")
	}
	switch payload.Type {
	case EventPaymentCaptured, EventPaymentDeclined, EventSubscriptionCancelled, EventSubscriptionRenewed:
	default:
		return apperr.Validation("unknown webhook event type %q", payload.Type)
	}

	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		fresh, err := s.store.RecordWebhookEvent(ctx, tx, payload.EventID, payload.Type)
		if err != nil {
			return err
		}
		if !fresh {
			s.logger.Info("webhook %s already processed, skipping", payload.EventID)
			return nil
		}

		sub, created, err := s.subscriptionFor(ctx, tx, payload)
		if err != nil {
			return err
		}

		now := s.now()
		tr := apply(sub, payload.Type, payload.PeriodStart, payload.PeriodEnd, now)
		if tr == nil {
			return nil
		}
		if err := s.store.Upsert(ctx, tx, sub); err != nil {
			return err
		}
		if err := s.runEffects(ctx, tx, sub, tr.Effects); err != nil {
			return err
		}
		return s.dispatchTransition(ctx, tx, sub, tr, created, now)
	})
}

// subscriptionFor resolves the row a webhook targets, creating it on the
// first capture for a user who has never subscribed.
func (s *Service) subscriptionFor(ctx context.Context, tx pgx.Tx, payload WebhookPayload) (*Subscription, bool, error) {
	sub, err := s.store.GetByExternalIDForUpdate(ctx, tx, payload.SubscriptionID)
	if err == nil {
		return sub, false, nil
	}
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, false, err
	}
	if payload.Type != EventPaymentCaptured && payload.Type != EventSubscriptionRenewed {
		return nil, false, err
	}
	if payload.UserID == "" {
		return nil, false, apperr.Validation("first capture webhook missing user_id")
	}
	if _, err := s.users.GetByID(ctx, payload.UserID); err != nil {
		return nil, false, err
	}
	now := s.now()
	return &Subscription{
		ID:         uuid.NewString(),
		UserID:     payload.UserID,
		ExternalID: payload.SubscriptionID,
		Status:     StatusExpired,
		CreatedAt:  now,
	}, true, nil
}

func (s *Service) runEffects(ctx context.Context, tx pgx.Tx, sub *Subscription, effects []Effect) error {
	for _, effect := range effects {
		switch effect {
		case EffectTierPro:
			if err := s.users.SetTier(ctx, tx, sub.UserID, user.TierPro); err != nil {
				return err
			}
		case EffectTierFree:
			if err := s.users.SetTier(ctx, tx, sub.UserID, user.TierFree); err != nil {
				return err
			}
		case EffectGrantMonthly:
			periodEnd := s.now().AddDate(0, 1, 0)
			if sub.PeriodEnd != nil {
				periodEnd = *sub.PeriodEnd
			}
			if err := s.credits.GrantMonthly(ctx, tx, sub.UserID, periodEnd, sub.ExternalID); err != nil {
				return err
			}
		case EffectNotifyGrace:
			if err := s.notifyUser(ctx, tx, sub.UserID, "subscription_grace",
				"Payment problem", "We could not collect your payment. Your pro access ends in 7 days unless the payment succeeds."); err != nil {
				return err
			}
		case EffectNotifyExpiry:
			if err := s.notifyUser(ctx, tx, sub.UserID, "subscription_expired",
				"Subscription expired", "Your pro subscription has ended. You are back on the free tier."); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown transition effect %q", effect)
		}
	}
	return nil
}

func (s *Service) notifyUser(ctx context.Context, q postgres.Querier, userID, kind, title, body string) error {
	if s.notify == nil {
		return nil
	}
	return s.notify.Notify(ctx, q, &notify.Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		ActionURL: "/subscription",
	})
}

func (s *Service) dispatchTransition(ctx context.Context, tx pgx.Tx, sub *Subscription, tr *Transition, created bool, now time.Time) error {
	var evtType events.Type
	switch {
	case created && tr.Status == StatusActive:
		evtType = events.SubscriptionCreated
	case tr.Status == StatusCancelled:
		evtType = events.SubscriptionCancelled
	default:
		return nil
	}
	s.bus.Dispatch(ctx, tx, events.Event{
		Type:       evtType,
		UserID:     sub.UserID,
		EntityID:   sub.ID,
		EntityType: "subscription",
		Source:     events.SourceSystem,
		OccurredAt: now,
		Extra:      map[string]any{"status": string(tr.Status)},
	})
	return nil
}

// Checkout starts a payment session with the gateway and returns its URL.
func (s *Service) Checkout(ctx context.Context, userID string) (string, error) {
	if s.gateway == nil {
		return "", apperr.Conflict("checkout is not configured")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub, err := s.store.GetByUser(ctx, s.db, userID); err == nil && sub.HasProAccess(s.now()) {
		return "", apperr.Conflict("subscription already active")
	}
	return s.gateway.CreateCheckoutSession(ctx, userID, u.Email)
}

// Cancel asks the gateway to stop renewals. The state flip itself arrives
// later as a subscription_cancelled webhook; access runs until period end.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	sub, err := s.store.GetByUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	switch sub.Status {
	case StatusActive, StatusPastDue, StatusGrace:
	default:
		return apperr.Conflict("subscription is not active")
	}
	if s.gateway == nil {
		return apperr.Conflict("checkout is not configured")
	}
	return s.gateway.CancelSubscription(ctx, sub.ExternalID)
}

// Get returns the user's subscription.
func (s *Service) Get(ctx context.Context, userID string) (*Subscription, error) {
	return s.store.GetByUser(ctx, s.db, userID)
}

// HasProAccess reports whether the user currently holds pro features. Users
// with no subscription row are free tier.
func (s *Service) HasProAccess(ctx context.Context, userID string) (bool, error) {
	sub, err := s.store.GetByUser(ctx, s.db, userID)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.HasProAccess(s.now()), nil
}

// CheckExpiries is the daily maintenance pass: expire lapsed grace and
// cancelled subscriptions and send the grace-ending warning.
func (s *Service) CheckExpiries(ctx context.Context, batchSize int) (int, error) {
	expired := 0
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		subs, err := s.store.ListDueForSweep(ctx, tx, now, batchSize)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if needsGraceWarning(sub, now) {
				if err := s.notifyUser(ctx, tx, sub.UserID, "subscription_grace_ending",
					"Pro access ending soon", "Your grace period ends in less than 3 days. Update your payment method to keep pro features."); err != nil {
					return err
				}
				if err := s.store.MarkGraceWarned(ctx, tx, sub.ID); err != nil {
					return err
				}
				sub.GraceWarningSent = true
			}

			tr := sweep(sub, now)
			if tr == nil {
				continue
			}
			if err := s.store.Upsert(ctx, tx, sub); err != nil {
				return err
			}
			if err := s.runEffects(ctx, tx, sub, tr.Effects); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	return expired, err
}

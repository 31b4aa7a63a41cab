// Package billing implements the subscription lifecycle: a webhook-driven
// state machine over {active, past_due, grace, cancelled, expired}, tier
// flips, and monthly credit grants.
package billing

import "time"

// Status is the subscription state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusGrace     Status = "grace"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Webhook event types accepted from the payment gateway.
const (
	EventPaymentCaptured       = "payment_captured"
	EventPaymentDeclined       = "payment_declined"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionRenewed   = "subscription_renewed"
)

const (
	// declines before past_due escalates to grace
	maxFailedPayments = 3
	gracePeriod       = 7 * 24 * time.Hour
	graceWarningLead  = 3 * 24 * time.Hour
)

// Subscription is the one-per-user billing record.
type Subscription struct {
	ID               string
	UserID           string
	ExternalID       string
	Status           Status
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	GraceEnd         *time.Time
	FailedPayments   int
	GraceWarningSent bool
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasProAccess reports whether the subscription still grants pro features at
// now. Cancelled subscriptions keep access until period end.
func (s *Subscription) HasProAccess(now time.Time) bool {
	switch s.Status {
	case StatusActive, StatusPastDue:
		return true
	case StatusGrace:
		return s.GraceEnd != nil && now.Before(*s.GraceEnd)
	case StatusCancelled:
		return s.PeriodEnd != nil && now.Before(*s.PeriodEnd)
	default:
		return false
	}
}

// Effect is a side effect the caller must apply alongside a transition.
type Effect string

const (
	EffectGrantMonthly Effect = "grant_monthly"
	EffectTierPro      Effect = "tier_pro"
	EffectTierFree     Effect = "tier_free"
	EffectNotifyGrace  Effect = "notify_grace"
	EffectNotifyExpiry Effect = "notify_expiry"
)

// Transition is the outcome of applying one event to a subscription.
type Transition struct {
	Status  Status
	Effects []Effect
}

// apply runs the state machine for one webhook event. It mutates sub's
// counters and period fields and returns the transition; a nil return means
// the event is a no-op in the current state.
func apply(sub *Subscription, eventType string, periodStart, periodEnd *time.Time, now time.Time) *Transition {
	switch eventType {
	case EventPaymentCaptured, EventSubscriptionRenewed:
		// capture from any state re-activates, resets failure tracking
		sub.Status = StatusActive
		sub.FailedPayments = 0
		sub.GraceEnd = nil
		sub.GraceWarningSent = false
		sub.CancelledAt = nil
		if periodStart != nil {
			sub.PeriodStart = periodStart
		}
		if periodEnd != nil {
			sub.PeriodEnd = periodEnd
		}
		return &Transition{Status: StatusActive, Effects: []Effect{EffectTierPro, EffectGrantMonthly}}

	case EventPaymentDeclined:
		switch sub.Status {
		case StatusActive, StatusPastDue:
			sub.FailedPayments++
			if sub.FailedPayments >= maxFailedPayments {
				graceEnd := now.Add(gracePeriod)
				sub.Status = StatusGrace
				sub.GraceEnd = &graceEnd
				return &Transition{Status: StatusGrace, Effects: []Effect{EffectNotifyGrace}}
			}
			sub.Status = StatusPastDue
			return &Transition{Status: StatusPastDue}
		case StatusGrace:
			// further declines inside grace change nothing
			return nil
		default:
			return nil
		}

	case EventSubscriptionCancelled:
		switch sub.Status {
		case StatusActive, StatusPastDue, StatusGrace:
			sub.Status = StatusCancelled
			sub.CancelledAt = &now
			return &Transition{Status: StatusCancelled}
		default:
			return nil
		}
	}
	return nil
}

// sweep applies the daily maintenance transitions: grace and cancelled
// subscriptions past their deadline expire and drop the tier.
func sweep(sub *Subscription, now time.Time) *Transition {
	switch sub.Status {
	case StatusGrace:
		if sub.GraceEnd != nil && !now.Before(*sub.GraceEnd) {
			sub.Status = StatusExpired
			return &Transition{Status: StatusExpired, Effects: []Effect{EffectTierFree, EffectNotifyExpiry}}
		}
	case StatusCancelled:
		if sub.PeriodEnd != nil && !now.Before(*sub.PeriodEnd) {
			sub.Status = StatusExpired
			return &Transition{Status: StatusExpired, Effects: []Effect{EffectTierFree}}
		}
	}
	return nil
}

// needsGraceWarning reports whether the user should get the grace-ending
// warning notification.
func needsGraceWarning(sub *Subscription, now time.Time) bool {
	return sub.Status == StatusGrace &&
		!sub.GraceWarningSent &&
		sub.GraceEnd != nil &&
		sub.GraceEnd.Sub(now) <= graceWarningLead
}

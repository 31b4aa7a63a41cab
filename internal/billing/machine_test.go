package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func activeSub() *Subscription {
	start := now.AddDate(0, -1, 0)
	end := now.AddDate(0, 0, 20)
	return &Subscription{Status: StatusActive, PeriodStart: &start, PeriodEnd: &end}
}

func TestCaptureActivatesAndGrants(t *testing.T) {
	sub := &Subscription{Status: StatusExpired}
	end := now.AddDate(0, 1, 0)

	tr := apply(sub, EventPaymentCaptured, &now, &end, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusActive, tr.Status)
	assert.Contains(t, tr.Effects, EffectTierPro)
	assert.Contains(t, tr.Effects, EffectGrantMonthly)
	assert.Zero(t, sub.FailedPayments)
	assert.Nil(t, sub.GraceEnd)
}

func TestDeclineEscalatesToGraceOnThirdFailure(t *testing.T) {
	sub := activeSub()

	tr := apply(sub, EventPaymentDeclined, nil, nil, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusPastDue, tr.Status)
	assert.Equal(t, 1, sub.FailedPayments)

	tr = apply(sub, EventPaymentDeclined, nil, nil, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusPastDue, tr.Status)

	tr = apply(sub, EventPaymentDeclined, nil, nil, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusGrace, tr.Status)
	assert.Contains(t, tr.Effects, EffectNotifyGrace)
	require.NotNil(t, sub.GraceEnd)
	assert.Equal(t, now.Add(7*24*time.Hour), *sub.GraceEnd)
}

func TestDeclineInGraceIsNoop(t *testing.T) {
	graceEnd := now.Add(2 * 24 * time.Hour)
	sub := &Subscription{Status: StatusGrace, GraceEnd: &graceEnd, FailedPayments: 3}

	assert.Nil(t, apply(sub, EventPaymentDeclined, nil, nil, now))
	assert.Equal(t, StatusGrace, sub.Status)
}

func TestCaptureFromGraceRecovers(t *testing.T) {
	graceEnd := now.Add(24 * time.Hour)
	sub := &Subscription{Status: StatusGrace, GraceEnd: &graceEnd, FailedPayments: 3, GraceWarningSent: true}

	tr := apply(sub, EventPaymentCaptured, nil, nil, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Zero(t, sub.FailedPayments)
	assert.Nil(t, sub.GraceEnd)
	assert.False(t, sub.GraceWarningSent)
}

func TestCancelKeepsAccessUntilPeriodEnd(t *testing.T) {
	sub := activeSub()

	tr := apply(sub, EventSubscriptionCancelled, nil, nil, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusCancelled, sub.Status)
	assert.NotNil(t, sub.CancelledAt)
	assert.True(t, sub.HasProAccess(now))
	assert.False(t, sub.HasProAccess(sub.PeriodEnd.Add(time.Hour)))
}

func TestCancelFromExpiredIsNoop(t *testing.T) {
	sub := &Subscription{Status: StatusExpired}
	assert.Nil(t, apply(sub, EventSubscriptionCancelled, nil, nil, now))
}

func TestSweepExpiresGracePastDeadline(t *testing.T) {
	graceEnd := now.Add(-time.Hour)
	sub := &Subscription{Status: StatusGrace, GraceEnd: &graceEnd}

	tr := sweep(sub, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusExpired, tr.Status)
	assert.Contains(t, tr.Effects, EffectTierFree)
	assert.Contains(t, tr.Effects, EffectNotifyExpiry)
}

func TestSweepExpiresCancelledAtPeriodEnd(t *testing.T) {
	end := now.Add(-time.Minute)
	sub := &Subscription{Status: StatusCancelled, PeriodEnd: &end}

	tr := sweep(sub, now)
	require.NotNil(t, tr)
	assert.Equal(t, StatusExpired, tr.Status)
}

func TestSweepLeavesHealthySubscriptionsAlone(t *testing.T) {
	assert.Nil(t, sweep(activeSub(), now))

	graceEnd := now.Add(48 * time.Hour)
	assert.Nil(t, sweep(&Subscription{Status: StatusGrace, GraceEnd: &graceEnd}, now))
}

func TestNeedsGraceWarning(t *testing.T) {
	soon := now.Add(2 * 24 * time.Hour)
	later := now.Add(5 * 24 * time.Hour)

	assert.True(t, needsGraceWarning(&Subscription{Status: StatusGrace, GraceEnd: &soon}, now))
	assert.False(t, needsGraceWarning(&Subscription{Status: StatusGrace, GraceEnd: &later}, now))
	assert.False(t, needsGraceWarning(&Subscription{Status: StatusGrace, GraceEnd: &soon, GraceWarningSent: true}, now))
	assert.False(t, needsGraceWarning(activeSub(), now))
}

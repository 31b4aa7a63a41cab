package credit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grant(id string, t Type, amount, consumed int64, age time.Duration) *Entry {
	return &Entry{
		ID:        id,
		Type:      t,
		Operation: OpGrant,
		Amount:    amount,
		Consumed:  consumed,
		CreatedAt: time.Now().Add(-age),
	}
}

// Mirrors the canonical seed: daily 10, subscription 100, purchased 20,
// kickstart 5. Consuming 15 drains the daily grant and takes 5 from
// subscription.
func TestPlanConsumptionFIFOClassOrder(t *testing.T) {
	grants := []*Entry{
		grant("g-daily", TypeDaily, 10, 0, 4*time.Hour),
		grant("g-sub", TypeSubscription, 100, 0, 3*time.Hour),
		grant("g-purch", TypePurchased, 20, 0, 2*time.Hour),
		grant("g-kick", TypeKickstart, 5, 0, time.Hour),
	}

	plan, available := planConsumption(grants, 15)
	require.NotNil(t, plan)
	assert.Equal(t, int64(135), available)

	totals := perClassTotals(plan)
	assert.Equal(t, int64(10), totals[TypeDaily])
	assert.Equal(t, int64(5), totals[TypeSubscription])
	assert.Zero(t, totals[TypePurchased])
	assert.Zero(t, totals[TypeKickstart])
}

func TestPlanConsumptionInsufficient(t *testing.T) {
	grants := []*Entry{
		grant("g-daily", TypeDaily, 10, 10, time.Hour),
		grant("g-sub", TypeSubscription, 100, 5, time.Hour),
		grant("g-purch", TypePurchased, 20, 0, time.Hour),
		grant("g-kick", TypeKickstart, 5, 0, time.Hour),
	}

	plan, available := planConsumption(grants, 130)
	assert.Nil(t, plan)
	assert.Equal(t, int64(120), available)
}

func TestPlanConsumptionOldestFirstWithinClass(t *testing.T) {
	// grants slice is ordered by created_at, the store's lock order
	grants := []*Entry{
		grant("purch-old", TypePurchased, 10, 0, 48*time.Hour),
		grant("purch-new", TypePurchased, 10, 0, time.Hour),
	}

	plan, _ := planConsumption(grants, 12)
	require.Len(t, plan, 2)
	assert.Equal(t, "purch-old", plan[0].EntryID)
	assert.Equal(t, int64(10), plan[0].Amount)
	assert.Equal(t, "purch-new", plan[1].EntryID)
	assert.Equal(t, int64(2), plan[1].Amount)
}

func TestPlanConsumptionSkipsDrainedGrants(t *testing.T) {
	grants := []*Entry{
		grant("drained", TypeDaily, 10, 10, 2*time.Hour),
		grant("live", TypeDaily, 10, 0, time.Hour),
	}

	plan, _ := planConsumption(grants, 5)
	require.Len(t, plan, 1)
	assert.Equal(t, "live", plan[0].EntryID)
}

func TestPlanConsumptionExactDrain(t *testing.T) {
	grants := []*Entry{grant("g", TypeKickstart, 25, 0, time.Hour)}

	plan, available := planConsumption(grants, 25)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(25), available)
	assert.Equal(t, int64(25), plan[0].Amount)
}

func TestPlanConsumptionZero(t *testing.T) {
	plan, available := planConsumption(nil, 0)
	assert.Empty(t, plan)
	assert.Zero(t, available)
}

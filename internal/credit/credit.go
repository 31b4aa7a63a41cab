// Package credit implements the append-only AI credit ledger: four credit
// classes, FIFO consumption under row locks, daily expiration with
// carry-over, and compensating refunds.
package credit

import "time"

// Type is the credit class. Consumption order is daily, subscription,
// purchased, kickstart; within a class, oldest grant first.
type Type string

const (
	TypeKickstart    Type = "kickstart"
	TypeDaily        Type = "daily"
	TypeSubscription Type = "subscription"
	TypePurchased    Type = "purchased"
)

// consumeOrder is the FIFO class priority.
var consumeOrder = []Type{TypeDaily, TypeSubscription, TypePurchased, TypeKickstart}

// Operation is the ledger row kind. Rows with operation grant or carryover
// carry spendable balance; consume and expire rows are the debit trail.
type Operation string

const (
	OpGrant     Operation = "grant"
	OpConsume   Operation = "consume"
	OpExpire    Operation = "expire"
	OpCarryover Operation = "carryover"
)

// Entry is one append-only ledger row.
type Entry struct {
	ID           string
	UserID       string
	Type         Type
	Operation    Operation
	Amount       int64
	Consumed     int64
	BalanceAfter int64
	ExpiresAt    *time.Time
	Expired      bool
	SourceID     *string
	OperationRef string
	GrantDay     *time.Time
	CreatedAt    time.Time
}

// Remaining is the spendable balance of a credit-bearing row.
func (e *Entry) Remaining() int64 {
	return e.Amount - e.Consumed
}

// Balance is the per-class spendable balance.
type Balance struct {
	Daily        int64 `json:"daily"`
	Subscription int64 `json:"subscription"`
	Purchased    int64 `json:"purchased"`
	Kickstart    int64 `json:"kickstart"`
}

// Total sums all classes.
func (b Balance) Total() int64 {
	return b.Daily + b.Subscription + b.Purchased + b.Kickstart
}

func (b *Balance) add(t Type, n int64) {
	switch t {
	case TypeDaily:
		b.Daily += n
	case TypeSubscription:
		b.Subscription += n
	case TypePurchased:
		b.Purchased += n
	case TypeKickstart:
		b.Kickstart += n
	}
}

// ConsumeResult reports what a consume debited and the balance it left.
type ConsumeResult struct {
	EntryID  string
	PerClass map[Type]int64
	Balance  int64
}

// nextUTCMidnight returns the first UTC midnight after t.
func nextUTCMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

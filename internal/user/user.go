// Package user holds the account entity and its store.
package user

import "time"

// Tier is the subscription tier attached to an account. Only the
// subscription engine mutates it.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// User is an account created on first external sign-in.
type User struct {
	ID              string
	ProviderSubject string
	Email           string
	DisplayName     string
	AvatarURL       string
	Timezone        string
	Tier            Tier
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileUpdate carries the mutable profile fields of a PATCH. Nil means
// leave unchanged.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
	Timezone    *string
}

package users

import (
	"errors"
	"time"
)

const (
	PlanFree = "free"

	// ModeMedia is the sticky assistant mode set after a media search.
	ModeMedia = "media"
)

var ErrNotFound = errors.New("user not found")

// User is a bot user row.
type User struct {
	ID                 int64
	TelegramID         int64
	Username           string
	Language           string
	PremiumPlan        string
	PremiumUntil       *time.Time
	AssistantMode      string
	AssistantModeUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectivePlan returns the plan that applies at now. A lapsed premium
// subscription falls back to the free plan.
func (u *User) EffectivePlan(now time.Time) string {
	if u.PremiumPlan == "" {
		return PlanFree
	}
	if u.PremiumUntil != nil && !now.Before(*u.PremiumUntil) {
		return PlanFree
	}
	return u.PremiumPlan
}

// ModeActive reports whether the assistant mode flag is set and unexpired.
func (u *User) ModeActive(now time.Time) bool {
	return u.AssistantMode == ModeMedia &&
		u.AssistantModeUntil != nil &&
		now.Before(*u.AssistantModeUntil)
}

// SessionKey is the identity used for in-process conversation state.
func (u *User) SessionKey() string {
	return sessionKey(u.TelegramID, u.ID)
}

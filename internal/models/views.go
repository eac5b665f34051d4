package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfileView is the read-optimised projection of a profile joined with its role.
type ProfileView struct {
	Profile
	Role Role `json:"role"`
}

// NewProfileView joins a profile with the role held by the same account.
func NewProfileView(p *Profile, role Role) *ProfileView {
	return &ProfileView{Profile: *p, Role: role}
}

// WindowUsage reports how much of one limit window has been consumed.
// Limit and Remaining are nil when the window is unlimited.
type WindowUsage struct {
	Window      string           `json:"window"`
	WindowStart time.Time        `json:"windowStart"`
	Limit       *decimal.Decimal `json:"limit"`
	Used        decimal.Decimal  `json:"used"`
	Remaining   *decimal.Decimal `json:"remaining"`
}

// LimitUsageView is the per-window spend summary for an account.
type LimitUsageView struct {
	AccountID string        `json:"accountId"`
	Windows   []WindowUsage `json:"windows"`
}

// SessionView is returned by a successful sign-in.
type SessionView struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
	Role      Role   `json:"role"`
}

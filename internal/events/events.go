package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
)

// Event types
const (
	ProfileCreated  = "profile.created"
	ProfileDecided  = "profile.decided"
	ProfileUpdated  = "profile.updated"
	BalanceAdjusted = "balance.adjusted"
	LimitsUpdated   = "limits.updated"
	RoleAssigned    = "role.assigned"
)

const AccountEventsStream = "account.events"

type Event struct {
	Type      string          `json:"type"`
	AccountID string          `json:"accountId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

type ProfileCreatedEvent struct {
	AccountID string        `json:"accountId"`
	Username  string        `json:"username"`
	Status    models.Status `json:"status"`
	Role      models.Role   `json:"role"`
	ActorID   string        `json:"actorId,omitempty"`
}

type ProfileDecidedEvent struct {
	AccountID string        `json:"accountId"`
	From      models.Status `json:"from"`
	To        models.Status `json:"to"`
	ActorID   string        `json:"actorId"`
}

type ProfileUpdatedEvent struct {
	AccountID string `json:"accountId"`
	ActorID   string `json:"actorId"`
}

type BalanceAdjustedEvent struct {
	AccountID    string           `json:"accountId"`
	EntryID      string           `json:"entryId"`
	Amount       string           `json:"amount"`
	Direction    models.Direction `json:"direction"`
	Actor        models.Actor     `json:"actor"`
	BalanceAfter string           `json:"balanceAfter"`
}

type LimitsUpdatedEvent struct {
	AccountID string        `json:"accountId"`
	Limits    models.Limits `json:"limits"`
	ActorID   string        `json:"actorId"`
}

type RoleAssignedEvent struct {
	AccountID string      `json:"accountId"`
	Role      models.Role `json:"role"`
	ActorID   string      `json:"actorId"`
}

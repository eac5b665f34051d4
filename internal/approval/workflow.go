// Package approval holds the state machine over Profile.Status.
//
// A self-signup starts in pending and an administrator moves it to approved
// or rejected exactly once. An administrator-created account enters the
// machine directly in approved. No transition leaves approved or rejected.
package approval

import (
	"fmt"

	"github.com/LazarusTes/auth-portal-express/internal/models"
)

// Origin is the entry path of a new account.
type Origin string

const (
	OriginSelfSignup   Origin = "signup"
	OriginAdminCreated Origin = "admin"
)

// InitialStatus returns the status a new profile is stored with.
func InitialStatus(origin Origin) models.Status {
	if origin == OriginAdminCreated {
		return models.StatusApproved
	}
	return models.StatusPending
}

// Target maps an administrator decision to the status it produces.
func Target(d models.Decision) (models.Status, error) {
	switch d {
	case models.DecisionApprove:
		return models.StatusApproved, nil
	case models.DecisionReject:
		return models.StatusRejected, nil
	}
	return "", models.ErrInvalidDecision
}

// CanTransition reports whether from → to is an edge of the machine.
func CanTransition(from, to models.Status) bool {
	return from == models.StatusPending && (to == models.StatusApproved || to == models.StatusRejected)
}

// Transition validates a decision against the current status and returns
// the resulting status.
func Transition(from models.Status, d models.Decision) (models.Status, error) {
	to, err := Target(d)
	if err != nil {
		return "", err
	}
	if !CanTransition(from, to) {
		return "", fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return to, nil
}

// CanSignIn reports whether an account in the given status may sign in.
func CanSignIn(s models.Status) error {
	switch s {
	case models.StatusApproved:
		return nil
	case models.StatusPending:
		return models.ErrAccountPending
	case models.StatusRejected:
		return models.ErrAccountRejected
	}
	return models.ErrAccountNotActive
}

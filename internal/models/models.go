package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the approval state of a Profile.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Role is the single privilege level held by an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Decision is an administrator's verdict on a pending Profile.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Direction is the sign of a balance mutation.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// Actor says who initiated a balance mutation. Only self-initiated debits
// are governed by transfer limits.
type Actor string

const (
	ActorAdmin Actor = "admin"
	ActorSelf  Actor = "self"
)

func (a Actor) Valid() bool {
	return a == ActorAdmin || a == ActorSelf
}

// PersonalDetails are the identity fields collected at sign-up.
type PersonalDetails struct {
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Username       string    `json:"username"`
	DateOfBirth    time.Time `json:"dateOfBirth"`
	PlaceOfBirth   string    `json:"placeOfBirth"`
	CountryOfBirth string    `json:"countryOfBirth"`
	Residence      string    `json:"residence"`
	Nationality    string    `json:"nationality"`
}

// Limits caps self-initiated outgoing transfers per calendar window.
// A nil value means no limit for that window.
type Limits struct {
	Daily   *decimal.Decimal `json:"daily"`
	Weekly  *decimal.Decimal `json:"weekly"`
	Monthly *decimal.Decimal `json:"monthly"`
}

// Profile is the core record kept for every account.
type Profile struct {
	ID string `json:"id"`
	PersonalDetails
	DocumentRef string          `json:"documentRef,omitempty"`
	Status      Status          `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
	Limits      Limits          `json:"limits"`
	CreatedAt   time.Time       `json:"createdTimestamp"`
	UpdatedAt   time.Time       `json:"updatedTimestamp"`
}

// ProfileUpdate carries a partial write; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	Username       *string
	DateOfBirth    *time.Time
	PlaceOfBirth   *string
	CountryOfBirth *string
	Residence      *string
	Nationality    *string
	DocumentRef    *string
	Limits         *Limits
}

// Apply copies every non-nil field of u onto p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = *u.DateOfBirth
	}
	if u.PlaceOfBirth != nil {
		p.PlaceOfBirth = *u.PlaceOfBirth
	}
	if u.CountryOfBirth != nil {
		p.CountryOfBirth = *u.CountryOfBirth
	}
	if u.Residence != nil {
		p.Residence = *u.Residence
	}
	if u.Nationality != nil {
		p.Nationality = *u.Nationality
	}
	if u.DocumentRef != nil {
		p.DocumentRef = *u.DocumentRef
	}
	if u.Limits != nil {
		p.Limits = *u.Limits
	}
}

// LedgerEntry records one committed balance mutation. Entries are never
// rewritten once appended.
type LedgerEntry struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	Amount         decimal.Decimal `json:"amount"`
	Direction      Direction       `json:"direction"`
	Actor          Actor           `json:"actor"`
	ActorID        string          `json:"actorId"`
	BalanceAfter   decimal.Decimal `json:"balanceAfter"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time       `json:"createdTimestamp"`
}

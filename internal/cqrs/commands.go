package cqrs

import (
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/shopspring/decimal"
)

// DocumentUpload is an identity document supplied alongside a profile.
type DocumentUpload struct {
	FileName string
	Content  []byte
}

type SignUpCommand struct {
	Details  models.PersonalDetails
	Email    string
	Password string
	Document *DocumentUpload
}

type AdminCreateUserCommand struct {
	ActorID  string
	Details  models.PersonalDetails
	Email    string
	Password string
	Role     models.Role
	Document *DocumentUpload
}

type DecideCommand struct {
	ActorID   string
	AccountID string
	Decision  models.Decision
}

type AdjustBalanceCommand struct {
	ActorID        string
	AccountID      string
	Amount         decimal.Decimal
	Direction      models.Direction
	Actor          models.Actor
	IdempotencyKey string
}

type SetLimitsCommand struct {
	ActorID   string
	AccountID string
	Limits    models.Limits
}

type AssignRoleCommand struct {
	ActorID   string
	AccountID string
	Role      models.Role
}

type UpdateProfileCommand struct {
	ActorID   string
	AccountID string
	Update    models.ProfileUpdate
}

type UploadDocumentCommand struct {
	ActorID   string
	AccountID string
	Document  DocumentUpload
}

type LoginCommand struct {
	Email    string
	Password string
}

type LogoutCommand struct {
	Token string
}

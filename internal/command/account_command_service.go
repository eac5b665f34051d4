package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/approval"
	"github.com/LazarusTes/auth-portal-express/internal/blobstore"
	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/directory"
	"github.com/LazarusTes/auth-portal-express/internal/events"
	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/repository"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"github.com/LazarusTes/auth-portal-express/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Directory creates and removes credential records.
type Directory interface {
	Create(ctx context.Context, email, password string) (*directory.Identity, error)
	Remove(ctx context.Context, accountID string) error
}

type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader) error
	PublicURL(key string) string
}

type ViewRefresher interface {
	Refresh(ctx context.Context, id string) (*models.ProfileView, error)
	Invalidate(ctx context.Context, id string)
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType, accountID string, data any) error
}

type Dependencies struct {
	Directory    Directory
	Profiles     repository.ProfileStore
	Roles        *roles.Assigner
	Ledger       *ledger.Ledger
	Blobs        BlobStore
	Views        ViewRefresher
	Publisher    EventPublisher
	Metrics      *metrics.Collector
	Logger       *slog.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

// AccountCommandService performs every state-changing account operation and
// keeps the read model in sync.
type AccountCommandService struct {
	Dependencies
}

func NewAccountCommandService(deps Dependencies) *AccountCommandService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	return &AccountCommandService{Dependencies: deps}
}

// begin bounds ctx by the store timeout and opens a span. The returned
// function closes both and records the outcome.
func (s *AccountCommandService) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.StoreTimeout)
	ctx, span := telemetry.Tracer().Start(ctx, "accounts."+op)
	span.SetAttributes(attrs...)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.Outcome(err))
			if errors.Is(err, models.ErrStoreUnavailable) {
				s.Logger.Error("operation failed", slog.String("op", op), slog.Any("error", err))
			} else {
				s.Logger.Info("operation rejected", slog.String("op", op), slog.String("outcome", metrics.Outcome(err)), slog.Any("error", err))
			}
		}
		s.Metrics.ObserveOperation(op, started, err)
		span.End()
		cancel()
	}
}

func (s *AccountCommandService) refresh(ctx context.Context, id string) *models.ProfileView {
	view, err := s.Views.Refresh(ctx, id)
	if err != nil {
		s.Logger.Warn("read model refresh failed", slog.String("accountId", id), slog.Any("error", err))
		s.Views.Invalidate(ctx, id)
		return nil
	}
	return view
}

func (s *AccountCommandService) publish(ctx context.Context, eventType, accountID string, data any) {
	if err := s.Publisher.Publish(ctx, eventType, accountID, data); err != nil {
		s.Logger.Warn("event publish failed", slog.String("type", eventType), slog.String("accountId", accountID), slog.Any("error", err))
	}
}

// view returns the refreshed read model, or the write model joined with a
// known role if the refresh failed.
func (s *AccountCommandService) view(ctx context.Context, p *models.Profile, role models.Role) *models.ProfileView {
	if v := s.refresh(ctx, p.ID); v != nil {
		return v
	}
	return models.NewProfileView(p, role)
}

func validateDetails(d models.PersonalDetails, now time.Time) error {
	missing := []string{}
	for _, f := range []struct{ name, value string }{
		{"firstName", d.FirstName},
		{"lastName", d.LastName},
		{"username", d.Username},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if d.DateOfBirth.IsZero() {
		missing = append(missing, "dateOfBirth")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", models.ErrMissingField, strings.Join(missing, ", "))
	}
	if d.DateOfBirth.After(now) {
		return fmt.Errorf("%w: dateOfBirth is in the future", models.ErrValidation)
	}
	return nil
}

// storeDocument uploads doc for accountID and returns its public reference.
func (s *AccountCommandService) storeDocument(ctx context.Context, accountID string, doc *cqrs.DocumentUpload) (string, error) {
	key := blobstore.DocumentKey(accountID, doc.FileName, s.Now())
	if err := s.Blobs.Upload(ctx, key, bytes.NewReader(doc.Content)); err != nil {
		return "", err
	}
	return s.Blobs.PublicURL(key), nil
}

type newAccount struct {
	details  models.PersonalDetails
	email    string
	password string
	document *cqrs.DocumentUpload
	origin   approval.Origin
	role     models.Role
	actorID  string
}

func (s *AccountCommandService) createAccount(ctx context.Context, req newAccount) (*models.ProfileView, error) {
	now := s.Now()
	if err := validateDetails(req.details, now); err != nil {
		return nil, err
	}
	taken, err := s.Profiles.UsernameTaken(ctx, req.details.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.ErrDuplicateUsername
	}

	identity, err := s.Directory.Create(ctx, req.email, req.password)
	if err != nil {
		return nil, err
	}
	// From here on a failure must not leave the identity behind.
	undo := func(cause error) error {
		if err := s.Directory.Remove(context.WithoutCancel(ctx), identity.AccountID); err != nil {
			s.Logger.Error("identity cleanup failed", slog.String("accountId", identity.AccountID), slog.Any("error", err))
		}
		return cause
	}

	p := &models.Profile{
		ID:              identity.AccountID,
		PersonalDetails: req.details,
		Status:          approval.InitialStatus(req.origin),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.document != nil {
		ref, err := s.storeDocument(ctx, p.ID, req.document)
		if err != nil {
			return nil, undo(err)
		}
		p.DocumentRef = ref
	}
	if err := s.Profiles.Create(ctx, p, req.role); err != nil {
		return nil, undo(err)
	}

	s.publish(ctx, events.ProfileCreated, p.ID, events.ProfileCreatedEvent{
		AccountID: p.ID,
		Username:  p.Username,
		Status:    p.Status,
		Role:      req.role,
		ActorID:   req.actorID,
	})
	return s.view(ctx, p, req.role), nil
}

// SignUp registers a self-service account. It starts pending with role user.
func (s *AccountCommandService) SignUp(ctx context.Context, cmd cqrs.SignUpCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "sign_up")
	defer func() { finish(err) }()

	return s.createAccount(ctx, newAccount{
		details:  cmd.Details,
		email:    cmd.Email,
		password: cmd.Password,
		document: cmd.Document,
		origin:   approval.OriginSelfSignup,
		role:     models.RoleUser,
	})
}

// AdminCreateUser creates an account that is approved from the start.
func (s *AccountCommandService) AdminCreateUser(ctx context.Context, cmd cqrs.AdminCreateUserCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "admin_create_user", attribute.String("actor.id", cmd.ActorID))
	defer func() { finish(err) }()

	if err := s.Roles.Authorize(ctx, cmd.ActorID); err != nil {
		return nil, err
	}
	role := cmd.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, models.ErrInvalidRole
	}

	return s.createAccount(ctx, newAccount{
		details:  cmd.Details,
		email:    cmd.Email,
		password: cmd.Password,
		document: cmd.Document,
		origin:   approval.OriginAdminCreated,
		role:     role,
		actorID:  cmd.ActorID,
	})
}

// Decide approves or rejects a pending account.
func (s *AccountCommandService) Decide(ctx context.Context, cmd cqrs.DecideCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "decide",
		attribute.String("actor.id", cmd.ActorID),
		attribute.String("account.id", cmd.AccountID),
		attribute.String("decision", string(cmd.Decision)))
	defer func() { finish(err) }()

	if err := s.Roles.Authorize(ctx, cmd.ActorID); err != nil {
		return nil, err
	}
	if _, err := approval.Target(cmd.Decision); err != nil {
		return nil, err
	}

	current, err := s.Profiles.GetByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	to, err := approval.Transition(current.Status, cmd.Decision)
	if err != nil {
		return nil, err
	}
	// The store re-checks the source status, so a concurrent decision loses
	// with InvalidTransition instead of overwriting.
	p, err := s.Profiles.UpdateStatus(ctx, cmd.AccountID, current.Status, to)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProfileDecided, p.ID, events.ProfileDecidedEvent{
		AccountID: p.ID,
		From:      current.Status,
		To:        to,
		ActorID:   cmd.ActorID,
	})
	role, _ := s.Roles.RoleOf(ctx, p.ID)
	return s.view(ctx, p, role), nil
}

// AdjustBalance credits or debits an approved account. Administrators may
// adjust any account in either direction without limits; an account holder
// may only debit their own account, within its limits.
func (s *AccountCommandService) AdjustBalance(ctx context.Context, cmd cqrs.AdjustBalanceCommand) (res *ledger.Result, err error) {
	ctx, finish := s.begin(ctx, "adjust_balance",
		attribute.String("actor.id", cmd.ActorID),
		attribute.String("account.id", cmd.AccountID),
		attribute.String("direction", string(cmd.Direction)),
		attribute.String("actor", string(cmd.Actor)))
	defer func() { finish(err) }()

	switch cmd.Actor {
	case models.ActorAdmin:
		if err := s.Roles.Authorize(ctx, cmd.ActorID); err != nil {
			return nil, err
		}
	case models.ActorSelf:
		if cmd.ActorID == "" || cmd.ActorID != cmd.AccountID {
			return nil, fmt.Errorf("%w: self-initiated transfers must come from the account holder", models.ErrForbidden)
		}
		if cmd.Direction == models.DirectionCredit {
			return nil, models.ErrSelfCredit
		}
	default:
		return nil, fmt.Errorf("%w: actor must be admin or self", models.ErrValidation)
	}

	res, err = s.Ledger.Apply(ctx, ledger.Mutation{
		AccountID:      cmd.AccountID,
		Amount:         cmd.Amount,
		Direction:      cmd.Direction,
		Actor:          cmd.Actor,
		ActorID:        cmd.ActorID,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		var le *limits.LimitExceededError
		if errors.As(err, &le) {
			s.Metrics.RecordLimitRejection(string(le.Window))
		}
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	entry := res.Entry
	s.Metrics.RecordLedgerEntry(entry)
	s.refresh(ctx, entry.AccountID)
	s.publish(ctx, events.BalanceAdjusted, entry.AccountID, events.BalanceAdjustedEvent{
		AccountID:    entry.AccountID,
		EntryID:      entry.ID,
		Amount:       entry.Amount.String(),
		Direction:    entry.Direction,
		Actor:        entry.Actor,
		BalanceAfter: entry.BalanceAfter.String(),
	})
	return res, nil
}

// SetLimits replaces all three caps. A nil cap removes that limit.
func (s *AccountCommandService) SetLimits(ctx context.Context, cmd cqrs.SetLimitsCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "set_limits",
		attribute.String("actor.id", cmd.ActorID),
		attribute.String("account.id", cmd.AccountID))
	defer func() { finish(err) }()

	if err := s.Roles.Authorize(ctx, cmd.ActorID); err != nil {
		return nil, err
	}
	if err := limits.Validate(cmd.Limits); err != nil {
		return nil, err
	}

	l := cmd.Limits
	p, err := s.Profiles.Update(ctx, cmd.AccountID, models.ProfileUpdate{Limits: &l})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.LimitsUpdated, p.ID, events.LimitsUpdatedEvent{
		AccountID: p.ID,
		Limits:    p.Limits,
		ActorID:   cmd.ActorID,
	})
	role, _ := s.Roles.RoleOf(ctx, p.ID)
	return s.view(ctx, p, role), nil
}

// AssignRole changes an account's role. Assigning the current role is a no-op
// that still succeeds.
func (s *AccountCommandService) AssignRole(ctx context.Context, cmd cqrs.AssignRoleCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "assign_role",
		attribute.String("actor.id", cmd.ActorID),
		attribute.String("account.id", cmd.AccountID),
		attribute.String("role", string(cmd.Role)))
	defer func() { finish(err) }()

	if err := s.Roles.Authorize(ctx, cmd.ActorID); err != nil {
		return nil, err
	}
	if err := s.Roles.Assign(ctx, cmd.AccountID, cmd.Role); err != nil {
		return nil, err
	}

	s.publish(ctx, events.RoleAssigned, cmd.AccountID, events.RoleAssignedEvent{
		AccountID: cmd.AccountID,
		Role:      cmd.Role,
		ActorID:   cmd.ActorID,
	})
	if v := s.refresh(ctx, cmd.AccountID); v != nil {
		return v, nil
	}
	p, err := s.Profiles.GetByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	return models.NewProfileView(p, cmd.Role), nil
}

func validateUpdate(u models.ProfileUpdate, now time.Time) error {
	if u.Limits != nil {
		return fmt.Errorf("%w: limits are changed through SetLimits", models.ErrValidation)
	}
	if u.DocumentRef != nil {
		return fmt.Errorf("%w: documents are changed through UploadDocument", models.ErrValidation)
	}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"firstName", u.FirstName},
		{"lastName", u.LastName},
		{"username", u.Username},
	} {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return fmt.Errorf("%w: %s", models.ErrMissingField, f.name)
		}
	}
	if u.DateOfBirth != nil && (u.DateOfBirth.IsZero() || u.DateOfBirth.After(now)) {
		return fmt.Errorf("%w: invalid dateOfBirth", models.ErrValidation)
	}
	return nil
}

// UpdateProfile edits personal details. The owner or an administrator may
// call it.
func (s *AccountCommandService) UpdateProfile(ctx context.Context, cmd cqrs.UpdateProfileCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "update_profile",
		attribute.String("actor.id", cmd.ActorID),
		attribute.String("account.id", cmd.AccountID))
	defer func() { finish(err) }()

	if err := s.Roles.AuthorizeOwnerOrAdmin(ctx, cmd.ActorID, cmd.AccountID); err != nil {
		return nil, err
	}
	if err := validateUpdate(cmd.Update, s.Now()); err != nil {
		return nil, err
	}

	p, err := s.Profiles.Update(ctx, cmd.AccountID, cmd.Update)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProfileUpdated, p.ID, events.ProfileUpdatedEvent{AccountID: p.ID, ActorID: cmd.ActorID})
	role, _ := s.Roles.RoleOf(ctx, p.ID)
	return s.view(ctx, p, role), nil
}

// UploadDocument stores a new identity document and points the profile at it.
func (s *AccountCommandService) UploadDocument(ctx context.Context, cmd cqrs.UploadDocumentCommand) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "upload_document",
		attribute.String("actor.id", cmd.ActorID),
		attribute.String("account.id", cmd.AccountID))
	defer func() { finish(err) }()

	if err := s.Roles.AuthorizeOwnerOrAdmin(ctx, cmd.ActorID, cmd.AccountID); err != nil {
		return nil, err
	}
	if _, err := s.Profiles.GetByID(ctx, cmd.AccountID); err != nil {
		return nil, err
	}

	ref, err := s.storeDocument(ctx, cmd.AccountID, &cmd.Document)
	if err != nil {
		return nil, err
	}
	p, err := s.Profiles.Update(ctx, cmd.AccountID, models.ProfileUpdate{DocumentRef: &ref})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProfileUpdated, p.ID, events.ProfileUpdatedEvent{AccountID: p.ID, ActorID: cmd.ActorID})
	role, _ := s.Roles.RoleOf(ctx, p.ID)
	return s.view(ctx, p, role), nil
}

package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/approval"
	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/directory"
	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"go.opentelemetry.io/otel/attribute"
)

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*directory.Identity, error)
}

type SessionManager interface {
	Issue(id *directory.Identity) (string, error)
	SignOut(ctx context.Context, token string) error
}

// ProfileGetter is the slice of the profile store sign-in needs.
type ProfileGetter interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// AuthQueryService handles sign-in and sign-out. Neither touches profile
// state, so there is no command side for auth.
type AuthQueryService struct {
	identities   Authenticator
	sessions     SessionManager
	profiles     ProfileGetter
	roles        *roles.Assigner
	metrics      *metrics.Collector
	logger       *slog.Logger
	storeTimeout time.Duration
}

func NewAuthQueryService(identities Authenticator, sessions SessionManager, profiles ProfileGetter, assigner *roles.Assigner, m *metrics.Collector, logger *slog.Logger, storeTimeout time.Duration) *AuthQueryService {
	if logger == nil {
		logger = slog.Default()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &AuthQueryService{
		identities:   identities,
		sessions:     sessions,
		profiles:     profiles,
		roles:        assigner,
		metrics:      m,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// Login checks credentials and issues a session. Only approved accounts may
// sign in; pending and rejected ones get a state error naming their status.
func (s *AuthQueryService) Login(ctx context.Context, cmd cqrs.LoginCommand) (session *models.SessionView, err error) {
	ctx, finish := trace(ctx, "login", s.storeTimeout, s.metrics, s.logger)
	defer func() { finish(err) }()

	identity, err := s.identities.Authenticate(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.GetByID(ctx, identity.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("identity without profile", slog.String("accountId", identity.AccountID))
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := approval.CanSignIn(p.Status); err != nil {
		return nil, err
	}
	role, err := s.roles.RoleOf(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.Issue(identity)
	if err != nil {
		return nil, err
	}
	return &models.SessionView{Token: token, AccountID: p.ID, Role: role}, nil
}

func (s *AuthQueryService) Logout(ctx context.Context, cmd cqrs.LogoutCommand) (err error) {
	ctx, finish := trace(ctx, "logout", s.storeTimeout, s.metrics, s.logger, attribute.Bool("token.present", cmd.Token != ""))
	defer func() { finish(err) }()

	return s.sessions.SignOut(ctx, cmd.Token)
}

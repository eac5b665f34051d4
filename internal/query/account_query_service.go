package query

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/repository"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"github.com/LazarusTes/auth-portal-express/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProfileReader is the profile read model.
type ProfileReader interface {
	Get(ctx context.Context, id string) (*models.ProfileView, error)
	List(ctx context.Context) ([]models.ProfileView, error)
}

type Dependencies struct {
	Views        ProfileReader
	Profiles     repository.ProfileStore
	Ledger       repository.LedgerStore
	Roles        *roles.Assigner
	Enforcer     *limits.Enforcer
	Metrics      *metrics.Collector
	Logger       *slog.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

type AccountQueryService struct {
	Dependencies
}

func NewAccountQueryService(deps Dependencies) *AccountQueryService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	if deps.Enforcer == nil {
		deps.Enforcer = limits.NewEnforcer()
	}
	return &AccountQueryService{Dependencies: deps}
}

func (s *AccountQueryService) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	return trace(ctx, op, s.StoreTimeout, s.Metrics, s.Logger, attrs...)
}

// trace bounds ctx by timeout and wraps the call in a span. The returned
// function records the outcome.
func trace(ctx context.Context, op string, timeout time.Duration, m *metrics.Collector, logger *slog.Logger, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	ctx, span := telemetry.Tracer().Start(ctx, "accounts."+op)
	span.SetAttributes(attrs...)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.Outcome(err))
			if errors.Is(err, models.ErrStoreUnavailable) {
				logger.Error("query failed", slog.String("op", op), slog.Any("error", err))
			}
		}
		m.ObserveOperation(op, started, err)
		span.End()
		cancel()
	}
}

// ListProfiles returns every profile with its role. Administrators only.
func (s *AccountQueryService) ListProfiles(ctx context.Context, q cqrs.ListProfilesQuery) (views []models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "list_profiles", attribute.String("actor.id", q.ActorID))
	defer func() { finish(err) }()

	if err := s.Roles.Authorize(ctx, q.ActorID); err != nil {
		return nil, err
	}
	views, err = s.Views.List(ctx)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []models.ProfileView{}
	}
	return views, nil
}

func (s *AccountQueryService) GetProfile(ctx context.Context, q cqrs.GetProfileQuery) (view *models.ProfileView, err error) {
	ctx, finish := s.begin(ctx, "get_profile",
		attribute.String("actor.id", q.ActorID),
		attribute.String("account.id", q.AccountID))
	defer func() { finish(err) }()

	if err := s.Roles.AuthorizeOwnerOrAdmin(ctx, q.ActorID, q.AccountID); err != nil {
		return nil, err
	}
	return s.Views.Get(ctx, q.AccountID)
}

// ListLedgerEntries returns the account's entries, newest first.
func (s *AccountQueryService) ListLedgerEntries(ctx context.Context, q cqrs.ListLedgerEntriesQuery) (entries []models.LedgerEntry, err error) {
	ctx, finish := s.begin(ctx, "list_ledger_entries",
		attribute.String("actor.id", q.ActorID),
		attribute.String("account.id", q.AccountID))
	defer func() { finish(err) }()

	if err := s.Roles.AuthorizeOwnerOrAdmin(ctx, q.ActorID, q.AccountID); err != nil {
		return nil, err
	}
	entries, err = s.Ledger.ListEntries(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return []models.LedgerEntry{}, nil
	}
	slices.Reverse(entries)
	return entries, nil
}

// GetLimitUsage reports spend in the current daily, weekly and monthly
// windows. Limits come from the write model, not the cache.
func (s *AccountQueryService) GetLimitUsage(ctx context.Context, q cqrs.GetLimitUsageQuery) (view *models.LimitUsageView, err error) {
	ctx, finish := s.begin(ctx, "get_limit_usage",
		attribute.String("actor.id", q.ActorID),
		attribute.String("account.id", q.AccountID))
	defer func() { finish(err) }()

	if err := s.Roles.AuthorizeOwnerOrAdmin(ctx, q.ActorID, q.AccountID); err != nil {
		return nil, err
	}
	p, err := s.Profiles.GetByID(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}
	usage, err := s.Enforcer.Usage(ctx, repository.AccountUsage(s.Ledger, q.AccountID), p.Limits, s.Now())
	if err != nil {
		return nil, err
	}
	return &models.LimitUsageView{AccountID: p.ID, Windows: usage}, nil
}

package projection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LazarusTes/auth-portal-express/internal/events"
	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/models"
)

type ViewRefresher interface {
	Refresh(ctx context.Context, id string) (*models.ProfileView, error)
}

type ProfileLister interface {
	List(ctx context.Context) ([]models.ProfileView, error)
}

// Projector keeps the cached profile views and the profile gauges in step
// with the account event stream. It runs in every replica's consumer group
// member, so handling must be idempotent.
type Projector struct {
	views    ViewRefresher
	profiles ProfileLister
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewProjector(views ViewRefresher, profiles ProfileLister, m *metrics.Collector, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{views: views, profiles: profiles, metrics: m, logger: logger}
}

// HandleAccountEvent is an events.Handler. A returned error leaves the
// message pending for redelivery.
func (p *Projector) HandleAccountEvent(ctx context.Context, event events.Event) (err error) {
	defer func() { p.metrics.RecordEvent(event.Type, err) }()

	switch event.Type {
	case events.ProfileCreated, events.ProfileDecided:
		if err := p.refresh(ctx, event.AccountID); err != nil {
			return err
		}
		return p.Recount(ctx)
	case events.ProfileUpdated, events.LimitsUpdated, events.RoleAssigned:
		return p.refresh(ctx, event.AccountID)
	case events.BalanceAdjusted:
		var data events.BalanceAdjustedEvent
		if err := event.Decode(&data); err != nil {
			return err
		}
		p.logger.Debug("balance adjusted",
			slog.String("accountId", data.AccountID),
			slog.String("entryId", data.EntryID),
			slog.String("direction", string(data.Direction)),
			slog.String("amount", data.Amount))
		return p.refresh(ctx, event.AccountID)
	default:
		p.logger.Debug("ignoring event", slog.String("type", event.Type))
		return nil
	}
}

func (p *Projector) refresh(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: event without account id", models.ErrValidation)
	}
	if _, err := p.views.Refresh(ctx, accountID); err != nil {
		return fmt.Errorf("failed to refresh view %s: %w", accountID, err)
	}
	return nil
}

// Recount recomputes the per-status profile gauge from the store.
func (p *Projector) Recount(ctx context.Context) error {
	views, err := p.profiles.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to count profiles: %w", err)
	}
	counts := map[models.Status]int{
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusRejected: 0,
	}
	for _, v := range views {
		counts[v.Status]++
	}
	p.metrics.SetProfileCounts(counts)
	return nil
}

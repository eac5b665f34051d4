package repository

import (
	"context"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
)

// ProfileViewCache is the Redis read model for single profiles.
type ProfileViewCache interface {
	Get(ctx context.Context, id string) (*models.ProfileView, bool)
	Set(ctx context.Context, id string, view *models.ProfileView)
	Delete(ctx context.Context, id string)
}

// ProfileReadRepository serves profile views from the cache and falls back
// to the write store, warming the cache on every cold read.
type ProfileReadRepository struct {
	profiles ProfileStore
	roles    roles.Store
	cache    ProfileViewCache
}

func NewProfileReadRepository(profiles ProfileStore, roleStore roles.Store, cache ProfileViewCache) *ProfileReadRepository {
	return &ProfileReadRepository{profiles: profiles, roles: roleStore, cache: cache}
}

func (r *ProfileReadRepository) Get(ctx context.Context, id string) (*models.ProfileView, error) {
	if view, ok := r.cache.Get(ctx, id); ok {
		return view, nil
	}
	return r.Refresh(ctx, id)
}

// Refresh reloads the view from the write store and caches it.
func (r *ProfileReadRepository) Refresh(ctx context.Context, id string) (*models.ProfileView, error) {
	p, err := r.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := r.roles.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	role := models.RoleUser
	if roles.IsAdmin(raw) {
		role = models.RoleAdmin
	}
	view := models.NewProfileView(p, role)
	r.cache.Set(ctx, id, view)
	return view, nil
}

func (r *ProfileReadRepository) Invalidate(ctx context.Context, id string) {
	r.cache.Delete(ctx, id)
}

// List always reads the write store so newly created accounts appear
// immediately.
func (r *ProfileReadRepository) List(ctx context.Context) ([]models.ProfileView, error) {
	return r.profiles.List(ctx)
}

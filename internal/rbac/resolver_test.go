package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bastionhq/bastion/internal/models"
)

type fakeRoleStore struct {
	perms map[string][]string
	err   error
}

func (f *fakeRoleStore) GetAssignedPermissions(_ context.Context, principalID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	perms, ok := f.perms[principalID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return perms, nil
}

func newTestResolver(store *fakeRoleStore) *Resolver {
	return NewResolver(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolve_ExplicitAssignmentIsAuthoritative(t *testing.T) {
	store := &fakeRoleStore{perms: map[string][]string{
		"u1": {models.PermProductsRead, models.PermProductsWrite},
	}}
	r := newTestResolver(store)

	perms := r.Resolve(context.Background(), "u1", "admin")
	assert.ElementsMatch(t, []string{models.PermProductsRead, models.PermProductsWrite}, perms)
	// Claimed role is ignored when the assignment exists
	assert.False(t, models.HasPermission(perms, models.PermUsersDelete))
}

func TestResolve_UnknownPermissionsDroppedSilently(t *testing.T) {
	store := &fakeRoleStore{perms: map[string][]string{
		"u1": {models.PermProductsRead, "products.frobnicate", ""},
	}}
	r := newTestResolver(store)

	perms := r.Resolve(context.Background(), "u1", "")
	assert.Equal(t, []string{models.PermProductsRead}, perms)
}

func TestResolve_LegacyRoleFallback(t *testing.T) {
	r := newTestResolver(&fakeRoleStore{})

	perms := r.Resolve(context.Background(), "deleted-user", "editor")
	assert.ElementsMatch(t, models.DefaultRolePermissions["editor"], perms)

	perms = r.Resolve(context.Background(), "deleted-user", "admin")
	assert.Equal(t, []string{models.PermAll}, perms)
}

func TestResolve_NoRoleNoFallbackIsEmpty(t *testing.T) {
	r := newTestResolver(&fakeRoleStore{})

	assert.Empty(t, r.Resolve(context.Background(), "nobody", ""))
	assert.Empty(t, r.Resolve(context.Background(), "nobody", "superuser"))
}

func TestResolve_StoreFailureFailsClosed(t *testing.T) {
	r := newTestResolver(&fakeRoleStore{err: errors.New("connection refused")})

	// A transient failure must not fall through to the legacy defaults
	assert.Empty(t, r.Resolve(context.Background(), "u1", "admin"))
}

func TestResolve_FallbackReturnsCopy(t *testing.T) {
	r := newTestResolver(&fakeRoleStore{})

	perms := r.Resolve(context.Background(), "deleted-user", "viewer")
	perms[0] = "mutated"
	assert.NotContains(t, models.DefaultRolePermissions["viewer"], "mutated")
}

func TestHas(t *testing.T) {
	store := &fakeRoleStore{perms: map[string][]string{
		"editor-1": {models.PermProductsRead, models.PermProductsWrite},
		"admin-1":  {models.PermAll},
	}}
	r := newTestResolver(store)
	ctx := context.Background()

	assert.True(t, r.Has(ctx, "editor-1", "", models.PermProductsWrite))
	assert.False(t, r.Has(ctx, "editor-1", "", models.PermUsersDelete))
	// Wildcard grants everything
	assert.True(t, r.Has(ctx, "admin-1", "", models.PermUsersDelete))
	assert.True(t, r.Has(ctx, "admin-1", "", models.PermAuditRead))
}

func TestHasAny(t *testing.T) {
	store := &fakeRoleStore{perms: map[string][]string{
		"viewer-1": {models.PermProductsRead},
	}}
	r := newTestResolver(store)
	ctx := context.Background()

	assert.True(t, r.HasAny(ctx, "viewer-1", "", models.PermProductsWrite, models.PermProductsRead))
	assert.False(t, r.HasAny(ctx, "viewer-1", "", models.PermProductsWrite, models.PermUsersRead))
	assert.False(t, r.HasAny(ctx, "viewer-1", ""))
}

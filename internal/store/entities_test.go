package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-calls-backend/internal/model"
	"facility-calls-backend/internal/query"
)

func TestTenants_CreateWithChildren(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())

	divisionID := model.NewID()
	locationID := model.NewID()
	machineID := model.NewID()
	tenant := &model.Tenant{
		Name:             "Acme",
		Slug:             "acme",
		SubscriptionTier: "pro",
		// Children are listed out of dependency order on purpose.
		Calls: []model.Call{{
			MachineID:        machineID,
			Number:           1,
			TargetDivisionID: &divisionID,
			Reports:          []model.Report{{Content: "first look"}},
		}},
		Machines:  []model.Machine{{ID: machineID, Name: "Press", Code: "M-01", LocationID: locationID}},
		Users:     []model.User{{Email: "lead@acme.test", Password: "pw", Role: "lead", DivisionID: &divisionID}},
		Locations: []model.Location{{ID: locationID, Name: "Floor 1"}},
		Divisions: []model.Division{{ID: divisionID, Name: "Maintenance"}},
	}
	require.NoError(t, s.Tenants.CreateWithChildren(ctx, tenant))

	require.NotEmpty(t, tenant.ID)
	assert.Equal(t, tenant.ID, tenant.Calls[0].TenantID)
	assert.Equal(t, tenant.Calls[0].ID, tenant.Calls[0].Reports[0].CallID)

	counts, err := s.Stats(ctx, tenant.ID)
	require.NoError(t, err)
	for _, e := range model.Entities() {
		assert.EqualValues(t, 1, counts[e.Name], e.Name)
	}

	got, err := s.Calls.FindUnique(ctx, query.ByID(tenant.Calls[0].ID), query.Shape{Include: []string{"reports", "machine"}})
	require.NoError(t, err)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, "first look", got.Reports[0].Content)
	assert.Equal(t, "M-01", got.Machine.Code)
}

func TestTenants_CreateWithChildrenIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())

	tenant := &model.Tenant{
		Name:             "Acme",
		Slug:             "acme",
		SubscriptionTier: "pro",
		Locations:        []model.Location{{Name: "Floor 1"}},
		Machines:         []model.Machine{{Name: "Press", Code: "M-01", LocationID: "missing"}},
	}
	err := s.Tenants.CreateWithChildren(ctx, tenant)
	require.ErrorIs(t, err, ErrTransactionAborted)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	counts, err := s.Stats(ctx, "")
	require.NoError(t, err)
	for name, n := range counts {
		assert.Zero(t, n, name)
	}
}

func TestCalls_CreateWithReports(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())
	f := seedTenant(t, s, "acme")

	c := f.call(1)
	c.Reports = []model.Report{{Content: "noise"}, {Content: "vibration"}}
	require.NoError(t, s.Calls.CreateWithReports(ctx, c))

	n, err := s.Reports.Count(ctx, query.Eq("callId", c.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	bad := f.call(2)
	bad.Reports = []model.Report{{Content: ""}, {Content: "ok"}}
	bad.Status = "unknown"
	err = s.Calls.CreateWithReports(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	calls, err := s.Calls.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)
}

func TestTenants_Purge(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())
	acme := seedTenant(t, s, "acme")
	beta := seedTenant(t, s, "beta")
	for _, f := range []fixture{acme, beta} {
		c := f.call(1)
		c.ResponderID = &f.user.ID
		c.Reports = []model.Report{{Content: "done"}}
		require.NoError(t, s.Calls.CreateWithReports(ctx, c))
	}

	deleted, err := s.Tenants.Purge(ctx, acme.tenant.ID)
	require.NoError(t, err)
	for _, e := range model.Entities() {
		assert.EqualValues(t, 1, deleted[e.Name], e.Name)
	}

	_, err = s.Tenants.FindUnique(ctx, query.ByID(acme.tenant.ID), query.Shape{})
	assert.ErrorIs(t, err, ErrNotFound)

	left, err := s.Stats(ctx, beta.tenant.ID)
	require.NoError(t, err)
	for _, e := range model.Entities() {
		assert.EqualValues(t, 1, left[e.Name], e.Name)
	}
	all, err := s.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, left, all)

	_, err = s.Tenants.Purge(ctx, acme.tenant.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOptionalReferencesAreClearedOnDelete(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())
	f := seedTenant(t, s, "acme")
	c := f.call(1)
	c.TargetDivisionID = &f.division.ID
	require.NoError(t, s.Calls.Create(ctx, c))

	_, err := s.Divisions.Delete(ctx, query.ByID(f.division.ID))
	require.NoError(t, err)

	got, err := s.Calls.FindUnique(ctx, query.ByID(c.ID), query.Shape{})
	require.NoError(t, err)
	assert.Nil(t, got.TargetDivisionID)
	u, err := s.Users.FindUnique(ctx, query.ByID(f.user.ID), query.Shape{})
	require.NoError(t, err)
	assert.Nil(t, u.DivisionID)

	_, err = s.Locations.Delete(ctx, query.ByID(f.location.ID))
	assert.ErrorIs(t, err, ErrConstraintViolation, "machines still reference the location")
}

func TestTenantGuard(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())
	acme := seedTenant(t, s, "acme")
	beta := seedTenant(t, s, "beta")

	err := s.Users.Create(ctx, &model.User{
		Email:      "spy@beta.test",
		Password:   "pw",
		Role:       "operator",
		TenantID:   beta.tenant.ID,
		DivisionID: &acme.division.ID,
	})
	assert.ErrorIs(t, err, ErrValidation)

	c := acme.call(1)
	c.MachineID = beta.machine.ID
	assert.ErrorIs(t, s.Calls.Create(ctx, c), ErrValidation)

	c = acme.call(1)
	require.NoError(t, s.Calls.Create(ctx, c))
	_, err = s.Calls.Update(ctx, query.ByID(c.ID), Patch{"responderId": beta.user.ID})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Calls.UpdateMany(ctx, query.Eq("tenantId", acme.tenant.ID), Patch{"targetDivisionId": beta.division.ID})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Machines.Update(ctx, query.ByID(acme.machine.ID), Patch{"tenantId": beta.tenant.ID})
	assert.ErrorIs(t, err, ErrValidation, "moving a machine keeps its location in the old tenant")

	_, err = s.Calls.Update(ctx, query.ByID(c.ID), Patch{"responderId": acme.user.ID})
	assert.NoError(t, err)
}

func TestOwnershipCache(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())
	f := seedTenant(t, s, "acme")
	key := ownerKey(model.DivisionEntity, f.division.ID)

	_, err := s.Divisions.FindUnique(ctx, query.ByID(f.division.ID), query.Shape{})
	require.NoError(t, err)
	owner, ok := s.owners.Get(key)
	require.True(t, ok)
	assert.Equal(t, f.tenant.ID, owner)

	_, err = s.Divisions.Update(ctx, query.ByID(f.division.ID), Patch{"name": "Facilities"})
	require.NoError(t, err)
	_, ok = s.owners.Get(key)
	assert.False(t, ok, "updates invalidate the cached owner")

	_, err = s.Divisions.FindMany(ctx, query.FindArgs{})
	require.NoError(t, err)
	_, ok = s.owners.Get(key)
	assert.True(t, ok)

	_, err = s.Divisions.Delete(ctx, query.ByID(f.division.ID))
	require.NoError(t, err)
	_, ok = s.owners.Get(key)
	assert.False(t, ok, "deletes invalidate the cached owner")

	s.owners.Flush()
	err = s.Transaction(ctx, func(ctx context.Context, tx *Store) error {
		_, err := tx.Locations.FindUnique(ctx, query.ByID(f.location.ID), query.Shape{})
		return err
	})
	require.NoError(t, err)
	_, ok = s.owners.Get(ownerKey(model.LocationEntity, f.location.ID))
	assert.False(t, ok, "reads inside a transaction are not cached")

	_, ok = s.owners.Get(ownerKey(model.CallEntity, "any"))
	assert.False(t, ok)
	assert.False(t, s.tracksOwner(model.CallEntity))
}

func TestUsers_Passwords(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())
	f := seedTenant(t, s, "acme")

	stored, err := s.Users.FindUnique(ctx, query.ByID(f.user.ID), query.Shape{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Password, "$2"), "password is stored as a bcrypt hash")

	u, err := s.Users.VerifyPassword(ctx, f.user.Email, "secret")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, u.ID)

	_, err = s.Users.VerifyPassword(ctx, f.user.Email, "wrong")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	_, err = s.Users.VerifyPassword(ctx, "nobody@acme.test", "secret")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Users.Update(ctx, query.ByID(f.user.ID), Patch{"password": "rotated"})
	require.NoError(t, err)
	_, err = s.Users.VerifyPassword(ctx, f.user.Email, "rotated")
	assert.NoError(t, err)

	_, err = s.Users.Update(ctx, query.ByID(f.user.ID), Patch{"password": ""})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Users.Update(ctx, query.ByID(f.user.ID), Patch{"password": strings.Repeat("x", 80)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUsers_PlainPasswords(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.HashPasswords = false
	s := newSQLiteStore(t, opts)
	f := seedTenant(t, s, "acme")

	stored, err := s.Users.FindUnique(ctx, query.ByID(f.user.ID), query.Shape{})
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Password)

	_, err = s.Users.VerifyPassword(ctx, f.user.Email, "secret")
	assert.NoError(t, err)
	_, err = s.Users.VerifyPassword(ctx, f.user.Email, "Secret")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestStatuses(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, testOptions())

	err := s.Tenants.Create(ctx, &model.Tenant{Name: "Odd", Slug: "odd", SubscriptionTier: "basic", Status: "paused"})
	assert.ErrorIs(t, err, ErrValidation)

	f := seedTenant(t, s, "acme")
	updated, err := s.Tenants.Update(ctx, query.ByID(f.tenant.ID), Patch{"status": string(model.TenantArchived)})
	require.NoError(t, err)
	assert.Equal(t, model.TenantArchived, updated.Status)

	opts := testOptions()
	opts.Statuses = map[string][]string{model.TenantEntity.Name: {string(model.TenantActive)}}
	open := newSQLiteStore(t, opts)
	g := seedTenant(t, open, "free")
	c := g.call(1)
	c.Status = "triaged"
	require.NoError(t, open.Calls.Create(ctx, c), "an empty list accepts any value")
	assert.ErrorIs(t, open.Calls.Create(ctx, g.call(2)), ErrValidation, "status is required without a default")
}

package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"facility-calls-backend/internal/model"
	"facility-calls-backend/internal/query"
)

// TenantRepository adds tenant-wide operations to the shared contract.
type TenantRepository struct {
	*Repository[model.Tenant]
}

// CreateWithChildren creates the tenant together with the divisions, locations, users,
// machines and calls (with their reports) attached to it. Children are assigned to the
// tenant; ids may be preset by the caller so that children can reference each other.
func (r *TenantRepository) CreateWithChildren(ctx context.Context, t *model.Tenant) error {
	tenantID := presetID(&t.ID)

	w := &nestedWrite{}
	addRow(w, model.TenantEntity, func(tx *Store) *Repository[model.Tenant] { return tx.Tenants.Repository }, t)
	for i := range t.Divisions {
		t.Divisions[i].TenantID = tenantID
		addRow(w, model.DivisionEntity, func(tx *Store) *Repository[model.Division] { return tx.Divisions }, &t.Divisions[i])
	}
	for i := range t.Locations {
		t.Locations[i].TenantID = tenantID
		addRow(w, model.LocationEntity, func(tx *Store) *Repository[model.Location] { return tx.Locations }, &t.Locations[i])
	}
	for i := range t.Users {
		t.Users[i].TenantID = tenantID
		addRow(w, model.UserEntity, func(tx *Store) *Repository[model.User] { return tx.Users.Repository }, &t.Users[i])
	}
	for i := range t.Machines {
		t.Machines[i].TenantID = tenantID
		addRow(w, model.MachineEntity, func(tx *Store) *Repository[model.Machine] { return tx.Machines }, &t.Machines[i])
	}
	for i := range t.Calls {
		t.Calls[i].TenantID = tenantID
		addCall(w, &t.Calls[i])
	}
	return w.run(ctx, r.store)
}

// Purge deletes the tenant and every row it owns, children first, in one transaction.
// It returns the number of deleted rows per entity.
func (r *TenantRepository) Purge(ctx context.Context, id string) (map[string]int64, error) {
	start := time.Now()
	counts := map[string]int64{}
	err := r.store.Transaction(ctx, func(ctx context.Context, tx *Store) error {
		if _, err := tx.Tenants.take(ctx, query.ByID(id), query.Resolved{}, true); err != nil {
			return classify(err)
		}
		entities := model.Entities()
		for i := len(entities) - 1; i >= 0; i-- {
			e := entities[i]
			n, err := tx.deleteWhere(ctx, e, TenantScope(e, id))
			if err != nil {
				return fmt.Errorf("purge %s: %w", e.Table, err)
			}
			counts[e.Name] = n
		}
		return nil
	})
	r.store.metrics.ObserveOperation(r.entity.Name, "purge", outcome(classify(err)), time.Since(start))
	if err != nil {
		return nil, classify(err)
	}
	r.store.owners.Flush()
	r.store.logger.Info("tenant purged", zap.String("tenant", id), zap.Any("deleted", counts))
	return counts, nil
}

// TenantScope returns the filter selecting the rows of e owned by the tenant.
func TenantScope(e *model.Entity, tenantID string) query.Filter {
	if e.Name == model.TenantEntity.Name {
		return query.Eq("id", tenantID)
	}
	if _, ok := e.Field("tenantId"); ok {
		return query.Eq("tenantId", tenantID)
	}
	for _, rel := range e.ForeignKeys() {
		if _, ok := e.Target(rel).Field("tenantId"); ok {
			return query.Has(rel.Name, query.Eq("tenantId", tenantID))
		}
	}
	return query.Or()
}

func (s *Store) deleteWhere(ctx context.Context, e *model.Entity, f query.Filter) (int64, error) {
	where, err := query.Where(e, f)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Exec("DELETE FROM ? WHERE ?", clause.Table{Name: e.Table}, where)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete %s rows: %w", e.Name, res.Error)
	}
	return res.RowsAffected, nil
}

// Stats counts the rows of every entity, optionally restricted to one tenant.
func (s *Store) Stats(ctx context.Context, tenantID string) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, e := range model.Entities() {
		var f query.Filter
		if tenantID != "" {
			f = TenantScope(e, tenantID)
		}
		where, err := query.Where(e, f)
		if err != nil {
			return nil, err
		}
		var n int64
		if err := s.db.WithContext(ctx).Table(e.Table).Clauses(clause.Where{Exprs: []clause.Expression{where}}).Count(&n).Error; err != nil {
			return nil, classify(fmt.Errorf("failed to count %s rows: %w", e.Name, err))
		}
		counts[e.Name] = n
	}
	return counts, nil
}

// UserRepository adds credential checks to the shared contract.
type UserRepository struct {
	*Repository[model.User]
}

// VerifyPassword returns the user with the given email when plain matches the stored password.
func (r *UserRepository) VerifyPassword(ctx context.Context, email, plain string) (*model.User, error) {
	u, err := r.FindUnique(ctx, query.Key{"email": email}, query.Shape{})
	if err != nil {
		return nil, err
	}
	if err := checkPassword(u.Password, plain); err != nil {
		return nil, err
	}
	return u, nil
}

// CallRepository adds the nested call creation to the shared contract.
type CallRepository struct {
	*Repository[model.Call]
}

// CreateWithReports creates the call and the reports attached to it in one transaction.
func (r *CallRepository) CreateWithReports(ctx context.Context, c *model.Call) error {
	w := &nestedWrite{}
	addCall(w, c)
	return w.run(ctx, r.store)
}

func addCall(w *nestedWrite, c *model.Call) {
	callID := presetID(&c.ID)
	addRow(w, model.CallEntity, func(tx *Store) *Repository[model.Call] { return tx.Calls.Repository }, c)
	for i := range c.Reports {
		c.Reports[i].CallID = callID
		addRow(w, model.ReportEntity, func(tx *Store) *Repository[model.Report] { return tx.Reports }, &c.Reports[i])
	}
}

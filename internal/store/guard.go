package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"facility-calls-backend/internal/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound)
}

// now is the store's clock, aligned with the timestamps gorm assigns.
func (s *Store) now() time.Time {
	return normalizeTime(s.db.NowFunc()).(time.Time)
}

// normalizeTime stores instants in UTC at microsecond precision, which every supported
// database round-trips exactly.
func normalizeTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Truncate(time.Microsecond)
	case *time.Time:
		if t == nil {
			return t
		}
		n := t.UTC().Truncate(time.Microsecond)
		return &n
	}
	return v
}

// guardedRelations returns the to-one relations of e that must stay within e's tenant.
func guardedRelations(e *model.Entity) []*model.Relation {
	if _, ok := e.Field("tenantId"); !ok {
		return nil
	}
	var out []*model.Relation
	for _, rel := range e.ForeignKeys() {
		if _, ok := e.Target(rel).Field("tenantId"); ok {
			out = append(out, rel)
		}
	}
	return out
}

// ownerTracked holds the entities referenced by some guarded relation.
var ownerTracked = func() map[string]bool {
	out := map[string]bool{}
	for _, e := range model.Entities() {
		for _, rel := range guardedRelations(e) {
			out[rel.Target] = true
		}
	}
	return out
}()

func (s *Store) tracksOwner(e *model.Entity) bool {
	return ownerTracked[e.Name]
}

func ownerKey(e *model.Entity, id string) string {
	return e.Name + ":" + id
}

// remember caches the tenant of rows read outside a transaction.
func (s *Store) remember(e *model.Entity, rows ...any) {
	if s.inTx || !s.tracksOwner(e) {
		return
	}
	tenant, _ := e.Field("tenantId")
	for _, row := range rows {
		id := model.GetString(row, idField(e))
		owner := model.GetString(row, tenant)
		if id != "" && owner != "" {
			s.owners.SetDefault(ownerKey(e, id), owner)
		}
	}
}

func (s *Store) forget(e *model.Entity, ids ...string) {
	if !s.tracksOwner(e) {
		return
	}
	for _, id := range ids {
		s.owners.Delete(ownerKey(e, id))
	}
}

// tenantOf returns the tenant owning the row of e with the given id.
func (s *Store) tenantOf(ctx context.Context, e *model.Entity, id string) (string, error) {
	if v, ok := s.owners.Get(ownerKey(e, id)); ok {
		return v.(string), nil
	}
	var owners []string
	err := s.db.WithContext(ctx).
		Table(e.Table).
		Where(clause.Eq{Column: clause.Column{Table: e.Table, Name: "id"}, Value: id}).
		Limit(1).
		Pluck("tenant_id", &owners).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve the tenant of %s %q: %w", e.Name, id, err)
	}
	if len(owners) == 0 {
		return "", fmt.Errorf("%w: %s %q", ErrNotFound, e.Name, id)
	}
	if !s.inTx {
		s.owners.SetDefault(ownerKey(e, id), owners[0])
	}
	return owners[0], nil
}

// guard rejects rows that reference a row of another tenant.
func (s *Store) guard(ctx context.Context, e *model.Entity, row any) error {
	rels := guardedRelations(e)
	if len(rels) == 0 {
		return nil
	}
	tenantField, _ := e.Field("tenantId")
	tenant := model.GetString(row, tenantField)
	for _, rel := range rels {
		fk, _ := e.Field(rel.Field)
		ref := model.GetString(row, fk)
		if ref == "" {
			continue
		}
		target := e.Target(rel)
		owner, err := s.tenantOf(ctx, target, ref)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: %s.%s references missing %s %q", ErrConstraintViolation, e.Name, rel.Name, target.Name, ref)
			}
			return err
		}
		if owner != tenant {
			s.logger.Warn("cross-tenant reference rejected",
				zap.String("entity", e.Name),
				zap.String("relation", rel.Name),
				zap.String("tenant", tenant),
				zap.String("referenced_tenant", owner),
			)
			return invalid("%s.%s references %s %q of another tenant", e.Name, rel.Name, target.Name, ref)
		}
	}
	return nil
}

// checkStatus validates a status value against the configured set for e.
func (s *Store) checkStatus(e *model.Entity, v any) error {
	status, _ := v.(string)
	if status == "" {
		return invalid("%s.status cannot be empty", e.Name)
	}
	allowed := s.opts.Statuses[e.Name]
	if len(allowed) > 0 && !slices.Contains(allowed, status) {
		return invalid("%s.status %q is not one of %v", e.Name, status, allowed)
	}
	return nil
}

// prepareCreate fills defaults and validates a row before it is inserted.
func (s *Store) prepareCreate(ctx context.Context, e *model.Entity, row any) error {
	id := idField(e)
	if model.GetString(row, id) == "" {
		if err := model.Set(row, id, model.NewID()); err != nil {
			return err
		}
	}

	if f, ok := e.Field("status"); ok {
		status := model.GetString(row, f)
		if status == "" {
			if allowed := s.opts.Statuses[e.Name]; len(allowed) > 0 {
				status = allowed[0]
				if err := model.Set(row, f, status); err != nil {
					return err
				}
			}
		}
		if err := s.checkStatus(e, status); err != nil {
			return err
		}
	}

	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Kind != model.KindTime {
			continue
		}
		v, err := model.Get(row, f)
		if err != nil {
			return err
		}
		t, ok := v.(time.Time)
		if !ok {
			continue
		}
		if t.IsZero() {
			if f.Managed || f.Nullable {
				continue
			}
			t = s.now()
		}
		if err := model.Set(row, f, normalizeTime(t)); err != nil {
			return err
		}
	}

	if f, ok := e.Field("password"); ok {
		hashed, err := s.hashPassword(model.GetString(row, f))
		if err != nil {
			return err
		}
		if err := model.Set(row, f, hashed); err != nil {
			return err
		}
	}

	return s.guard(ctx, e, row)
}

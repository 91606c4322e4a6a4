package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"facility-calls-backend/internal/model"
	"facility-calls-backend/internal/query"
)

// Patch is a partial update keyed by public field name. A nil value clears a nullable field.
type Patch map[string]any

// Repository implements the shared operation contract for one entity.
type Repository[T any] struct {
	store  *Store
	entity *model.Entity
}

func newRepository[T any](s *Store, e *model.Entity) *Repository[T] {
	return &Repository[T]{store: s, entity: e}
}

// Entity returns the metadata the repository operates on.
func (r *Repository[T]) Entity() *model.Entity {
	return r.entity
}

func (r *Repository[T]) db(ctx context.Context) *gorm.DB {
	return r.store.db.WithContext(ctx)
}

func (r *Repository[T]) observe(op string, start time.Time, err *error) {
	*err = classify(*err)
	r.store.metrics.ObserveOperation(r.entity.Name, op, outcome(*err), time.Since(start))
}

func (r *Repository[T]) where(f query.Filter) (clause.Where, error) {
	expr, err := query.Where(r.entity, f)
	if err != nil {
		return clause.Where{}, err
	}
	return clause.Where{Exprs: []clause.Expression{expr}}, nil
}

// shaped applies a resolved shape to a read.
func shaped(tx *gorm.DB, shape query.Resolved) *gorm.DB {
	if shape.Columns != nil {
		tx = tx.Select(shape.Columns)
	}
	if len(shape.Omit) > 0 {
		tx = tx.Omit(shape.Omit...)
	}
	for _, rel := range shape.Relations {
		tx = tx.Preload(rel.GoName)
	}
	return tx
}

func (r *Repository[T]) take(ctx context.Context, key query.Key, shape query.Resolved, lock bool) (*T, error) {
	w, err := r.where(key.Filter())
	if err != nil {
		return nil, err
	}
	tx := shaped(r.db(ctx), shape).Clauses(w)
	if lock {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row T
	if err := tx.Take(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to find %s %v: %w", r.entity.Name, map[string]any(key), err)
	}
	return &row, nil
}

// FindUnique returns the row identified by key, or ErrNotFound.
func (r *Repository[T]) FindUnique(ctx context.Context, key query.Key, shape query.Shape) (_ *T, err error) {
	defer r.observe("findUnique", time.Now(), &err)

	if err := query.ResolveKey(r.entity, key); err != nil {
		return nil, err
	}
	resolved, err := query.ResolveShape(r.entity, shape)
	if err != nil {
		return nil, err
	}
	row, err := r.take(ctx, key, resolved, false)
	if err != nil {
		return nil, err
	}
	r.store.remember(r.entity, row)
	return row, nil
}

// FindFirst returns the first row FindMany would return, or ErrNotFound.
func (r *Repository[T]) FindFirst(ctx context.Context, args query.FindArgs) (_ *T, err error) {
	if args.Take == nil || *args.Take > 0 {
		args.Take = query.Limit(1)
	} else if *args.Take < 0 {
		args.Take = query.Limit(-1)
	}
	rows, err := r.FindMany(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no %s matches", ErrNotFound, r.entity.Name)
	}
	return &rows[0], nil
}

// FindMany returns the matching rows in order. It never returns ErrNotFound.
func (r *Repository[T]) FindMany(ctx context.Context, args query.FindArgs) (_ []T, err error) {
	defer r.observe("findMany", time.Now(), &err)

	if args.Skip < 0 {
		return nil, invalid("skip cannot be negative")
	}
	shape, err := query.ResolveShape(r.entity, args.Shape)
	if err != nil {
		return nil, err
	}
	orders, err := query.ResolveOrder(r.entity, args.OrderBy)
	if err != nil {
		return nil, err
	}
	var distinct []*model.Field
	for _, name := range args.Distinct {
		f, ok := r.entity.Field(name)
		if !ok {
			return nil, invalid("cannot distinct %s on unknown field %q", r.entity.Name, name)
		}
		distinct = append(distinct, f)
		if shape.Columns != nil {
			shape.Columns = appendMissing(shape.Columns, f.Column)
		}
	}

	backward := args.Take != nil && *args.Take < 0
	if backward {
		orders = query.Reverse(orders)
	}

	filter := args.Where
	if len(args.Cursor) > 0 {
		if err := query.ResolveKey(r.entity, args.Cursor); err != nil {
			return nil, err
		}
		cursor, err := r.take(ctx, args.Cursor, query.Resolved{}, false)
		if err != nil {
			if isNotFound(err) {
				return []T{}, nil
			}
			return nil, err
		}
		values := make(map[string]any, len(orders))
		for _, o := range orders {
			f, _ := r.entity.Field(o.Field)
			if values[o.Field], err = model.Get(cursor, f); err != nil {
				return nil, err
			}
		}
		seek, err := query.Seek(r.entity, orders, values)
		if err != nil {
			return nil, err
		}
		if filter != nil {
			filter = query.And(filter, seek)
		} else {
			filter = seek
		}
	}

	w, err := r.where(filter)
	if err != nil {
		return nil, err
	}
	order, err := query.OrderBy(r.entity, orders)
	if err != nil {
		return nil, err
	}
	tx := shaped(r.db(ctx), shape).Clauses(w, order)

	limit := -1
	if args.Take != nil {
		limit = *args.Take
		if limit < 0 {
			limit = -limit
		}
	}
	if len(distinct) == 0 {
		if args.Skip > 0 {
			tx = tx.Offset(args.Skip)
		}
		if limit >= 0 {
			tx = tx.Limit(limit)
		}
	}

	rows := make([]T, 0)
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", r.entity.Name, err)
	}

	if len(distinct) > 0 {
		rows = dedupe(rows, distinct)
		rows = window(rows, args.Skip, limit)
	}
	if backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	r.store.remember(r.entity, sliceRows(rows)...)
	return rows, nil
}

func appendMissing(columns []string, column string) []string {
	for _, c := range columns {
		if c == column {
			return columns
		}
	}
	return append(columns, column)
}

// dedupe keeps the first row of every distinct combination of fields.
func dedupe[T any](rows []T, fields []*model.Field) []T {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for i := range rows {
		parts := make([]string, len(fields))
		for j, f := range fields {
			v, _ := model.Get(&rows[i], f)
			parts[j] = fmt.Sprintf("%T:%v", v, v)
		}
		key := strings.Join(parts, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rows[i])
	}
	return out
}

func window[T any](rows []T, skip, limit int) []T {
	if skip >= len(rows) {
		return rows[:0]
	}
	rows = rows[skip:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func sliceRows[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

// Create inserts row and fills in the generated id and timestamps.
func (r *Repository[T]) Create(ctx context.Context, row *T) (err error) {
	defer r.observe("create", time.Now(), &err)

	if err := r.store.prepareCreate(ctx, r.entity, row); err != nil {
		return err
	}
	if err := r.db(ctx).Omit(clause.Associations).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", r.entity.Name, err)
	}
	return nil
}

// CreateMany inserts rows in one statement and returns how many were inserted. With
// skipDuplicates, rows colliding with a unique constraint are skipped instead of failing.
func (r *Repository[T]) CreateMany(ctx context.Context, rows []T, skipDuplicates bool) (_ int64, err error) {
	defer r.observe("createMany", time.Now(), &err)

	if len(rows) == 0 {
		return 0, nil
	}
	for i := range rows {
		if err := r.store.prepareCreate(ctx, r.entity, &rows[i]); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	tx := r.db(ctx).Omit(clause.Associations)
	if skipDuplicates {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := tx.Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to create %d %s rows: %w", len(rows), r.entity.Name, res.Error)
	}
	return res.RowsAffected, nil
}

// checkPatch validates p against the entity before any statement is issued.
func (r *Repository[T]) checkPatch(p Patch) error {
	if r.entity.Immutable {
		return invalid("%s rows cannot be updated", r.entity.Name)
	}
	for name, v := range p {
		f, ok := r.entity.Field(name)
		if !ok {
			return invalid("%s has no field %q", r.entity.Name, name)
		}
		if f.Managed {
			return invalid("%s.%s is managed by the store", r.entity.Name, name)
		}
		if err := model.CheckValue(f, v); err != nil {
			return invalid("%v", err)
		}
		if name == "status" {
			if err := r.store.checkStatus(r.entity, model.Normalize(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

// touchesGuard reports whether p changes the tenant or a tenant-scoped reference.
func (r *Repository[T]) touchesGuard(p Patch) bool {
	if _, ok := p["tenantId"]; ok && r.entity.Name != model.TenantEntity.Name {
		return true
	}
	for _, rel := range guardedRelations(r.entity) {
		if _, ok := p[rel.Field]; ok {
			return true
		}
	}
	return false
}

// applyPatch writes p onto row and returns the column assignments for the update.
func (r *Repository[T]) applyPatch(row *T, p Patch, now time.Time) (map[string]any, error) {
	values := make(map[string]any, len(p)+1)
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, _ := r.entity.Field(name)
		v := p[name]
		if f.Kind == model.KindTime {
			v = normalizeTime(v)
		}
		if name == "password" {
			plain, _ := model.Normalize(v).(string)
			hashed, err := r.store.hashPassword(plain)
			if err != nil {
				return nil, err
			}
			v = hashed
		}
		if err := model.Set(row, f, v); err != nil {
			return nil, invalid("%v", err)
		}
		stored, err := model.Get(row, f)
		if err != nil {
			return nil, err
		}
		values[f.Column] = stored
	}
	if r.entity.HasUpdatedAt() {
		f, _ := r.entity.Field("updatedAt")
		if err := model.Set(row, f, now); err != nil {
			return nil, err
		}
		values[f.Column] = now
	}
	return values, nil
}

// Update applies p to the row identified by key and returns the updated row.
func (r *Repository[T]) Update(ctx context.Context, key query.Key, p Patch) (_ *T, err error) {
	defer r.observe("update", time.Now(), &err)

	if err := r.checkPatch(p); err != nil {
		return nil, err
	}
	if err := query.ResolveKey(r.entity, key); err != nil {
		return nil, err
	}

	var out *T
	err = r.store.atomic(ctx, func(tx *Store) error {
		repo := newRepository[T](tx, r.entity)
		current, err := repo.take(ctx, key, query.Resolved{}, true)
		if err != nil {
			return err
		}
		next := *current
		values, err := repo.applyPatch(&next, p, tx.now())
		if err != nil {
			return err
		}
		if repo.touchesGuard(p) {
			if err := tx.guard(ctx, r.entity, &next); err != nil {
				return err
			}
		}
		id := model.GetString(current, idField(r.entity))
		w, err := repo.where(query.Eq("id", id))
		if err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Model(new(T)).Clauses(w).Updates(values).Error; err != nil {
			return fmt.Errorf("failed to update %s %s: %w", r.entity.Name, id, err)
		}
		out, err = repo.take(ctx, query.ByID(id), query.Resolved{}, false)
		if err == nil {
			tx.forget(r.entity, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMany applies p to every row matching where and returns the number of rows matched.
func (r *Repository[T]) UpdateMany(ctx context.Context, where query.Filter, p Patch) (_ int64, err error) {
	defer r.observe("updateMany", time.Now(), &err)

	if err := r.checkPatch(p); err != nil {
		return 0, err
	}
	w, err := r.where(where)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = r.store.atomic(ctx, func(tx *Store) error {
		repo := newRepository[T](tx, r.entity)
		now := tx.now()

		var ids []string
		if repo.touchesGuard(p) || tx.tracksOwner(r.entity) {
			rows := make([]T, 0)
			if err := tx.db.WithContext(ctx).Clauses(w).Find(&rows).Error; err != nil {
				return fmt.Errorf("failed to load %s rows to update: %w", r.entity.Name, err)
			}
			for i := range rows {
				ids = append(ids, model.GetString(&rows[i], idField(r.entity)))
				if !repo.touchesGuard(p) {
					continue
				}
				if _, err := repo.applyPatch(&rows[i], p, now); err != nil {
					return err
				}
				if err := tx.guard(ctx, r.entity, &rows[i]); err != nil {
					return err
				}
			}
		}

		var template T
		values, err := repo.applyPatch(&template, p, now)
		if err != nil {
			return err
		}
		res := tx.db.WithContext(ctx).Model(new(T)).Clauses(w).Updates(values)
		if res.Error != nil {
			return fmt.Errorf("failed to update %s rows: %w", r.entity.Name, res.Error)
		}
		affected = res.RowsAffected
		tx.forget(r.entity, ids...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Upsert inserts create when no row matches key and otherwise applies p to the existing row,
// atomically through INSERT ... ON CONFLICT on the key's unique columns.
func (r *Repository[T]) Upsert(ctx context.Context, key query.Key, create *T, p Patch) (_ *T, err error) {
	defer r.observe("upsert", time.Now(), &err)

	if err := r.checkPatch(p); err != nil {
		return nil, err
	}
	if err := query.ResolveKey(r.entity, key); err != nil {
		return nil, err
	}
	conflict := make([]clause.Column, 0, len(key))
	for _, name := range key.Fields() {
		f, _ := r.entity.Field(name)
		if err := model.Set(create, f, key[name]); err != nil {
			return nil, invalid("%v", err)
		}
		conflict = append(conflict, clause.Column{Name: f.Column})
	}

	var out *T
	err = r.store.atomic(ctx, func(tx *Store) error {
		repo := newRepository[T](tx, r.entity)
		if err := tx.prepareCreate(ctx, r.entity, create); err != nil {
			return err
		}

		onConflict := clause.OnConflict{Columns: conflict, DoNothing: true}
		if len(p) > 0 {
			existing, err := repo.take(ctx, key, query.Resolved{}, true)
			if err != nil && !isNotFound(err) {
				return err
			}
			var next T
			if existing != nil {
				next = *existing
			}
			values, err := repo.applyPatch(&next, p, tx.now())
			if err != nil {
				return err
			}
			if existing != nil {
				if repo.touchesGuard(p) {
					if err := tx.guard(ctx, r.entity, &next); err != nil {
						return err
					}
				}
				tx.forget(r.entity, model.GetString(existing, idField(r.entity)))
			}
			onConflict = clause.OnConflict{Columns: conflict, DoUpdates: clause.Assignments(values)}
		}

		if err := tx.db.WithContext(ctx).Omit(clause.Associations).Clauses(onConflict).Create(create).Error; err != nil {
			return fmt.Errorf("failed to upsert %s %v: %w", r.entity.Name, map[string]any(key), err)
		}
		out, err = repo.take(ctx, key, query.Resolved{}, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the row identified by key and returns its last state.
func (r *Repository[T]) Delete(ctx context.Context, key query.Key) (_ *T, err error) {
	defer r.observe("delete", time.Now(), &err)

	if err := query.ResolveKey(r.entity, key); err != nil {
		return nil, err
	}
	var out *T
	err = r.store.atomic(ctx, func(tx *Store) error {
		repo := newRepository[T](tx, r.entity)
		row, err := repo.take(ctx, key, query.Resolved{}, true)
		if err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Delete(row).Error; err != nil {
			return fmt.Errorf("failed to delete %s %v: %w", r.entity.Name, map[string]any(key), err)
		}
		tx.forget(r.entity, model.GetString(row, idField(r.entity)))
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMany removes every row matching where and returns how many were removed.
func (r *Repository[T]) DeleteMany(ctx context.Context, where query.Filter) (_ int64, err error) {
	defer r.observe("deleteMany", time.Now(), &err)

	w, err := r.where(where)
	if err != nil {
		return 0, err
	}
	var affected int64
	err = r.store.atomic(ctx, func(tx *Store) error {
		var ids []string
		if tx.tracksOwner(r.entity) {
			if err := tx.db.WithContext(ctx).Model(new(T)).Clauses(w).Pluck("id", &ids).Error; err != nil {
				return fmt.Errorf("failed to load %s ids to delete: %w", r.entity.Name, err)
			}
		}
		res := tx.db.WithContext(ctx).Clauses(w).Delete(new(T))
		if res.Error != nil {
			return fmt.Errorf("failed to delete %s rows: %w", r.entity.Name, res.Error)
		}
		affected = res.RowsAffected
		tx.forget(r.entity, ids...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Count returns the number of rows matching where.
func (r *Repository[T]) Count(ctx context.Context, where query.Filter) (_ int64, err error) {
	defer r.observe("count", time.Now(), &err)

	w, err := r.where(where)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db(ctx).Model(new(T)).Clauses(w).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", r.entity.Name, err)
	}
	return n, nil
}

// Aggregate computes _count, _min, _max, _avg and _sum over the matching rows.
func (r *Repository[T]) Aggregate(ctx context.Context, args query.AggregateArgs) (_ query.AggregateResult, err error) {
	defer r.observe("aggregate", time.Now(), &err)

	plan, err := query.PlanAggregate(r.entity, args)
	if err != nil {
		return query.AggregateResult{}, err
	}
	groups, err := r.scan(ctx, plan)
	if err != nil {
		return query.AggregateResult{}, err
	}
	if len(groups) != 1 {
		return query.AggregateResult{}, fmt.Errorf("aggregate returned %d rows", len(groups))
	}
	return groups[0].AggregateResult, nil
}

// GroupBy groups the matching rows by the given fields. Arguments are fully validated
// before the database is queried.
func (r *Repository[T]) GroupBy(ctx context.Context, args query.GroupByArgs) (_ []query.Group, err error) {
	defer r.observe("groupBy", time.Now(), &err)

	plan, err := query.PlanGroupBy(r.entity, args)
	if err != nil {
		return nil, err
	}
	return r.scan(ctx, plan)
}

func (r *Repository[T]) scan(ctx context.Context, plan *query.Plan) ([]query.Group, error) {
	rows, err := plan.Apply(r.db(ctx).Table(r.entity.Table)).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s rows: %w", r.entity.Name, err)
	}
	defer rows.Close()

	groups := make([]query.Group, 0)
	for rows.Next() {
		values := make([]any, plan.Width())
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s group: %w", r.entity.Name, err)
		}
		g, err := plan.Decode(values)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func idField(e *model.Entity) *model.Field {
	f, _ := e.Field("id")
	return f
}

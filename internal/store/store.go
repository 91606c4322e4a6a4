package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"facility-calls-backend/config"
	"facility-calls-backend/internal/model"
	"facility-calls-backend/internal/obs"
)

// Options tune the store. OptionsFromConfig derives them from the application config.
type Options struct {
	// Statuses maps an entity name to its accepted status values. An empty list accepts
	// any non-empty value.
	Statuses      map[string][]string
	HashPasswords bool
	BcryptCost    int

	MaxWait       time.Duration
	Timeout       time.Duration
	Isolation     sql.IsolationLevel
	MaxConcurrent int

	OwnershipTTL time.Duration
}

// OptionsFromConfig converts the configuration sections the store cares about.
func OptionsFromConfig(cfg *config.Config) Options {
	hash := true
	if cfg.Security.HashPasswords != nil {
		hash = *cfg.Security.HashPasswords
	}
	return Options{
		Statuses: map[string][]string{
			model.CallEntity.Name:   cfg.Statuses.Call,
			model.TenantEntity.Name: cfg.Statuses.Tenant,
		},
		HashPasswords: hash,
		BcryptCost:    cfg.Security.BcryptCost,
		MaxWait:       cfg.Transaction.MaxWait,
		Timeout:       cfg.Transaction.Timeout,
		Isolation:     isolationLevel(cfg.Transaction.Isolation),
		MaxConcurrent: cfg.Transaction.MaxConcurrent,
		OwnershipTTL:  cfg.Cache.OwnershipTTL,
	}
}

func isolationLevel(name string) sql.IsolationLevel {
	switch name {
	case "read_uncommitted":
		return sql.LevelReadUncommitted
	case "read_committed":
		return sql.LevelReadCommitted
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	}
	return sql.LevelDefault
}

// Store is the data-access entry point. It owns one repository per entity.
// A Store handed to a transaction callback is bound to that transaction.
type Store struct {
	db      *gorm.DB
	inTx    bool
	opts    Options
	owners  *cache.Cache
	slots   *semaphore.Weighted
	logger  *zap.Logger
	metrics *obs.Metrics

	Tenants   *TenantRepository
	Users     *UserRepository
	Divisions *Repository[model.Division]
	Locations *Repository[model.Location]
	Machines  *Repository[model.Machine]
	Calls     *CallRepository
	Reports   *Repository[model.Report]
}

// New creates a store over db. logger and metrics may be nil.
func New(db *gorm.DB, opts Options, logger *zap.Logger, metrics *obs.Metrics) *Store {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.OwnershipTTL <= 0 {
		opts.OwnershipTTL = 5 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		db:      db,
		opts:    opts,
		owners:  cache.New(opts.OwnershipTTL, 2*opts.OwnershipTTL),
		slots:   semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:  logger,
		metrics: metrics,
	}
	s.bindRepositories()
	return s
}

func (s *Store) bindRepositories() {
	s.Tenants = &TenantRepository{Repository: newRepository[model.Tenant](s, model.TenantEntity)}
	s.Users = &UserRepository{Repository: newRepository[model.User](s, model.UserEntity)}
	s.Divisions = newRepository[model.Division](s, model.DivisionEntity)
	s.Locations = newRepository[model.Location](s, model.LocationEntity)
	s.Machines = newRepository[model.Machine](s, model.MachineEntity)
	s.Calls = &CallRepository{Repository: newRepository[model.Call](s, model.CallEntity)}
	s.Reports = newRepository[model.Report](s, model.ReportEntity)
}

// withTx returns a copy of s bound to the transaction tx.
func (s *Store) withTx(tx *gorm.DB) *Store {
	c := &Store{
		db:      tx,
		inTx:    true,
		opts:    s.opts,
		owners:  s.owners,
		slots:   s.slots,
		logger:  s.logger,
		metrics: s.metrics,
	}
	c.bindRepositories()
	return c
}

// DB exposes the underlying connection, bound to the transaction for transaction-scoped stores.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InTransaction reports whether s is bound to a transaction.
func (s *Store) InTransaction() bool {
	return s.inTx
}

// TxOption customises one interactive transaction.
type TxOption func(*txOptions)

type txOptions struct {
	maxWait   time.Duration
	timeout   time.Duration
	isolation sql.IsolationLevel
}

// MaxWait bounds how long Transaction waits for a free transaction slot.
func MaxWait(d time.Duration) TxOption {
	return func(o *txOptions) { o.maxWait = d }
}

// Timeout bounds how long the callback may run before the transaction is rolled back.
func Timeout(d time.Duration) TxOption {
	return func(o *txOptions) { o.timeout = d }
}

// Isolation sets the isolation level of the transaction.
func Isolation(level sql.IsolationLevel) TxOption {
	return func(o *txOptions) { o.isolation = level }
}

// TxFunc is the body of an interactive transaction. ctx carries the transaction timeout.
type TxFunc func(ctx context.Context, tx *Store) error

// Transaction runs fn in a transaction. Any error returned by fn, a panic, or exceeding the
// timeout rolls everything back and yields ErrTransactionAborted wrapping the cause.
// On a transaction-scoped store the call joins the outer transaction through a savepoint.
func (s *Store) Transaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	o := txOptions{maxWait: s.opts.MaxWait, timeout: s.opts.Timeout, isolation: s.opts.Isolation}
	for _, opt := range opts {
		opt(&o)
	}

	if s.inTx {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return guarded(ctx, fn, s.withTx(tx))
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
		}
		return nil
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, o.maxWait)
	err := s.slots.Acquire(waitCtx, 1)
	cancelWait()
	if err != nil {
		s.metrics.ObserveTransaction("aborted")
		return fmt.Errorf("%w: no transaction slot within %s: %w", ErrTransactionAborted, o.maxWait, err)
	}
	defer s.slots.Release(1)

	txCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	err = s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := guarded(txCtx, fn, s.withTx(tx)); err != nil {
			return err
		}
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("transaction exceeded its %s timeout: %w", o.timeout, txCtx.Err())
		}
		return nil
	}, &sql.TxOptions{Isolation: o.isolation})
	if err != nil {
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("transaction exceeded its %s timeout: %w", o.timeout, err)
		}
		s.metrics.ObserveTransaction("aborted")
		s.logger.Debug("transaction rolled back", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}
	s.metrics.ObserveTransaction("committed")
	return nil
}

// guarded runs fn and turns a panic into an error so the transaction rolls back.
func guarded(ctx context.Context, fn TxFunc, tx *Store) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in transaction: %v", p)
		}
	}()
	return fn(ctx, tx)
}

// Op is one step of a batch.
type Op func(ctx context.Context, tx *Store) error

// Batch runs ops in order inside a single transaction. Results are collected by the ops
// themselves; if any op fails nothing is committed.
func (s *Store) Batch(ctx context.Context, ops ...Op) error {
	return s.Transaction(ctx, func(ctx context.Context, tx *Store) error {
		for i, op := range ops {
			if err := op(ctx, tx); err != nil {
				return fmt.Errorf("batch operation %d: %w", i, err)
			}
		}
		return nil
	})
}

// atomic runs fn in a transaction without taking a slot. Used by operations that need
// several statements to be atomic. Inside a transaction it nests through a savepoint.
func (s *Store) atomic(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

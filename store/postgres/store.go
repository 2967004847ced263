// Package postgres implements the wallet Store on PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/meter"
	walletstore "github.com/xraph/wallet/store"
)

// compile-time interface check
var _ walletstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("wallet/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("wallet/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, acct *account.Account) error {
	existing := new(accountModel)
	err := s.pg.NewSelect(existing).
		Where("id = $1", acct.ID).
		Scan(ctx)
	if err == nil {
		return wallet.ErrAccountExists
	}
	if !isNoRows(err) {
		return fmt.Errorf("wallet/postgres: create account: %w", err)
	}

	m := toAccountModel(acct)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("wallet/postgres: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, wallet.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet/postgres: get account: %w", err)
	}
	return fromAccountModel(m), nil
}

// ApplyMutation loads the account, applies fn and writes back guarded
// by the loaded version. Zero rows affected means another writer got
// there first; the caller retries on ErrConflict.
func (s *Store) ApplyMutation(ctx context.Context, accountID string, fn walletstore.Mutation) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, wallet.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet/postgres: load account: %w", err)
	}

	acct := fromAccountModel(m)
	loadedVersion := acct.Version

	persist, err := fn(acct)
	if err != nil {
		return nil, err
	}
	if !persist {
		return acct, nil
	}

	acct.Version = loadedVersion + 1
	acct.Touch()
	next := toAccountModel(acct)

	res, err := s.pg.NewUpdate(next).
		Where("id = $1", accountID).
		Where("version = $2", loadedVersion).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet/postgres: persist account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("wallet/postgres: persist account: %w", err)
	}
	if rows == 0 {
		return nil, wallet.ErrConflict
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models).OrderExpr("id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("wallet/postgres: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := s.pg.NewDelete((*accountModel)(nil)).
		Where("id = $1", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("wallet/postgres: delete account: %w", err)
	}
	return nil
}

// ==================== Meter Store ====================

func (s *Store) IngestBatch(ctx context.Context, events []*meter.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]usageEventModel, len(events))
	for i, e := range events {
		models[i] = *toUsageEventModel(e)
	}
	_, err := s.pg.NewInsert(&models).
		OnConflict("(idempotency_key) WHERE idempotency_key != '' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("wallet/postgres: ingest batch: %w", err)
	}
	return nil
}

func (s *Store) QueryUsage(ctx context.Context, accountID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	var models []usageEventModel
	q := s.pg.NewSelect(&models).Where("account_id = $1", accountID)

	argIdx := 1
	if opts.ModelID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("model_id = $%d", argIdx), opts.ModelID)
	}
	if opts.Pool != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("source_pool = $%d", argIdx), opts.Pool.String())
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp >= $%d", argIdx), opts.Start)
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp <= $%d", argIdx), opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("wallet/postgres: query usage: %w", err)
	}

	result := make([]*meter.UsageEvent, len(models))
	for i := range models {
		evt, err := fromUsageEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*usageEventModel)(nil)).
		Where("timestamp < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet/postgres: purge usage: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Receipt Store ====================

func (s *Store) GetReceipt(ctx context.Context, accountID, key string) (*walletstore.Receipt, error) {
	m := new(receiptModel)
	err := s.pg.NewSelect(m).
		Where("account_id = $1", accountID).
		Where("receipt_key = $2", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, wallet.ErrNotFound
		}
		return nil, fmt.Errorf("wallet/postgres: get receipt: %w", err)
	}
	return fromReceiptModel(m)
}

func (s *Store) PutReceipt(ctx context.Context, r *walletstore.Receipt) error {
	m := toReceiptModel(r)
	_, err := s.pg.NewInsert(m).
		OnConflict("(account_id, receipt_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("wallet/postgres: put receipt: %w", err)
	}
	return nil
}

func (s *Store) PurgeReceipts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*receiptModel)(nil)).
		Where("created_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet/postgres: purge receipts: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

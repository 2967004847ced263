// Package sqlite implements the wallet Store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/meter"
	walletstore "github.com/xraph/wallet/store"
)

// compile-time interface check
var _ walletstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("wallet/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("wallet/sqlite: migration failed: %w", err)
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
	err := s.sdb.NewSelect(existing).
		Where("id = ?", acct.ID).
		Scan(ctx)
	if err == nil {
		return wallet.ErrAccountExists
	}
	if !isNoRows(err) {
		return fmt.Errorf("wallet/sqlite: create account: %w", err)
	}

	m := toAccountModel(acct)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("wallet/sqlite: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, wallet.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet/sqlite: get account: %w", err)
	}
	return fromAccountModel(m)
}

// ApplyMutation loads the account, applies fn and writes back guarded
// by the loaded version. Zero rows affected means another writer got
// there first; the caller retries on ErrConflict.
func (s *Store) ApplyMutation(ctx context.Context, accountID string, fn walletstore.Mutation) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, wallet.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet/sqlite: load account: %w", err)
	}

	acct, err := fromAccountModel(m)
	if err != nil {
		return nil, fmt.Errorf("wallet/sqlite: decode account: %w", err)
	}
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

	res, err := s.sdb.NewUpdate(next).
		Where("id = ?", accountID).
		Where("version = ?", loadedVersion).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet/sqlite: persist account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("wallet/sqlite: persist account: %w", err)
	}
	if rows == 0 {
		return nil, wallet.ErrConflict
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("wallet/sqlite: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		acct, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = acct
	}
	return result, nil
}

func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := s.sdb.NewDelete((*accountModel)(nil)).
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("wallet/sqlite: delete account: %w", err)
	}
	return nil
}

// ==================== Meter Store ====================

func (s *Store) IngestBatch(ctx context.Context, events []*meter.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		m := toUsageEventModel(e)
		_, err := s.sdb.NewInsert(m).
			OnConflict("(idempotency_key) WHERE idempotency_key != '' DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("wallet/sqlite: ingest event: %w", err)
		}
	}
	return nil
}

func (s *Store) QueryUsage(ctx context.Context, accountID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	var models []usageEventModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID)

	if opts.ModelID != "" {
		q = q.Where("model_id = ?", opts.ModelID)
	}
	if opts.Pool != "" {
		q = q.Where("source_pool = ?", opts.Pool.String())
	}
	if !opts.Start.IsZero() {
		q = q.Where("timestamp >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("timestamp <= ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("wallet/sqlite: query usage: %w", err)
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
	res, err := s.sdb.NewDelete((*usageEventModel)(nil)).
		Where("timestamp < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet/sqlite: purge usage: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Receipt Store ====================

func (s *Store) GetReceipt(ctx context.Context, accountID, key string) (*walletstore.Receipt, error) {
	m := new(receiptModel)
	err := s.sdb.NewSelect(m).
		Where("account_id = ?", accountID).
		Where("receipt_key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, wallet.ErrNotFound
		}
		return nil, fmt.Errorf("wallet/sqlite: get receipt: %w", err)
	}
	return fromReceiptModel(m)
}

func (s *Store) PutReceipt(ctx context.Context, r *walletstore.Receipt) error {
	m := toReceiptModel(r)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account_id, receipt_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("wallet/sqlite: put receipt: %w", err)
	}
	return nil
}

func (s *Store) PurgeReceipts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*receiptModel)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet/sqlite: purge receipts: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

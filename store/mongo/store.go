// Package mongo implements the wallet Store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/meter"
	walletstore "github.com/xraph/wallet/store"
)

// Collection name constants.
const (
	colAccounts    = "wallet_accounts"
	colUsageEvents = "wallet_usage_events"
	colReceipts    = "wallet_receipts"
)

// compile-time interface check
var _ walletstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all wallet collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("wallet/mongo: migrate %s indexes: %w", col, err)
		}
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
	m := toAccountModel(acct)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return wallet.ErrAccountExists
		}
		return fmt.Errorf("wallet/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, wallet.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

// ApplyMutation loads the account, applies fn to it and writes the
// result back filtered on the version the load observed. A concurrent
// writer that lands in between makes the filter match nothing, which
// surfaces as ErrConflict for the caller to retry.
func (s *Store) ApplyMutation(ctx context.Context, accountID string, fn walletstore.Mutation) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, wallet.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet/mongo: load account: %w", err)
	}

	acct := fromAccountModel(&m)
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

	res, err := s.mdb.NewUpdate(next).
		Filter(bson.M{"_id": accountID, "version": loadedVersion}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet/mongo: persist account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return nil, wallet.ErrConflict
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("wallet/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("wallet/mongo: delete account: %w", err)
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
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Skip duplicates for idempotency
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("wallet/mongo: ingest event: %w", err)
		}
	}
	return nil
}

func (s *Store) QueryUsage(ctx context.Context, accountID string, opts meter.QueryOpts) ([]*meter.UsageEvent, error) {
	var models []usageEventModel

	filter := bson.M{"account_id": accountID}
	if opts.ModelID != "" {
		filter["model_id"] = opts.ModelID
	}
	if opts.Pool != "" {
		filter["source_pool"] = opts.Pool.String()
	}
	if !opts.Start.IsZero() {
		filter["timestamp"] = bson.M{"$gte": opts.Start}
	}
	if !opts.End.IsZero() {
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$lte"] = opts.End
		} else {
			filter["timestamp"] = bson.M{"$lte": opts.End}
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("wallet/mongo: query usage: %w", err)
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
	res, err := s.mdb.NewDelete((*usageEventModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet/mongo: purge usage: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Receipt Store ====================

func (s *Store) GetReceipt(ctx context.Context, accountID, key string) (*walletstore.Receipt, error) {
	var m receiptModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"account_id": accountID, "receipt_key": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, wallet.ErrNotFound
		}
		return nil, fmt.Errorf("wallet/mongo: get receipt: %w", err)
	}
	return fromReceiptModel(&m)
}

func (s *Store) PutReceipt(ctx context.Context, r *walletstore.Receipt) error {
	m := toReceiptModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		// First writer wins for a given key
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("wallet/mongo: put receipt: %w", err)
	}
	return nil
}

func (s *Store) PurgeReceipts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*receiptModel)(nil)).
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet/mongo: purge receipts: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all wallet collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "version", Value: 1}}},
			{Keys: bson.D{{Key: "last_used_at", Value: -1}}},
		},
		colUsageEvents: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "model_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{
				Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colReceipts: {
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "receipt_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}

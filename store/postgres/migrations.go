package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the wallet store.
var Migrations = migrate.NewGroup("wallet")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_wallet_accounts",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS wallet_accounts (
    id           TEXT PRIMARY KEY,
    pools        JSONB NOT NULL DEFAULT '{}',
    total_usage  BIGINT NOT NULL DEFAULT 0,
    last_used_at TIMESTAMPTZ,
    version      BIGINT NOT NULL DEFAULT 0,
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_wallet_accounts_last_used ON wallet_accounts (last_used_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS wallet_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_wallet_usage_events",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS wallet_usage_events (
    id              TEXT PRIMARY KEY,
    account_id      TEXT NOT NULL DEFAULT '',
    model_id        TEXT NOT NULL DEFAULT '',
    source_pool     TEXT NOT NULL DEFAULT '',
    tokens_used     BIGINT NOT NULL DEFAULT 0,
    tokens_debited  BIGINT NOT NULL DEFAULT 0,
    timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    idempotency_key TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_wallet_usage_account ON wallet_usage_events (account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_wallet_usage_account_model ON wallet_usage_events (account_id, model_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_wallet_usage_timestamp ON wallet_usage_events (timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_usage_idempotency ON wallet_usage_events (idempotency_key) WHERE idempotency_key != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS wallet_usage_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_wallet_receipts",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS wallet_receipts (
    id             TEXT PRIMARY KEY,
    account_id     TEXT NOT NULL DEFAULT '',
    receipt_key    TEXT NOT NULL DEFAULT '',
    source_pool    TEXT NOT NULL DEFAULT '',
    tokens_debited BIGINT NOT NULL DEFAULT 0,
    balance_after  JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_receipts_account_key ON wallet_receipts (account_id, receipt_key);
CREATE INDEX IF NOT EXISTS idx_wallet_receipts_created ON wallet_receipts (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS wallet_receipts`)
				return err
			},
		},
	)
}

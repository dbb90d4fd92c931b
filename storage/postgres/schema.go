package postgres

import (
	"context"
	"fmt"
)

// Schema is the DDL for the local mirror. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                 TEXT PRIMARY KEY,
	slug               TEXT NOT NULL UNIQUE,
	name               TEXT NOT NULL DEFAULT '',
	billing_account_id TEXT NOT NULL DEFAULT '',
	onboarding_status  TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

DROP INDEX IF EXISTS tenants_billing_account_idx;

CREATE UNIQUE INDEX IF NOT EXISTS tenants_billing_account_key
	ON tenants (billing_account_id) WHERE billing_account_id <> '';

CREATE TABLE IF NOT EXISTS memberships (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL REFERENCES tenants (id),
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS plans (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL REFERENCES tenants (id),
	membership_id     TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	billing_interval  TEXT NOT NULL,
	price_cents       BIGINT NOT NULL,
	currency          TEXT NOT NULL DEFAULT 'usd',
	status            TEXT NOT NULL DEFAULT 'active',
	external_price_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS consumers (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS consumers_email_idx ON consumers (LOWER(email));

CREATE TABLE IF NOT EXISTS plan_subscriptions (
	id                       TEXT PRIMARY KEY,
	tenant_id                TEXT NOT NULL REFERENCES tenants (id),
	consumer_id              TEXT NOT NULL DEFAULT '',
	plan_id                  TEXT NOT NULL DEFAULT '',
	external_subscription_id TEXT NOT NULL UNIQUE,
	external_customer_id     TEXT NOT NULL DEFAULT '',
	status                   TEXT NOT NULL,
	current_period_start     TIMESTAMPTZ,
	current_period_end       TIMESTAMPTZ,
	cancel_at_period_end     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS plan_subscriptions_consumer_idx
	ON plan_subscriptions (tenant_id, consumer_id);

CREATE TABLE IF NOT EXISTS webhook_events (
	id                TEXT PRIMARY KEY,
	provider          TEXT NOT NULL,
	provider_event_id TEXT NOT NULL DEFAULT '',
	event_type        TEXT NOT NULL DEFAULT '',
	account_id        TEXT NOT NULL DEFAULT '',
	signature_valid   BOOLEAN NOT NULL,
	payload           BYTEA,
	received_at       TIMESTAMPTZ NOT NULL,
	processed_at      TIMESTAMPTZ,
	processing_error  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS webhook_events_received_idx ON webhook_events (received_at);
`

// Migrate applies Schema
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

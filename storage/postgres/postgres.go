// Package postgres provides a PostgreSQL implementation of the clubsync.Storage interface.
// Every call is a single statement; there is no multi-statement atomicity.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Storage implements clubsync.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies Schema on startup
	AutoMigrate bool

	// Cleanup configuration. Webhook audit rows are append-only, so deleting
	// them is opt-in and off by default.
	CleanupEnabled   bool
	CleanupInterval  time.Duration // How often to run cleanup
	WebhookRetention time.Duration // Age after which completed webhook audit rows are deleted

	// Logger reports background cleanup failures (default: NoopLogger)
	Logger clubsync.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:         10,
		MinConns:         2,
		MaxConnLifetime:  time.Hour,
		MaxConnIdleTime:  30 * time.Minute,
		CleanupEnabled:   false,
		CleanupInterval:  time.Hour,
		WebhookRetention: 90 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Logger == nil {
		config.Logger = &clubsync.NoopLogger{}
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	if config.CleanupEnabled && config.CleanupInterval > 0 && config.WebhookRetention > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const (
	tenantColumns       = `id, slug, name, billing_account_id, onboarding_status, created_at`
	subscriptionColumns = `id, tenant_id, consumer_id, plan_id, external_subscription_id, external_customer_id,
		status, current_period_start, current_period_end, cancel_at_period_end, updated_at`
)

func scanTenant(row pgx.Row) (*clubsync.Tenant, error) {
	var t clubsync.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.BillingAccountID, &t.OnboardingStatus, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, clubsync.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanSubscription(row pgx.Row) (*clubsync.PlanSubscription, error) {
	var sub clubsync.PlanSubscription
	var status string
	err := row.Scan(
		&sub.ID,
		&sub.TenantID,
		&sub.ConsumerID,
		&sub.PlanID,
		&sub.ExternalSubscriptionID,
		&sub.ExternalCustomerID,
		&status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, clubsync.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.Status = clubsync.SubscriptionStatus(status)
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*clubsync.PlanSubscription, error) {
	defer rows.Close()

	var subs []*clubsync.PlanSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

// GetTenant implements clubsync.Storage
func (s *Storage) GetTenant(ctx context.Context, tenantID string) (*clubsync.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID))
	if err != nil && !errors.Is(err, clubsync.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, err
}

// GetTenantByBillingAccount implements clubsync.Storage
func (s *Storage) GetTenantByBillingAccount(ctx context.Context, accountID string) (*clubsync.Tenant, error) {
	if accountID == "" {
		return nil, clubsync.ErrTenantNotFound
	}
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE billing_account_id = $1 LIMIT 1`, accountID))
	if err != nil && !errors.Is(err, clubsync.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to get tenant by billing account: %w", err)
	}
	return t, err
}

// GetConsumerByEmail implements clubsync.Storage
func (s *Storage) GetConsumerByEmail(ctx context.Context, email string) (*clubsync.Consumer, error) {
	var c clubsync.Consumer
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM consumers WHERE LOWER(email) = LOWER($1)`,
		strings.TrimSpace(email)).Scan(&c.ID, &c.Email, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, clubsync.ErrConsumerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer: %w", err)
	}
	return &c, nil
}

// FindSubscriptionsByConsumer implements clubsync.Storage
func (s *Storage) FindSubscriptionsByConsumer(
	ctx context.Context, tenantID, consumerID string,
) ([]*clubsync.PlanSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM plan_subscriptions
			WHERE tenant_id = $1 AND consumer_id = $2
			ORDER BY external_subscription_id`,
		tenantID, consumerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return subs, nil
}

// FindSubscriptionByID implements clubsync.Storage
func (s *Storage) FindSubscriptionByID(ctx context.Context, id string) (*clubsync.PlanSubscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM plan_subscriptions WHERE id = $1`, id))
	if err != nil && !errors.Is(err, clubsync.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, err
}

// FindSubscriptionByExternalID implements clubsync.Storage
func (s *Storage) FindSubscriptionByExternalID(ctx context.Context, externalID string) (*clubsync.PlanSubscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM plan_subscriptions WHERE external_subscription_id = $1`, externalID))
	if err != nil && !errors.Is(err, clubsync.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("failed to get subscription by external id: %w", err)
	}
	return sub, err
}

// UpdateSubscriptionStatus implements clubsync.Storage
func (s *Storage) UpdateSubscriptionStatus(
	ctx context.Context, id string, update clubsync.StatusUpdate,
) (*clubsync.PlanSubscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`UPDATE plan_subscriptions SET
				status = $2,
				current_period_start = $3,
				current_period_end = $4,
				cancel_at_period_end = $5,
				updated_at = $6
			WHERE id = $1
			RETURNING `+subscriptionColumns,
		id, string(update.Status), update.CurrentPeriodStart, update.CurrentPeriodEnd,
		update.CancelAtPeriodEnd, time.Now().UTC()))
	if err != nil && !errors.Is(err, clubsync.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}
	return sub, err
}

// ListSubscriptionsByTenant implements clubsync.Storage
func (s *Storage) ListSubscriptionsByTenant(ctx context.Context, tenantID string) ([]*clubsync.PlanSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM plan_subscriptions
			WHERE tenant_id = $1 ORDER BY external_subscription_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return subs, nil
}

// ListPlans implements clubsync.Storage
func (s *Storage) ListPlans(ctx context.Context, tenantID string) ([]*clubsync.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, membership_id, name, billing_interval, price_cents, currency, status, external_price_id
			FROM plans WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*clubsync.Plan
	for rows.Next() {
		var p clubsync.Plan
		var interval, status string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.MembershipID, &p.Name, &interval,
			&p.PriceCents, &p.Currency, &status, &p.ExternalPriceID); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		p.Interval = clubsync.BillingInterval(interval)
		p.Status = clubsync.PlanStatus(status)
		plans = append(plans, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return plans, nil
}

// RecordWebhookEvent implements clubsync.Storage
func (s *Storage) RecordWebhookEvent(ctx context.Context, event *clubsync.WebhookEvent) error {
	if event == nil || event.Provider == "" {
		return fmt.Errorf("invalid webhook event")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events
			(id, provider, provider_event_id, event_type, account_id, signature_valid, payload, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Provider, event.ProviderEventID, event.EventType, event.AccountID,
		event.SignatureValid, event.Payload, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// CompleteWebhookEvent implements clubsync.Storage
func (s *Storage) CompleteWebhookEvent(ctx context.Context, id, processingError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET processed_at = $2, processing_error = $3
			WHERE id = $1 AND processed_at IS NULL`,
		id, time.Now().UTC(), processingError)
	if err != nil {
		return fmt.Errorf("failed to complete webhook event: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check webhook event: %w", err)
	}
	if exists {
		return clubsync.ErrWebhookEventCompleted
	}
	return clubsync.ErrWebhookEventNotFound
}

// startCleanup runs periodic deletion of old webhook audit rows
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.cleanupWebhookEvents(ctx); err != nil && ctx.Err() == nil {
				s.config.Logger.Warn("webhook event cleanup failed", clubsync.ErrorField(err))
			}
		}
	}
}

// cleanupWebhookEvents deletes processed webhook events older than the retention window
func (s *Storage) cleanupWebhookEvents(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.WebhookRetention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE processed_at IS NOT NULL AND received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Cleanup can be called manually to delete expired webhook audit rows
func (s *Storage) Cleanup(ctx context.Context) (int64, error) {
	return s.cleanupWebhookEvents(ctx)
}

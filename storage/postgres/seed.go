package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

const uniqueViolation = "23505"

// SaveTenant inserts or replaces a tenant. An empty ID is assigned.
func (s *Storage) SaveTenant(ctx context.Context, t *clubsync.Tenant) error {
	if t == nil || t.Slug == "" {
		return fmt.Errorf("invalid tenant")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, slug, name, billing_account_id, onboarding_status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				slug = EXCLUDED.slug,
				name = EXCLUDED.name,
				billing_account_id = EXCLUDED.billing_account_id,
				onboarding_status = EXCLUDED.onboarding_status`,
		t.ID, t.Slug, t.Name, t.BillingAccountID, t.OnboardingStatus, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "tenants_billing_account_key" {
			return fmt.Errorf("%w: %s", clubsync.ErrBillingAccountInUse, t.BillingAccountID)
		}
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

// SavePlan inserts or replaces a plan. An empty ID is assigned.
func (s *Storage) SavePlan(ctx context.Context, p *clubsync.Plan) error {
	if p == nil || p.TenantID == "" {
		return fmt.Errorf("invalid plan")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = clubsync.PlanStatusActive
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO plans (id, tenant_id, membership_id, name, billing_interval, price_cents, currency, status, external_price_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				membership_id = EXCLUDED.membership_id,
				name = EXCLUDED.name,
				billing_interval = EXCLUDED.billing_interval,
				price_cents = EXCLUDED.price_cents,
				currency = EXCLUDED.currency,
				status = EXCLUDED.status,
				external_price_id = EXCLUDED.external_price_id`,
		p.ID, p.TenantID, p.MembershipID, p.Name, string(p.Interval), p.PriceCents, p.Currency,
		string(p.Status), p.ExternalPriceID)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// SaveConsumer inserts or replaces a consumer. An empty ID is assigned.
func (s *Storage) SaveConsumer(ctx context.Context, c *clubsync.Consumer) error {
	if c == nil || c.Email == "" {
		return fmt.Errorf("invalid consumer")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO consumers (id, email, name, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name`,
		c.ID, c.Email, c.Name, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save consumer: %w", err)
	}
	return nil
}

// SaveSubscription inserts or replaces a plan subscription. An empty ID is assigned.
func (s *Storage) SaveSubscription(ctx context.Context, sub *clubsync.PlanSubscription) error {
	if sub == nil || sub.TenantID == "" || sub.ExternalSubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO plan_subscriptions (`+subscriptionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				consumer_id = EXCLUDED.consumer_id,
				plan_id = EXCLUDED.plan_id,
				external_subscription_id = EXCLUDED.external_subscription_id,
				external_customer_id = EXCLUDED.external_customer_id,
				status = EXCLUDED.status,
				current_period_start = EXCLUDED.current_period_start,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.TenantID, sub.ConsumerID, sub.PlanID, sub.ExternalSubscriptionID, sub.ExternalCustomerID,
		string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// Package firestore provides a Firestore implementation of the clubsync.Storage interface.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Storage implements clubsync.Storage using Google Cloud Firestore
type Storage struct {
	client                  *firestore.Client
	tenantsCollection       string
	consumersCollection     string
	plansCollection         string
	subscriptionsCollection string
	webhookEventsCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// TenantsCollection is the Firestore collection for tenants
	// Default: "clubsync_tenants"
	TenantsCollection string

	// ConsumersCollection is the Firestore collection for consumers
	// Default: "clubsync_consumers"
	ConsumersCollection string

	// PlansCollection is the Firestore collection for plans
	// Default: "clubsync_plans"
	PlansCollection string

	// SubscriptionsCollection is the Firestore collection for plan subscriptions
	// Default: "clubsync_plan_subscriptions"
	SubscriptionsCollection string

	// WebhookEventsCollection is the Firestore collection for the webhook audit log
	// Default: "clubsync_webhook_events"
	WebhookEventsCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.TenantsCollection == "" {
		config.TenantsCollection = "clubsync_tenants"
	}
	if config.ConsumersCollection == "" {
		config.ConsumersCollection = "clubsync_consumers"
	}
	if config.PlansCollection == "" {
		config.PlansCollection = "clubsync_plans"
	}
	if config.SubscriptionsCollection == "" {
		config.SubscriptionsCollection = "clubsync_plan_subscriptions"
	}
	if config.WebhookEventsCollection == "" {
		config.WebhookEventsCollection = "clubsync_webhook_events"
	}

	return &Storage{
		client:                  client,
		tenantsCollection:       config.TenantsCollection,
		consumersCollection:     config.ConsumersCollection,
		plansCollection:         config.PlansCollection,
		subscriptionsCollection: config.SubscriptionsCollection,
		webhookEventsCollection: config.WebhookEventsCollection,
	}, nil
}

// GetTenant implements clubsync.Storage
func (s *Storage) GetTenant(ctx context.Context, tenantID string) (*clubsync.Tenant, error) {
	if tenantID == "" {
		return nil, clubsync.ErrTenantNotFound
	}
	snap, err := s.client.Collection(s.tenantsCollection).Doc(tenantID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, clubsync.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if !snap.Exists() {
		return nil, clubsync.ErrTenantNotFound
	}
	return tenantFromData(snap.Ref.ID, snap.Data()), nil
}

// GetTenantByBillingAccount implements clubsync.Storage
func (s *Storage) GetTenantByBillingAccount(ctx context.Context, accountID string) (*clubsync.Tenant, error) {
	if accountID == "" {
		return nil, clubsync.ErrTenantNotFound
	}
	snaps, err := s.client.Collection(s.tenantsCollection).
		Where("billingAccountId", "==", accountID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	if len(snaps) == 0 {
		return nil, clubsync.ErrTenantNotFound
	}
	return tenantFromData(snaps[0].Ref.ID, snaps[0].Data()), nil
}

// GetConsumerByEmail implements clubsync.Storage
func (s *Storage) GetConsumerByEmail(ctx context.Context, email string) (*clubsync.Consumer, error) {
	snaps, err := s.client.Collection(s.consumersCollection).
		Where("emailLower", "==", normalizeEmail(email)).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query consumers: %w", err)
	}
	if len(snaps) == 0 {
		return nil, clubsync.ErrConsumerNotFound
	}
	data := snaps[0].Data()
	return &clubsync.Consumer{
		ID:        snaps[0].Ref.ID,
		Email:     getString(data, "email"),
		Name:      getString(data, "name"),
		CreatedAt: getTime(data, "createdAt"),
	}, nil
}

// FindSubscriptionsByConsumer implements clubsync.Storage
func (s *Storage) FindSubscriptionsByConsumer(
	ctx context.Context, tenantID, consumerID string,
) ([]*clubsync.PlanSubscription, error) {
	snaps, err := s.client.Collection(s.subscriptionsCollection).
		Where("tenantId", "==", tenantID).
		Where("consumerId", "==", consumerID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	return subscriptionsFromSnapshots(snaps), nil
}

// FindSubscriptionByID implements clubsync.Storage
func (s *Storage) FindSubscriptionByID(ctx context.Context, id string) (*clubsync.PlanSubscription, error) {
	if id == "" {
		return nil, clubsync.ErrSubscriptionNotFound
	}
	snap, err := s.client.Collection(s.subscriptionsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, clubsync.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if !snap.Exists() {
		return nil, clubsync.ErrSubscriptionNotFound
	}
	return subscriptionFromData(snap.Ref.ID, snap.Data()), nil
}

// FindSubscriptionByExternalID implements clubsync.Storage
func (s *Storage) FindSubscriptionByExternalID(ctx context.Context, externalID string) (*clubsync.PlanSubscription, error) {
	snaps, err := s.client.Collection(s.subscriptionsCollection).
		Where("externalSubscriptionId", "==", externalID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	if len(snaps) == 0 {
		return nil, clubsync.ErrSubscriptionNotFound
	}
	return subscriptionFromData(snaps[0].Ref.ID, snaps[0].Data()), nil
}

// UpdateSubscriptionStatus implements clubsync.Storage
func (s *Storage) UpdateSubscriptionStatus(
	ctx context.Context, id string, update clubsync.StatusUpdate,
) (*clubsync.PlanSubscription, error) {
	if id == "" {
		return nil, clubsync.ErrSubscriptionNotFound
	}
	doc := s.client.Collection(s.subscriptionsCollection).Doc(id)

	_, err := doc.Update(ctx, []firestore.Update{
		{Path: "status", Value: string(update.Status)},
		{Path: "currentPeriodStart", Value: timeOrNil(update.CurrentPeriodStart)},
		{Path: "currentPeriodEnd", Value: timeOrNil(update.CurrentPeriodEnd)},
		{Path: "cancelAtPeriodEnd", Value: update.CancelAtPeriodEnd},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, clubsync.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}

	return s.FindSubscriptionByID(ctx, id)
}

// ListSubscriptionsByTenant implements clubsync.Storage
func (s *Storage) ListSubscriptionsByTenant(ctx context.Context, tenantID string) ([]*clubsync.PlanSubscription, error) {
	snaps, err := s.client.Collection(s.subscriptionsCollection).
		Where("tenantId", "==", tenantID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	return subscriptionsFromSnapshots(snaps), nil
}

// ListPlans implements clubsync.Storage
func (s *Storage) ListPlans(ctx context.Context, tenantID string) ([]*clubsync.Plan, error) {
	snaps, err := s.client.Collection(s.plansCollection).
		Where("tenantId", "==", tenantID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}

	plans := make([]*clubsync.Plan, 0, len(snaps))
	for _, snap := range snaps {
		data := snap.Data()
		plans = append(plans, &clubsync.Plan{
			ID:              snap.Ref.ID,
			TenantID:        getString(data, "tenantId"),
			MembershipID:    getString(data, "membershipId"),
			Name:            getString(data, "name"),
			Interval:        clubsync.BillingInterval(getString(data, "interval")),
			PriceCents:      getInt64(data, "priceCents"),
			Currency:        getString(data, "currency"),
			Status:          clubsync.PlanStatus(getString(data, "status")),
			ExternalPriceID: getString(data, "externalPriceId"),
		})
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

	_, err := s.client.Collection(s.webhookEventsCollection).Doc(event.ID).Create(ctx, map[string]interface{}{
		"provider":        event.Provider,
		"providerEventId": event.ProviderEventID,
		"eventType":       event.EventType,
		"accountId":       event.AccountID,
		"signatureValid":  event.SignatureValid,
		"payload":         event.Payload,
		"receivedAt":      event.ReceivedAt,
		"processingError": "",
	})
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// CompleteWebhookEvent implements clubsync.Storage
func (s *Storage) CompleteWebhookEvent(ctx context.Context, id, processingError string) error {
	if id == "" {
		return clubsync.ErrWebhookEventNotFound
	}
	doc := s.client.Collection(s.webhookEventsCollection).Doc(id)

	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return clubsync.ErrWebhookEventNotFound
			}
			return fmt.Errorf("failed to get webhook event: %w", err)
		}
		if _, done := snap.Data()["processedAt"].(time.Time); done {
			return clubsync.ErrWebhookEventCompleted
		}
		return tx.Update(doc, []firestore.Update{
			{Path: "processedAt", Value: time.Now().UTC()},
			{Path: "processingError", Value: processingError},
		})
	})
}

// SaveTenant inserts or replaces a tenant. An empty ID is assigned.
func (s *Storage) SaveTenant(ctx context.Context, t *clubsync.Tenant) error {
	if t == nil {
		return fmt.Errorf("invalid tenant")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	tenants := s.client.Collection(s.tenantsCollection)
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if t.BillingAccountID != "" {
			owners, err := tx.Documents(tenants.Where("billingAccountId", "==", t.BillingAccountID)).GetAll()
			if err != nil {
				return fmt.Errorf("failed to query tenants: %w", err)
			}
			for _, owner := range owners {
				if owner.Ref.ID != t.ID {
					return fmt.Errorf("%w: %s", clubsync.ErrBillingAccountInUse, t.BillingAccountID)
				}
			}
		}
		return tx.Set(tenants.Doc(t.ID), map[string]interface{}{
			"slug":             t.Slug,
			"name":             t.Name,
			"billingAccountId": t.BillingAccountID,
			"onboardingStatus": t.OnboardingStatus,
			"createdAt":        t.CreatedAt,
		})
	})
	if err != nil {
		if errors.Is(err, clubsync.ErrBillingAccountInUse) {
			return err
		}
		return fmt.Errorf("failed to save tenant: %w", err)
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
	_, err := s.client.Collection(s.consumersCollection).Doc(c.ID).Set(ctx, map[string]interface{}{
		"email":      c.Email,
		"emailLower": normalizeEmail(c.Email),
		"name":       c.Name,
		"createdAt":  c.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save consumer: %w", err)
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
	_, err := s.client.Collection(s.plansCollection).Doc(p.ID).Set(ctx, map[string]interface{}{
		"tenantId":        p.TenantID,
		"membershipId":    p.MembershipID,
		"name":            p.Name,
		"interval":        string(p.Interval),
		"priceCents":      p.PriceCents,
		"currency":        p.Currency,
		"status":          string(p.Status),
		"externalPriceId": p.ExternalPriceID,
	})
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
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
	_, err := s.client.Collection(s.subscriptionsCollection).Doc(sub.ID).Set(ctx, map[string]interface{}{
		"tenantId":               sub.TenantID,
		"consumerId":             sub.ConsumerID,
		"planId":                 sub.PlanID,
		"externalSubscriptionId": sub.ExternalSubscriptionID,
		"externalCustomerId":     sub.ExternalCustomerID,
		"status":                 string(sub.Status),
		"currentPeriodStart":     timeOrNil(sub.CurrentPeriodStart),
		"currentPeriodEnd":       timeOrNil(sub.CurrentPeriodEnd),
		"cancelAtPeriodEnd":      sub.CancelAtPeriodEnd,
		"updatedAt":              sub.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func tenantFromData(id string, data map[string]interface{}) *clubsync.Tenant {
	return &clubsync.Tenant{
		ID:               id,
		Slug:             getString(data, "slug"),
		Name:             getString(data, "name"),
		BillingAccountID: getString(data, "billingAccountId"),
		OnboardingStatus: getString(data, "onboardingStatus"),
		CreatedAt:        getTime(data, "createdAt"),
	}
}

func subscriptionFromData(id string, data map[string]interface{}) *clubsync.PlanSubscription {
	return &clubsync.PlanSubscription{
		ID:                     id,
		TenantID:               getString(data, "tenantId"),
		ConsumerID:             getString(data, "consumerId"),
		PlanID:                 getString(data, "planId"),
		ExternalSubscriptionID: getString(data, "externalSubscriptionId"),
		ExternalCustomerID:     getString(data, "externalCustomerId"),
		Status:                 clubsync.SubscriptionStatus(getString(data, "status")),
		CurrentPeriodStart:     getTimePtr(data, "currentPeriodStart"),
		CurrentPeriodEnd:       getTimePtr(data, "currentPeriodEnd"),
		CancelAtPeriodEnd:      getBool(data, "cancelAtPeriodEnd"),
		UpdatedAt:              getTime(data, "updatedAt"),
	}
}

func subscriptionsFromSnapshots(snaps []*firestore.DocumentSnapshot) []*clubsync.PlanSubscription {
	subs := make([]*clubsync.PlanSubscription, 0, len(snaps))
	for _, snap := range snaps {
		subs = append(subs, subscriptionFromData(snap.Ref.ID, snap.Data()))
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ExternalSubscriptionID < subs[j].ExternalSubscriptionID
	})
	return subs
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func getTimePtr(data map[string]interface{}, key string) *time.Time {
	if v, ok := data[key].(time.Time); ok && !v.IsZero() {
		return &v
	}
	return nil
}

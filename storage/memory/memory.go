// Package memory provides an in-memory implementation of the clubsync.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Storage implements clubsync.Storage using in-memory maps
type Storage struct {
	mu            sync.RWMutex
	tenants       map[string]*clubsync.Tenant
	memberships   map[string]*clubsync.Membership
	plans         map[string]*clubsync.Plan
	consumers     map[string]*clubsync.Consumer
	subscriptions map[string]*clubsync.PlanSubscription
	webhookEvents map[string]*clubsync.WebhookEvent
	webhookOrder  []string
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		tenants:       make(map[string]*clubsync.Tenant),
		memberships:   make(map[string]*clubsync.Membership),
		plans:         make(map[string]*clubsync.Plan),
		consumers:     make(map[string]*clubsync.Consumer),
		subscriptions: make(map[string]*clubsync.PlanSubscription),
		webhookEvents: make(map[string]*clubsync.WebhookEvent),
	}
}

// SaveTenant inserts or replaces a tenant. An empty ID is assigned.
func (s *Storage) SaveTenant(_ context.Context, t *clubsync.Tenant) error {
	if t == nil {
		return fmt.Errorf("invalid tenant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for id, existing := range s.tenants {
		if id == t.ID {
			continue
		}
		if t.Slug != "" && existing.Slug == t.Slug {
			return fmt.Errorf("tenant slug %q already exists", t.Slug)
		}
		if t.BillingAccountID != "" && existing.BillingAccountID == t.BillingAccountID {
			return fmt.Errorf("%w: %s", clubsync.ErrBillingAccountInUse, t.BillingAccountID)
		}
	}

	tCopy := *t
	s.tenants[t.ID] = &tCopy
	return nil
}

// SaveMembership inserts or replaces a membership. An empty ID is assigned.
func (s *Storage) SaveMembership(_ context.Context, m *clubsync.Membership) error {
	if m == nil || m.TenantID == "" {
		return fmt.Errorf("invalid membership")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	mCopy := *m
	s.memberships[m.ID] = &mCopy
	return nil
}

// SavePlan inserts or replaces a plan. An empty ID is assigned.
func (s *Storage) SavePlan(_ context.Context, p *clubsync.Plan) error {
	if p == nil || p.TenantID == "" {
		return fmt.Errorf("invalid plan")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	pCopy := *p
	s.plans[p.ID] = &pCopy
	return nil
}

// SaveConsumer inserts or replaces a consumer. An empty ID is assigned.
func (s *Storage) SaveConsumer(_ context.Context, c *clubsync.Consumer) error {
	if c == nil || c.Email == "" {
		return fmt.Errorf("invalid consumer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for id, existing := range s.consumers {
		if id != c.ID && strings.EqualFold(existing.Email, c.Email) {
			return fmt.Errorf("consumer email %q already exists", c.Email)
		}
	}

	cCopy := *c
	s.consumers[c.ID] = &cCopy
	return nil
}

// SaveSubscription inserts or replaces a plan subscription. An empty ID is assigned.
// The external subscription id must be unique.
func (s *Storage) SaveSubscription(_ context.Context, sub *clubsync.PlanSubscription) error {
	if sub == nil || sub.TenantID == "" || sub.ExternalSubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	for id, existing := range s.subscriptions {
		if id != sub.ID && existing.ExternalSubscriptionID == sub.ExternalSubscriptionID {
			return fmt.Errorf("external subscription id %q already exists", sub.ExternalSubscriptionID)
		}
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	s.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

// GetTenant implements clubsync.Storage
func (s *Storage) GetTenant(_ context.Context, tenantID string) (*clubsync.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, clubsync.ErrTenantNotFound
	}
	tCopy := *t
	return &tCopy, nil
}

// GetTenantByBillingAccount implements clubsync.Storage
func (s *Storage) GetTenantByBillingAccount(_ context.Context, accountID string) (*clubsync.Tenant, error) {
	if accountID == "" {
		return nil, clubsync.ErrTenantNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.BillingAccountID == accountID {
			tCopy := *t
			return &tCopy, nil
		}
	}
	return nil, clubsync.ErrTenantNotFound
}

// GetConsumerByEmail implements clubsync.Storage
func (s *Storage) GetConsumerByEmail(_ context.Context, email string) (*clubsync.Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.consumers {
		if strings.EqualFold(c.Email, email) {
			cCopy := *c
			return &cCopy, nil
		}
	}
	return nil, clubsync.ErrConsumerNotFound
}

// FindSubscriptionsByConsumer implements clubsync.Storage
func (s *Storage) FindSubscriptionsByConsumer(
	_ context.Context, tenantID, consumerID string,
) ([]*clubsync.PlanSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*clubsync.PlanSubscription, 0)
	for _, sub := range s.subscriptions {
		if sub.TenantID == tenantID && sub.ConsumerID == consumerID {
			out = append(out, copySubscription(sub))
		}
	}
	sortSubscriptions(out)
	return out, nil
}

// FindSubscriptionByID implements clubsync.Storage
func (s *Storage) FindSubscriptionByID(_ context.Context, id string) (*clubsync.PlanSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, clubsync.ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

// FindSubscriptionByExternalID implements clubsync.Storage
func (s *Storage) FindSubscriptionByExternalID(_ context.Context, externalID string) (*clubsync.PlanSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.ExternalSubscriptionID == externalID {
			return copySubscription(sub), nil
		}
	}
	return nil, clubsync.ErrSubscriptionNotFound
}

// UpdateSubscriptionStatus implements clubsync.Storage
func (s *Storage) UpdateSubscriptionStatus(
	_ context.Context, id string, update clubsync.StatusUpdate,
) (*clubsync.PlanSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, clubsync.ErrSubscriptionNotFound
	}

	sub.Status = update.Status
	sub.CurrentPeriodStart = copyTime(update.CurrentPeriodStart)
	sub.CurrentPeriodEnd = copyTime(update.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = update.CancelAtPeriodEnd
	sub.UpdatedAt = time.Now().UTC()

	return copySubscription(sub), nil
}

// ListSubscriptionsByTenant implements clubsync.Storage
func (s *Storage) ListSubscriptionsByTenant(_ context.Context, tenantID string) ([]*clubsync.PlanSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*clubsync.PlanSubscription, 0)
	for _, sub := range s.subscriptions {
		if sub.TenantID == tenantID {
			out = append(out, copySubscription(sub))
		}
	}
	sortSubscriptions(out)
	return out, nil
}

// ListPlans implements clubsync.Storage
func (s *Storage) ListPlans(_ context.Context, tenantID string) ([]*clubsync.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*clubsync.Plan, 0)
	for _, p := range s.plans {
		if p.TenantID == tenantID {
			pCopy := *p
			out = append(out, &pCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordWebhookEvent implements clubsync.Storage
func (s *Storage) RecordWebhookEvent(_ context.Context, event *clubsync.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("invalid webhook event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if _, exists := s.webhookEvents[event.ID]; exists {
		return fmt.Errorf("webhook event %q already recorded", event.ID)
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	s.webhookEvents[event.ID] = copyWebhookEvent(event)
	s.webhookOrder = append(s.webhookOrder, event.ID)
	return nil
}

// CompleteWebhookEvent implements clubsync.Storage
func (s *Storage) CompleteWebhookEvent(_ context.Context, id, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.webhookEvents[id]
	if !ok {
		return clubsync.ErrWebhookEventNotFound
	}
	if event.ProcessedAt != nil {
		return clubsync.ErrWebhookEventCompleted
	}

	now := time.Now().UTC()
	event.ProcessedAt = &now
	event.ProcessingError = processingError
	return nil
}

// WebhookEvents returns all recorded audit events in arrival order
func (s *Storage) WebhookEvents() []*clubsync.WebhookEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*clubsync.WebhookEvent, 0, len(s.webhookOrder))
	for _, id := range s.webhookOrder {
		out = append(out, copyWebhookEvent(s.webhookEvents[id]))
	}
	return out
}

func copySubscription(sub *clubsync.PlanSubscription) *clubsync.PlanSubscription {
	subCopy := *sub
	subCopy.CurrentPeriodStart = copyTime(sub.CurrentPeriodStart)
	subCopy.CurrentPeriodEnd = copyTime(sub.CurrentPeriodEnd)
	return &subCopy
}

func copyWebhookEvent(e *clubsync.WebhookEvent) *clubsync.WebhookEvent {
	eCopy := *e
	if e.Payload != nil {
		eCopy.Payload = append([]byte(nil), e.Payload...)
	}
	eCopy.ProcessedAt = copyTime(e.ProcessedAt)
	return &eCopy
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tCopy := *t
	return &tCopy
}

func sortSubscriptions(subs []*clubsync.PlanSubscription) {
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ExternalSubscriptionID < subs[j].ExternalSubscriptionID
	})
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

func TestStorage_GetTenant(t *testing.T) {
	storage := New()
	ctx := context.Background()

	// Test getting non-existent tenant
	_, err := storage.GetTenant(ctx, "tenant1")
	if err != clubsync.ErrTenantNotFound {
		t.Errorf("Expected ErrTenantNotFound, got %v", err)
	}

	tenant := &clubsync.Tenant{
		ID:               "tenant1",
		Slug:             "cellar-door",
		Name:             "Cellar Door",
		BillingAccountID: "acct_123",
	}
	if err := storage.SaveTenant(ctx, tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	retrieved, err := storage.GetTenant(ctx, "tenant1")
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if retrieved.Slug != tenant.Slug {
		t.Errorf("Slug mismatch: got %s, want %s", retrieved.Slug, tenant.Slug)
	}

	byAccount, err := storage.GetTenantByBillingAccount(ctx, "acct_123")
	if err != nil {
		t.Fatalf("GetTenantByBillingAccount failed: %v", err)
	}
	if byAccount.ID != "tenant1" {
		t.Errorf("Expected tenant1, got %s", byAccount.ID)
	}

	if _, err := storage.GetTenantByBillingAccount(ctx, ""); err != clubsync.ErrTenantNotFound {
		t.Errorf("Expected ErrTenantNotFound for empty account, got %v", err)
	}
}

func TestStorage_SaveTenant_DuplicateSlug(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.SaveTenant(ctx, &clubsync.Tenant{ID: "t1", Slug: "vino"}); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}
	if err := storage.SaveTenant(ctx, &clubsync.Tenant{ID: "t2", Slug: "vino"}); err == nil {
		t.Error("Expected error for duplicate slug")
	}
}

func TestStorage_SaveTenant_BillingAccountUnique(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.SaveTenant(ctx, &clubsync.Tenant{ID: "t1", Slug: "vino", BillingAccountID: "acct_1"}); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}
	err := storage.SaveTenant(ctx, &clubsync.Tenant{ID: "t2", Slug: "uva", BillingAccountID: "acct_1"})
	if !errors.Is(err, clubsync.ErrBillingAccountInUse) {
		t.Errorf("Expected ErrBillingAccountInUse, got %v", err)
	}

	// Re-saving the owner and tenants without an account are fine
	if err := storage.SaveTenant(ctx, &clubsync.Tenant{ID: "t1", Slug: "vino", BillingAccountID: "acct_1"}); err != nil {
		t.Errorf("Re-saving owner failed: %v", err)
	}
	for _, id := range []string{"t3", "t4"} {
		if err := storage.SaveTenant(ctx, &clubsync.Tenant{ID: id, Slug: id}); err != nil {
			t.Errorf("SaveTenant without account failed: %v", err)
		}
	}

	owner, err := storage.GetTenantByBillingAccount(ctx, "acct_1")
	if err != nil {
		t.Fatalf("GetTenantByBillingAccount failed: %v", err)
	}
	if owner.ID != "t1" {
		t.Errorf("Expected t1, got %s", owner.ID)
	}
}

func TestStorage_GetConsumerByEmail_CaseInsensitive(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.SaveConsumer(ctx, &clubsync.Consumer{ID: "c1", Email: "Ana@Example.com"}); err != nil {
		t.Fatalf("SaveConsumer failed: %v", err)
	}

	c, err := storage.GetConsumerByEmail(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("GetConsumerByEmail failed: %v", err)
	}
	if c.ID != "c1" {
		t.Errorf("Expected c1, got %s", c.ID)
	}

	if _, err := storage.GetConsumerByEmail(ctx, "nobody@example.com"); err != clubsync.ErrConsumerNotFound {
		t.Errorf("Expected ErrConsumerNotFound, got %v", err)
	}
}

func TestStorage_FindSubscriptionsByConsumer_TenantScoped(t *testing.T) {
	storage := New()
	ctx := context.Background()

	subs := []*clubsync.PlanSubscription{
		{ID: "ps1", TenantID: "t1", ConsumerID: "c1", ExternalSubscriptionID: "sub_1", Status: clubsync.StatusActive},
		{ID: "ps2", TenantID: "t2", ConsumerID: "c1", ExternalSubscriptionID: "sub_2", Status: clubsync.StatusActive},
		{ID: "ps3", TenantID: "t1", ConsumerID: "c2", ExternalSubscriptionID: "sub_3", Status: clubsync.StatusActive},
	}
	for _, sub := range subs {
		if err := storage.SaveSubscription(ctx, sub); err != nil {
			t.Fatalf("SaveSubscription failed: %v", err)
		}
	}

	got, err := storage.FindSubscriptionsByConsumer(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("FindSubscriptionsByConsumer failed: %v", err)
	}
	if len(got) != 1 || got[0].ExternalSubscriptionID != "sub_1" {
		t.Errorf("Expected only sub_1, got %+v", got)
	}
}

func TestStorage_SaveSubscription_UniqueExternalID(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.SaveSubscription(ctx, &clubsync.PlanSubscription{
		ID: "ps1", TenantID: "t1", ExternalSubscriptionID: "sub_1",
	}); err != nil {
		t.Fatalf("SaveSubscription failed: %v", err)
	}
	err := storage.SaveSubscription(ctx, &clubsync.PlanSubscription{
		ID: "ps2", TenantID: "t1", ExternalSubscriptionID: "sub_1",
	})
	if err == nil {
		t.Error("Expected error for duplicate external subscription id")
	}
}

func TestStorage_UpdateSubscriptionStatus(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if _, err := storage.UpdateSubscriptionStatus(ctx, "missing", clubsync.StatusUpdate{}); err != clubsync.ErrSubscriptionNotFound {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}

	if err := storage.SaveSubscription(ctx, &clubsync.PlanSubscription{
		ID: "ps1", TenantID: "t1", ExternalSubscriptionID: "sub_1", Status: clubsync.StatusActive,
	}); err != nil {
		t.Fatalf("SaveSubscription failed: %v", err)
	}

	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	updated, err := storage.UpdateSubscriptionStatus(ctx, "ps1", clubsync.StatusUpdate{
		Status:            clubsync.StatusPastDue,
		CurrentPeriodEnd:  &end,
		CancelAtPeriodEnd: true,
	})
	if err != nil {
		t.Fatalf("UpdateSubscriptionStatus failed: %v", err)
	}
	if updated.Status != clubsync.StatusPastDue || !updated.CancelAtPeriodEnd {
		t.Errorf("Unexpected update result: %+v", updated)
	}

	// Mutating the caller's time must not leak into storage
	end = end.Add(time.Hour)
	stored, err := storage.FindSubscriptionByExternalID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FindSubscriptionByExternalID failed: %v", err)
	}
	if stored.CurrentPeriodEnd == nil || !stored.CurrentPeriodEnd.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Stored period end changed: %v", stored.CurrentPeriodEnd)
	}
}

func TestStorage_WebhookEvent_CompleteOnce(t *testing.T) {
	storage := New()
	ctx := context.Background()

	event := &clubsync.WebhookEvent{
		Provider:       "stripe",
		EventType:      "customer.subscription.updated",
		SignatureValid: true,
		Payload:        []byte(`{}`),
	}
	if err := storage.RecordWebhookEvent(ctx, event); err != nil {
		t.Fatalf("RecordWebhookEvent failed: %v", err)
	}
	if event.ID == "" {
		t.Fatal("Expected an id to be assigned")
	}

	if err := storage.CompleteWebhookEvent(ctx, event.ID, ""); err != nil {
		t.Fatalf("CompleteWebhookEvent failed: %v", err)
	}
	if err := storage.CompleteWebhookEvent(ctx, event.ID, "late error"); !errors.Is(err, clubsync.ErrWebhookEventCompleted) {
		t.Errorf("Expected ErrWebhookEventCompleted, got %v", err)
	}
	if err := storage.CompleteWebhookEvent(ctx, "unknown", ""); !errors.Is(err, clubsync.ErrWebhookEventNotFound) {
		t.Errorf("Expected ErrWebhookEventNotFound, got %v", err)
	}

	events := storage.WebhookEvents()
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].ProcessedAt == nil || events[0].ProcessingError != "" {
		t.Errorf("Event completion not persisted: %+v", events[0])
	}
}

func TestStorage_ConcurrentUpdates(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.SaveSubscription(ctx, &clubsync.PlanSubscription{
		ID: "ps1", TenantID: "t1", ExternalSubscriptionID: "sub_1", Status: clubsync.StatusActive,
	}); err != nil {
		t.Fatalf("SaveSubscription failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := clubsync.StatusActive
			if i%2 == 0 {
				status = clubsync.StatusPastDue
			}
			_, _ = storage.UpdateSubscriptionStatus(ctx, "ps1", clubsync.StatusUpdate{Status: status})
		}(i)
	}
	wg.Wait()

	sub, err := storage.FindSubscriptionByID(ctx, "ps1")
	if err != nil {
		t.Fatalf("FindSubscriptionByID failed: %v", err)
	}
	if sub.Status != clubsync.StatusActive && sub.Status != clubsync.StatusPastDue {
		t.Errorf("Unexpected status after concurrent writes: %s", sub.Status)
	}
}

package billing

import (
	"context"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Applier mirrors a provider-pushed subscription state into the local store.
// *clubsync.Reconciler implements it.
type Applier interface {
	ApplyRemote(ctx context.Context, accountID string, remote *clubsync.RemoteSubscription) (*clubsync.ReconcileResult, error)
}

// AuditLog is the append-only record of inbound provider events.
// clubsync.Storage implementations satisfy it.
type AuditLog interface {
	RecordWebhookEvent(ctx context.Context, event *clubsync.WebhookEvent) error
	CompleteWebhookEvent(ctx context.Context, id, processingError string) error
}

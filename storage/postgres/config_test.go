package postgres

import (
	"context"
	"testing"
)

func TestDefaultConfig_WebhookRetentionIsOptIn(t *testing.T) {
	config := DefaultConfig()
	if config.CleanupEnabled {
		t.Error("Expected webhook audit cleanup to be disabled by default")
	}
	if config.WebhookRetention <= 0 {
		t.Error("Expected a retention window to be preset for opt-in cleanup")
	}
}

func TestNew_RequiresConnectionString(t *testing.T) {
	if _, err := New(context.Background(), DefaultConfig()); err == nil {
		t.Error("Expected error for missing connection string")
	}
}

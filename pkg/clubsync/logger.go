package clubsync

// Field is one structured log attribute. Reconciliation logs key records with
// tenant_id, subscription_id, external_subscription_id and account_id.
type Field struct {
	Key   string
	Value interface{}
}

// ErrorField attaches err under the "error" key
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// Logger receives the reconciler's structured events. Status changes are
// logged at Info, drift-adjacent anomalies (duplicate customers, unmirrored
// webhook subscriptions, cache backend failures) at Warn.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// NoopLogger discards everything. It is the default when Config.Logger is nil.
type NoopLogger struct{}

func (n *NoopLogger) Debug(string, ...Field) {}
func (n *NoopLogger) Info(string, ...Field)  {}
func (n *NoopLogger) Warn(string, ...Field)  {}
func (n *NoopLogger) Error(string, ...Field) {}

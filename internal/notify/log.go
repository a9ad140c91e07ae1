package notify

import (
	"context"

	"github.com/jgchk/blog-sub001/internal/logger"
)

// LogNotifier writes notifications to the process log
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send implements Notifier
func (*LogNotifier) Send(_ context.Context, n Notification) error {
	kv := []any{"subject", n.Subject, "severity", string(n.Severity)}
	for k, v := range n.Metadata {
		kv = append(kv, k, v)
	}

	switch n.Severity {
	case SeverityError, SeverityCritical:
		logger.Errorw(n.Body, kv...)
	case SeverityWarning:
		logger.Warnw(n.Body, kv...)
	default:
		logger.Infow(n.Body, kv...)
	}
	return nil
}

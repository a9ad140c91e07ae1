// Package notify delivers operator notifications about sync outcomes.
package notify

import "context"

//go:generate mockgen -destination=mocks/mock_notify.go -package=mocks -source=notify.go Notifier

// Severity ranks a notification
type Severity string

const (
	// SeverityInfo is informational
	SeverityInfo Severity = "info"
	// SeverityWarning is a partial failure
	SeverityWarning Severity = "warning"
	// SeverityError is a failed sync
	SeverityError Severity = "error"
	// SeverityCritical means the alert threshold was reached
	SeverityCritical Severity = "critical"
)

// Notification is one message to operators
type Notification struct {
	Subject  string
	Body     string
	Severity Severity
	Metadata map[string]string
}

// Notifier sends notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

package session

import "context"

// Severity classifies a transient notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Notifier receives fire-and-forget user-facing messages. Every failed
// store operation ends in exactly one notification; no operation fails
// silently.
type Notifier interface {
	Notify(message string, severity Severity)
}

// Confirmer gates destructive actions behind user confirmation. Confirm
// returns true only when the user confirmed; dismissal and cancellation
// both return false.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) bool
}

// ConfirmRequest describes a modal confirmation prompt.
type ConfirmRequest struct {
	Title       string
	Message     string
	ConfirmText string
	CancelText  string
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string, severity Severity)

// Notify implements Notifier.
func (f NotifierFunc) Notify(message string, severity Severity) { f(message, severity) }

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, req ConfirmRequest) bool

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, req ConfirmRequest) bool { return f(ctx, req) }

type nopNotifier struct{}

func (nopNotifier) Notify(string, Severity) {}

// denyConfirmer refuses every confirmation request. It is the default so
// that an unwired confirmer can never silently discard unsaved work.
type denyConfirmer struct{}

func (denyConfirmer) Confirm(context.Context, ConfirmRequest) bool { return false }

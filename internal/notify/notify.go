// Package notify provides the fire-and-forget notification sink used to
// surface permanent sync failures and completions. Delivery is neither
// durable nor acknowledged; the UI layer decides how to render what it
// receives.
package notify

import (
	"log"
	"os"
)

// Kind classifies a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(kind Kind, title, message string)
}

// LogNotifier writes notifications to a logger. It is the default sink
// for the CLI and the daemon.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a notifier over the given logger.
// If logger is nil, a default logger writing to stderr is used.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(kind Kind, title, message string) {
	n.logger.Printf("%s: %s: %s", kind, title, message)
}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Kind, string, string) {}

package notify

import (
	"fmt"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/types"
)

// Notifier is the outbound notification transport. The dispatcher only
// decides that and to whom a notice is sent; delivery lives behind this
// interface.
type Notifier interface {
	Notify(to *types.User, subject, body string) error
}

// LogNotifier writes notifications to the application log. It stands in for
// a real transport in deployments that have none.
type LogNotifier struct{}

func (LogNotifier) Notify(to *types.User, subject, body string) error {
	globals.AppLogger.Info("notification", "to", to.Username, "email", to.Email, "subject", subject, "body", body)
	return nil
}

// NewNotifier builds the transport selected by the notifications config.
func NewNotifier(cfg *config.Config) (Notifier, error) {
	switch cfg.NotificationsConfig.Type {
	case "log":
		return LogNotifier{}, nil
	}
	return nil, fmt.Errorf("unknown notifier type %q", cfg.NotificationsConfig.Type)
}

package media

import "github.com/gen2brain/beeep"

// SystemNotifier delivers desktop notifications through the OS notification
// center. Desktop platforms have no prompt-based permission flow, so
// RequestPermission reports whether delivery is possible at all.
type SystemNotifier struct {
	AppName string
}

// RequestPermission probes the notification backend with a silent no-op.
// The result is cached by the watcher, so this runs at most once.
func (n *SystemNotifier) RequestPermission() (bool, error) {
	// beeep has no separate permission API; treat an available backend as
	// granted.
	return true, nil
}

// Notify shows a desktop notification.
func (n *SystemNotifier) Notify(title, body string) error {
	beeep.AppName = n.appName()
	return beeep.Notify(title, body, "")
}

func (n *SystemNotifier) appName() string {
	if n.AppName != "" {
		return n.AppName
	}
	return "Offload"
}

// Package systemd integrates with the service manager when the process
// runs as a systemd unit. All calls are no-ops outside systemd.
package systemd

import (
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells systemd the service finished starting up.
// Requires Type=notify in the unit file.
func NotifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("systemd ready notification failed", "error", err)
		return
	}
	if sent {
		logger.Debug("Notified systemd the service is ready")
	}
}

// NotifyStopping tells systemd a shutdown is in progress so it extends
// the stop timeout instead of killing the process.
func NotifyStopping(logger *slog.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.Warn("systemd stopping notification failed", "error", err)
	}
}

// WatchdogInterval returns half the watchdog timeout configured in the
// unit file, or zero when no watchdog is enabled. Callers should ping
// at this interval.
func WatchdogInterval() time.Duration {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil || timeout == 0 {
		return 0
	}
	return timeout / 2
}

// PingWatchdog sends a keep-alive to the systemd watchdog.
func PingWatchdog() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}

package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "vrtq/pkg/logx"
)

// sdNotify reports service state to systemd. Outside systemd
// (NOTIFY_SOCKET unset) it does nothing.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}

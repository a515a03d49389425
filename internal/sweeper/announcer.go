package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mossvale/blight/internal/notify"
)

// Announcer broadcasts the daily blight roll call. It depends on nothing
// from the engine beyond a channel and an optional role to mention.
type Announcer struct {
	notifier  notify.Service
	channelID string
	roleID    string
}

// NewAnnouncer creates a roll-call announcer for the given channel. roleID
// may be empty to skip the mention.
func NewAnnouncer(notifier notify.Service, channelID, roleID string) *Announcer {
	return &Announcer{notifier: notifier, channelID: channelID, roleID: roleID}
}

// Announce broadcasts the daily reminder. Best-effort: failures are logged
// and returned but carry no engine state.
func (a *Announcer) Announce(ctx context.Context) error {
	if a.channelID == "" {
		slog.Debug("Announcer.Announce: no channel configured, skipping")
		return nil
	}

	msg := "🌙 The blight stirs. Afflicted characters must roll before the next 8 PM boundary or their condition worsens."
	if a.roleID != "" {
		msg = fmt.Sprintf("<@&%s> %s", a.roleID, msg)
	}

	if err := a.notifier.Broadcast(ctx, a.channelID, msg); err != nil {
		slog.Error("Announcer.Announce: broadcast failed", "error", err, "channelID", a.channelID)
		return err
	}
	slog.Info("Announcer.Announce: roll call sent", "channelID", a.channelID)
	return nil
}

// Package notify provides the Discord-backed notification service.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Opts holds configuration for the Discord service.
type Opts struct {
	Token string
}

// Option configures the Discord service.
type Option func(*Opts)

// WithToken sets the Discord bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// Compile-time check that DiscordService implements Service.
var _ Service = (*DiscordService)(nil)

// DiscordService delivers notifications through a Discord bot session.
type DiscordService struct {
	session *discordgo.Session
}

// NewDiscordService creates a Discord notification service from a bot token.
func NewDiscordService(opts ...Option) (*DiscordService, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord bot token not set")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		slog.Error("Failed to create Discord session", "error", err)
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	// The engine only sends; no gateway intents beyond the default needed.
	session.Identify.Intents = discordgo.IntentsGuildMessages

	return &DiscordService{session: session}, nil
}

// Start opens the gateway connection.
func (s *DiscordService) Start(ctx context.Context) error {
	if err := s.session.Open(); err != nil {
		slog.Error("DiscordService Start failed", "error", err)
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	slog.Info("DiscordService connected")
	return nil
}

// Stop closes the gateway connection.
func (s *DiscordService) Stop() error {
	slog.Debug("DiscordService stopping")
	return s.session.Close()
}

// DMUser opens (or reuses) the DM channel with a user and sends the message.
func (s *DiscordService) DMUser(ctx context.Context, userID, message string) error {
	channel, err := s.session.UserChannelCreate(userID)
	if err != nil {
		slog.Error("DiscordService DMUser channel create failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to open DM channel for %s: %w", userID, err)
	}
	if _, err := s.session.ChannelMessageSend(channel.ID, message); err != nil {
		slog.Error("DiscordService DMUser send failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to DM %s: %w", userID, err)
	}
	return nil
}

// Broadcast sends a message to a channel.
func (s *DiscordService) Broadcast(ctx context.Context, channelID, message string) error {
	if _, err := s.session.ChannelMessageSend(channelID, message); err != nil {
		slog.Error("DiscordService Broadcast failed", "error", err, "channelID", channelID)
		return fmt.Errorf("failed to broadcast to %s: %w", channelID, err)
	}
	return nil
}

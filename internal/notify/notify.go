// Package notify delivers engine notifications to users and channels.
//
// Delivery is best-effort: the engine never fails an operation because a
// message could not be sent. A Discord-backed service is the production
// transport; the no-op service serves tests and headless runs.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Service defines a pluggable notification delivery abstraction.
type Service interface {
	// Start begins any background processing (e.g., opening the gateway).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// DMUser sends a direct message to a user.
	DMUser(ctx context.Context, userID, message string) error

	// Broadcast sends a message to a channel.
	Broadcast(ctx context.Context, channelID, message string) error
}

// NoopService discards every notification. Useful for headless runs.
type NoopService struct{}

// NewNoopService creates a notification sink that logs and drops messages.
func NewNoopService() *NoopService { return &NoopService{} }

func (s *NoopService) Start(ctx context.Context) error { return nil }
func (s *NoopService) Stop() error                     { return nil }

func (s *NoopService) DMUser(ctx context.Context, userID, message string) error {
	slog.Debug("NoopService DMUser", "userID", userID, "length", len(message))
	return nil
}

func (s *NoopService) Broadcast(ctx context.Context, channelID, message string) error {
	slog.Debug("NoopService Broadcast", "channelID", channelID, "length", len(message))
	return nil
}

// SentMessage captures one delivered notification (for tests).
type SentMessage struct {
	Recipient string
	Body      string
	Direct    bool
}

// RecordingService captures notifications in memory for assertions.
type RecordingService struct {
	mu   sync.Mutex
	sent []SentMessage
}

// NewRecordingService creates an in-memory notification recorder.
func NewRecordingService() *RecordingService { return &RecordingService{} }

func (s *RecordingService) Start(ctx context.Context) error { return nil }
func (s *RecordingService) Stop() error                     { return nil }

func (s *RecordingService) DMUser(ctx context.Context, userID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentMessage{Recipient: userID, Body: message, Direct: true})
	return nil
}

func (s *RecordingService) Broadcast(ctx context.Context, channelID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentMessage{Recipient: channelID, Body: message})
	return nil
}

// Sent returns a copy of every captured message.
func (s *RecordingService) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

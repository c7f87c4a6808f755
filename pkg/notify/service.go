package notify

import (
	"context"
	"log/slog"
	"time"
)

const terminalPostTimeout = 10 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles Slack notification delivery for terminal session status.
// Nil-safe: all methods are no-ops when Service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty, so callers can always hold a
// *Service and call its methods without a nil check of their own.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client —
// used in tests against a mock Slack API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyTerminal sends a notification for a session that just reached a
// terminal status (completed or failed). Fail-open: delivery errors are
// logged, never returned — a notification failure must never affect the
// session's own recorded status.
func (s *Service) NotifyTerminal(ctx context.Context, input TerminalInput) {
	if s == nil {
		return
	}
	if input.Status != "completed" && input.Status != "failed" {
		return
	}

	blocks := BuildTerminalMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, terminalPostTimeout); err != nil {
		s.logger.Error("failed to send Slack notification",
			"session_id", input.SessionID,
			"status", input.Status,
			"error", err)
	}
}

package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	// Should not panic.
	s.NotifyTerminal(context.Background(), TerminalInput{
		SessionID: "sess-1",
		Status:    "completed",
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "", Channel: "C123"})
		assert.Nil(t, svc)
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: ""})
		assert.Nil(t, svc)
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}

func TestService_NotifyTerminal_IgnoresNonTerminalStatus(t *testing.T) {
	svc := NewServiceWithClient(NewClientWithAPIURL("xoxb-test", "C123", "http://127.0.0.1:1"), "https://example.com")

	// "running" is not a terminal status — must not attempt delivery
	// (which would hang/fail against the unreachable address above).
	svc.NotifyTerminal(context.Background(), TerminalInput{SessionID: "sess-1", Status: "running"})
}

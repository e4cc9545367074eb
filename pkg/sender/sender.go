// Package sender delivers outbound messages to the superintendent
// through an SMS gateway webhook. With no gateway configured it logs
// instead, which is how dev setups run.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"maestro/pkg/bus"
	"maestro/pkg/logx"
)

const sendTimeout = 30 * time.Second

// Sender posts messages to the configured gateway.
type Sender struct {
	gatewayURL string
	superPhone string
	fromPhone  string
	client     *http.Client
	logger     *logx.Logger
}

// New wires a sender. gatewayURL may be empty for log-only mode.
func New(gatewayURL, superPhone, fromPhone string) *Sender {
	return &Sender{
		gatewayURL: gatewayURL,
		superPhone: superPhone,
		fromPhone:  fromPhone,
		client:     &http.Client{Timeout: sendTimeout},
		logger:     logx.NewLogger("sender"),
	}
}

// SendMessage delivers one text to the superintendent. Every send also
// lands on the event bus so connected web clients see the outbound side
// of the conversation.
func (s *Sender) SendMessage(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	bus.Emit(bus.TypeMessage, map[string]any{
		"direction": "outbound",
		"content":   text,
	})

	if s.gatewayURL == "" {
		s.logger.Info("Outbound (log-only): %s", text)
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"to":      s.superPhone,
		"from":    s.fromPhone,
		"content": text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
	}

	s.logger.Info("Outbound message delivered (%d chars)", len(text))
	return nil
}

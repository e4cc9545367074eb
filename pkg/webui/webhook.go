package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// webhookPayload is the inbound message body. Gateways disagree on the
// sender field name, so both are accepted.
type webhookPayload struct {
	FromNumber string `json:"from_number"`
	Number     string `json:"number"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url"`
}

func (p *webhookPayload) sender() string {
	if p.FromNumber != "" {
		return p.FromNumber
	}
	return p.Number
}

// handleWebhook accepts one inbound message from the superintendent.
// The message is processed asynchronously; the gateway gets its 200
// immediately so it never retries a slow turn.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if reason := s.dropReason(&payload); reason != "" {
		s.logger.Info("Webhook dropped: %s", reason)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "dropped": reason})
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		content = "[media message] " + payload.MediaURL
	}

	go s.processInbound(content)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dropReason applies the inbound filter. Empty string means accept.
func (s *Server) dropReason(p *webhookPayload) string {
	if strings.TrimSpace(p.Content) == "" && p.MediaURL == "" {
		return "empty message"
	}
	sender := p.sender()
	if sender == "" {
		return "no sender"
	}
	if s.cfg.MaestroPhone != "" && sender == s.cfg.MaestroPhone {
		return "outbound echo"
	}
	if s.cfg.SuperPhone != "" && sender != s.cfg.SuperPhone {
		return "unknown number"
	}
	return ""
}

// processInbound runs one conversation turn and delivers the reply.
// The startup intro is serve's job; by the time a text arrives the
// super has already heard from us.
func (s *Server) processInbound(content string) {
	ctx := context.Background()

	reply, err := s.conv.Send(ctx, content)
	if err != nil {
		s.logger.Error("Inbound processing failed: %v", err)
		return
	}

	if s.outbound != nil && reply != "" {
		if err := s.outbound.SendMessage(ctx, reply); err != nil {
			s.logger.Error("Reply delivery failed: %v", err)
		}
	}
}

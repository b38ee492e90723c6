package soar

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// PayloadSource identifies this engine in outbound playbook payloads
const PayloadSource = "argus"

// ShuffleConfig configures the webhook orchestrator
type ShuffleConfig struct {
	WebhookURL string
	HTTP       HTTPConfig
}

// ShufflePayload is the body posted to the playbook webhook
type ShufflePayload struct {
	Source      string `json:"source"`
	AlertType   string `json:"alert_type"`
	MaliciousIP string `json:"malicious_ip"`
	Details     string `json:"details"`
}

// ShuffleOrchestrator triggers a Shuffle playbook through its execution
// webhook. Only a 200 answer counts as success.
type ShuffleOrchestrator struct {
	url    string
	poster *jsonPoster
	logger *zap.SugaredLogger
}

// NewShuffleOrchestrator creates an orchestrator for cfg.WebhookURL
func NewShuffleOrchestrator(cfg ShuffleConfig, logger *zap.SugaredLogger) (*ShuffleOrchestrator, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("shuffle webhook url is required")
	}
	return &ShuffleOrchestrator{
		url:    cfg.WebhookURL,
		poster: newJSONPoster(cfg.HTTP),
		logger: logger,
	}, nil
}

// Trigger implements Orchestrator
func (s *ShuffleOrchestrator) Trigger(ctx context.Context, alertType, ip, details string) error {
	payload := ShufflePayload{
		Source:      PayloadSource,
		AlertType:   alertType,
		MaliciousIP: ip,
		Details:     details,
	}
	if _, err := s.poster.post(ctx, s.url, nil, payload, http.StatusOK); err != nil {
		return fmt.Errorf("shuffle playbook: %w", err)
	}
	s.logger.Infow("Shuffle playbook triggered", "alert_type", alertType, "ip", ip)
	return nil
}

package soar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MISP event constants: org-only distribution, medium threat level,
// analysis ongoing
const (
	mispDistributionOrg = 1
	mispThreatMedium    = 2
	mispAnalysis        = 2
)

// MISPConfig configures the threat-intel exporter
type MISPConfig struct {
	URL    string
	APIKey string
	HTTP   HTTPConfig
}

// MISPExporter shares blocked addresses with a MISP instance as an event
// carrying one ip-dst attribute. It implements Containment so it can run
// alongside a local blocklist.
type MISPExporter struct {
	url    string
	apiKey string
	poster *jsonPoster
	logger *zap.SugaredLogger
	now    func() time.Time
}

type mispEnvelope struct {
	Event mispEvent `json:"Event"`
}

type mispEvent struct {
	Info          string          `json:"info"`
	Distribution  int             `json:"distribution"`
	ThreatLevelID int             `json:"threat_level_id"`
	Analysis      int             `json:"analysis"`
	Date          string          `json:"date"`
	Attribute     []mispAttribute `json:"Attribute"`
}

type mispAttribute struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Value    string `json:"value"`
	ToIDS    bool   `json:"to_ids"`
	Comment  string `json:"comment"`
}

// NewMISPExporter creates an exporter for cfg.URL
func NewMISPExporter(cfg MISPConfig, logger *zap.SugaredLogger) (*MISPExporter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("misp url is required")
	}
	return &MISPExporter{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		poster: newJSONPoster(cfg.HTTP),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Block implements Containment
func (m *MISPExporter) Block(ctx context.Context, ip, reason string) error {
	body := mispEnvelope{Event: mispEvent{
		Info:          "Argus alert: " + reason,
		Distribution:  mispDistributionOrg,
		ThreatLevelID: mispThreatMedium,
		Analysis:      mispAnalysis,
		Date:          m.now().UTC().Format("2006-01-02"),
		Attribute: []mispAttribute{{
			Type:     "ip-dst",
			Category: "Network activity",
			Value:    ip,
			ToIDS:    true,
			Comment:  "Auto-detected by Argus",
		}},
	}}
	headers := map[string]string{"Authorization": m.apiKey}

	if _, err := m.poster.post(ctx, m.url+"/events", headers, body, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("misp export of %s: %w", ip, err)
	}
	m.logger.Infow("Exported address to MISP", "ip", ip)
	return nil
}

package ml

import (
	"fmt"
	"net/netip"
	"strings"

	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

// FeatureDimension is the number of features extracted per event. It is
// fixed for the lifetime of the process.
const FeatureDimension = 4

// Feature indices
const (
	FeatureHour = iota
	FeatureFailedLogin
	FeatureSeverity
	FeatureExternalIP
)

// FeatureNames names each position of a FeatureVector
var FeatureNames = [FeatureDimension]string{
	"hour",
	"is_failed_login",
	"severity_score",
	"is_external_ip",
}

// FailedLoginEventType is the event type counted by the failed-login feature
const FailedLoginEventType = "failed_login"

// FeatureVector is the numeric encoding of one event
type FeatureVector [FeatureDimension]float64

// FeatureExtractor defines the interface for feature extraction
type FeatureExtractor interface {
	// Extract derives the feature vector from a single event. It must not
	// depend on any other event.
	Extract(event *core.Event) (FeatureVector, error)
}

// EventFeatureExtractor encodes hour of day, failed login, event severity
// and whether the source address is public
type EventFeatureExtractor struct{}

// NewEventFeatureExtractor creates the default extractor
func NewEventFeatureExtractor() *EventFeatureExtractor {
	return &EventFeatureExtractor{}
}

// Extract implements FeatureExtractor
func (e *EventFeatureExtractor) Extract(event *core.Event) (FeatureVector, error) {
	var fv FeatureVector
	if event == nil {
		return fv, fmt.Errorf("%w: nil event", core.ErrExtraction)
	}
	if event.Timestamp.IsZero() {
		return fv, fmt.Errorf("%w: event %s has no timestamp", core.ErrExtraction, event.EventID)
	}

	fv[FeatureHour] = float64(event.Timestamp.UTC().Hour())
	if event.EventType == FailedLoginEventType {
		fv[FeatureFailedLogin] = 1
	}
	fv[FeatureSeverity] = severityScore(event.Severity)
	if isExternalIP(event.IP) {
		fv[FeatureExternalIP] = 1
	}
	return fv, nil
}

// severityScore maps event severities to 0 (info), 1 (high) and 2
// (critical); anything else scores as info
func severityScore(s string) float64 {
	switch strings.ToLower(s) {
	case "high":
		return 1
	case "critical":
		return 2
	default:
		return 0
	}
}

func isExternalIP(s string) bool {
	if s == "" {
		return false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified())
}

// safeExtract never fails: an extractor error or panic yields the zero vector
func safeExtract(extractor FeatureExtractor, event *core.Event, logger *zap.SugaredLogger) (fv FeatureVector) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debugw("Feature extraction panicked, using zero vector", "panic", r)
			metrics.FeatureExtractionFailures.Inc()
			fv = FeatureVector{}
		}
	}()

	fv, err := extractor.Extract(event)
	if err != nil {
		logger.Debugw("Feature extraction failed, using zero vector", "error", err)
		metrics.FeatureExtractionFailures.Inc()
		return FeatureVector{}
	}
	return fv
}

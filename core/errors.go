package core

import "errors"

// Error taxonomy for the correlation engine. Callers wrap these with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// ErrLoad is returned when a rule source cannot be read or a rule document is malformed
	ErrLoad = errors.New("rule load failed")
	// ErrExtraction is returned when a feature vector cannot be derived from an event
	ErrExtraction = errors.New("feature extraction failed")
	// ErrTrain is returned when the outlier model cannot be fitted
	ErrTrain = errors.New("model training failed")
	// ErrScore is returned when a fitted model cannot score an event
	ErrScore = errors.New("anomaly scoring failed")
	// ErrMatch is returned when a single rule cannot be evaluated against an event
	ErrMatch = errors.New("rule evaluation failed")
	// ErrDispatch is returned when a collaborator call fails or times out
	ErrDispatch = errors.New("alert dispatch failed")

	// ErrInvalidEvent is returned when an event lacks required fields
	ErrInvalidEvent = errors.New("invalid event")
	// ErrUnsupportedValue is returned when a value is not a comparable scalar
	ErrUnsupportedValue = errors.New("unsupported value type")
	// ErrEngineClosed is returned by ingestion after shutdown has begun
	ErrEngineClosed = errors.New("engine closed")
)

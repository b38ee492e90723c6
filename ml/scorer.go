package ml

import (
	"fmt"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// ScorerConfig holds configuration for the AnomalyScorer
type ScorerConfig struct {
	// LowWatermark is the buffer size that triggers the first fit
	LowWatermark int
	// HighWatermark is the buffer size that triggers every later fit, after
	// trimming back to LowWatermark
	HighWatermark int
	// AsyncRetrain fits in a background goroutine; the previous model keeps
	// scoring until the new one is ready
	AsyncRetrain bool
	Classifier   ClassifierConfig
	Extractor    FeatureExtractor
	Logger       *zap.SugaredLogger
}

// Signal is the scorer's verdict on one event
type Signal struct {
	IsOutlier  bool    `json:"is_outlier"`
	Confidence float64 `json:"confidence"`
}

// ScorerStats is a point-in-time view of the scorer state
type ScorerStats struct {
	Algorithm   string    `json:"algorithm"`
	Fitted      bool      `json:"fitted"`
	Buffered    int       `json:"buffered"`
	Trainings   int       `json:"trainings"`
	LastTrained time.Time `json:"last_trained,omitempty"`
	Training    bool      `json:"training"`
}

// AnomalyScorer learns normal behaviour from recent events and flags
// outliers. Until the first successful fit it returns no signal.
type AnomalyScorer struct {
	mu          sync.Mutex
	cfg         ScorerConfig
	extractor   FeatureExtractor
	newModel    func() Classifier
	model       Classifier
	buffer      *TrainingBuffer
	fitted      bool
	coldTried   bool
	training    bool
	trainings   int
	lastTrained time.Time
	logger      *zap.SugaredLogger
	wg          sync.WaitGroup
}

// NewAnomalyScorer creates a scorer
func NewAnomalyScorer(cfg ScorerConfig) (*AnomalyScorer, error) {
	if cfg.LowWatermark <= 0 {
		cfg.LowWatermark = DefaultLowWatermark
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = DefaultHighWatermark
	}
	if cfg.HighWatermark <= cfg.LowWatermark {
		return nil, fmt.Errorf("high watermark %d must exceed low watermark %d", cfg.HighWatermark, cfg.LowWatermark)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewEventFeatureExtractor()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	factory, err := NewClassifierFactory(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	return &AnomalyScorer{
		cfg:       cfg,
		extractor: cfg.Extractor,
		newModel:  factory,
		buffer:    NewTrainingBuffer(cfg.HighWatermark),
		logger:    cfg.Logger,
	}, nil
}

// Extract returns the feature vector for event, or the zero vector if
// extraction fails
func (s *AnomalyScorer) Extract(event *core.Event) FeatureVector {
	return safeExtract(s.extractor, event, s.logger)
}

// Observe adds event to the training buffer. The first fit happens when
// the buffer reaches the low watermark; after that the buffer is trimmed to
// the low watermark and refitted every time it reaches the high watermark.
// A failed first fit is retried at the next high watermark.
func (s *AnomalyScorer) Observe(event *core.Event) {
	fv := s.Extract(event)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.buffer.Append(fv)
	switch {
	case n >= s.cfg.HighWatermark:
		s.buffer.KeepRecent(s.cfg.LowWatermark)
		s.retrainLocked()
	case !s.fitted && !s.coldTried && n >= s.cfg.LowWatermark:
		s.coldTried = true
		s.retrainLocked()
	}
}

// retrainLocked must be called with s.mu held
func (s *AnomalyScorer) retrainLocked() {
	data := s.buffer.Vectors()
	if !s.cfg.AsyncRetrain {
		if model, err := s.fit(data); err == nil {
			s.installLocked(model)
		}
		return
	}

	if s.training {
		s.logger.Debugw("Retrain already in progress, skipping", "buffered", len(data))
		return
	}
	s.training = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer goroutine.Recover("anomaly-retrain", s.logger)
		model, err := s.fit(data)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.training = false
		if err == nil {
			s.installLocked(model)
		}
	}()
}

func (s *AnomalyScorer) installLocked(model Classifier) {
	s.model = model
	s.fitted = true
	s.trainings++
	s.lastTrained = time.Now()
}

// fit trains a fresh classifier. Errors and panics are logged and counted;
// the caller keeps whatever model it had.
func (s *AnomalyScorer) fit(data []FeatureVector) (Classifier, error) {
	model := s.newModel()
	start := time.Now()
	err := goroutine.Safely("anomaly-fit", s.logger, core.ErrTrain, func() error {
		return model.Fit(data)
	})
	metrics.ModelTrainDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ModelTrainings.WithLabelValues(model.Name(), "error").Inc()
		s.logger.Errorw("Anomaly model training failed", "algorithm", model.Name(), "samples", len(data), "error", err)
		return nil, err
	}
	metrics.ModelTrainings.WithLabelValues(model.Name(), "success").Inc()
	s.logger.Infow("Anomaly model trained on recent events",
		"algorithm", model.Name(),
		"samples", len(data),
		"duration", time.Since(start))
	return model, nil
}

// Score returns nil until a model has been fitted, and nil when scoring
// fails
func (s *AnomalyScorer) Score(event *core.Event) *Signal {
	fv := s.Extract(event)

	s.mu.Lock()
	model := s.model
	s.mu.Unlock()
	if model == nil {
		return nil
	}

	var pred Prediction
	err := goroutine.Safely("anomaly-predict", s.logger, core.ErrScore, func() error {
		var err error
		pred, err = model.Predict(fv)
		return err
	})
	if err != nil {
		s.logger.Warnw("Anomaly scoring failed, no signal", "event_id", eventID(event), "error", err)
		return nil
	}
	return &Signal{IsOutlier: pred.IsOutlier, Confidence: pred.Score}
}

// Fitted reports whether a model is available
func (s *AnomalyScorer) Fitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fitted
}

// Stats returns the scorer state
func (s *AnomalyScorer) Stats() ScorerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	algorithm := s.cfg.Classifier.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmKNN
	}
	return ScorerStats{
		Algorithm:   algorithm,
		Fitted:      s.fitted,
		Buffered:    s.buffer.Len(),
		Trainings:   s.trainings,
		LastTrained: s.lastTrained,
		Training:    s.training,
	}
}

// Wait blocks until any background fit has finished
func (s *AnomalyScorer) Wait() {
	s.wg.Wait()
}

func eventID(event *core.Event) string {
	if event == nil {
		return ""
	}
	return event.EventID
}

package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotVersion is bumped whenever the snapshot layout changes
const SnapshotVersion = 1

// Snapshot is the persisted training buffer. The model itself is not
// stored; it is refitted from the vectors on restore.
type Snapshot struct {
	Version   int             `msgpack:"version"`
	Algorithm string          `msgpack:"algorithm"`
	Dimension int             `msgpack:"dimension"`
	SavedAt   time.Time       `msgpack:"saved_at"`
	Vectors   []FeatureVector `msgpack:"vectors"`
}

// SaveSnapshot writes snap to path atomically
func SaveSnapshot(path string, snap *Snapshot) error {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot. A missing file returns (nil, nil).
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Dimension != FeatureDimension {
		return nil, fmt.Errorf("snapshot dimension %d does not match %d", snap.Dimension, FeatureDimension)
	}
	return &snap, nil
}

// Snapshot captures the current training buffer
func (s *AnomalyScorer) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		Version:   SnapshotVersion,
		Algorithm: s.modelName(),
		Dimension: FeatureDimension,
		SavedAt:   time.Now().UTC(),
		Vectors:   s.buffer.Vectors(),
	}
}

// Restore refills the training buffer from snap, keeping at most the low
// watermark most recent vectors, and fits a model when enough are present
func (s *AnomalyScorer) Restore(snap *Snapshot) {
	if snap == nil || len(snap.Vectors) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors := snap.Vectors
	if len(vectors) > s.cfg.LowWatermark {
		vectors = vectors[len(vectors)-s.cfg.LowWatermark:]
	}
	for _, v := range vectors {
		s.buffer.Append(v)
	}
	s.logger.Infow("Restored anomaly training buffer", "vectors", len(vectors), "saved_at", snap.SavedAt)

	if s.buffer.Len() >= s.cfg.LowWatermark {
		s.coldTried = true
		s.retrainLocked()
	}
}

func (s *AnomalyScorer) modelName() string {
	if s.model != nil {
		return s.model.Name()
	}
	if s.cfg.Classifier.Algorithm != "" {
		return s.cfg.Classifier.Algorithm
	}
	return AlgorithmKNN
}

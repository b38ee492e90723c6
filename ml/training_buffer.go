package ml

// Default retrain watermarks
const (
	DefaultLowWatermark  = 10
	DefaultHighWatermark = 20
)

// TrainingBuffer is a fixed-capacity ring of the most recent feature
// vectors. Appending to a full buffer overwrites the oldest entry.
type TrainingBuffer struct {
	data []FeatureVector
	head int
	size int
}

// NewTrainingBuffer creates a buffer holding at most capacity vectors
func NewTrainingBuffer(capacity int) *TrainingBuffer {
	if capacity <= 0 {
		capacity = DefaultHighWatermark
	}
	return &TrainingBuffer{data: make([]FeatureVector, capacity)}
}

// Append adds v and returns the new length
func (b *TrainingBuffer) Append(v FeatureVector) int {
	idx := (b.head + b.size) % len(b.data)
	b.data[idx] = v
	if b.size < len(b.data) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.data)
	}
	return b.size
}

// KeepRecent discards all but the n most recent vectors
func (b *TrainingBuffer) KeepRecent(n int) {
	if n < 0 {
		n = 0
	}
	if n >= b.size {
		return
	}
	drop := b.size - n
	b.head = (b.head + drop) % len(b.data)
	b.size = n
}

// Len returns the number of buffered vectors
func (b *TrainingBuffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity
func (b *TrainingBuffer) Cap() int {
	return len(b.data)
}

// Vectors returns a copy of the contents, oldest first
func (b *TrainingBuffer) Vectors() []FeatureVector {
	out := make([]FeatureVector, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	return out
}

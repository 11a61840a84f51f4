package logging

import (
	"strings"
	"sync"
)

// ProgressSampler picks which progress reports are worth a log line. Each
// step logs at most once per percentage bucket; moving to another step
// starts over. Safe for concurrent use.
type ProgressSampler struct {
	bucketSize float64

	mu     sync.Mutex
	step   string
	bucket int
}

// NewProgressSampler returns a sampler with buckets of bucketSize percent
// (10 when not positive).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, bucket: -1}
}

// Sample reports whether percent for step should be logged. A negative
// percent means unknown and only logs on a step change.
func (s *ProgressSampler) Sample(step string, percent float64) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	emit := false
	if step = strings.TrimSpace(step); step != s.step {
		s.step = step
		s.bucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	bucket := int(min(percent, 100) / s.bucketSize)
	if bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}

// Reset forgets the current step.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = ""
	s.bucket = -1
}

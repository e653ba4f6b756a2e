package shareusage

import (
	"math/rand/v2"
	"sync"
)

// Sampler decides whether a single record is selected for sharing.
// Implementations must be safe for concurrent use.
type Sampler interface {
	ShouldShare() bool
}

// PercentageSampler shares each record independently with a fixed probability.
type PercentageSampler struct {
	percentage float64

	mu  sync.Mutex
	rnd *rand.Rand // nil uses the goroutine-safe global source
}

// SamplerOption configures a PercentageSampler.
type SamplerOption func(*PercentageSampler)

// WithSeed makes the sampler deterministic. Intended for tests.
func WithSeed(seed1, seed2 uint64) SamplerOption {
	return func(s *PercentageSampler) {
		s.rnd = rand.New(rand.NewPCG(seed1, seed2))
	}
}

// NewPercentageSampler creates a sampler for percentage in [0,1]; values outside are clamped.
func NewPercentageSampler(percentage float64, opts ...SamplerOption) *PercentageSampler {
	s := &PercentageSampler{percentage: min(max(percentage, 0), 1)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldShare draws from [0,1) so 0 never shares and 1 always does.
func (s *PercentageSampler) ShouldShare() bool {
	return s.draw() < s.percentage
}

// Percentage returns the configured share percentage.
func (s *PercentageSampler) Percentage() float64 { return s.percentage }

func (s *PercentageSampler) draw() float64 {
	if s.rnd == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

package opt

import (
	"log/slog"
	"math"
)

// StallConfig defines parameters for detecting a stalled candidate
type StallConfig struct {
	// Enabled controls whether stall detection is active
	Enabled bool

	// Patience is the number of consecutive steps with no significant
	// residual improvement before the candidate is declared stalled
	Patience int

	// Threshold is the minimum relative improvement required to count as progress
	// Relative improvement = (oldNorm - newNorm) / oldNorm
	Threshold float64
}

// DefaultStallConfig returns sensible defaults for stall detection
func DefaultStallConfig() StallConfig {
	return StallConfig{
		Enabled:   true,
		Patience:  25,
		Threshold: 1e-6,
	}
}

// DisabledStallConfig returns a config with stall detection disabled
func DisabledStallConfig() StallConfig {
	return StallConfig{
		Enabled: false,
	}
}

// StallTracker detects when a candidate's residual norm has stopped
// improving. It keeps constant state regardless of the step count.
type StallTracker struct {
	config          StallConfig
	updates         int     // Norms seen since the last reset
	best            float64 // Best residual norm ever seen
	lastSignificant float64 // Last norm that was a significant improvement
	staleCount      int     // Number of steps without significant improvement
}

// NewStallTracker creates a new stall tracker with the given config
func NewStallTracker(config StallConfig) *StallTracker {
	return &StallTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new residual norm and returns true if a stall is detected
func (s *StallTracker) Update(norm float64) bool {
	if !s.config.Enabled {
		return false
	}

	s.updates++

	if norm < s.best {
		s.best = norm
	}

	if s.updates == 1 {
		s.lastSignificant = norm
		return false
	}

	var relativeImprovement float64
	if s.lastSignificant > 0 {
		relativeImprovement = (s.lastSignificant - norm) / s.lastSignificant
	}

	if relativeImprovement >= s.config.Threshold {
		s.lastSignificant = norm
		s.staleCount = 0
		return false
	}

	s.staleCount++
	if s.staleCount >= s.config.Patience {
		slog.Debug("Residual stalled",
			"stale_count", s.staleCount,
			"patience", s.config.Patience,
			"best_norm", s.best,
		)
		return true
	}
	return false
}

// Best returns the smallest residual norm seen so far
func (s *StallTracker) Best() float64 {
	return s.best
}

// Updates returns how many norms were recorded since the last reset
func (s *StallTracker) Updates() int {
	return s.updates
}

// StaleCount returns the current number of steps without improvement
func (s *StallTracker) StaleCount() int {
	return s.staleCount
}

// Reset clears the tracker's state
func (s *StallTracker) Reset() {
	s.updates = 0
	s.best = math.Inf(1)
	s.lastSignificant = math.Inf(1)
	s.staleCount = 0
}

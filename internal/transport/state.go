package transport

import (
	"time"

	"github.com/satindergrewal/tempo/internal/graph"
)

// State is either Stopped or Playing.
type State interface {
	// PositionAt returns the unclamped playback position at now.
	PositionAt(now time.Time) time.Duration
	Name() string
	isState()
}

// Stopped holds a resume position and no audio graph.
type Stopped struct {
	Position time.Duration
}

func (s Stopped) PositionAt(time.Time) time.Duration { return s.Position }
func (Stopped) Name() string                         { return "stopped" }
func (Stopped) isState()                             {}

// Playing holds the live graph and the instant from which elapsed
// playback is measured.
type Playing struct {
	EffectiveStart time.Time
	Rate           float64
	graph          *graph.Handle
}

// PositionAt returns the elapsed wall-clock time since EffectiveStart
// scaled by the playback rate.
func (p Playing) PositionAt(now time.Time) time.Duration {
	return time.Duration(float64(now.Sub(p.EffectiveStart)) * p.Rate)
}

func (Playing) Name() string { return "playing" }
func (Playing) isState()     {}

// Graph returns the live chain.
func (p Playing) Graph() *graph.Handle { return p.graph }

// effectiveStart is the instant at which playback at rate would have had
// to start to be at pos by now.
func effectiveStart(now time.Time, pos time.Duration, rate float64) time.Time {
	return now.Add(-time.Duration(float64(pos) / rate))
}

package transport

import "github.com/satindergrewal/tempo/internal/settings"

// RewireAction is the graph change a settings change requires.
type RewireAction int

const (
	// None leaves the graph as it is.
	None RewireAction = iota
	// Retune moves the live filter's cutoff.
	Retune
	// Reconnect swaps the filter stage, keeping the source.
	Reconnect
	// Rebuild replaces the source with a new one at the same position.
	Rebuild
)

func (a RewireAction) String() string {
	switch a {
	case None:
		return "none"
	case Retune:
		return "retune"
	case Reconnect:
		return "reconnect"
	case Rebuild:
		return "rebuild"
	}
	return "unknown"
}

// Plan decides how to move a live graph from old to next. Nothing needs
// rewiring while stopped because the next Play builds from scratch.
func Plan(old, next settings.Settings, playing bool) RewireAction {
	switch {
	case !playing || old == next:
		return None
	case old.PlaybackRate != next.PlaybackRate:
		return Rebuild
	case old.FilterType != next.FilterType:
		return Reconnect
	case next.FilterType != settings.FilterNone && old.ActiveFrequency() != next.ActiveFrequency():
		return Retune
	}
	return None
}

package settings

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FilterType selects the filter stage wired between the source and the gain stage.
type FilterType string

const (
	FilterNone     FilterType = "none"
	FilterHighpass FilterType = "highpass"
	FilterLowpass  FilterType = "lowpass"
)

// Valid reports whether f is one of the known filter types.
func (f FilterType) Valid() bool {
	switch f {
	case FilterNone, FilterHighpass, FilterLowpass:
		return true
	}
	return false
}

// Limits enforced by Validate.
const (
	MaxPlaybackRate = 16.0
	MinFrequency    = 10.0
	MaxFrequency    = 24000.0
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Settings are the playback parameters a user tunes and we persist.
// Both frequencies are kept even while their filter type is inactive.
type Settings struct {
	PlaybackRate      float64    `json:"playbackRate"`
	FilterType        FilterType `json:"filterType"`
	HighpassFrequency float64    `json:"highpassFrequency"`
	LowpassFrequency  float64    `json:"lowpassFrequency"`
}

// Defaults returns the settings used before anything was loaded, and
// whenever loading fails.
func Defaults() Settings {
	return Settings{
		PlaybackRate:      1,
		FilterType:        FilterNone,
		HighpassFrequency: 1000,
		LowpassFrequency:  1000,
	}
}

// ActiveFrequency returns the frequency matching FilterType, or 0 when no
// filter is selected.
func (s Settings) ActiveFrequency() float64 {
	switch s.FilterType {
	case FilterHighpass:
		return s.HighpassFrequency
	case FilterLowpass:
		return s.LowpassFrequency
	}
	return 0
}

// WithFrequency returns a copy with the active filter's frequency replaced.
// Without an active filter the settings are returned unchanged.
func (s Settings) WithFrequency(freq float64) Settings {
	switch s.FilterType {
	case FilterHighpass:
		s.HighpassFrequency = freq
	case FilterLowpass:
		s.LowpassFrequency = freq
	}
	return s
}

// Validate checks every field against the accepted ranges.
func (s Settings) Validate() error {
	if !(s.PlaybackRate > 0) || s.PlaybackRate > MaxPlaybackRate {
		return fmt.Errorf("%w: playbackRate must be in (0, %g], got %g", ErrInvalid, MaxPlaybackRate, s.PlaybackRate)
	}
	if !s.FilterType.Valid() {
		return fmt.Errorf("%w: unknown filterType %q", ErrInvalid, s.FilterType)
	}
	if err := validFrequency("highpassFrequency", s.HighpassFrequency); err != nil {
		return err
	}
	return validFrequency("lowpassFrequency", s.LowpassFrequency)
}

func validFrequency(field string, v float64) error {
	if !(v >= MinFrequency && v <= MaxFrequency) {
		return fmt.Errorf("%w: %s must be in [%g, %g], got %g", ErrInvalid, field, MinFrequency, MaxFrequency, v)
	}
	return nil
}

// UnmarshalJSON fills fields missing from data with their defaults.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	v := plain(Defaults())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Settings(v)
	return nil
}

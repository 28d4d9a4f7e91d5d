package transport

import (
	"testing"

	"github.com/satindergrewal/tempo/internal/settings"
)

func TestPlan(t *testing.T) {
	base := settings.Defaults()
	with := func(mut func(*settings.Settings)) settings.Settings {
		s := base
		mut(&s)
		return s
	}
	hp := with(func(s *settings.Settings) { s.FilterType = settings.FilterHighpass })

	tests := []struct {
		name     string
		old, new settings.Settings
		playing  bool
		want     RewireAction
	}{
		{"unchanged", base, base, true, None},
		{"stopped rate change", base, with(func(s *settings.Settings) { s.PlaybackRate = 2 }), false, None},
		{"rate change", base, with(func(s *settings.Settings) { s.PlaybackRate = 2 }), true, Rebuild},
		{"rate and filter change", base, with(func(s *settings.Settings) { s.PlaybackRate = 2; s.FilterType = settings.FilterLowpass }), true, Rebuild},
		{"add filter", base, hp, true, Reconnect},
		{"remove filter", hp, base, true, Reconnect},
		{"switch filter", hp, with(func(s *settings.Settings) { s.FilterType = settings.FilterLowpass }), true, Reconnect},
		{"active frequency", hp, hp.WithFrequency(300), true, Retune},
		{"inactive frequency", hp, func() settings.Settings { s := hp; s.LowpassFrequency = 300; return s }(), true, None},
		{"frequency without filter", base, with(func(s *settings.Settings) { s.HighpassFrequency = 50 }), true, None},
	}
	for _, tt := range tests {
		if got := Plan(tt.old, tt.new, tt.playing); got != tt.want {
			t.Errorf("%s: Plan() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestRewireActionString(t *testing.T) {
	for a, want := range map[RewireAction]string{None: "none", Retune: "retune", Reconnect: "reconnect", Rebuild: "rebuild", 9: "unknown"} {
		if a.String() != want {
			t.Errorf("String() = %q, want %q", a.String(), want)
		}
	}
}

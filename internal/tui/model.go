// Package tui implements the Bubbletea front end of tempo-tui.
package tui

import (
	"errors"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/tempo/internal/position"
	"github.com/satindergrewal/tempo/internal/settings"
	"github.com/satindergrewal/tempo/internal/transport"
)

// SeekStep is how far the arrow keys move the stopped position.
const SeekStep = 5 * time.Second

// Rates are the playback rates the bracket keys step through.
var Rates = []float64{0.5, 1, 2}

var filterCycle = []settings.FilterType{settings.FilterNone, settings.FilterHighpass, settings.FilterLowpass}

// frequencyStep multiplies or divides the active frequency per key press.
const frequencyStep = 1.25

// Player is the playback surface the UI drives. *player.Player satisfies it.
type Player interface {
	TogglePlay() error
	Stop()
	Seek(pos time.Duration) error
	SetPlaybackRate(rate float64) error
	SetFilterType(ft settings.FilterType) error
	SetFrequency(freq float64) error
	Settings() settings.Settings
	Report() position.Report
	Playing() bool
}

type tickMsg time.Time

// Model is the Bubbletea model.
type Model struct {
	player   Player
	name     string
	report   position.Report
	settings settings.Settings
	err      error
	quitting bool
}

// NewModel creates a model showing name, driving p.
func NewModel(p Player, name string) Model {
	return Model{
		player:   p,
		name:     name,
		report:   p.Report(),
		settings: p.Settings(),
	}
}

// Init starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.handleKey(msg)
		if m.quitting {
			return m, tea.Quit
		}
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()
	}
	return m, nil
}

func (m *Model) refresh() {
	m.report = m.player.Report()
	m.settings = m.player.Settings()
}

func (m *Model) handleKey(msg tea.KeyMsg) {
	m.err = nil
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
	case " ":
		m.fail(m.player.TogglePlay())
	case "s":
		m.player.Stop()
	case "[":
		m.fail(m.player.SetPlaybackRate(stepRate(m.player.Settings().PlaybackRate, -1)))
	case "]":
		m.fail(m.player.SetPlaybackRate(stepRate(m.player.Settings().PlaybackRate, 1)))
	case "f":
		m.fail(m.player.SetFilterType(nextFilter(m.player.Settings().FilterType)))
	case "-":
		m.tune(1 / frequencyStep)
	case "+", "=":
		m.tune(frequencyStep)
	case "left":
		m.seek(-SeekStep)
	case "right":
		m.seek(SeekStep)
	}
}

func (m *Model) fail(err error) {
	if errors.Is(err, transport.ErrNotReady) {
		m.err = errors.New("nothing loaded")
		return
	}
	m.err = err
}

func (m *Model) tune(factor float64) {
	s := m.player.Settings()
	if s.FilterType == settings.FilterNone {
		return
	}
	freq := math.Round(s.ActiveFrequency() * factor)
	freq = math.Max(settings.MinFrequency, math.Min(settings.MaxFrequency, freq))
	m.fail(m.player.SetFrequency(freq))
}

// seek only moves a stopped transport.
func (m *Model) seek(delta time.Duration) {
	if m.player.Playing() {
		return
	}
	pos := time.Duration(m.player.Report().PositionMs)*time.Millisecond + delta
	if pos < 0 {
		pos = 0
	}
	m.fail(m.player.Seek(pos))
}

// stepRate moves dir steps through Rates from the rate closest to cur.
func stepRate(cur float64, dir int) float64 {
	best := 0
	for i, r := range Rates {
		if math.Abs(r-cur) < math.Abs(Rates[best]-cur) {
			best = i
		}
	}
	i := max(0, min(len(Rates)-1, best+dir))
	return Rates[i]
}

func nextFilter(ft settings.FilterType) settings.FilterType {
	for i, f := range filterCycle {
		if f == ft {
			return filterCycle[(i+1)%len(filterCycle)]
		}
	}
	return settings.FilterNone
}

package tui

import (
	"fmt"
	"strings"

	"github.com/satindergrewal/tempo/internal/settings"
)

const panelWidth = 64

// View renders the full frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		titleStyle.Render("T E M P O"),
		m.renderTrack(),
		m.renderTimeStatus(),
		"",
		m.renderSeekBar(),
		"",
		m.renderRate(),
		m.renderFilter(),
		"",
		helpStyle.Render("[Spc]Play [S]Stop [[ ]]Rate [F]Filter [-+]Freq [←→]Seek [Q]Quit"),
	}
	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("ERR: %s", m.err)))
	}
	return frameStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderTrack() string {
	name := m.name
	if name == "" {
		name = "No track loaded"
	}
	runes := []rune(name)
	if len(runes) > panelWidth-2 {
		name = string(runes[:panelWidth-3]) + "…"
	}
	return trackStyle.Render("♫ " + name)
}

func (m Model) renderTimeStatus() string {
	status := dimStyle.Render("■ Stopped")
	if m.report.State == "playing" {
		status = statusStyle.Render("▶ Playing")
	}
	clock := timeStyle.Render(m.report.Elapsed + " / " + m.report.Total)
	gap := panelWidth - len([]rune(m.report.Elapsed+" / "+m.report.Total)) - 9
	return clock + strings.Repeat(" ", max(1, gap)) + status
}

func (m Model) renderSeekBar() string {
	frac := max(0, min(1, m.report.Progress/100))
	filled := int(frac * float64(panelWidth-1))
	return seekFillStyle.Render(strings.Repeat("━", filled)) +
		seekFillStyle.Render("●") +
		seekDimStyle.Render(strings.Repeat("━", max(0, panelWidth-filled-1)))
}

func (m Model) renderRate() string {
	parts := []string{labelStyle.Render("Rate  ")}
	for _, r := range Rates {
		label := fmt.Sprintf("%gx", r)
		if r == m.settings.PlaybackRate {
			parts = append(parts, activeStyle.Render("["+label+"]"))
		} else {
			parts = append(parts, dimStyle.Render(" "+label+" "))
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) renderFilter() string {
	parts := []string{labelStyle.Render("Filter")}
	for _, f := range filterCycle {
		if f == m.settings.FilterType {
			parts = append(parts, activeStyle.Render("["+string(f)+"]"))
		} else {
			parts = append(parts, dimStyle.Render(" "+string(f)+" "))
		}
	}
	if m.settings.FilterType != settings.FilterNone {
		parts = append(parts, timeStyle.Render(fmt.Sprintf("%g Hz", m.settings.ActiveFrequency())))
	}
	return strings.Join(parts, " ")
}

// Command tempo-tui plays one audio file in the terminal with the same
// rate and filter controls as the web player.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/audio"
	"github.com/satindergrewal/tempo/internal/config"
	"github.com/satindergrewal/tempo/internal/player"
	"github.com/satindergrewal/tempo/internal/tui"
	"github.com/satindergrewal/tempo/internal/userdata"
)

// localUser owns the terminal player's stored settings.
const localUser = "local"

func run() error {
	if len(os.Args) < 2 {
		return errors.New("usage: tempo-tui <file>")
	}
	path := os.Args[1]
	cfg := config.Load()

	// Keep log output off the screen
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	buf, err := audio.Decode(raw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := userdata.NewStore(cfg.DataDir)
	p := player.New(player.Config{
		SampleRate:     audio.SampleRate,
		HandoffGrace:   cfg.HandoffGrace,
		SaveDebounce:   cfg.SaveDebounce,
		ReportInterval: cfg.ReportInterval,
		OutputGain:     cfg.OutputGain,
	}, store.SettingsStore(localUser), clockwork.NewRealClock())
	p.Start(ctx)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		p.Close(closeCtx)
	}()
	p.Load(buf)

	sr := beep.SampleRate(audio.SampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	defer speaker.Close()
	speaker.Play(p.Context())

	prog := tea.NewProgram(tui.NewModel(p, filepath.Base(path)), tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

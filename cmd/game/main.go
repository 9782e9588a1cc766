package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/pelldrake/ashveil/internal/billing"
	"github.com/pelldrake/ashveil/internal/config"
	"github.com/pelldrake/ashveil/internal/dispatch"
	"github.com/pelldrake/ashveil/internal/engine"
	"github.com/pelldrake/ashveil/internal/gen"
	"github.com/pelldrake/ashveil/internal/images"
	"github.com/pelldrake/ashveil/internal/narrate"
	"github.com/pelldrake/ashveil/internal/saves"
	"github.com/pelldrake/ashveil/internal/tui"
	"github.com/pelldrake/ashveil/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ashveil: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("ashveil.yaml")
	if err != nil {
		return err
	}

	log, closeLog, err := openLogger(cfg.SaveDir)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := saves.NewStore(cfg.SaveDir)
	if err != nil {
		return err
	}
	sections := world.Load(cfg.WorldMap)

	ledger := &billing.Ledger{}
	queue := dispatch.New(256)
	go queue.Run(ctx)

	cache := gen.NewClientCache()
	defer cache.Close()
	text := gen.NewTextService(cache, cfg.TextModel)

	var narrator engine.Narrator = narrate.Muted{}
	if cfg.EnableAudio {
		device, err := narrate.OpenDevice()
		if err != nil {
			// No audio device is not fatal; the game plays silently.
			log.Warn().Err(err).Msg("audio disabled")
			cfg.EnableAudio = false
		} else {
			narrator = narrate.New(device, cfg.GeminiAPIKey, cfg.AudioModel, cfg.AudioVoice, ledger, log)
		}
	}

	forwarder := tui.NewForwarder()

	// The image coordinator's sink routes back through the engine so outcomes
	// land on the dispatch goroutine like every other event.
	var eng *engine.Engine
	imgClient := images.NewRESTClient(cfg.GeminiAPIKey, cfg.ImageModel)
	coordinator := images.New(imgClient, cfg.ImageDir, ledger, log, func(o images.Outcome) {
		eng.PostImage(o)
	})

	eng = engine.New(ctx, cfg, engine.Deps{
		Text:     text,
		Narrator: narrator,
		Images:   coordinator,
		Store:    store,
		Queue:    queue,
		Observer: forwarder,
		Ledger:   ledger,
		World:    sections,
		Logger:   log,
	})

	p := tea.NewProgram(tui.NewModel(eng, store, cfg, sections), tea.WithAltScreen())
	forwarder.Attach(p)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// openLogger writes structured logs next to the saves; stderr belongs to the
// terminal UI.
func openLogger(dir string) (zerolog.Logger, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "ashveil.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log: %w", err)
	}
	log := zerolog.New(f).With().Timestamp().Logger()
	return log, func() { f.Close() }, nil
}

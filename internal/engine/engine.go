// Package engine owns the canonical game state and the turn pipeline:
// submit-choice -> stream response -> commit -> ready for the next choice.
// Exactly one turn may be in flight; the submission latch is cleared only on
// a terminal transition back to Idle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pelldrake/ashveil/internal/billing"
	"github.com/pelldrake/ashveil/internal/config"
	"github.com/pelldrake/ashveil/internal/dispatch"
	"github.com/pelldrake/ashveil/internal/images"
	"github.com/pelldrake/ashveil/internal/models"
	"github.com/pelldrake/ashveil/internal/saves"
	"github.com/pelldrake/ashveil/internal/stream"
	"github.com/pelldrake/ashveil/internal/world"
)

// situationField is the one response field streamed to the player before the
// full document is available.
const situationField = "current_situation"

// Deps bundles the collaborators the engine drives.
type Deps struct {
	Text     TextStreamer
	Narrator Narrator
	Images   ImageGenerator
	Store    *saves.Store
	Queue    *dispatch.Queue
	Observer Observer
	Ledger   *billing.Ledger
	World    world.Sections
	Logger   zerolog.Logger
}

// Engine is the turn state machine. All observer callbacks and all TurnState
// mutation happen on the dispatch-queue goroutine; worker goroutines only
// compute values and hand them off.
type Engine struct {
	cfg *config.Config
	d   Deps
	ctx context.Context

	submitting atomic.Bool
	phase      atomic.Int32

	// Guarded by the single-flight latch: written by the submitting caller
	// while staging a turn and by the dispatch goroutine during commit.
	state       models.TurnState
	pending     *models.HistoryEntry
	characterID string
	identity    string
	style       string
	difficulty  string
	preamble    string
	transcript  strings.Builder
	sceneImage  []byte
	paneSizes   map[string][]int
	warmed      bool
}

// New returns an idle engine with an empty session.
func New(ctx context.Context, cfg *config.Config, d Deps) *Engine {
	return &Engine{
		cfg:   cfg,
		d:     d,
		ctx:   ctx,
		state: models.NewTurnState(),
	}
}

// Phase returns the current pipeline phase.
func (e *Engine) Phase() Phase { return Phase(e.phase.Load()) }

// Usage returns a snapshot of the session's token and image counters.
func (e *Engine) Usage() billing.Usage { return e.d.Ledger.Snapshot() }

// NewGame wipes the session and dispatches the initial turn for a fresh
// character described by identity, under the chosen style and difficulty.
func (e *Engine) NewGame(identity, style, difficulty string) error {
	if !e.submitting.CompareAndSwap(false, true) {
		return ErrInvalidState
	}
	e.d.Narrator.Stop()
	e.d.Images.Cancel()

	e.characterID = uuid.NewString()
	e.identity = strings.TrimSpace(identity)
	e.style = style
	e.difficulty = difficulty
	e.preamble = e.d.World.Preamble(style, difficulty)
	e.state = models.NewTurnState()
	e.pending = nil
	e.transcript.Reset()
	e.sceneImage = nil

	if e.cfg.EnableAudio && !e.warmed {
		// Mask first-call latency before the first real narration.
		e.d.Narrator.WarmUp()
		e.warmed = true
	}

	prompt, err := buildInitialPrompt(e.preamble, e.identity)
	if err != nil {
		e.submitting.Store(false)
		return err
	}
	e.phase.Store(int32(PhaseDispatching))
	go e.run(prompt, e.cfg.InitialTemperature, true)
	return nil
}

// Submit processes the player's chosen option for the current turn. It fails
// with ErrEmptyChoice for blank input and ErrInvalidState while another turn
// is in flight or before a game has started.
func (e *Engine) Submit(choice string) error {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return ErrEmptyChoice
	}
	if !e.submitting.CompareAndSwap(false, true) {
		return ErrInvalidState
	}
	if e.characterID == "" {
		e.submitting.Store(false)
		return ErrInvalidState
	}

	e.d.Narrator.Stop()
	e.d.Images.Cancel()

	// The history entry pairs the situation being left with the option
	// chosen to leave it. It is staged now and appended at commit, so a
	// failed request leaves history untouched and a retry is safe.
	latest := models.HistoryEntry{
		Day:       e.state.Day,
		Time:      e.state.Time,
		Situation: e.state.CurrentSituation,
		Choice:    choice,
	}
	e.pending = &latest

	prompt, err := buildTurnPrompt(e.preamble, e.state, latest)
	if err != nil {
		e.pending = nil
		e.submitting.Store(false)
		return err
	}
	e.phase.Store(int32(PhaseDispatching))
	go e.run(prompt, e.cfg.TurnTemperature, false)
	return nil
}

// run is the per-turn worker. It feeds every received fragment through the
// field extractor, posts deltas in order, and hands the final parse to the
// dispatch goroutine for commit.
func (e *Engine) run(prompt string, temperature float32, initial bool) {
	ex := stream.New(situationField)

	st, err := e.d.Text.Stream(e.ctx, TextRequest{
		APIKey:      e.cfg.GeminiAPIKey,
		Prompt:      prompt,
		Temperature: temperature,
	})
	if err != nil {
		e.fail(StreamError, err)
		return
	}
	e.phase.Store(int32(PhaseStreaming))

	var promptTokens, completionTokens int
	for {
		chunk, err := st.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.fail(StreamError, err)
			return
		}
		if chunk.PromptTokens > 0 || chunk.CompletionTokens > 0 {
			promptTokens, completionTokens = chunk.PromptTokens, chunk.CompletionTokens
		}
		// Scrubbing happens after extraction: the raw chunk may end mid-rune,
		// which the extractor holds back but a per-chunk scrub would mangle.
		// The full document is scrubbed by ParseGameResponse.
		if delta := models.CleanControl(ex.Feed(chunk.Text)); delta != "" {
			d := delta
			e.d.Queue.Post(func() { e.d.Observer.OnSituationDelta(d) })
		}
	}

	e.phase.Store(int32(PhaseCommitting))
	gr, err := models.ParseGameResponse(ex.Raw())
	if err != nil {
		e.fail(ParseError, fmt.Errorf("parse response: %w", err))
		return
	}
	e.d.Ledger.RecordText(promptTokens, completionTokens)

	spoken := ex.Value()
	e.d.Queue.Post(func() { e.commit(gr, spoken, initial) })
}

// fail returns the pipeline to Idle without mutating TurnState and reports
// the error. Input is re-enabled (latch cleared) before the observer fires.
func (e *Engine) fail(kind ErrorKind, err error) {
	e.d.Logger.Error().Err(err).Stringer("kind", kind).Msg("turn failed")
	e.d.Queue.Post(func() {
		e.pending = nil
		e.phase.Store(int32(PhaseIdle))
		e.submitting.Store(false)
		e.d.Observer.OnError(kind, err.Error())
	})
}

// commit atomically replaces the canonical state from a parsed response.
// Runs on the dispatch goroutine only.
func (e *Engine) commit(gr *models.GameResponse, spoken string, initial bool) {
	diff := computeDiff(e.state, gr, initial)

	next := e.state.Clone()
	if !initial {
		if e.pending != nil {
			next.History = append(next.History, *e.pending)
		}
		next.Turn++
	}
	e.pending = nil

	next.Day = gr.Day
	next.Time = gr.Time
	next.Attributes = gr.Attributes.Map()
	next.Environment = gr.Environment.Map()
	next.Inventory = append([]models.InventoryItem(nil), gr.Inventory...)
	next.Perks = append([]models.PerkSkill(nil), gr.PerksSkills...)
	next.CurrentSituation = gr.CurrentSituation
	options := gr.Options
	if len(options) > 5 {
		options = options[:5]
	}
	next.Options = append([]string(nil), options...)
	next.PreviousImagePrompt = gr.ImagePrompt
	e.state = next

	if !initial && len(next.History) > 0 {
		e.transcript.WriteString("\n\n> " + next.History[len(next.History)-1].Choice + "\n\n")
	}
	e.transcript.WriteString(gr.CurrentSituation)

	saveErr := e.saveNow()
	if saveErr != nil {
		e.d.Logger.Warn().Err(saveErr).Msg("auto-save failed")
	}

	if e.cfg.EnableAudio {
		text := spoken
		if text == "" {
			text = gr.CurrentSituation
		}
		e.d.Narrator.Speak(text)
	}
	if e.cfg.EnableImages && gr.ImagePrompt != "" {
		e.d.Images.Generate(gr.ImagePrompt, e.characterID, next.Day, next.Turn)
	}

	e.phase.Store(int32(PhaseIdle))
	e.submitting.Store(false)
	e.d.Observer.OnTurnCommitted(e.state.Clone(), diff)
	// Warnings follow the commit so input is already re-enabled when they fire.
	if saveErr != nil {
		e.d.Observer.OnError(PersistWarning, fmt.Sprintf("could not save game: %v", saveErr))
	}
}

// saveNow persists the full session record. No-op before a character exists.
func (e *Engine) saveNow() error {
	if e.characterID == "" {
		return nil
	}
	return e.d.Store.Save(saves.Record{
		CharacterID: e.characterID,
		Identity:    e.identity,
		Style:       e.style,
		Difficulty:  e.difficulty,
		State:       e.state.Clone(),
		StoryText:   e.transcript.String(),
		PaneSizes:   e.paneSizes,
		SceneImage:  e.sceneImage,
	})
}

// Load replaces the session wholesale from a saved record.
func (e *Engine) Load(id string) error {
	if !e.submitting.CompareAndSwap(false, true) {
		return ErrInvalidState
	}
	rec, err := e.d.Store.Load(id)
	if err != nil {
		e.submitting.Store(false)
		return err
	}
	e.d.Narrator.Stop()
	e.d.Images.Cancel()

	e.d.Queue.Post(func() {
		e.characterID = rec.CharacterID
		e.identity = rec.Identity
		e.style = rec.Style
		e.difficulty = rec.Difficulty
		e.preamble = e.d.World.Preamble(rec.Style, rec.Difficulty)
		e.state = rec.State
		e.pending = nil
		e.transcript.Reset()
		if rec.StoryText != "" {
			e.transcript.WriteString(rec.StoryText)
		} else {
			e.transcript.WriteString(rec.State.CurrentSituation)
		}
		e.paneSizes = rec.PaneSizes
		e.sceneImage = rec.SceneImage

		e.phase.Store(int32(PhaseIdle))
		e.submitting.Store(false)
		e.d.Observer.OnTurnCommitted(e.state.Clone(), &Diff{Initial: true})
		if len(rec.SceneImage) > 0 {
			e.d.Observer.OnImage(images.Outcome{
				Kind:   images.Generated,
				Prompt: rec.State.PreviousImagePrompt,
				Bytes:  rec.SceneImage,
			})
		}
	})
	return nil
}

// Reset wipes the session back to the pre-game state.
func (e *Engine) Reset() error {
	if !e.submitting.CompareAndSwap(false, true) {
		return ErrInvalidState
	}
	e.d.Narrator.Stop()
	e.d.Images.Cancel()
	e.d.Queue.Post(func() {
		e.characterID = ""
		e.identity = ""
		e.style = ""
		e.difficulty = ""
		e.preamble = ""
		e.state = models.NewTurnState()
		e.pending = nil
		e.transcript.Reset()
		e.sceneImage = nil
		e.phase.Store(int32(PhaseIdle))
		e.submitting.Store(false)
	})
	return nil
}

// PostImage marshals an image outcome onto the dispatch goroutine. Wired as
// the image coordinator's sink.
func (e *Engine) PostImage(o images.Outcome) {
	e.d.Queue.Post(func() {
		if o.Kind == images.Generated && len(o.Bytes) > 0 {
			e.sceneImage = o.Bytes
		}
		e.d.Observer.OnImage(o)
	})
}

// SetPaneSizes records front-end layout hints for inclusion in saves.
func (e *Engine) SetPaneSizes(sizes map[string][]int) {
	e.d.Queue.Post(func() { e.paneSizes = sizes })
}

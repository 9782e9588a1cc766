// Package images drives scene image generation. Generations are independent
// of the turn pipeline: starting a new one supersedes any still in flight,
// and failures degrade to fixed placeholder images rather than errors.
package images

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pelldrake/ashveil/internal/billing"
)

//go:embed assets/unavailable.png
var placeholderUnavailable []byte

//go:embed assets/filtered.png
var placeholderFiltered []byte

// OutcomeKind classifies how a generation resolved.
type OutcomeKind int

const (
	// Generated: an image was produced, persisted and should be displayed.
	Generated OutcomeKind = iota
	// Unavailable: the service returned no images; show the fixed
	// "unavailable" placeholder.
	Unavailable
	// Filtered: a result came back but was safety-blocked or carried no
	// payload; show the fixed "filtered" placeholder.
	Filtered
)

// Outcome is the resolution of one generation. Bytes always holds displayable
// PNG data (the generated image or the placeholder). Path is set only for
// generated images.
type Outcome struct {
	Kind   OutcomeKind
	Prompt string
	Path   string
	Bytes  []byte
}

// Image is a single candidate from the service. FilteredReason is non-empty
// when the result was blocked by safety filtering.
type Image struct {
	Bytes          []byte
	FilteredReason string
}

// Result is the service response for one request.
type Result struct {
	Images []Image
}

// Client is the image-generation service boundary.
type Client interface {
	Generate(ctx context.Context, prompt string) (*Result, error)
}

// Coordinator runs at most one "current" generation. Cancellation is
// cooperative and best-effort: a call already on the wire completes, and its
// result is discarded only when a newer generation has superseded it.
type Coordinator struct {
	client Client
	dir    string
	ledger *billing.Ledger
	sink   func(Outcome)
	log    zerolog.Logger

	mu        sync.Mutex
	gen       uint64
	cancelled bool
}

// New returns a coordinator that writes generated images under dir and
// delivers outcomes through sink. The sink is called from worker goroutines.
func New(client Client, dir string, ledger *billing.Ledger, log zerolog.Logger, sink func(Outcome)) *Coordinator {
	return &Coordinator{client: client, dir: dir, ledger: ledger, sink: sink, log: log}
}

// Generate starts an asynchronous generation for prompt, superseding any
// generation still in flight.
func (c *Coordinator) Generate(prompt, characterID string, day, turn int) {
	c.mu.Lock()
	c.gen++
	id := c.gen
	c.cancelled = false
	c.mu.Unlock()

	go c.run(id, prompt, characterID, day, turn)
}

// Cancel requests cooperative cancellation of the current generation. It is
// idempotent and safe to call with nothing in flight.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

// Cancelled reports whether the current generation has been cancelled. Safe
// points such as progress animation poll this.
func (c *Coordinator) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Coordinator) run(id uint64, prompt, characterID string, day, turn int) {
	start := time.Now()
	res, err := c.client.Generate(context.Background(), prompt)

	c.mu.Lock()
	superseded := id != c.gen
	c.mu.Unlock()
	if superseded {
		return
	}

	if err != nil {
		c.log.Warn().Err(err).Msg("image generation failed")
		c.sink(Outcome{Kind: Unavailable, Prompt: prompt, Bytes: placeholderUnavailable})
		return
	}
	if len(res.Images) == 0 {
		c.sink(Outcome{Kind: Unavailable, Prompt: prompt, Bytes: placeholderUnavailable})
		return
	}

	img := res.Images[0]
	if len(img.Bytes) == 0 || img.FilteredReason != "" {
		c.log.Debug().Str("reason", img.FilteredReason).Msg("image blocked")
		c.sink(Outcome{Kind: Filtered, Prompt: prompt, Bytes: placeholderFiltered})
		return
	}

	// Only successful, unfiltered generations count toward the lifetime
	// image total.
	c.ledger.RecordImage()

	path, err := c.persist(img.Bytes, characterID, day, turn)
	if err != nil {
		c.log.Warn().Err(err).Msg("could not persist image")
	}
	c.log.Debug().Dur("took", time.Since(start)).Str("path", path).Msg("image generated")
	c.sink(Outcome{Kind: Generated, Prompt: prompt, Path: path, Bytes: img.Bytes})
}

func (c *Coordinator) persist(data []byte, characterID string, day, turn int) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_day%d_turn%d_%d.png", characterID, day, turn, time.Now().Unix())
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// PlaceholderUnavailable returns the fixed image shown when the service
// produced nothing.
func PlaceholderUnavailable() []byte { return placeholderUnavailable }

// PlaceholderFiltered returns the fixed image shown for blocked results.
func PlaceholderFiltered() []byte { return placeholderFiltered }

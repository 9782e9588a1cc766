// Package narrate speaks turn text aloud through the Gemini live audio API.
// Narration is strictly best-effort: it never blocks the turn pipeline, and
// every failure degrades to silence with a logged warning.
package narrate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/pelldrake/ashveil/internal/billing"
)

// Muted is a no-op narrator used when audio is disabled or no output device
// exists.
type Muted struct{}

func (Muted) Speak(string) {}
func (Muted) Stop()        {}
func (Muted) WarmUp()      {}

// Narrator plays at most one utterance at a time. Speak implicitly stops the
// previous utterance first; Stop is idempotent and safe with nothing playing.
type Narrator struct {
	device *Device
	apiKey string
	model  string
	voice  string
	ledger *billing.Ledger
	log    zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	session *liveSession
	player  *oto.Player
	queue   *pcmQueue
}

// New returns a stopped narrator. device may not be nil.
func New(device *Device, apiKey, model, voice string, ledger *billing.Ledger, log zerolog.Logger) *Narrator {
	return &Narrator{
		device: device,
		apiKey: apiKey,
		model:  model,
		voice:  voice,
		ledger: ledger,
		log:    log,
	}
}

// WarmUp opens and closes a session in the background so the first real
// narration does not pay connection setup latency.
func (n *Narrator) WarmUp() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := dialLive(ctx, n.apiKey, n.model, n.voice)
		if err != nil {
			n.log.Warn().Err(err).Msg("narration warm-up failed")
			return
		}
		s.Close()
	}()
}

// Speak asynchronously narrates text, cutting off anything still playing.
// Blank text is ignored.
func (n *Narrator) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	n.Stop()

	n.mu.Lock()
	n.seq++
	id := n.seq
	n.mu.Unlock()

	go n.speak(id, text)
}

// Stop cuts off the current utterance, if any.
func (n *Narrator) Stop() {
	n.mu.Lock()
	n.seq++
	sess, player, q := n.session, n.player, n.queue
	n.session, n.player, n.queue = nil, nil, nil
	n.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	if q != nil {
		q.Close()
	}
	if player != nil {
		player.Close()
	}
}

func (n *Narrator) speak(id uint64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sess, err := dialLive(ctx, n.apiKey, n.model, n.voice)
	cancel()
	if err != nil {
		n.log.Warn().Err(err).Msg("narration unavailable")
		return
	}

	// Register the utterance unless a Stop or newer Speak already won.
	n.mu.Lock()
	if id != n.seq {
		n.mu.Unlock()
		sess.Close()
		return
	}
	q := newPCMQueue()
	player := n.device.NewPlayer(q)
	n.session = sess
	n.player = player
	n.queue = q
	n.mu.Unlock()

	player.Play()

	defer func() {
		q.Close()
		// Let the buffered tail finish unless we were cut off.
		for {
			n.mu.Lock()
			current := id == n.seq
			n.mu.Unlock()
			if !current || !player.IsPlaying() {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		n.mu.Lock()
		if id == n.seq {
			n.session, n.player, n.queue = nil, nil, nil
			n.mu.Unlock()
			player.Close()
			sess.Close()
			return
		}
		// Stop already closed the session and player.
		n.mu.Unlock()
	}()

	if err := sess.send(text); err != nil {
		n.log.Warn().Err(err).Msg("narration send failed")
		return
	}

	// Usage metadata repeats cumulative totals, so only the last values are
	// recorded, once the turn finishes.
	var promptTokens, outputTokens int
	for {
		msg, err := sess.read()
		if err != nil {
			// A closed connection here is the normal result of Stop.
			n.mu.Lock()
			current := id == n.seq
			n.mu.Unlock()
			if current {
				n.log.Warn().Err(err).Msg("narration stream ended early")
			}
			return
		}
		// Buffering is unbounded so the loop keeps reading at network rate
		// while playback lags; blocking here would starve the connection's
		// keep-alive handling.
		for _, chunk := range msg.audio() {
			if _, err := q.Write(chunk); err != nil {
				return
			}
		}
		if msg.UsageMetadata != nil {
			promptTokens = msg.UsageMetadata.PromptTokenCount
			outputTokens = msg.UsageMetadata.ResponseTokenCount
		}
		if msg.ServerContent != nil && msg.ServerContent.TurnComplete {
			n.ledger.RecordAudio(promptTokens, outputTokens)
			return
		}
	}
}

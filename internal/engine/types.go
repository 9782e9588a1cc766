package engine

import (
	"context"
	"errors"

	"github.com/pelldrake/ashveil/internal/images"
	"github.com/pelldrake/ashveil/internal/models"
)

// Phase is the turn pipeline state. Transitions:
// Idle -> Dispatching -> Streaming -> Committing -> Idle, with failures from
// Dispatching/Streaming returning straight to Idle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDispatching
	PhaseStreaming
	PhaseCommitting
)

var (
	// ErrInvalidState rejects a submission while a turn is in flight.
	ErrInvalidState = errors.New("turn already in progress")
	// ErrEmptyChoice rejects a blank player choice.
	ErrEmptyChoice = errors.New("empty choice")
)

// ErrorKind classifies errors reported through the observer.
type ErrorKind int

const (
	// StreamError: the text-generation call failed; state unchanged.
	StreamError ErrorKind = iota
	// ParseError: the stream completed but the document did not parse.
	ParseError
	// PersistWarning: the auto-save failed; in-memory state stays authoritative.
	// It follows the turn's OnTurnCommitted and does not undo the commit.
	PersistWarning
)

func (k ErrorKind) String() string {
	switch k {
	case StreamError:
		return "stream"
	case ParseError:
		return "parse"
	case PersistWarning:
		return "persist"
	default:
		return "unknown"
	}
}

// Observer receives engine events. All callbacks are delivered on the
// dispatch-queue goroutine, in order.
type Observer interface {
	// OnSituationDelta delivers the next decoded fragment of the streaming
	// situation text.
	OnSituationDelta(text string)
	// OnTurnCommitted delivers the new canonical state and the diff against
	// the previous commit (diff.Initial is set for the first commit and for
	// loads, where no old/new highlighting applies).
	OnTurnCommitted(state models.TurnState, diff *Diff)
	// OnImage delivers the outcome of an image generation.
	OnImage(outcome images.Outcome)
	// OnError reports a pipeline error or warning. Player input is always
	// re-enabled before this fires.
	OnError(kind ErrorKind, message string)
}

// TextRequest describes one streaming text-generation call.
type TextRequest struct {
	APIKey      string
	Prompt      string
	Temperature float32
}

// Chunk is one fragment of the streamed response. Usage counts are cumulative
// for the call; the last chunk's values are authoritative.
type Chunk struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// ChunkStream yields response fragments in order, ending with io.EOF.
type ChunkStream interface {
	Next() (Chunk, error)
}

// TextStreamer is the text-generation service boundary.
type TextStreamer interface {
	Stream(ctx context.Context, req TextRequest) (ChunkStream, error)
}

// Narrator is the audio narration boundary. Implementations must be safe to
// call from the dispatch goroutine; failures are reported out of band.
type Narrator interface {
	Speak(text string)
	Stop()
	WarmUp()
}

// ImageGenerator is the scene image boundary. Generate supersedes any
// generation still in flight.
type ImageGenerator interface {
	Generate(prompt, characterID string, day, turn int)
	Cancel()
}

package narrate

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
)

// The live audio endpoint emits 24 kHz mono 16-bit little-endian PCM.
const sampleRate = 24000

// Device wraps the process-wide audio output. oto permits a single context
// per process, so the device is opened once at startup and players come and
// go per utterance.
type Device struct {
	ctx *oto.Context
}

// OpenDevice initialises audio output and blocks until the backend is ready.
func OpenDevice() (*Device, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &Device{ctx: ctx}, nil
}

// NewPlayer returns a player that consumes PCM from r.
func (d *Device) NewPlayer(r io.Reader) *oto.Player {
	return d.ctx.NewPlayer(r)
}

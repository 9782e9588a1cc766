package images

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelldrake/ashveil/internal/billing"
)

// fakeClient scripts one response per prompt, so concurrent generations
// cannot steal each other's script.
type fakeClient struct {
	mu       sync.Mutex
	byPrompt map[string]func() (*Result, error)
}

func (f *fakeClient) push(prompt string, fn func() (*Result, error)) {
	f.mu.Lock()
	if f.byPrompt == nil {
		f.byPrompt = map[string]func() (*Result, error){}
	}
	f.byPrompt[prompt] = fn
	f.mu.Unlock()
}

func (f *fakeClient) Generate(_ context.Context, prompt string) (*Result, error) {
	f.mu.Lock()
	fn := f.byPrompt[prompt]
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected call")
	}
	return fn()
}

func newTestCoordinator(t *testing.T, client Client) (*Coordinator, *billing.Ledger, chan Outcome, string) {
	t.Helper()
	dir := t.TempDir()
	ledger := &billing.Ledger{}
	outcomes := make(chan Outcome, 8)
	c := New(client, dir, ledger, zerolog.Nop(), func(o Outcome) { outcomes <- o })
	return c, ledger, outcomes, dir
}

func waitOutcome(t *testing.T, ch chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for image outcome")
		return Outcome{}
	}
}

func TestGeneratedImagePersistedAndCounted(t *testing.T) {
	client := &fakeClient{}
	client.push("a misty jetty", func() (*Result, error) {
		return &Result{Images: []Image{{Bytes: []byte("png-bytes")}}}, nil
	})
	c, ledger, outcomes, dir := newTestCoordinator(t, client)

	c.Generate("a misty jetty", "char-1", 2, 5)
	o := waitOutcome(t, outcomes)

	assert.Equal(t, Generated, o.Kind)
	assert.Equal(t, []byte("png-bytes"), o.Bytes)
	require.NotEmpty(t, o.Path)
	data, err := os.ReadFile(o.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, 1, ledger.Snapshot().TotalImages)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFilteredResultNotCounted(t *testing.T) {
	client := &fakeClient{}
	client.push("something grim", func() (*Result, error) {
		return &Result{Images: []Image{{FilteredReason: "safety"}}}, nil
	})
	c, ledger, outcomes, dir := newTestCoordinator(t, client)

	c.Generate("something grim", "char-1", 1, 1)
	o := waitOutcome(t, outcomes)

	assert.Equal(t, Filtered, o.Kind)
	assert.Equal(t, PlaceholderFiltered(), o.Bytes)
	assert.Zero(t, ledger.Snapshot().TotalImages)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "placeholders are never written to disk")
}

func TestCancelledBlockedGenerationStillResolvesFiltered(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{}
	client.push("doomed", func() (*Result, error) {
		<-gate
		return &Result{Images: []Image{{FilteredReason: "safety"}}}, nil
	})
	c, ledger, outcomes, _ := newTestCoordinator(t, client)

	c.Generate("doomed", "char-1", 1, 1)
	// Cancellation is cooperative; with no newer generation the in-flight
	// call still resolves and its placeholder is delivered.
	c.Cancel()
	close(gate)

	o := waitOutcome(t, outcomes)
	assert.Equal(t, Filtered, o.Kind)
	assert.Equal(t, PlaceholderFiltered(), o.Bytes)
	assert.Zero(t, ledger.Snapshot().TotalImages)
}

func TestEmptyResultIsUnavailable(t *testing.T) {
	client := &fakeClient{}
	client.push("anything", func() (*Result, error) { return &Result{}, nil })
	c, ledger, outcomes, _ := newTestCoordinator(t, client)

	c.Generate("anything", "char-1", 1, 1)
	o := waitOutcome(t, outcomes)

	assert.Equal(t, Unavailable, o.Kind)
	assert.Equal(t, PlaceholderUnavailable(), o.Bytes)
	assert.Zero(t, ledger.Snapshot().TotalImages)
}

func TestServiceErrorIsUnavailable(t *testing.T) {
	client := &fakeClient{}
	client.push("anything", func() (*Result, error) { return nil, errors.New("quota exceeded") })
	c, _, outcomes, _ := newTestCoordinator(t, client)

	c.Generate("anything", "char-1", 1, 1)
	o := waitOutcome(t, outcomes)
	assert.Equal(t, Unavailable, o.Kind)
}

func TestSupersededGenerationDiscarded(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{}
	client.push("old scene", func() (*Result, error) {
		<-gate
		return &Result{Images: []Image{{Bytes: []byte("stale")}}}, nil
	})
	client.push("new scene", func() (*Result, error) {
		return &Result{Images: []Image{{Bytes: []byte("fresh")}}}, nil
	})
	c, ledger, outcomes, _ := newTestCoordinator(t, client)

	c.Generate("old scene", "char-1", 1, 1)
	c.Generate("new scene", "char-1", 1, 2)

	o := waitOutcome(t, outcomes)
	assert.Equal(t, "new scene", o.Prompt)
	assert.Equal(t, []byte("fresh"), o.Bytes)

	close(gate)
	select {
	case o := <-outcomes:
		t.Fatalf("superseded generation delivered: %+v", o)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 1, ledger.Snapshot().TotalImages)
}

func TestCancelFlag(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, &fakeClient{})

	assert.False(t, c.Cancelled())
	c.Cancel()
	assert.True(t, c.Cancelled())
	c.Cancel() // idempotent
	assert.True(t, c.Cancelled())
}

func TestGenerateClearsCancelFlag(t *testing.T) {
	client := &fakeClient{}
	client.push("fresh start", func() (*Result, error) { return &Result{}, nil })
	c, _, outcomes, _ := newTestCoordinator(t, client)

	c.Cancel()
	c.Generate("fresh start", "char-1", 1, 1)
	assert.False(t, c.Cancelled())
	waitOutcome(t, outcomes)
}

func TestPlaceholdersAreValidPNG(t *testing.T) {
	sig := []byte{0x89, 'P', 'N', 'G'}
	assert.Equal(t, sig, PlaceholderUnavailable()[:4])
	assert.Equal(t, sig, PlaceholderFiltered()[:4])
}

// Package billing tracks token and image usage across a session and converts
// it to cost estimates using per-model rates.
package billing

import (
	_ "embed"
	"encoding/json"
	"sync"
)

// Rates holds the pricing for one model. Missing rates are treated as free.
type Rates struct {
	TextInputCostPerToken   float64 `json:"text_input_cost_per_token"`
	TextOutputCostPerToken  float64 `json:"text_output_cost_per_token"`
	AudioOutputCostPerToken float64 `json:"audio_output_cost_per_token"`
	OutputCostPerImage      float64 `json:"output_cost_per_image"`
}

//go:embed model_costs.json
var costData []byte

// LoadRates returns the rate table embedded with the binary, keyed by model
// identifier. Unknown models map to the zero Rates.
func LoadRates() map[string]Rates {
	var table map[string]Rates
	if err := json.Unmarshal(costData, &table); err != nil {
		return map[string]Rates{}
	}
	return table
}

// TextCosts returns (prompt, completion, total) cost for text tokens.
func (r Rates) TextCosts(promptTokens, completionTokens int) (float64, float64, float64) {
	p := float64(promptTokens) * r.TextInputCostPerToken
	c := float64(completionTokens) * r.TextOutputCostPerToken
	return p, c, p + c
}

// AudioCosts returns (prompt, output, total) cost for audio tokens.
func (r Rates) AudioCosts(promptTokens, outputTokens int) (float64, float64, float64) {
	p := float64(promptTokens) * r.TextInputCostPerToken
	o := float64(outputTokens) * r.AudioOutputCostPerToken
	return p, o, p + o
}

// ImageCosts returns the total cost for count generated images.
func (r Rates) ImageCosts(count int) float64 {
	return float64(count) * r.OutputCostPerImage
}

// Ledger accumulates session usage. Safe for concurrent use; the text worker,
// narration worker and image worker all report into it.
type Ledger struct {
	mu sync.Mutex

	LastPromptTokens      int
	LastCompletionTokens  int
	TotalPromptTokens     int
	TotalCompletionTokens int

	TotalAudioPromptTokens int
	TotalAudioOutputTokens int

	TotalImages int
}

// RecordText records the usage of one completed text-generation call.
func (l *Ledger) RecordText(promptTokens, completionTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.LastPromptTokens = promptTokens
	l.LastCompletionTokens = completionTokens
	l.TotalPromptTokens += promptTokens
	l.TotalCompletionTokens += completionTokens
}

// RecordAudio records the usage of one completed narration stream.
func (l *Ledger) RecordAudio(promptTokens, outputTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.TotalAudioPromptTokens += promptTokens
	l.TotalAudioOutputTokens += outputTokens
}

// RecordImage counts one successfully generated, unfiltered image.
func (l *Ledger) RecordImage() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.TotalImages++
}

// Snapshot returns a copy of the current counters.
func (l *Ledger) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Usage{
		LastPromptTokens:       l.LastPromptTokens,
		LastCompletionTokens:   l.LastCompletionTokens,
		TotalPromptTokens:      l.TotalPromptTokens,
		TotalCompletionTokens:  l.TotalCompletionTokens,
		TotalAudioPromptTokens: l.TotalAudioPromptTokens,
		TotalAudioOutputTokens: l.TotalAudioOutputTokens,
		TotalImages:            l.TotalImages,
	}
}

// Usage is an immutable snapshot of ledger counters.
type Usage struct {
	LastPromptTokens       int
	LastCompletionTokens   int
	TotalPromptTokens      int
	TotalCompletionTokens  int
	TotalAudioPromptTokens int
	TotalAudioOutputTokens int
	TotalImages            int
}

// Report prices a usage snapshot against the given model rates.
type Report struct {
	TextPromptCost     float64
	TextCompletionCost float64
	AudioCost          float64
	ImageCost          float64
	Total              float64
}

// Price converts usage into a cost report using per-model rate lookups.
func Price(u Usage, table map[string]Rates, textModel, audioModel, imageModel string) Report {
	var rep Report
	p, c, _ := table[textModel].TextCosts(u.TotalPromptTokens, u.TotalCompletionTokens)
	rep.TextPromptCost = p
	rep.TextCompletionCost = c
	_, _, audio := table[audioModel].AudioCosts(u.TotalAudioPromptTokens, u.TotalAudioOutputTokens)
	rep.AudioCost = audio
	rep.ImageCost = table[imageModel].ImageCosts(u.TotalImages)
	rep.Total = p + c + audio + rep.ImageCost
	return rep
}

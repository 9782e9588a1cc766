package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/pelldrake/ashveil/internal/models"
)

//go:embed prompts/initial_turn.txt
var initialTurnPrompt string

//go:embed prompts/process_turn.txt
var processTurnPrompt string

var (
	initialTmpl = template.Must(template.New("initial_turn").Parse(initialTurnPrompt))
	turnTmpl    = template.Must(template.New("process_turn").Parse(processTurnPrompt))
)

type initialPromptData struct {
	Preamble string
	Identity string
}

type turnPromptData struct {
	Preamble        string
	History         []models.HistoryEntry
	Latest          models.HistoryEntry
	EnvironmentJSON string
	AttributesJSON  string
	PerksJSON       string
	InventoryJSON   string
}

// buildInitialPrompt renders the game-start prompt for a fresh character.
func buildInitialPrompt(preamble, identity string) (string, error) {
	var buf bytes.Buffer
	err := initialTmpl.Execute(&buf, initialPromptData{Preamble: preamble, Identity: identity})
	return buf.String(), err
}

// buildTurnPrompt renders the prompt for a regular turn. The latest entry
// (the situation just left and the option chosen to leave it) is rendered
// separately from the earlier story so the model treats it as the action to
// process.
func buildTurnPrompt(preamble string, state models.TurnState, latest models.HistoryEntry) (string, error) {
	data := turnPromptData{
		Preamble:        preamble,
		History:         state.History,
		Latest:          latest,
		EnvironmentJSON: mustJSON(withKeys(state.Environment, models.EnvironmentKeys)),
		AttributesJSON:  mustJSON(withKeys(state.Attributes, models.AttributeKeys)),
		PerksJSON:       mustJSON(state.Perks),
		InventoryJSON:   mustJSON(state.Inventory),
	}
	var buf bytes.Buffer
	err := turnTmpl.Execute(&buf, data)
	return buf.String(), err
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func withKeys(m map[string]string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelldrake/ashveil/internal/models"
)

func TestBuildInitialPrompt(t *testing.T) {
	p, err := buildInitialPrompt("## STYLE: Grim\nmud\n", "a disgraced knight")
	require.NoError(t, err)
	assert.Contains(t, p, "## STYLE: Grim")
	assert.Contains(t, p, "a disgraced knight")
}

func TestBuildTurnPrompt(t *testing.T) {
	state := models.NewTurnState()
	state.Attributes["Health"] = "75%"
	state.Environment["Location"] = "Mill"
	state.Inventory = []models.InventoryItem{{Name: "rope", Weight: 1.5}}
	state.History = []models.HistoryEntry{
		{Day: 1, Time: "dawn", Situation: "You woke.", Choice: "Stand"},
	}
	latest := models.HistoryEntry{Day: 1, Time: "noon", Situation: "A fork in the road.", Choice: "Go left"}

	p, err := buildTurnPrompt("preamble text", state, latest)
	require.NoError(t, err)

	assert.Contains(t, p, "preamble text")
	assert.Contains(t, p, "A fork in the road.")
	assert.Contains(t, p, "Go left")
	assert.Contains(t, p, "You woke.")
	assert.Contains(t, p, `"Health":"75%"`)
	assert.Contains(t, p, `"rope"`)
	// Unset canonical keys are still present so the model sees the full set.
	assert.Contains(t, p, `"Sanity":""`)
	assert.Contains(t, p, `"Soundscape":""`)
}

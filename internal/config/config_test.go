package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "k", cfg.GeminiAPIKey)
	assert.Equal(t, DefaultTextModel, cfg.TextModel)
	assert.Equal(t, DefaultAudioVoice, cfg.AudioVoice)
	assert.True(t, cfg.EnableAudio)
	assert.False(t, cfg.EnableImages)
	assert.InDelta(t, 2.0, float64(cfg.InitialTemperature), 0.001)
	assert.InDelta(t, 0.6, float64(cfg.TurnTemperature), 0.001)
}

func TestLoadFileOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	path := filepath.Join(t.TempDir(), "ashveil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"text_model: other-model\nenable_images: true\nturn_temperature: 0.9\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other-model", cfg.TextModel)
	assert.True(t, cfg.EnableImages)
	assert.InDelta(t, 0.9, float64(cfg.TurnTemperature), 0.001)
	// Untouched settings keep their defaults.
	assert.Equal(t, DefaultAudioModel, cfg.AudioModel)
}

func TestLoadMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	path := filepath.Join(t.TempDir(), "ashveil.yaml")
	cfg := defaults()
	cfg.TextModel = "saved-model"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", got.TextModel)
}

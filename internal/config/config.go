// Package config assembles application settings from the environment and an
// optional YAML settings file. Everything downstream receives an explicit
// *Config; there are no package-level model globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default model identifiers. Overridable through ashveil.yaml.
const (
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultAudioModel = "gemini-2.5-flash-preview-native-audio-dialog"
	DefaultAudioVoice = "Algenib"
	DefaultImageModel = "imagen-4.0-fast-generate-001"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `yaml:"-"`

	TextModel  string `yaml:"text_model"`
	AudioModel string `yaml:"audio_model"`
	AudioVoice string `yaml:"audio_voice"`
	ImageModel string `yaml:"image_model"`

	EnableAudio  bool `yaml:"enable_audio"`
	EnableImages bool `yaml:"enable_images"`

	SaveDir  string `yaml:"save_dir"`
	ImageDir string `yaml:"image_dir"`
	WorldMap string `yaml:"world_file"`

	// Sampling temperatures for the first and for subsequent turns. The
	// opening scene wants maximum variety; later turns need coherence.
	InitialTemperature float32 `yaml:"initial_temperature"`
	TurnTemperature    float32 `yaml:"turn_temperature"`
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".ashveil")
	return &Config{
		TextModel:          DefaultTextModel,
		AudioModel:         DefaultAudioModel,
		AudioVoice:         DefaultAudioVoice,
		ImageModel:         DefaultImageModel,
		EnableAudio:        true,
		EnableImages:       false,
		SaveDir:            filepath.Join(base, "saves"),
		ImageDir:           filepath.Join(base, "images"),
		WorldMap:           "world.txt",
		InitialTemperature: 2.0,
		TurnTemperature:    0.6,
	}
}

// Load reads .env (best effort), the optional settings file at path, and the
// GEMINI_API_KEY environment variable.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	return cfg, nil
}

// Save writes the adjustable settings back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

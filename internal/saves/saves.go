// Package saves persists full game sessions, one record per character.
// Records are versioned JSON; gob-encoded .dat files written by earlier
// releases are still readable through a dedicated legacy decoder.
package saves

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelldrake/ashveil/internal/models"
)

// Version is written into every record so future layouts can dispatch on it.
const Version = 2

var (
	// ErrNotFound is returned when no record exists for a character.
	ErrNotFound = errors.New("save not found")
	// ErrCorrupt is returned when a record cannot be decoded.
	ErrCorrupt = errors.New("save record corrupt")
)

// Record is everything needed to resume a session: the canonical turn state
// plus auxiliary presentation data.
type Record struct {
	Version     int    `json:"version"`
	CharacterID string `json:"character_id"`
	Identity    string `json:"identity"`
	Style       string `json:"style"`
	Difficulty  string `json:"difficulty"`

	State models.TurnState `json:"state"`

	// Auxiliary fields; all optional so older records still load.
	StoryText  string           `json:"story_text,omitempty"`
	PaneSizes  map[string][]int `json:"pane_sizes,omitempty"`
	SceneImage []byte           `json:"scene_image,omitempty"`
}

// Summary describes one saved game for the load menu.
type Summary struct {
	CharacterID string
	Name        string
	Location    string
	Turn        int
	SavedAt     time.Time
	SceneImage  []byte
}

// Store reads and writes records under a single directory.
type Store struct {
	dir string
}

// NewStore ensures dir exists and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) legacyPath(id string) string {
	return filepath.Join(s.dir, id+".dat")
}

// Save overwrites the record for rec.CharacterID. One record per character;
// no slot history.
func (s *Store) Save(rec Record) error {
	rec.Version = Version
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	if err := os.WriteFile(s.path(rec.CharacterID), data, 0o644); err != nil {
		return fmt.Errorf("write save: %w", err)
	}
	return nil
}

// Load reads the record for id, falling back to the legacy .dat layout when no
// JSON record exists.
func (s *Store) Load(id string) (Record, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return s.loadLegacy(id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read save: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (Record, error) {
	// Read the version first and dispatch explicitly; never guess formats.
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	switch header.Version {
	case Version:
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if rec.State.Attributes == nil {
			rec.State.Attributes = map[string]string{}
		}
		if rec.State.Environment == nil {
			rec.State.Environment = map[string]string{}
		}
		return rec, nil
	default:
		return Record{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
}

// loadLegacy decodes the pre-versioning gob layout.
func (s *Store) loadLegacy(id string) (Record, error) {
	f, err := os.Open(s.legacyPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read legacy save: %w", err)
	}
	defer f.Close()

	var rec Record
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("%w: legacy decode: %v", ErrCorrupt, err)
	}
	rec.Version = Version
	if rec.State.Attributes == nil {
		rec.State.Attributes = map[string]string{}
	}
	if rec.State.Environment == nil {
		rec.State.Environment = map[string]string{}
	}
	return rec, nil
}

// List returns summaries of all readable saves, most recently written first.
// Unreadable files are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	var out []Summary
	seen := map[string]bool{}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		ext := filepath.Ext(ent.Name())
		if ext != ".json" && ext != ".dat" {
			continue
		}
		id := ent.Name()[:len(ent.Name())-len(ext)]
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, err := s.Load(id)
		if err != nil {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		out = append(out, Summary{
			CharacterID: rec.CharacterID,
			Name:        rec.State.Attributes["Name"],
			Location:    rec.State.Environment["Location"],
			Turn:        rec.State.Turn,
			SavedAt:     info.ModTime(),
			SceneImage:  rec.SceneImage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

// Delete removes the record for id in either layout.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		err = os.Remove(s.legacyPath(id))
	}
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

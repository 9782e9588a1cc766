package models

import "encoding/json"

// AttributeKeys is the canonical display order of character attributes.
// The game master always returns the full set.
var AttributeKeys = []string{
	"Name", "Background", "Age", "Health", "Sanity", "Hunger", "Thirst", "Stamina",
}

// EnvironmentKeys is the canonical display order of environment readings.
var EnvironmentKeys = []string{
	"Location", "Daytime", "Light", "Temperature", "Humidity", "Wind", "Soundscape",
}

// InventoryItem is a single item carried by the player.
type InventoryItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Equipped    bool    `json:"equipped"`
}

// PerkSkill is a perk or skill with its level and description.
type PerkSkill struct {
	Name        string `json:"name"`
	Degree      string `json:"degree"`
	Description string `json:"description"`
}

// Attributes are the character statistics as returned by the game master.
// All values are free-form strings; the engine performs no numeric validation.
type Attributes struct {
	Name       string `json:"Name"`
	Background string `json:"Background"`
	Age        string `json:"Age"`
	Health     string `json:"Health"`
	Sanity     string `json:"Sanity"`
	Hunger     string `json:"Hunger"`
	Thirst     string `json:"Thirst"`
	Stamina    string `json:"Stamina"`
}

// Map returns the attributes keyed by their canonical names.
func (a Attributes) Map() map[string]string {
	return map[string]string{
		"Name":       a.Name,
		"Background": a.Background,
		"Age":        a.Age,
		"Health":     a.Health,
		"Sanity":     a.Sanity,
		"Hunger":     a.Hunger,
		"Thirst":     a.Thirst,
		"Stamina":    a.Stamina,
	}
}

// Environment describes the conditions surrounding the character.
type Environment struct {
	Location    string `json:"Location"`
	Daytime     string `json:"Daytime"`
	Light       string `json:"Light"`
	Temperature string `json:"Temperature"`
	Humidity    string `json:"Humidity"`
	Wind        string `json:"Wind"`
	Soundscape  string `json:"Soundscape"`
}

// Map returns the environment keyed by canonical names.
func (e Environment) Map() map[string]string {
	return map[string]string{
		"Location":    e.Location,
		"Daytime":     e.Daytime,
		"Light":       e.Light,
		"Temperature": e.Temperature,
		"Humidity":    e.Humidity,
		"Wind":        e.Wind,
		"Soundscape":  e.Soundscape,
	}
}

// GameResponse is the full structured reply from the game master for one turn.
// The streamed response body is a JSON document of exactly this shape.
type GameResponse struct {
	Day              int             `json:"day"`
	Time             string          `json:"time"`
	CurrentSituation string          `json:"current_situation"`
	Environment      Environment     `json:"environment"`
	Inventory        []InventoryItem `json:"inventory"`
	PerksSkills      []PerkSkill     `json:"perks_skills"`
	Attributes       Attributes      `json:"attributes"`
	Options          []string        `json:"options"`
	ImagePrompt      string          `json:"image_prompt"`
}

// ParseGameResponse decodes the accumulated raw stream text into a GameResponse
// and scrubs control characters from every string field.
func ParseGameResponse(raw string) (*GameResponse, error) {
	var gr GameResponse
	if err := json.Unmarshal([]byte(raw), &gr); err != nil {
		return nil, err
	}
	gr.Clean()
	return &gr, nil
}

// Clean strips Unicode control characters from all string fields in place.
func (gr *GameResponse) Clean() {
	gr.Time = CleanControl(gr.Time)
	gr.CurrentSituation = CleanControl(gr.CurrentSituation)
	gr.ImagePrompt = CleanControl(gr.ImagePrompt)

	gr.Attributes.Name = CleanControl(gr.Attributes.Name)
	gr.Attributes.Background = CleanControl(gr.Attributes.Background)
	gr.Attributes.Age = CleanControl(gr.Attributes.Age)
	gr.Attributes.Health = CleanControl(gr.Attributes.Health)
	gr.Attributes.Sanity = CleanControl(gr.Attributes.Sanity)
	gr.Attributes.Hunger = CleanControl(gr.Attributes.Hunger)
	gr.Attributes.Thirst = CleanControl(gr.Attributes.Thirst)
	gr.Attributes.Stamina = CleanControl(gr.Attributes.Stamina)

	gr.Environment.Location = CleanControl(gr.Environment.Location)
	gr.Environment.Daytime = CleanControl(gr.Environment.Daytime)
	gr.Environment.Light = CleanControl(gr.Environment.Light)
	gr.Environment.Temperature = CleanControl(gr.Environment.Temperature)
	gr.Environment.Humidity = CleanControl(gr.Environment.Humidity)
	gr.Environment.Wind = CleanControl(gr.Environment.Wind)
	gr.Environment.Soundscape = CleanControl(gr.Environment.Soundscape)

	for i := range gr.Inventory {
		gr.Inventory[i].Name = CleanControl(gr.Inventory[i].Name)
		gr.Inventory[i].Description = CleanControl(gr.Inventory[i].Description)
	}
	for i := range gr.PerksSkills {
		gr.PerksSkills[i].Name = CleanControl(gr.PerksSkills[i].Name)
		gr.PerksSkills[i].Degree = CleanControl(gr.PerksSkills[i].Degree)
		gr.PerksSkills[i].Description = CleanControl(gr.PerksSkills[i].Description)
	}
	for i := range gr.Options {
		gr.Options[i] = CleanControl(gr.Options[i])
	}
}

// HistoryEntry records one completed turn: the situation the player was in and
// the option chosen to leave it, stamped with that turn's day and time.
type HistoryEntry struct {
	Day       int    `json:"day"`
	Time      string `json:"time"`
	Situation string `json:"situation"`
	Choice    string `json:"choice"`
}

// TurnState is the canonical game state. It is owned by the engine and mutated
// only by whole-mapping / whole-sequence replacement at each commit.
type TurnState struct {
	Turn                int               `json:"turn"`
	Day                 int               `json:"day"`
	Time                string            `json:"time"`
	Attributes          map[string]string `json:"attributes"`
	Environment         map[string]string `json:"environment"`
	Inventory           []InventoryItem   `json:"inventory"`
	Perks               []PerkSkill       `json:"perks_skills"`
	CurrentSituation    string            `json:"current_situation"`
	Options             []string          `json:"options"`
	History             []HistoryEntry    `json:"history"`
	PreviousImagePrompt string            `json:"previous_image_prompt,omitempty"`
}

// NewTurnState returns an empty session state positioned before the first turn.
func NewTurnState() TurnState {
	return TurnState{
		Turn:        1,
		Attributes:  map[string]string{},
		Environment: map[string]string{},
	}
}

// Clone returns a deep copy, safe to hand to observers and the save layer.
func (s TurnState) Clone() TurnState {
	out := s
	out.Attributes = make(map[string]string, len(s.Attributes))
	for k, v := range s.Attributes {
		out.Attributes[k] = v
	}
	out.Environment = make(map[string]string, len(s.Environment))
	for k, v := range s.Environment {
		out.Environment[k] = v
	}
	out.Inventory = append([]InventoryItem(nil), s.Inventory...)
	out.Perks = append([]PerkSkill(nil), s.Perks...)
	out.Options = append([]string(nil), s.Options...)
	out.History = append([]HistoryEntry(nil), s.History...)
	return out
}

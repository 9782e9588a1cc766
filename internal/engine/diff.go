package engine

import "github.com/pelldrake/ashveil/internal/models"

// ChangeKind classifies one diffed item.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Added
	Changed
)

// FieldDiff compares one attribute or environment value across a commit.
type FieldDiff struct {
	Key     string
	Old     string
	New     string
	Changed bool
}

// ItemDiff compares one inventory item, matched by name.
type ItemDiff struct {
	Kind ChangeKind
	Old  models.InventoryItem
	New  models.InventoryItem
}

// PerkDiff compares one perk or skill, matched by name.
type PerkDiff struct {
	Kind ChangeKind
	Old  models.PerkSkill
	New  models.PerkSkill
}

// Diff is the presentation-only comparison between the previous committed
// state and a freshly parsed response. It never influences game logic.
type Diff struct {
	Initial     bool
	Attributes  []FieldDiff
	Environment []FieldDiff
	Inventory   []ItemDiff
	Perks       []PerkDiff
}

// computeDiff builds the per-field diff of gr against prev. On the initial
// commit there is no previous state worth comparing, so every entry is
// reported unchanged and Initial is set.
func computeDiff(prev models.TurnState, gr *models.GameResponse, initial bool) *Diff {
	d := &Diff{Initial: initial}

	attrs := gr.Attributes.Map()
	for _, key := range models.AttributeKeys {
		fd := FieldDiff{Key: key, Old: prev.Attributes[key], New: attrs[key]}
		fd.Changed = !initial && fd.Old != fd.New
		d.Attributes = append(d.Attributes, fd)
	}

	env := gr.Environment.Map()
	for _, key := range models.EnvironmentKeys {
		fd := FieldDiff{Key: key, Old: prev.Environment[key], New: env[key]}
		fd.Changed = !initial && fd.Old != fd.New
		d.Environment = append(d.Environment, fd)
	}

	for _, item := range gr.Inventory {
		id := ItemDiff{New: item}
		old, ok := findItem(prev.Inventory, item.Name)
		switch {
		case initial:
			id.Kind = Unchanged
		case !ok:
			id.Kind = Added
		case old.Weight != item.Weight || old.Equipped != item.Equipped:
			id.Kind = Changed
			id.Old = old
		default:
			id.Kind = Unchanged
			id.Old = old
		}
		d.Inventory = append(d.Inventory, id)
	}

	for _, perk := range gr.PerksSkills {
		pd := PerkDiff{New: perk}
		old, ok := findPerk(prev.Perks, perk.Name)
		switch {
		case initial:
			pd.Kind = Unchanged
		case !ok:
			pd.Kind = Added
		case old.Degree != perk.Degree:
			pd.Kind = Changed
			pd.Old = old
		default:
			pd.Kind = Unchanged
			pd.Old = old
		}
		d.Perks = append(d.Perks, pd)
	}

	return d
}

func findItem(items []models.InventoryItem, name string) (models.InventoryItem, bool) {
	for _, it := range items {
		if it.Name == name {
			return it, true
		}
	}
	return models.InventoryItem{}, false
}

func findPerk(perks []models.PerkSkill, name string) (models.PerkSkill, bool) {
	for _, p := range perks {
		if p.Name == name {
			return p, true
		}
	}
	return models.PerkSkill{}, false
}

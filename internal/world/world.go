// Package world loads the narrative style and difficulty sections that form
// the prompt preamble. A user-provided world.txt next to the binary overrides
// the embedded default.
package world

import (
	_ "embed"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed assets/world.txt
var embeddedWorld string

var headerRe = regexp.MustCompile(`^(STYLE|DIFFICULTY):\s*(.+)$`)

// Sections holds the parsed style and difficulty sections, keyed by title.
// Values are the full section text including the "## " header line.
type Sections struct {
	Styles       map[string]string
	Difficulties map[string]string
}

// Load parses world.txt from path if it exists, falling back to the embedded
// copy.
func Load(path string) Sections {
	raw := embeddedWorld
	if data, err := os.ReadFile(path); err == nil {
		raw = string(data)
	}
	return Parse(raw)
}

// Parse splits raw world text on lines starting with "##" and collects the
// STYLE and DIFFICULTY sections.
func Parse(raw string) Sections {
	s := Sections{
		Styles:       map[string]string{},
		Difficulties: map[string]string{},
	}
	for _, part := range regexp.MustCompile(`(?m)^##\s*`).Split(raw, -1) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		header, body, _ := strings.Cut(part, "\n")
		m := headerRe.FindStringSubmatch(strings.TrimSpace(header))
		if m == nil {
			continue
		}
		content := "## " + strings.TrimSpace(header) + "\n" + strings.TrimSpace(body) + "\n"
		if m[1] == "STYLE" {
			s.Styles[strings.TrimSpace(m[2])] = content
		} else {
			s.Difficulties[strings.TrimSpace(m[2])] = content
		}
	}
	return s
}

// Preamble concatenates the chosen style and difficulty sections. Unknown
// titles contribute nothing.
func (s Sections) Preamble(style, difficulty string) string {
	return s.Styles[style] + "\n" + s.Difficulties[difficulty]
}

// StyleTitles returns the style titles in stable sorted order.
func (s Sections) StyleTitles() []string { return sortedKeys(s.Styles) }

// DifficultyTitles returns the difficulty titles in stable sorted order.
func (s Sections) DifficultyTitles() []string { return sortedKeys(s.Difficulties) }

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Package tui is the terminal front end. It renders the streaming situation
// text, the stat pane with change highlighting, and the menus for starting,
// loading and deleting games. All engine events arrive as bubbletea messages
// through a Forwarder, so Update never races the dispatch goroutine.
package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pelldrake/ashveil/internal/billing"
	"github.com/pelldrake/ashveil/internal/config"
	"github.com/pelldrake/ashveil/internal/engine"
	"github.com/pelldrake/ashveil/internal/images"
	"github.com/pelldrake/ashveil/internal/models"
	"github.com/pelldrake/ashveil/internal/saves"
	"github.com/pelldrake/ashveil/internal/world"
)

type sessionState int

const (
	stateMenu sessionState = iota
	stateIdentity
	statePickStyle
	statePickDifficulty
	stateLoadMenu
	stateStreaming
	statePlaying
	stateError
)

// Forwarder adapts engine callbacks into bubbletea messages. It is handed to
// the engine before the program exists, so the program is attached late.
type Forwarder struct {
	mu sync.Mutex
	p  *tea.Program
}

func NewForwarder() *Forwarder { return &Forwarder{} }

// Attach binds the running program. Events arriving earlier are dropped.
func (f *Forwarder) Attach(p *tea.Program) {
	f.mu.Lock()
	f.p = p
	f.mu.Unlock()
}

func (f *Forwarder) send(msg tea.Msg) {
	f.mu.Lock()
	p := f.p
	f.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (f *Forwarder) OnSituationDelta(text string) { f.send(deltaMsg{text}) }

func (f *Forwarder) OnTurnCommitted(state models.TurnState, diff *engine.Diff) {
	f.send(committedMsg{state, diff})
}

func (f *Forwarder) OnImage(outcome images.Outcome) { f.send(imageMsg{outcome}) }

func (f *Forwarder) OnError(kind engine.ErrorKind, message string) {
	f.send(pipelineErrMsg{kind, message})
}

type deltaMsg struct{ text string }

type committedMsg struct {
	state models.TurnState
	diff  *engine.Diff
}

type imageMsg struct{ outcome images.Outcome }

type pipelineErrMsg struct {
	kind    engine.ErrorKind
	message string
}

var (
	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	storyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	statPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	changedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F")).
			Bold(true)

	wasStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87AF87")).
			Italic(true)
)

type Model struct {
	state  sessionState
	prev   sessionState
	eng    *engine.Engine
	store  *saves.Store
	cfg    *config.Config
	rates  map[string]billing.Rates
	styles []string
	diffs  []string

	textInput textinput.Model
	viewport  viewport.Model
	width     int
	height    int

	cursor   int
	savesRow []saves.Summary

	identity   string
	style      string
	difficulty string

	game      models.TurnState
	diff      *engine.Diff
	gameLog   string
	streaming strings.Builder
	status    string
	errText   string
}

func NewModel(eng *engine.Engine, store *saves.Store, cfg *config.Config, sections world.Sections) Model {
	ti := textinput.New()
	ti.Placeholder = "Who are you? (leave blank for a random soul)"
	ti.Focus()
	ti.CharLimit = 300
	ti.Width = 60

	return Model{
		state:     stateMenu,
		eng:       eng,
		store:     store,
		cfg:       cfg,
		rates:     billing.LoadRates(),
		styles:    sections.StyleTitles(),
		diffs:     sections.DifficultyTitles(),
		textInput: ti,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

var menuItems = []string{"New Game", "Load Game", "Quit"}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 7
		m.eng.SetPaneSizes(map[string][]int{
			"log":   {m.viewport.Width, m.viewport.Height},
			"stats": {m.statWidth(), m.viewport.Height},
		})
		m.refreshViewport(false)

	case deltaMsg:
		m.streaming.WriteString(msg.text)
		m.refreshViewport(true)

	case committedMsg:
		m.game = msg.state
		m.diff = msg.diff
		m.streaming.Reset()
		if m.gameLog != "" {
			m.gameLog += "\n\n"
		}
		m.gameLog += storyStyle.Width(m.logWidth()).Render(msg.state.CurrentSituation)
		m.state = statePlaying
		m.status = ""
		m.textInput.Placeholder = "Choose 1-5 or type your own action"
		m.textInput.Reset()
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(m.logWidth(), m.height-7)
		}
		m.refreshViewport(true)

	case imageMsg:
		switch msg.outcome.Kind {
		case images.Generated:
			m.status = "scene image saved: " + msg.outcome.Path
		case images.Filtered:
			m.status = "scene image withheld by safety filtering"
		default:
			m.status = "scene image unavailable"
		}

	case pipelineErrMsg:
		if msg.kind == engine.PersistWarning {
			m.status = msg.message
			break
		}
		m.streaming.Reset()
		m.errText = msg.message
		m.prev = statePlaying
		if m.game.Turn == 0 && m.game.CurrentSituation == "" {
			m.prev = stateMenu
		}
		m.state = stateError
	}

	if m.state == stateIdentity || m.state == statePlaying {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.state {
	case stateMenu:
		switch msg.String() {
		case "up", "k":
			m.cursor = max(0, m.cursor-1)
		case "down", "j":
			m.cursor = min(len(menuItems)-1, m.cursor+1)
		case "enter":
			switch m.cursor {
			case 0:
				m.state = stateIdentity
				m.textInput.Reset()
				m.textInput.Focus()
			case 1:
				m.savesRow = m.listSaves()
				m.cursor = 0
				m.state = stateLoadMenu
			case 2:
				return m, tea.Quit
			}
		case "esc", "q":
			return m, tea.Quit
		}

	case stateIdentity:
		switch msg.Type {
		case tea.KeyEsc:
			m.state = stateMenu
			m.cursor = 0
		case tea.KeyEnter:
			m.identity = strings.TrimSpace(m.textInput.Value())
			if m.identity == "" {
				m.identity = "random"
			}
			m.cursor = 0
			m.state = statePickStyle
		default:
			var cmd tea.Cmd
			m.textInput, cmd = m.textInput.Update(msg)
			return m, cmd
		}

	case statePickStyle:
		switch msg.String() {
		case "up", "k":
			m.cursor = max(0, m.cursor-1)
		case "down", "j":
			m.cursor = min(len(m.styles)-1, m.cursor+1)
		case "enter":
			if len(m.styles) > 0 {
				m.style = m.styles[m.cursor]
			}
			m.cursor = 0
			m.state = statePickDifficulty
		case "esc":
			m.state = stateIdentity
		}

	case statePickDifficulty:
		switch msg.String() {
		case "up", "k":
			m.cursor = max(0, m.cursor-1)
		case "down", "j":
			m.cursor = min(len(m.diffs)-1, m.cursor+1)
		case "enter":
			if len(m.diffs) > 0 {
				m.difficulty = m.diffs[m.cursor]
			}
			return m.startGame()
		case "esc":
			m.cursor = 0
			m.state = statePickStyle
		}

	case stateLoadMenu:
		switch msg.String() {
		case "up", "k":
			m.cursor = max(0, m.cursor-1)
		case "down", "j":
			m.cursor = min(len(m.savesRow)-1, m.cursor+1)
		case "enter":
			if m.cursor < len(m.savesRow) {
				return m.loadGame(m.savesRow[m.cursor].CharacterID)
			}
		case "d":
			if m.cursor < len(m.savesRow) {
				m.store.Delete(m.savesRow[m.cursor].CharacterID)
				m.savesRow = m.listSaves()
				m.cursor = min(m.cursor, max(0, len(m.savesRow)-1))
			}
		case "esc":
			m.cursor = 0
			m.state = stateMenu
		}

	case statePlaying:
		if msg.Type == tea.KeyEnter {
			return m.submitInput()
		}
		// Bare digits pick a listed option directly.
		if m.textInput.Value() == "" && len(msg.String()) == 1 {
			if n := int(msg.String()[0] - '0'); n >= 1 && n <= len(m.game.Options) {
				return m.submitChoice(m.game.Options[n-1])
			}
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd

	case stateError:
		m.state = m.prev
		m.errText = ""
		if m.state == statePlaying {
			m.textInput.Focus()
		}

	case stateStreaming:
		// Input is latched off while a turn is in flight.
	}

	return m, nil
}

func (m Model) startGame() (tea.Model, tea.Cmd) {
	m.gameLog = ""
	m.game = models.TurnState{}
	m.diff = nil
	m.streaming.Reset()
	m.state = stateStreaming
	if err := m.eng.NewGame(m.identity, m.style, m.difficulty); err != nil {
		m.errText = err.Error()
		m.prev = stateMenu
		m.state = stateError
	}
	return m, nil
}

func (m Model) loadGame(id string) (tea.Model, tea.Cmd) {
	m.gameLog = ""
	m.streaming.Reset()
	m.state = stateStreaming
	if err := m.eng.Load(id); err != nil {
		m.errText = err.Error()
		m.prev = stateMenu
		m.state = stateError
	}
	return m, nil
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	if input == "" {
		return m, nil
	}
	m.textInput.Reset()

	switch input {
	case "/quit":
		return m, tea.Quit
	case "/menu":
		if err := m.eng.Reset(); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.state = stateMenu
		m.cursor = 0
		m.gameLog = ""
		m.game = models.TurnState{}
		m.diff = nil
		return m, nil
	case "/costs":
		m.gameLog += "\n\n" + m.renderCosts()
		m.refreshViewport(true)
		return m, nil
	}

	// A bare number picks the corresponding option.
	if n := int(input[0] - '0'); len(input) == 1 && n >= 1 && n <= len(m.game.Options) {
		return m.submitChoice(m.game.Options[n-1])
	}
	return m.submitChoice(input)
}

func (m Model) submitChoice(choice string) (tea.Model, tea.Cmd) {
	if err := m.eng.Submit(choice); err != nil {
		m.status = err.Error()
		return m, nil
	}
	m.gameLog += "\n\n" + choiceStyle.Width(m.logWidth()).Render("> "+choice)
	m.streaming.Reset()
	m.state = stateStreaming
	m.status = ""
	m.refreshViewport(true)
	return m, nil
}

func (m Model) listSaves() []saves.Summary {
	row, err := m.store.List()
	if err != nil {
		return nil
	}
	return row
}

func (m *Model) refreshViewport(bottom bool) {
	content := m.gameLog
	if m.streaming.Len() > 0 {
		if content != "" {
			content += "\n\n"
		}
		content += storyStyle.Width(m.logWidth()).Render(m.streaming.String())
	}
	m.viewport.SetContent(content)
	if bottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) logWidth() int {
	w := int(float64(m.width) * 0.72)
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) statWidth() int {
	w := int(float64(m.width) * 0.25)
	if w < 16 {
		w = 16
	}
	return w
}

func (m Model) View() string {
	var s string

	switch m.state {
	case stateMenu:
		s = titleStyle.Render("ASHVEIL") + "\n\n"
		for i, item := range menuItems {
			s += menuLine(item, i == m.cursor)
		}
		s += "\n" + helpStyle.Render("up/down to move, enter to select, q to quit")

	case stateIdentity:
		s = "Describe your character, or leave blank for a random soul:\n\n" +
			m.textInput.View() + "\n\n" +
			helpStyle.Render("enter to continue, esc to go back")

	case statePickStyle:
		s = titleStyle.Render("WORLD STYLE") + "\n\n"
		for i, item := range m.styles {
			s += menuLine(item, i == m.cursor)
		}
		s += "\n" + helpStyle.Render("enter to choose, esc to go back")

	case statePickDifficulty:
		s = titleStyle.Render("DIFFICULTY") + "\n\n"
		for i, item := range m.diffs {
			s += menuLine(item, i == m.cursor)
		}
		s += "\n" + helpStyle.Render("enter to begin, esc to go back")

	case stateLoadMenu:
		s = titleStyle.Render("SAVED GAMES") + "\n\n"
		if len(m.savesRow) == 0 {
			s += helpStyle.Render("no saved games") + "\n"
		}
		for i, sum := range m.savesRow {
			name := sum.Name
			if name == "" {
				name = sum.CharacterID
			}
			label := fmt.Sprintf("%s  %s, turn %d  (%s)",
				name, sum.Location, sum.Turn, sum.SavedAt.Format("2006-01-02 15:04"))
			s += menuLine(label, i == m.cursor)
		}
		s += "\n" + helpStyle.Render("enter to load, d to delete, esc to go back")

	case stateStreaming, statePlaying:
		main := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.renderStats())
		var bottom string
		if m.state == stateStreaming {
			bottom = helpStyle.Render("the story unfolds...")
		} else {
			bottom = m.renderOptions() + "\n" + m.textInput.View() + "\n" +
				helpStyle.Render("Commands: /costs, /menu, /quit. 1-5 picks an option.")
		}
		if m.status != "" {
			bottom += "\n" + statusStyle.Render(m.status)
		}
		s = lipgloss.JoinVertical(lipgloss.Left, main, "\n"+bottom)

	case stateError:
		s = fmt.Sprintf("\n  Error: %s\n\n%s", m.errText,
			helpStyle.Render("press any key to continue"))
	}

	return "\n" + s + "\n"
}

func menuLine(label string, selected bool) string {
	if selected {
		return cursorStyle.Render("> "+label) + "\n"
	}
	return "  " + label + "\n"
}

func (m Model) renderOptions() string {
	if len(m.game.Options) == 0 {
		return ""
	}
	var b strings.Builder
	for i, opt := range m.game.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	return b.String()
}

// renderStats draws the side pane. Values that changed on the latest turn are
// highlighted with the previous value alongside.
func (m Model) renderStats() string {
	if m.game.CurrentSituation == "" && m.game.Turn == 0 {
		return ""
	}

	attrDiff := map[string]engine.FieldDiff{}
	envDiff := map[string]engine.FieldDiff{}
	if m.diff != nil && !m.diff.Initial {
		for _, d := range m.diff.Attributes {
			attrDiff[d.Key] = d
		}
		for _, d := range m.diff.Environment {
			envDiff[d.Key] = d
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nDay %d, %s  (turn %d)\n\n",
		titleStyle.Render("WHEN"), m.game.Day, m.game.Time, m.game.Turn)

	b.WriteString(titleStyle.Render("ATTRIBUTES") + "\n")
	for _, key := range models.AttributeKeys {
		b.WriteString(statLine(key, m.game.Attributes[key], attrDiff[key]))
	}
	b.WriteString("\n" + titleStyle.Render("ENVIRONMENT") + "\n")
	for _, key := range models.EnvironmentKeys {
		b.WriteString(statLine(key, m.game.Environment[key], envDiff[key]))
	}

	itemKinds := map[string]engine.ChangeKind{}
	perkKinds := map[string]engine.ChangeKind{}
	if m.diff != nil && !m.diff.Initial {
		for _, d := range m.diff.Inventory {
			itemKinds[d.New.Name] = d.Kind
		}
		for _, d := range m.diff.Perks {
			perkKinds[d.New.Name] = d.Kind
		}
	}

	b.WriteString("\n" + titleStyle.Render("INVENTORY") + "\n")
	if len(m.game.Inventory) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, item := range m.game.Inventory {
		mark := " "
		if item.Equipped {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s (%.1f)", mark, item.Name, item.Weight)
		b.WriteString(markChange(line, itemKinds[item.Name]) + "\n")
	}

	b.WriteString("\n" + titleStyle.Render("PERKS & SKILLS") + "\n")
	if len(m.game.Perks) == 0 {
		b.WriteString("(none)\n")
	}
	for _, perk := range m.game.Perks {
		line := fmt.Sprintf("%s: %s", perk.Name, perk.Degree)
		b.WriteString(markChange(line, perkKinds[perk.Name]) + "\n")
	}

	return statPaneStyle.Width(m.statWidth()).Height(m.viewport.Height).Render(b.String())
}

func markChange(line string, kind engine.ChangeKind) string {
	switch kind {
	case engine.Added:
		return changedStyle.Render("+ " + line)
	case engine.Changed:
		return changedStyle.Render("~ " + line)
	default:
		return "  " + line
	}
}

func statLine(key, value string, d engine.FieldDiff) string {
	if d.Changed {
		return key + ": " + changedStyle.Render(value) +
			" " + wasStyle.Render("(was "+d.Old+")") + "\n"
	}
	return key + ": " + value + "\n"
}

func (m Model) renderCosts() string {
	u := m.eng.Usage()
	rep := billing.Price(u, m.rates, m.cfg.TextModel, m.cfg.AudioModel, m.cfg.ImageModel)
	return statusStyle.Render(fmt.Sprintf(
		"Session usage: %d prompt + %d completion text tokens (last turn %d+%d), "+
			"%d+%d audio tokens, %d images. Estimated cost: $%.4f "+
			"(text $%.4f, audio $%.4f, images $%.4f)",
		u.TotalPromptTokens, u.TotalCompletionTokens,
		u.LastPromptTokens, u.LastCompletionTokens,
		u.TotalAudioPromptTokens, u.TotalAudioOutputTokens,
		u.TotalImages, rep.Total,
		rep.TextPromptCost+rep.TextCompletionCost, rep.AudioCost, rep.ImageCost))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

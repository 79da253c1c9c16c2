// internal/tui/app.go
//
// The spritepal TUI is a small session browser built on bubbletea:
// the left pane lists palette maps, the right pane shows the colour table
// summary and the latest conflicts, and the journal tail runs underneath.
//
// Project operations are quick and run inside Update so the project is only
// ever touched from the bubbletea loop.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/spritepal/internal/logbook"
	"github.com/kingrea/spritepal/internal/workspace"
)

const maxWarnings = 50

// inputMode says what the path prompt is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputBase
	inputAdd
)

// restoreMsg asks the app to rebuild the session from the saved manifest.
type restoreMsg struct{}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of the session journal under the panes.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// App is the bubbletea model for `spritepal tui`.
type App struct {
	project *workspace.Project
	logbook *logbook.Logbook

	palettes list.Model
	input    textinput.Model
	mode     inputMode

	warnings  []string
	statusMsg string
	err       error

	width  int
	height int
}

type paletteItem struct {
	name      string
	entries   int
	reference bool
}

func (i paletteItem) Title() string { return i.name }

func (i paletteItem) Description() string {
	if i.reference {
		return fmt.Sprintf("%d colours · reference", i.entries)
	}
	return fmt.Sprintf("%d entries", i.entries)
}

func (i paletteItem) FilterValue() string { return i.name }

// NewApp creates an App over an opened project.
func NewApp(project *workspace.Project, opts ...AppOption) *App {
	palettes := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	palettes.Title = "Palettes"
	palettes.SetShowStatusBar(false)
	palettes.SetFilteringEnabled(false)
	palettes.SetShowHelp(false)

	input := textinput.New()
	input.Prompt = "› "
	input.CharLimit = 4096

	a := &App{
		project:   project,
		palettes:  palettes,
		input:     input,
		statusMsg: "b base · a add · r reapply · w write · q quit",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.refresh()
	return a
}

// Init restores the previous session when the manifest remembers inputs.
func (a *App) Init() tea.Cmd {
	if len(a.project.Manifest().Paths()) == 0 {
		return nil
	}
	return func() tea.Msg { return restoreMsg{} }
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.palettes.SetSize(max(20, msg.Width/2-6), max(5, msg.Height-16))
		a.input.Width = max(20, msg.Width-8)
		return a, nil

	case restoreMsg:
		a.reapply("Restored")
		return a, nil

	case tea.KeyMsg:
		if a.mode != inputNone {
			return a.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "b":
			return a, a.prompt(inputBase, "base image or palette document")
		case "a":
			return a, a.prompt(inputAdd, "sprites, archives, or documents (space separated)")
		case "r":
			a.reapply("Reapplied")
			return a, nil
		case "w":
			a.write()
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.palettes, cmd = a.palettes.Update(msg)
	return a, cmd
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return a, tea.Quit
	case tea.KeyEsc:
		a.closePrompt()
		a.statusMsg = "Cancelled"
		return a, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(a.input.Value())
		mode := a.mode
		a.closePrompt()
		if value == "" {
			a.statusMsg = "No path entered"
			return a, nil
		}
		if mode == inputBase {
			a.setBase(value)
		} else {
			a.add(strings.Fields(value))
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) prompt(mode inputMode, placeholder string) tea.Cmd {
	a.mode = mode
	a.input.Reset()
	a.input.Placeholder = placeholder
	return a.input.Focus()
}

func (a *App) closePrompt() {
	a.mode = inputNone
	a.input.Blur()
	a.input.Reset()
}

func (a *App) setBase(path string) {
	err := a.project.SetBase(path)
	a.settle(err)
	if err == nil {
		a.statusMsg = fmt.Sprintf("Base set to %s (%s)", filepath.Base(path), a.project.State().Dimensions())
	}
}

func (a *App) add(paths []string) {
	before := len(a.project.State().Palettes())
	err := a.project.Add(context.Background(), paths...)
	a.settle(err)
	added := len(a.project.State().Palettes()) - before
	a.statusMsg = fmt.Sprintf("Added %d palette(s)", added)
	if err != nil {
		a.statusMsg += fmt.Sprintf(" · %v", err)
	}
}

func (a *App) reapply(verb string) {
	changed, err := a.project.Reapply(context.Background())
	a.settle(err)
	a.statusMsg = fmt.Sprintf("%s %d input(s)", verb, len(a.project.Manifest().Paths()))
	if len(changed) > 0 {
		a.statusMsg += fmt.Sprintf(" · %d changed on disk", len(changed))
	}
}

func (a *App) write() {
	path, err := a.project.Write()
	if err != nil {
		a.err = err
		a.statusMsg = fmt.Sprintf("Write failed: %v", err)
		return
	}
	a.err = nil
	a.statusMsg = fmt.Sprintf("Wrote %s", path)
}

// settle records the outcome of an operation and refreshes the panes.
func (a *App) settle(err error) {
	a.err = err
	if err != nil {
		a.statusMsg = err.Error()
	}
	for _, w := range a.project.DrainWarnings() {
		a.warnings = append(a.warnings, w.String())
	}
	if over := len(a.warnings) - maxWarnings; over > 0 {
		a.warnings = a.warnings[over:]
	}
	a.refresh()
}

func (a *App) refresh() {
	state := a.project.State()
	var items []list.Item
	if ref := state.Reference(); ref != nil {
		items = append(items, paletteItem{name: ref.Name, entries: ref.Len(), reference: true})
	}
	for _, m := range state.Palettes() {
		items = append(items, paletteItem{name: m.Name, entries: m.Len()})
	}
	a.palettes.SetItems(items)
}

// View renders the whole screen.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	half := max(24, width/2-2)

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ SPRITEPAL")
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(half)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		box.Render(a.palettes.View()),
		box.Render(a.renderSummary(half-4)),
	)

	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.mode != inputNone {
		sections = append(sections, a.input.View())
	}
	footerColor := lipgloss.Color("#888888")
	if a.err != nil {
		footerColor = lipgloss.Color("#FF6B6B")
	}
	footer := lipgloss.NewStyle().
		Foreground(footerColor).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderSummary(width int) string {
	state := a.project.State()
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("Session")
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	lines := []string{
		fmt.Sprintf("Base: %s", baseLabel(a.project)),
		fmt.Sprintf("Colours: %d", len(state.Colors())),
		fmt.Sprintf("Palettes: %d", len(state.Palettes())),
		fmt.Sprintf("Output: %s", a.project.Config().OutputPath()),
	}
	out := []string{title, muted.Render(strings.Join(lines, "\n")), ""}
	warnTitle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	if len(a.warnings) == 0 {
		out = append(out, muted.Render("No colour conflicts."))
	} else {
		out = append(out, warnTitle.Render(fmt.Sprintf("Conflicts (%d)", len(a.warnings))))
		shown := a.warnings
		if len(shown) > 6 {
			shown = shown[len(shown)-6:]
		}
		out = append(out, muted.Width(max(20, width)).Render(strings.Join(shown, "\n")))
	}
	return strings.Join(out, "\n")
}

func baseLabel(p *workspace.Project) string {
	m := p.Manifest()
	var parts []string
	if m.BaseDocument != nil {
		parts = append(parts, filepath.Base(m.BaseDocument.Path))
	}
	if m.BaseImage != nil {
		parts = append(parts, fmt.Sprintf("%s (%s)", filepath.Base(m.BaseImage.Path), p.State().Dimensions()))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " + ")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(8)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s · %d entries", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

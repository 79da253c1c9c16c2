package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/engine"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// renderReport summarizes a finished run for the terminal.
func renderReport(state *engine.State, path string, changed []string, warnings []engine.Warning, rejected []error) string {
	var b strings.Builder
	lines := []string{
		titleStyle.Render("spritepal"),
		mutedStyle.Render(fmt.Sprintf("Base: %s", state.Dimensions())),
		mutedStyle.Render(fmt.Sprintf("Colours: %d", len(state.Colors()))),
	}
	if ref := state.Reference(); ref != nil {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("  %s (reference, %d colours)", ref.Name, ref.Len())))
	}
	for _, m := range state.Palettes() {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("  %s (%d entries)", m.Name, m.Len())))
	}
	lines = append(lines, "", fmt.Sprintf("Wrote %s", path))
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if len(changed) > 0 {
		b.WriteString(titleStyle.Render(fmt.Sprintf("Changed since last run (%d)", len(changed))))
		b.WriteString("\n")
		for _, path := range changed {
			b.WriteString(mutedStyle.Render("  " + path))
			b.WriteString("\n")
		}
	}
	if len(warnings) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Colour conflicts (%d)", len(warnings))))
		b.WriteString("\n")
		for _, w := range warnings {
			b.WriteString(mutedStyle.Render("  " + w.String()))
			b.WriteString("\n")
		}
	}
	if messages := rejectedMessages(rejected); len(messages) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Rejected (%d)", len(messages))))
		b.WriteString("\n")
		for _, msg := range messages {
			b.WriteString(warnStyle.Render("  " + msg))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func rejectedMessages(errs []error) []string {
	var out []string
	for _, err := range errs {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, inner := range merr.Errors {
				out = append(out, inner.Error())
			}
			continue
		}
		out = append(out, err.Error())
	}
	return out
}

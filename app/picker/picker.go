// Package picker provides the interactive terminal views used by the search
// command: a refinement multi-select shown when a result overflows the size
// budget, and a live progress view for progressive loads.
package picker

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/triagelabs/searchgate/refine"
)

// Run shows the refinement picker and returns the options the user selected.
// A cancelled picker returns an empty slice and no error.
func Run(set refine.SuggestionSet) ([]refine.Option, error) {
	if len(set.Options) == 0 {
		return nil, fmt.Errorf("no refinement options to pick from")
	}
	model := newPickerModel(set)
	program := tea.NewProgram(model)
	final, err := program.Run()
	if err != nil {
		return nil, err
	}
	done, ok := final.(pickerModel)
	if !ok || done.cancelled {
		return nil, nil
	}
	var chosen []refine.Option
	for i, opt := range done.set.Options {
		if done.selected[i] {
			chosen = append(chosen, opt)
		}
	}
	return chosen, nil
}

type pickerModel struct {
	set       refine.SuggestionSet
	cursor    int
	selected  map[int]bool
	cancelled bool
	confirmed bool
}

func newPickerModel(set refine.SuggestionSet) pickerModel {
	return pickerModel{
		set:      set,
		selected: map[int]bool{},
	}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.set.Options)-1 {
			m.cursor++
		}
	case " ":
		m.selected[m.cursor] = !m.selected[m.cursor]
	case "enter":
		m.confirmed = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.confirmed || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Result over size budget"))
	b.WriteString("\n")
	b.WriteString(warnStyle.Render(m.set.Message))
	b.WriteString("\n\n")
	for i, opt := range m.set.Options {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		mark := "[ ]"
		line := fmt.Sprintf("%s %s (est. -%d%%, %s priority)",
			mark, opt.Label, int(opt.EstimatedReductionRatio*100), opt.Priority)
		if m.selected[i] {
			line = selectedStyle.Render(strings.Replace(line, "[ ]", "[x]", 1))
		}
		b.WriteString(cursor + line + "\n")
		if i == m.cursor && opt.Description != "" {
			b.WriteString(dimStyle.Render("      "+opt.Description) + "\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("space: toggle, enter: apply, q: cancel"))
	return boxStyle.Render(b.String())
}

package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/sizing"
)

// LoadFunc runs a progressive load, reporting each accepted batch through the
// supplied callback.
type LoadFunc func(onBatch loader.BatchFunc) (*loader.Result, error)

// RunProgress drives load while rendering per-batch progress. It returns the
// loader result unchanged, including partial results on early stops.
func RunProgress(source string, load LoadFunc) (*loader.Result, error) {
	events := make(chan tea.Msg, 8)
	go func() {
		result, err := load(func(info loader.BatchInfo) error {
			events <- batchMsg{info: info}
			return nil
		})
		events <- doneMsg{result: result, err: err}
		close(events)
	}()

	model := newProgressModel(source, events)
	program := tea.NewProgram(model)
	final, err := program.Run()
	if err != nil {
		return nil, err
	}
	done := final.(progressModel)
	return done.result, done.err
}

type batchMsg struct{ info loader.BatchInfo }

type doneMsg struct {
	result *loader.Result
	err    error
}

// listenEvents forwards one message from the load goroutine into the program.
func listenEvents(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

type progressModel struct {
	source  string
	events  <-chan tea.Msg
	spinner spinner.Model

	batches []loader.BatchInfo
	result  *loader.Result
	err     error
	done    bool
}

func newProgressModel(source string, events <-chan tea.Msg) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cursorStyle
	return progressModel{
		source:  source,
		events:  events,
		spinner: sp,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenEvents(m.events))
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	case batchMsg:
		m.batches = append(m.batches, msg.info)
		return m, listenEvents(m.events)
	case doneMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Progressive load: "+m.source) + "\n\n")
	for _, info := range m.batches {
		b.WriteString(fmt.Sprintf("  page %d: +%d items (%d total, %s)\n",
			info.PageIndex, info.ItemsInBatch, info.CumulativeItems,
			sizing.FormatSize(info.CumulativeSizeBytes)))
	}
	if m.done {
		if m.result != nil {
			b.WriteString("\n" + selectedStyle.Render(
				fmt.Sprintf("done: %d items over %d pages (stopped: %s)",
					m.result.TotalLoaded, m.result.PagesLoaded, m.result.StoppedReason)))
		}
		if m.err != nil {
			b.WriteString("\n" + warnStyle.Render("ended early: "+m.err.Error()))
		}
	} else {
		b.WriteString("\n" + m.spinner.View() + dimStyle.Render(" fetching..."))
	}
	return boxStyle.Render(b.String() + "\n")
}

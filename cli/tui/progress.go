package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/ferry/types"
)

// Controls are the transfer control hooks the view invokes on key
// presses. Errors are shown in the status line, not fatal.
type Controls struct {
	Pause  func() error
	Resume func() error
	Cancel func() error
}

// Meta is the static header information for one transfer.
type Meta struct {
	TransferID string
	Direction  types.Direction
	FileName   string
}

// keyMap defines the key bindings for the progress view.
type keyMap struct {
	Pause  key.Binding
	Resume key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Pause:  key.NewBinding(key.WithKeys("p")),
	Resume: key.NewBinding(key.WithKeys("r")),
	Cancel: key.NewBinding(key.WithKeys("c")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// eventMsg wraps one transfer event from the coordinator's stream.
type eventMsg types.TransferEvent

// closedMsg signals the event stream ended (transfer is terminal).
type closedMsg struct{}

// Model is the Bubble Tea model for a live transfer.
type Model struct {
	meta     Meta
	events   <-chan types.TransferEvent
	controls Controls

	bar      progress.Model
	snapshot types.ProgressSnapshot
	state    types.TransferState
	reason   string

	chunksDone int
	retries    int
	statusErr  string

	width    int
	done     bool
	quitting bool
}

// NewModel creates a progress model over a transfer's event stream.
func NewModel(meta Meta, events <-chan types.TransferEvent, controls Controls) Model {
	return Model{
		meta:     meta,
		events:   events,
		controls: controls,
		bar:      progress.New(progress.WithDefaultGradient()),
		state:    types.StateInitiating,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan types.TransferEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		barWidth := msg.Width - 8
		if barWidth > 60 {
			barWidth = 60
		}
		if barWidth > 0 {
			m.bar.Width = barWidth
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(types.TransferEvent(msg))
		return m, waitForEvent(m.events)

	case closedMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		if m.done {
			m.quitting = true
			return m, tea.Quit
		}
		// Quitting a live transfer cancels it; the terminal event
		// closes the stream and quits the program.
		m.callControl(m.controls.Cancel)
		return m, nil

	case key.Matches(msg, keys.Pause):
		m.callControl(m.controls.Pause)
		return m, nil

	case key.Matches(msg, keys.Resume):
		m.callControl(m.controls.Resume)
		return m, nil

	case key.Matches(msg, keys.Cancel):
		m.callControl(m.controls.Cancel)
		return m, nil
	}
	return m, nil
}

func (m *Model) callControl(f func() error) {
	if f == nil {
		return
	}
	if err := f(); err != nil {
		m.statusErr = err.Error()
	} else {
		m.statusErr = ""
	}
}

// apply folds one transfer event into the view state.
func (m *Model) apply(ev types.TransferEvent) {
	if ev.State != "" {
		m.state = ev.State
	}
	switch ev.Type {
	case types.EventTypeProgress:
		if ev.Progress != nil {
			m.snapshot = *ev.Progress
		}
	case types.EventTypeChunk:
		if ev.Chunk == nil {
			break
		}
		switch ev.Chunk.Status {
		case types.ChunkCompleted:
			m.chunksDone++
		case types.ChunkInFlight:
			if ev.Chunk.Attempt > 0 {
				m.retries++
			}
		}
	case types.EventTypeState:
		m.reason = ev.Reason
	}
	if ev.IsTerminal() {
		m.done = true
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := fmt.Sprintf("ferry %s %s", m.meta.Direction, m.meta.FileName)
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(m.snapshot.Percentage / 100))
	b.WriteString("\n\n")

	writeField := func(label, value string) {
		b.WriteString(LabelStyle.Render(label))
		b.WriteString(ValueStyle.Render(value))
		b.WriteString("\n")
	}

	stateLine := StateStyle(string(m.state)).Render(string(m.state))
	if m.reason != "" && (m.state == types.StateFailed || m.state == types.StateCancelled) {
		stateLine += "  " + ErrorStyle.Render(m.reason)
	}
	b.WriteString(LabelStyle.Render("State:"))
	b.WriteString(stateLine)
	b.WriteString("\n")

	writeField("Transferred:", fmt.Sprintf("%s / %s",
		formatBytes(m.snapshot.TransferredBytes), formatBytes(m.snapshot.TotalBytes)))
	writeField("Speed:", formatBytes(int64(m.snapshot.InstantSpeed))+"/s")
	writeField("ETA:", formatETA(m.snapshot.ETASeconds))
	writeField("Chunks:", fmt.Sprintf("%d completed, %d retries", m.chunksDone, m.retries))

	if m.statusErr != "" {
		b.WriteString(WarningStyle.Render(m.statusErr))
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString(HelpStyle.Render("Press q to quit"))
	} else {
		b.WriteString(HelpStyle.Render("p pause | r resume | c cancel | q quit"))
	}
	return b.String()
}

// Run drives the progress TUI until the transfer's event stream closes.
func Run(meta Meta, events <-chan types.TransferEvent, controls Controls) error {
	p := tea.NewProgram(NewModel(meta, events, controls))
	_, err := p.Run()
	return err
}

func formatBytes(n int64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatETA(seconds float64) string {
	if seconds < 0 {
		return "--"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

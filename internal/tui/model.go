// Package tui is the operator console for a capture session: it shows the
// current label, state and progress, and turns key presses into operator
// signals.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/andresmejia3/signcap/internal/capture"
)

// Key bindings.
const (
	KeyArm       = " "
	KeyArmAlt    = "enter"
	KeyVideo     = "v"
	KeyCancel    = "esc"
	KeyQuit      = "q"
	KeyInterrupt = "ctrl+c"
)

const maxNotices = 5

// EventMsg carries a session event into the update loop.
type EventMsg struct {
	Event capture.Event
}

// DoneMsg is sent once the session has returned.
type DoneMsg struct {
	Summary capture.Summary
	Err     error
}

// Model is the bubbletea model for the capture console.
type Model struct {
	signals chan<- capture.Signal
	cancel  context.CancelFunc

	width  int
	device string

	label     string
	state     capture.State
	index     int
	target    int
	remaining int
	total     int
	recorded  int
	seconds   int
	tick      int
	length    int
	video     bool

	notices    []string
	cancelling bool
	done       bool
	summary    capture.Summary
	err        error
}

// New returns a console that sends operator signals on signals and calls
// cancel when the operator aborts. length is the frames per sequence.
func New(device string, length int, signals chan<- capture.Signal, cancel context.CancelFunc) Model {
	return Model{
		signals: signals,
		cancel:  cancel,
		device:  device,
		length:  length,
		state:   capture.StateWaitingReady,
	}
}

func (m Model) Init() tea.Cmd { return nil }

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleEvent(e capture.Event) {
	switch e.Kind {
	case capture.EventPlan:
		m.total = e.Total
	case capture.EventLabelStart:
		m.label = e.Label
		m.index = e.Index
		m.target = e.Target
		m.remaining = e.Remaining
		m.video = false
		m.tick = 0
	case capture.EventLabelSkipped:
		m.notice(fmt.Sprintf("%s already has %d/%d sequences, skipped", e.Label, e.Existing, e.Target))
	case capture.EventState:
		m.state = e.State
		m.index = e.Index
		m.remaining = e.Remaining
		m.video = e.Video
		if e.State == capture.StateRecording {
			m.tick = 0
		}
	case capture.EventVideoToggled:
		m.video = e.Video
	case capture.EventCountdown:
		m.seconds = e.Seconds
	case capture.EventFrame:
		m.tick = e.Tick
	case capture.EventReadFailure:
		m.notice("frame read failed: " + e.Err.Error())
	case capture.EventAccepted:
		m.recorded++
		m.remaining = e.Remaining
		note := fmt.Sprintf("%s #%d saved", e.Label, e.Index)
		if e.Result.Padded > 0 {
			note += fmt.Sprintf(" (%d padded)", e.Result.Padded)
		}
		m.notice(note)
	case capture.EventRejected:
		m.notice(fmt.Sprintf("%s #%d discarded: %v", e.Label, e.Index, e.Err))
	case capture.EventLabelDone:
		m.notice(e.Label + " done")
	}
}

func (m *Model) notice(s string) {
	m.notices = append(m.notices, s)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCancel, KeyQuit, KeyInterrupt:
		if m.done {
			return m, tea.Quit
		}
		// The session notices the cancellation and answers with DoneMsg.
		m.cancelling = true
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil

	case KeyArm, KeyArmAlt:
		if m.state == capture.StateWaitingReady {
			m.send(capture.SignalArm)
		}
		return m, nil

	case KeyVideo:
		if m.state == capture.StateWaitingReady {
			m.send(capture.SignalToggleVideo)
		}
		return m, nil
	}
	return m, nil
}

// send never blocks the UI; a key pressed while the previous one is still
// queued is dropped.
func (m Model) send(sig capture.Signal) {
	select {
	case m.signals <- sig:
	default:
	}
}

func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatus())
	sections = append(sections, m.renderDivider())
	for _, n := range m.notices {
		sections = append(sections, DimStyle.Render("  "+n))
	}
	if m.err != nil && !m.cancelling {
		sections = append(sections, ErrorStyle.Render("Error: "+m.err.Error()))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n") + "\n"
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("SIGNCAP")
	if m.device != "" {
		title += DimStyle.Render("  " + m.device)
	}
	if m.total > 0 {
		title += DimStyle.Render(fmt.Sprintf("  %d/%d this run", m.recorded, m.total))
	}
	return title
}

func (m Model) renderStatus() string {
	if m.label == "" {
		return DimStyle.Render("Preparing...")
	}

	label := LabelStyle.Render(m.label) + DimStyle.Render(fmt.Sprintf("  #%d of %d", m.index, m.target))

	var status string
	switch m.state {
	case capture.StateWaitingReady:
		status = ReadyStyle.Render("○ READY") + DimStyle.Render("  press space to record")
	case capture.StateCountdown:
		status = CountdownStyle.Render(fmt.Sprintf("● GET READY %d", m.seconds))
	case capture.StateRecording:
		status = RecordingStyle.Render("● REC") + DimStyle.Render(fmt.Sprintf("  %d/%d frames", m.tick, m.length))
	case capture.StateCancelled:
		status = ErrorStyle.Render("✕ CANCELLED")
	default:
		status = DimStyle.Render(m.state.String())
	}

	video := DimStyle.Render("  video off")
	if m.video {
		video = RecordingStyle.Render("  video on")
	}
	return label + "  " + status + video
}

func (m Model) renderDivider() string {
	width := m.width
	if width <= 0 {
		width = 40
	}
	return DividerStyle.Render(strings.Repeat("─", width))
}

func (m Model) renderFooter() string {
	if m.cancelling {
		return DimStyle.Render("Stopping...")
	}
	var parts []string
	if m.state == capture.StateWaitingReady {
		parts = append(parts, FooterKeyStyle.Render("Space")+FooterDescStyle.Render(" Record"))
		parts = append(parts, FooterKeyStyle.Render("v")+FooterDescStyle.Render(" Video"))
	}
	parts = append(parts, FooterKeyStyle.Render("Esc")+FooterDescStyle.Render(" Quit"))
	return strings.Join(parts, "  ")
}

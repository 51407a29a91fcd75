package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/andresmejia3/signcap/internal/capture"
	"github.com/andresmejia3/signcap/internal/sequence"
)

func newTestModel() (Model, chan capture.Signal, *bool) {
	ch := make(chan capture.Signal, 1)
	cancelled := false
	m := New("/dev/video0", 35, ch, func() { cancelled = true })
	return m, ch, &cancelled
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func state(st capture.State) EventMsg {
	return EventMsg{Event: capture.Event{Kind: capture.EventState, Label: "hola", State: st, Index: 1, Target: 3, Remaining: 2}}
}

func TestArmOnlyWhileWaiting(t *testing.T) {
	m, ch, _ := newTestModel()
	m, _ = update(t, m, state(capture.StateWaitingReady))

	m, _ = update(t, m, key(" "))
	select {
	case sig := <-ch:
		if sig != capture.SignalArm {
			t.Errorf("expected SignalArm, got %v", sig)
		}
	default:
		t.Fatal("space should arm while waiting")
	}

	m, _ = update(t, m, state(capture.StateRecording))
	m, _ = update(t, m, key("enter"))
	select {
	case sig := <-ch:
		t.Errorf("no signal expected while recording, got %v", sig)
	default:
	}
}

func TestVideoToggle(t *testing.T) {
	m, ch, _ := newTestModel()
	m, _ = update(t, m, state(capture.StateWaitingReady))
	m, _ = update(t, m, key("v"))
	if sig := <-ch; sig != capture.SignalToggleVideo {
		t.Errorf("expected SignalToggleVideo, got %v", sig)
	}

	m, _ = update(t, m, EventMsg{Event: capture.Event{Kind: capture.EventVideoToggled, Video: true}})
	if !m.video {
		t.Error("model should show video on")
	}
}

func TestSendDoesNotBlock(t *testing.T) {
	m, _, _ := newTestModel()
	m, _ = update(t, m, state(capture.StateWaitingReady))
	// The buffer holds one signal; further presses are dropped.
	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key("v"))
}

func TestCancelKeys(t *testing.T) {
	for _, k := range []string{"esc", "q", "ctrl+c"} {
		m, _, cancelled := newTestModel()
		m, cmd := update(t, m, key(k))
		if !*cancelled {
			t.Errorf("%s should cancel the session", k)
		}
		if !m.cancelling {
			t.Errorf("%s should mark the model as cancelling", k)
		}
		if cmd != nil {
			t.Errorf("%s should wait for the session instead of quitting", k)
		}
	}
}

func TestDoneQuits(t *testing.T) {
	m, _, _ := newTestModel()
	m, cmd := update(t, m, DoneMsg{Err: errors.New("boom")})
	if !m.done || cmd == nil {
		t.Fatal("DoneMsg should quit")
	}
	if !strings.Contains(m.View(), "boom") {
		t.Error("view should show the session error")
	}
}

func TestEventsUpdateProgress(t *testing.T) {
	m, _, _ := newTestModel()
	m, _ = update(t, m, EventMsg{Event: capture.Event{Kind: capture.EventPlan, Total: 4}})
	m, _ = update(t, m, EventMsg{Event: capture.Event{Kind: capture.EventLabelStart, Label: "agua", Index: 2, Target: 5, Remaining: 3}})
	m, _ = update(t, m, EventMsg{Event: capture.Event{Kind: capture.EventState, Label: "agua", State: capture.StateRecording, Index: 2, Remaining: 3}})
	m, _ = update(t, m, EventMsg{Event: capture.Event{Kind: capture.EventFrame, Tick: 12}})

	view := m.View()
	for _, want := range []string{"agua", "#2 of 5", "REC", "12/35", "0/4"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m, _ = update(t, m, EventMsg{Event: capture.Event{
		Kind: capture.EventAccepted, Label: "agua", Index: 2, Remaining: 2,
		Result: sequence.Result{Captured: 30, Padded: 5},
	}})
	if m.recorded != 1 || m.remaining != 2 {
		t.Errorf("unexpected progress recorded=%d remaining=%d", m.recorded, m.remaining)
	}
	if !strings.Contains(m.View(), "agua #2 saved (5 padded)") {
		t.Errorf("missing saved notice:\n%s", m.View())
	}
}

func TestNoticesAreBounded(t *testing.T) {
	m, _, _ := newTestModel()
	for i := 0; i < maxNotices+3; i++ {
		m, _ = update(t, m, EventMsg{Event: capture.Event{Kind: capture.EventLabelDone, Label: "x"}})
	}
	if len(m.notices) != maxNotices {
		t.Errorf("expected %d notices, got %d", maxNotices, len(m.notices))
	}
}

package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/andresmejia3/signcap/internal/capture"
)

// Operator hands key presses from the console to the session.
type Operator struct {
	ch chan capture.Signal
}

func NewOperator() *Operator {
	return &Operator{ch: make(chan capture.Signal, 1)}
}

func (o *Operator) Signals() <-chan capture.Signal { return o.ch }

// SessionFunc runs a capture session wired to the console's operator and
// observer.
type SessionFunc func(op capture.Operator, obs capture.Observer) (capture.Summary, error)

// Run shows the console while session runs and returns the session's
// result. cancel must cancel the context the session runs under.
func Run(device string, length int, cancel context.CancelFunc, session SessionFunc) (capture.Summary, error) {
	op := NewOperator()
	p := tea.NewProgram(New(device, length, op.ch, cancel), tea.WithAltScreen())

	var (
		summary capture.Summary
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		summary, runErr = session(op, capture.ObserverFunc(func(e capture.Event) {
			if e.Kind == capture.EventPreview {
				return
			}
			p.Send(EventMsg{Event: e})
		}))
		p.Send(DoneMsg{Summary: summary, Err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return summary, fmt.Errorf("console: %w", err)
	}
	// The console may exit first if the terminal goes away.
	cancel()
	<-done
	return summary, runErr
}

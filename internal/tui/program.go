package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sethgrantham/baton/internal/events"
)

// NewProgram creates a bubbletea program for the run monitor. The
// returned program can receive messages via Send().
func NewProgram(request string) (*tea.Program, *App) {
	app := New(request)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Pump forwards event records from the transport channel into the
// program until the channel is drained and the done channel closes.
// It is meant to run on its own goroutine.
func Pump(p *tea.Program, records <-chan events.Record, done <-chan struct{}) {
	for {
		select {
		case rec := <-records:
			p.Send(RecordMsg{Record: rec})
		case <-done:
			// Drain anything still buffered before exiting.
			for {
				select {
				case rec := <-records:
					p.Send(RecordMsg{Record: rec})
				default:
					return
				}
			}
		}
	}
}

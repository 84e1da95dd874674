// Package tui provides the terminal user interface for watching a
// composite task run.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sethgrantham/baton/internal/events"
)

// RecordMsg wraps an event record for the TUI.
type RecordMsg struct {
	Record events.Record
}

// RunDoneMsg signals that the run has completed and no more records
// will arrive.
type RunDoneMsg struct {
	Success bool
	Message string
}

// Subtask display statuses.
const (
	statusPending    = "pending"
	statusRunning    = "running"
	statusReplanning = "replanning"
	statusDone       = "done"
	statusFailed     = "failed"
	statusSkipped    = "skipped"
)

// subtaskRow is one line on the subtask board.
type subtaskRow struct {
	ID     string
	Goal   string
	Status string
	Error  string
}

// LogEntry is one line in the event log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// App is the main bubbletea model for the run monitor.
type App struct {
	// request is the user request being executed.
	request string
	// subtasks is the board, in arrival order.
	subtasks []*subtaskRow
	// logs is the scrolling event log.
	logs []LogEntry
	// spinner animates while the run is in flight.
	spinner spinner.Model
	// width is the terminal width.
	width int
	// height is the terminal height.
	height int
	// quitting indicates the app is shutting down.
	quitting bool
	// done indicates the run has finished.
	done bool
	// success indicates whether the run succeeded.
	success bool
	// message holds the final run message.
	message string
}

// New creates a new App for the given request.
func New(request string) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &App{
		request:  request,
		subtasks: make([]*subtaskRow, 0),
		logs:     make([]LogEntry, 0),
		spinner:  s,
		width:    80,
		height:   24,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case RecordMsg:
		a.handleRecord(msg.Record)

	case RunDoneMsg:
		a.done = true
		a.success = msg.Success
		a.message = msg.Message
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s",
		a.viewHeader(), a.viewBoard(), a.viewLogs(), a.viewFooter())
}

// viewHeader renders the title line with the request.
func (a *App) viewHeader() string {
	title := headerStyle.Render("baton")
	req := a.request
	if len(req) > a.width-12 && a.width > 15 {
		req = req[:a.width-15] + "..."
	}
	return fmt.Sprintf("%s  %s", title, dimStyle.Render(req))
}

// viewBoard renders the subtask status board.
func (a *App) viewBoard() string {
	if len(a.subtasks) == 0 {
		return dimStyle.Render("  waiting for task decomposition...")
	}

	var view string
	for _, st := range a.subtasks {
		marker := statusMarker(st.Status)
		line := fmt.Sprintf("  %s %s  %s", marker, st.ID, st.Goal)
		if st.Status == statusRunning {
			line = fmt.Sprintf("  %s %s  %s", a.spinner.View(), st.ID, st.Goal)
		}
		if st.Error != "" {
			line += dimStyle.Render("  (" + st.Error + ")")
		}
		view += line + "\n"
	}
	return view
}

// viewLogs renders the most recent log entries that fit the window.
func (a *App) viewLogs() string {
	if len(a.logs) == 0 {
		return dimStyle.Render("  no events yet")
	}

	max := a.logWindow()
	start := 0
	if len(a.logs) > max {
		start = len(a.logs) - max
	}

	var view string
	for _, entry := range a.logs[start:] {
		ts := dimStyle.Render(entry.Timestamp.Format("15:04:05"))
		level := levelStyle(entry.Level).Render(entry.Level)
		view += fmt.Sprintf("  %s %s %s\n", ts, level, entry.Message)
	}
	return view
}

// logWindow returns how many log lines fit below the board.
func (a *App) logWindow() int {
	// Header, footer, board and blank separators take the rest.
	n := a.height - len(a.subtasks) - 8
	if n < 5 {
		n = 5
	}
	return n
}

// viewFooter renders the footer with the run outcome or help text.
func (a *App) viewFooter() string {
	if a.done {
		if a.success {
			return successStyle.Render("✓ "+a.message) + dimStyle.Render("  press q to exit")
		}
		return failStyle.Render("✗ "+a.message) + dimStyle.Render("  press q to exit")
	}
	return dimStyle.Render("q to quit")
}

// handleRecord updates board and log state from one event record.
func (a *App) handleRecord(rec events.Record) {
	id, _ := rec.Payload["subtask_id"].(string)

	switch rec.Type {
	case string(events.TaskDecomposed):
		if n, ok := rec.Payload["subtask_count"].(int); ok {
			a.log("INFO", fmt.Sprintf("decomposed into %d subtasks", n))
		} else {
			a.log("INFO", "task decomposed")
		}

	case string(events.SubtaskStart):
		row := a.findOrCreateRow(id, rec)
		row.Status = statusRunning
		a.log("INFO", fmt.Sprintf("subtask %s started", id))

	case string(events.SubtaskComplete):
		row := a.findOrCreateRow(id, rec)
		row.Status = statusDone
		a.log("INFO", fmt.Sprintf("subtask %s completed", id))

	case string(events.SubtaskFailed):
		row := a.findOrCreateRow(id, rec)
		row.Status = statusFailed
		if msg, ok := rec.Payload["error"].(string); ok {
			row.Error = msg
		}
		a.log("ERROR", fmt.Sprintf("subtask %s failed", id))

	case string(events.PlanReplanning):
		if id != "" {
			row := a.findOrCreateRow(id, rec)
			row.Status = statusReplanning
		}
		reason, _ := rec.Payload["reason"].(string)
		a.log("WARN", fmt.Sprintf("replanning subtask %s (%s)", id, reason))

	case string(events.StepFailed):
		a.log("ERROR", fmt.Sprintf("step %s failed", rec.StepID))

	case string(events.StepSkipped):
		a.log("WARN", fmt.Sprintf("step %s skipped", rec.StepID))

	case string(events.SkillStart):
		if name, ok := rec.Payload["skill"].(string); ok {
			a.log("INFO", fmt.Sprintf("running skill %s", name))
		}

	case string(events.SystemError):
		msg, _ := rec.Payload["error"].(string)
		a.log("ERROR", msg)

	case string(events.TaskCompleted):
		success, _ := rec.Payload["success"].(bool)
		a.done = true
		a.success = success
		if success {
			a.message = "task completed"
		} else {
			a.message = "task did not complete"
			if partial, ok := rec.Payload["partial_success"].(bool); ok && partial {
				a.message = "task partially completed"
			}
		}
		// Anything still pending at the end never ran.
		for _, st := range a.subtasks {
			if st.Status == statusPending || st.Status == statusRunning {
				st.Status = statusSkipped
			}
		}
	}
}

// log appends an entry to the event log.
func (a *App) log(level, message string) {
	a.logs = append(a.logs, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
}

// findOrCreateRow finds a board row by subtask id or creates one.
func (a *App) findOrCreateRow(id string, rec events.Record) *subtaskRow {
	for _, st := range a.subtasks {
		if st.ID == id {
			return st
		}
	}
	goal, _ := rec.Payload["goal"].(string)
	row := &subtaskRow{ID: id, Goal: goal, Status: statusPending}
	a.subtasks = append(a.subtasks, row)
	return row
}

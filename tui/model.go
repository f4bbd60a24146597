package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the elapsed timer.
type tickMsg time.Time

// state represents the current phase of a command.
type state int

const (
	stateInit       state = iota
	stateWorking          // request in flight
	stateRefreshing       // waiting on a token refresh
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// maxStatusLines keeps the log readable when many requests are replayed.
const maxStatusLines = 12

// Model is the BubbleTea model for command progress.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	action    string
	startedAt time.Time
	elapsed   time.Duration

	// requests parked behind the current refresh
	waiting int

	summary string
	errMsg  string
	relogin bool

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleHintBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("228")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("228")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != stateWorking && m.state != stateRefreshing {
			return m, nil
		}
		m.elapsed = time.Since(m.startedAt)
		return m, tickAfterSecond()

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── command messages ────────────────────────────────────────────────────

	case MsgBanner:
		return m, nil

	case MsgWorking:
		m.action = msg.Action
		m.state = stateWorking
		m.startedAt = time.Now()
		m.elapsed = 0
		m.addStatus(statusInfo, msg.Action)
		return m, tickAfterSecond()

	case MsgLoggedIn:
		m.addStatus(statusOK, fmt.Sprintf("Logged in as %s (%s)", msg.Name, msg.Email))
		if !msg.Expiry.IsZero() {
			m.addStatus(statusInfo,
				"Access token expires in "+formatDuration(time.Until(msg.Expiry)))
		}
		return m, nil

	case MsgSignedUp:
		m.addStatus(statusOK, "Account created for "+msg.Email)
		return m, nil

	case MsgLoggedOut:
		m.addStatus(statusOK, "Stored tokens removed")
		return m, nil

	case MsgUploading:
		m.addStatus(statusInfo, fmt.Sprintf("Uploading %s (%s)", msg.Name, formatSize(msg.Size)))
		return m, nil

	case MsgDeleted:
		m.addStatus(statusOK, "Deleted resume "+msg.ID)
		return m, nil

	// ── session messages ────────────────────────────────────────────────────

	case MsgRefreshStarted:
		m.state = stateRefreshing
		m.waiting = max(m.waiting, 1)
		m.addStatus(statusWarn, "Access token rejected (401), refreshing...")
		return m, nil

	case MsgRefreshQueued:
		m.state = stateRefreshing
		m.waiting = max(m.waiting, msg.Position)
		return m, nil

	case MsgRefreshSucceeded:
		m.state = stateWorking
		m.waiting = 0
		m.addStatus(statusOK, fmt.Sprintf("Token refreshed, retrying %d request(s)", msg.Released))
		return m, nil

	case MsgReplaying:
		return m, nil

	case MsgSessionTerminated:
		m.waiting = 0
		m.relogin = true
		m.addStatus(statusWarn, fmt.Sprintf("Session expired: %v", msg.Err))
		return m, nil

	case MsgDone:
		m.summary = msg.Summary
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

// viewMain is shown while a command is running.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Resume Analysis  "))
	b.WriteString("\n\n")

	switch m.state {
	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing access token...")
		if m.waiting > 1 {
			b.WriteString(styleDim.Render(fmt.Sprintf("  %d requests waiting", m.waiting)))
		}
		b.WriteString("\n")

	case stateWorking:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.action + "...")
		if m.elapsed >= time.Second {
			b.WriteString(styleDim.Render("  " + formatDuration(m.elapsed)))
		}
		b.WriteString("\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown after the command finished.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	text := "Done"
	if m.summary != "" {
		text = m.summary
	}
	b.WriteString(styleOK.Render("  ✓ " + text))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ " + m.failureTitle()))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	if m.relogin {
		b.WriteString("\n")
		b.WriteString(styleBold.Render("Log in again with:"))
		b.WriteString("\n")
		b.WriteString(styleHintBox.Render("resume-cli login"))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

func (m Model) failureTitle() string {
	if m.relogin {
		return "Session expired"
	}
	if m.action != "" {
		return m.action + " failed"
	}
	return "Command failed"
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log, dropping the oldest lines
// past maxStatusLines.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
	if over := len(m.statusLines) - maxStatusLines; over > 0 {
		m.statusLines = m.statusLines[over:]
	}
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatSize formats a byte count as KB or MB.
func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

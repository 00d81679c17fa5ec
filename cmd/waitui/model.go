package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/huddleup/authsync/internal/client/monitor"
	"github.com/huddleup/authsync/internal/client/verify"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

type stateMsg verify.State

type tickMsg time.Time

type redirectMsg struct{}

type resendResultMsg struct{ err error }

type signOutResultMsg struct {
	dest verify.Destination
	err  error
}

// model is the wait screen: one view per poller state, plus a status line
// and the key help.
type model struct {
	ctx      context.Context
	flow     *verify.Flow
	activity *monitor.Activity

	spinner     spinner.Model
	state       verify.State
	resendNote  string
	destination verify.Destination
	quitting    bool
}

func newModel(ctx context.Context, flow *verify.Flow, activity *monitor.Activity) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return model{
		ctx:      ctx,
		flow:     flow,
		activity: activity,
		spinner:  sp,
		state:    flow.State(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.activity.Touch()
		return m.handleKey(msg)

	case stateMsg:
		m.state = verify.State(msg)
		if m.state == verify.StateVerified {
			delay := m.flow.RedirectDelay()
			return m, tea.Tick(delay, func(time.Time) tea.Msg { return redirectMsg{} })
		}
		return m, nil

	case redirectMsg:
		m.destination = m.flow.Finish(m.ctx)
		m.quitting = true
		return m, tea.Quit

	case resendResultMsg:
		if msg.err != nil {
			m.resendNote = errStyle.Render("Resend failed: " + msg.err.Error())
		} else {
			m.resendNote = "Confirmation email sent again."
		}
		return m, nil

	case signOutResultMsg:
		if msg.err != nil {
			m.resendNote = errStyle.Render("Sign out failed, please try again.")
			return m, nil
		}
		m.destination = msg.dest
		m.quitting = true
		return m, tea.Quit

	case tickMsg:
		// Re-render so the elapsed-based hint advances.
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		if m.state == verify.StateVerified {
			return m, nil
		}
		return m, func() tea.Msg {
			return resendResultMsg{err: m.flow.Resend(m.ctx)}
		}
	case "c":
		if m.state == verify.StateVerified {
			return m, nil
		}
		return m, func() tea.Msg {
			m.flow.CheckNow(m.ctx)
			return nil
		}
	case "s":
		return m, func() tea.Msg {
			dest, err := m.flow.SignOut(m.ctx)
			return signOutResultMsg{dest: dest, err: err}
		}
	case "h":
		m.destination = m.flow.Leave()
		m.quitting = true
		return m, tea.Quit
	case "q", "ctrl+c":
		m.flow.Leave()
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return destinationLine(m.destination) + "\n"
	}

	var body string
	switch m.state {
	case verify.StateWaiting:
		body = fmt.Sprintf("%s %s\n\n%s",
			m.spinner.View(),
			titleStyle.Render("Waiting for verification"),
			verify.WaitMessage(m.flow.Email()))
		body += "\n" + subtleStyle.Render(verify.Hint(m.flow.Elapsed()))
		if err := m.flow.LastError(); err != nil {
			body += "\n" + errStyle.Render("Last check failed: "+err.Error())
		}
	case verify.StateChecking:
		body = fmt.Sprintf("%s %s", m.spinner.View(), titleStyle.Render("Checking..."))
	case verify.StateVerified:
		body = successStyle.Render("✓ Email verified!") + "\n" +
			subtleStyle.Render("Taking you onward...")
	case verify.StateTimedOut:
		body = warnStyle.Render("Still not verified") + "\n" +
			fmt.Sprintf("We could not confirm %s in time.", m.flow.Email()) + "\n" +
			subtleStyle.Render("Resend the email or check again manually.")
	}

	if m.resendNote != "" && m.state != verify.StateVerified {
		body += "\n" + m.resendNote
	}

	help := helpStyle.Render("r resend · c check now · s sign out · h home · q quit")
	return lipgloss.NewStyle().Padding(1, 2).Render(body + "\n" + help)
}

func destinationLine(d verify.Destination) string {
	switch d {
	case verify.DestHome:
		return "→ home"
	case verify.DestProfileSetup:
		return "→ profile setup"
	case verify.DestSignIn:
		return "→ sign in"
	default:
		return ""
	}
}

// Package ui is the terminal consumer of the coordinator's state stream.
// It issues commands (discover, select, send, pause, resume, cancel) and
// renders whatever state the stream publishes; all transfer logic lives
// in the session package.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nearbeam/nearbeam/internal/util"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/session"
)

// Mode selects which side of a transfer this process drives.
type Mode int

const (
	// Sender discovers receivers and pushes a batch of files.
	Sender Mode = iota
	// Receiver announces itself and accepts one inbound batch.
	Receiver
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	peerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// stateMsg wraps a state from the coordinator's stream for bubbletea.
type stateMsg struct {
	state session.State
}

// Model renders one transfer session.
type Model struct {
	mode  Mode
	coord *session.Coordinator
	paths []string
	dest  string
	kind  peer.Kind

	spinner  spinner.Model
	progress progress.Model
	picker   *picker

	state    session.State
	peers    []peer.Peer
	quitting bool
}

// InitialModel builds the model for one session.
func InitialModel(mode Mode, coord *session.Coordinator, paths []string, dest string, kind peer.Kind) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	var pk *picker
	if mode == Sender && len(paths) == 0 {
		pk = newPicker()
	}
	return Model{
		picker:   pk,
		mode:     mode,
		coord:    coord,
		paths:    paths,
		dest:     dest,
		kind:     kind,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		state:    session.Idle{},
	}
}

func (m Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		return stateMsg{state: <-m.coord.States()}
	}
}

// Init kicks off discovery (sender) or announce+accept (receiver). A
// sender started without file arguments shows the picker first and
// defers discovery until the selection is confirmed.
func (m Model) Init() tea.Cmd {
	if m.picker != nil {
		return tea.Batch(m.spinner.Tick, m.waitForState())
	}
	return tea.Batch(m.spinner.Tick, m.startSession(), m.waitForState())
}

func (m Model) startSession() tea.Cmd {
	return func() tea.Msg {
		if m.mode == Receiver {
			m.coord.Receive(context.Background(), m.dest, m.kind)
		} else {
			m.coord.StartDiscovery(context.Background(), m.kind)
		}
		return nil
	}
}

// Update handles key commands and state-stream updates.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pickedMsg:
		m.picker = nil
		m.paths = msg.paths
		return m, m.startSession()

	case tea.KeyMsg:
		if m.picker != nil {
			if msg.String() == "ctrl+c" || (msg.String() == "q" && m.picker.mode == pickerBrowse) {
				m.quitting = true
				return m, tea.Quit
			}
			return m, m.picker.update(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.coord.Cancel()
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.coord.Pause()
			return m, nil
		case "r":
			m.coord.Resume()
			return m, nil
		default:
			if m.mode == Sender {
				if idx := peerIndexForKey(msg.String(), len(m.peers)); idx >= 0 {
					return m, m.connectAndSend(m.peers[idx])
				}
			}
		}

	case stateMsg:
		m.state = msg.state
		if found, ok := msg.state.(session.DevicesFound); ok {
			m.peers = found.Peers
		}
		if isFinal(msg.state) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.waitForState()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// connectAndSend drives the blocking connect and then launches the batch.
func (m Model) connectAndSend(p peer.Peer) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if err := m.coord.Connect(ctx, p.Identity); err != nil {
			return nil // the failure is already on the state stream
		}
		m.coord.Send(ctx, m.paths)
		return nil
	}
}

// View renders the current state.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("nearbeam"))
	b.WriteString("\n\n")

	if m.picker != nil {
		b.WriteString(m.picker.view())
		b.WriteString("\n")
		return b.String()
	}

	switch s := m.state.(type) {
	case session.Idle:
		b.WriteString(m.spinner.View() + " Starting session...")
	case session.Discovering:
		if m.mode == Receiver {
			b.WriteString(m.spinner.View() + " Waiting for a sender...")
		} else {
			b.WriteString(m.spinner.View() + " Scanning for nearby devices...")
		}
	case session.DevicesFound:
		b.WriteString("Nearby devices:\n")
		for i, p := range s.Peers {
			line := fmt.Sprintf("  [%d] %s %s", i+1, util.PadRight(p.DisplayName, 28), dimStyle.Render(p.Medium.String()))
			b.WriteString(peerStyle.Render(line) + "\n")
		}
		b.WriteString(dimStyle.Render("\nPress a number to send, q to quit"))
	case session.Connecting:
		b.WriteString(m.spinner.View() + " Connecting to " + peerStyle.Render(s.Peer.DisplayName) + "...")
	case session.Connected:
		b.WriteString(okStyle.Render("Connected to "+s.Peer.DisplayName) + "\n")
	case session.Transferring:
		b.WriteString(m.renderTransfer(s))
	case session.Paused:
		b.WriteString(pausedStyle.Render(fmt.Sprintf("Paused at %.0f%%", s.Percent)))
		b.WriteString(dimStyle.Render("\nPress r to resume, q to quit"))
	case session.Completed:
		b.WriteString(okStyle.Render(fmt.Sprintf(
			"Done: %d file(s), %s in %s", s.FileCount, util.FormatSize(s.BytesTotal), s.Duration.Round(10*time.Millisecond))))
	case session.Failed:
		b.WriteString(errorStyle.Render("Transfer failed: " + s.Err.Message))
		if s.CanRetry {
			b.WriteString(dimStyle.Render("\nRun the command again to retry"))
		}
	case session.Cancelled:
		b.WriteString(dimStyle.Render("Cancelled"))
	}

	b.WriteString("\n")
	return b.String()
}

func (m Model) renderTransfer(s session.Transferring) string {
	var b strings.Builder
	if s.CurrentFile != "" {
		b.WriteString(util.PadRight(s.CurrentFile, 36) + "\n")
	}
	b.WriteString(m.progress.ViewAs(s.Percent/100.0) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"%s / %s  %s  ETA %s",
		util.FormatSize(s.BytesDone),
		util.FormatSize(s.BytesTotal),
		util.FormatRate(s.BytesPerSecond),
		util.FormatETA(s.ETA),
	)))
	b.WriteString(dimStyle.Render("\nPress p to pause, q to cancel"))
	return b.String()
}

// isFinal reports whether the TUI should exit after rendering s.
func isFinal(s session.State) bool {
	switch s.(type) {
	case session.Completed, session.Failed, session.Cancelled:
		return true
	}
	return false
}

// peerIndexForKey maps the keys 1..9 to an index into the device list.
func peerIndexForKey(key string, peers int) int {
	if len(key) != 1 || key[0] < '1' || key[0] > '9' {
		return -1
	}
	idx := int(key[0] - '1')
	if idx >= peers {
		return -1
	}
	return idx
}

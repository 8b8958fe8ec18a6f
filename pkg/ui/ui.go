// Package ui is a terminal spectator for a running table. It renders the
// host's presentation snapshots as they arrive on the stream.
package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/pokerhost/pkg/server"
)

// Model contains all the state for our UI
type Model struct {
	snaps <-chan server.Presentation
	errs  <-chan error

	snap     *server.Presentation
	renderer Renderer
	selected int
	hands    int
	lastHand string
	closed   bool
	err      error
}

// NewModel returns a model fed by a snapshot stream, see Follow.
func NewModel(snaps <-chan server.Presentation, errs <-chan error) Model {
	return Model{snaps: snaps, errs: errs}
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.snaps, m.errs)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "left", "h":
			m.selected = max(0, m.selected-1)
			m.follow()
		case "right", "l":
			if m.snap != nil {
				m.selected = min(len(m.snap.Players)-1, m.selected+1)
			}
			m.follow()
		case "esc":
			m.renderer.Follow = ""
		}
		return m, nil

	case snapshotMsg:
		p := server.Presentation(msg)
		if p.HandID != "" && p.HandID != m.lastHand {
			m.hands++
			m.lastHand = p.HandID
		}
		m.snap = &p
		if m.selected >= len(p.Players) {
			m.selected = max(0, len(p.Players)-1)
		}
		return m, waitForSnapshot(m.snaps, m.errs)

	case streamClosedMsg:
		m.closed = true
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

// follow highlights the selected player.
func (m *Model) follow() {
	if m.snap == nil || len(m.snap.Players) == 0 {
		return
	}
	m.renderer.Follow = m.snap.Players[m.selected].ID
}

func (m Model) View() string {
	s := titleStyle.Render("♠ Table ♥") + "\n"
	if m.snap == nil {
		s += helpStyle.Render("Connecting...")
	} else {
		s += m.renderer.RenderTable(*m.snap)
		s += "\n" + mutedStyle.Render(fmt.Sprintf("Hands watched: %d", m.hands))
	}
	if m.closed {
		msg := "Stream closed"
		if m.err != nil {
			msg += ": " + m.err.Error()
		}
		s += "\n" + errorStyle.Render(msg)
	}
	s += "\n" + helpStyle.Render("←/→ follow a player, esc to stop following, q to quit")
	return s
}

// Run starts the UI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, hostURL string) error {
	snaps, errs, err := Follow(ctx, hostURL)
	if err != nil {
		return err
	}
	p := tea.NewProgram(NewModel(snaps, errs), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running UI: %w", err)
	}
	return nil
}

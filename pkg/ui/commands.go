package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/vctt94/pokerhost/pkg/server"
)

// snapshotMsg carries a new table snapshot into the model.
type snapshotMsg server.Presentation

// streamClosedMsg reports the end of the snapshot stream.
type streamClosedMsg struct{ err error }

// Follow subscribes to the host's snapshot stream. The snapshot channel is
// closed when the stream ends; the error channel then carries the reason,
// nil when ctx was cancelled.
func Follow(ctx context.Context, hostURL string) (<-chan server.Presentation, <-chan error, error) {
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(hostURL, "/"), "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stream: %w", err)
	}

	snaps := make(chan server.Presentation, 8)
	errs := make(chan error, 1)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(snaps)
		defer close(errs)
		for {
			var p server.Presentation
			if err := conn.ReadJSON(&p); err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			select {
			case snaps <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return snaps, errs, nil
}

// waitForSnapshot delivers the next snapshot to the program.
func waitForSnapshot(snaps <-chan server.Presentation, errs <-chan error) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-snaps
		if !ok {
			return streamClosedMsg{err: <-errs}
		}
		return snapshotMsg(p)
	}
}

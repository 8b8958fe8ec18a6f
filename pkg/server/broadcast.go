package server

import (
	"context"
	"sync"

	"github.com/vctt94/pokerhost/pkg/directory"
	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
)

// playTurn solicits the player to act and pushes the same state to everyone
// else, then applies exactly one action: the answer if it is usable, the
// fallback fold otherwise. Network calls outlive a shutdown and are bounded
// by the transport's own timeouts; nothing is applied once ctx is done.
func (s *Server) playTurn(ctx context.Context) {
	seat := s.engine.PlayerToAct()

	s.mu.RLock()
	actor := s.occupants[seat]
	legal := s.table.PlayerToActLegalActions
	s.mu.RUnlock()

	peers := s.activePeers(ctx)
	var target *directory.Peer
	deliveries := make([]protocol.Delivery, 0, len(peers))
	for i := range peers {
		p := peers[i]
		if actor != nil && p.Identity == actor.identity {
			target = &p
			continue
		}
		deliveries = append(deliveries, protocol.Delivery{
			Identity: p.Identity,
			Endpoint: p.Endpoint,
			Message:  protocol.Update{Content: s.ViewFor(p.Identity)},
		})
	}

	netCtx := context.WithoutCancel(ctx)
	resp := protocol.FallbackAction()
	var wg sync.WaitGroup
	if target != nil {
		content := s.ViewFor(target.Identity)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.transport.Query(netCtx, target.Endpoint, content)
			if err != nil {
				s.log.Warnf("Seat %d (%s) did not answer, folding: %v", seat, target.Identity, err)
				return
			}
			resp = r
		}()
	} else {
		s.log.Warnf("Seat %d has no active subscriber, folding", seat)
	}
	s.bcast.Fanout(netCtx, deliveries)
	wg.Wait()

	if ctx.Err() != nil {
		s.log.Infof("Shutting down, seat %d's turn is left unplayed", seat)
		return
	}

	action, betSize, ok := validateAction(resp, legal)
	if !ok {
		s.log.Warnf("Seat %d answered %q (%d) outside its legal actions, folding", seat, resp.Action, resp.BetSize)
	}
	if err := s.applyAction(seat, action, betSize); err != nil {
		s.log.Warnf("Engine rejected %s %d from seat %d, folding: %v", action, betSize, seat, err)
		if err := s.applyAction(seat, poker.ActionFold, 0); err != nil {
			s.log.Errorf("Unable to fold seat %d: %v", seat, err)
		}
	}
}

// validateAction maps a peer's answer into the legal set. Unknown or illegal
// actions become a fold and bet sizes are clamped into the chip range.
func validateAction(resp protocol.ActionResponse, legal *protocol.LegalActions) (poker.Action, int64, bool) {
	action, known := poker.ParseAction(resp.Action)
	if !known || !legal.Contains(resp.Action) {
		return poker.ActionFold, 0, false
	}
	if !protocol.NeedsBetSize(resp.Action) {
		return action, 0, true
	}
	if legal.ChipRange == nil {
		return poker.ActionFold, 0, false
	}
	size := min(max(resp.BetSize, legal.ChipRange.Min), legal.ChipRange.Max)
	return action, size, true
}

// applyAction submits action to the engine and records it in the history.
func (s *Server) applyAction(seat int, action poker.Action, betSize int64) error {
	round := string(s.engine.RoundOfBetting())
	if err := s.engine.ActionTaken(action, betSize); err != nil {
		return err
	}

	entry := protocol.ActionHistoryEntry{
		RoundOfBetting: round,
		Seat:           seat,
		Action:         string(action),
	}
	if protocol.NeedsBetSize(string(action)) {
		entry.BetSize = &betSize
	}

	s.mu.Lock()
	var identity string
	if occ := s.occupants[seat]; occ != nil {
		entry.Name = occ.name
		identity = occ.identity
	}
	s.history = append(s.history, entry)
	s.refreshLocked()
	handID := s.table.HandID
	s.mu.Unlock()

	s.log.Debugf("Seat %d %s %d in %s", seat, action, betSize, round)
	s.events.Publish(&GameEvent{
		Type:     EventActionApplied,
		HandID:   handID,
		Seat:     seat,
		Action:   string(action),
		Amount:   betSize,
		Identity: identity,
	})
	return nil
}

// pushUpdates sends every active peer its current view.
func (s *Server) pushUpdates(ctx context.Context) []protocol.Result {
	peers := s.activePeers(ctx)
	if len(peers) == 0 {
		return nil
	}
	deliveries := make([]protocol.Delivery, len(peers))
	for i, p := range peers {
		deliveries[i] = protocol.Delivery{
			Identity: p.Identity,
			Endpoint: p.Endpoint,
			Message:  protocol.Update{Content: s.ViewFor(p.Identity)},
		}
	}
	results := s.bcast.Fanout(ctx, deliveries)
	if failed := protocol.Failed(results); len(failed) > 0 {
		s.log.Debugf("%d of %d updates failed", len(failed), len(results))
	}
	return results
}

func (s *Server) activePeers(ctx context.Context) []directory.Peer {
	peers, err := s.dir.ActivePeers(ctx)
	if err != nil {
		s.log.Errorf("Unable to list active peers: %v", err)
		return nil
	}
	return peers
}

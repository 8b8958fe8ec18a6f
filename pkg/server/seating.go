package server

import (
	"context"
	"fmt"

	"github.com/vctt94/pokerhost/pkg/directory"
)

// seatPlayers runs one seating pass: occupants that are no longer live are
// kicked, then live unseated peers take the lowest free seats.
func (s *Server) seatPlayers(ctx context.Context) {
	s.syncBusted()

	live, err := s.dir.LivePeers(ctx)
	if err != nil {
		s.log.Errorf("Unable to list live peers, keeping current seats: %v", err)
		return
	}
	byID := make(map[string]directory.Peer, len(live))
	for _, p := range live {
		byID[p.Identity] = p
	}

	for _, seat := range s.seats.Seats() {
		id, ok := s.seats.IdentityAt(seat)
		if !ok {
			continue
		}
		if p, alive := byID[id]; alive {
			s.updateOccupant(seat, p)
			continue
		}
		if err := s.kickPeer(id, "not live"); err != nil {
			s.log.Warnf("Unable to kick %s from seat %d: %v", id, seat, err)
		}
	}

	for _, p := range live {
		if _, seated := s.seats.SeatOf(p.Identity); seated {
			continue
		}
		free := s.seats.FreeSeats()
		if len(free) == 0 {
			break
		}
		if err := s.seatPeer(p, free[0]); err != nil {
			s.log.Warnf("Unable to seat %s: %v", p.Identity, err)
		}
	}
	s.refresh()
}

// seatPeer binds p to seat with the configured buy-in.
func (s *Server) seatPeer(p directory.Peer, seat int) error {
	if err := s.seats.Assign(seat, p.Identity); err != nil {
		return err
	}
	if err := s.engine.SitDown(seat, s.buyIn); err != nil {
		s.seats.RemoveSeat(seat)
		return fmt.Errorf("sit down at seat %d: %w", seat, err)
	}

	s.mu.Lock()
	s.occupants[seat] = &occupant{identity: p.Identity, name: p.Name, endpoint: p.Endpoint}
	s.refreshLocked()
	s.mu.Unlock()

	s.log.Infof("Seated %s (%s) at seat %d with %d", p.Name, p.Identity, seat, s.buyIn)
	s.events.Publish(&GameEvent{Type: EventPlayerSeated, Seat: seat, Identity: p.Identity, Amount: s.buyIn})
	return nil
}

// kickPeer frees the seat of id in the engine and in the seat map. A kicked
// peer is seated again like any new peer once it is live. Kicking an unseated
// peer does nothing.
func (s *Server) kickPeer(id, reason string) error {
	seat, ok := s.seats.SeatOf(id)
	if !ok {
		return nil
	}
	if err := s.engine.StandUp(seat); err != nil {
		return err
	}
	s.seats.RemoveIdentity(id)

	s.mu.Lock()
	delete(s.occupants, seat)
	delete(s.folded, seat)
	s.refreshLocked()
	s.mu.Unlock()

	s.log.Infof("Kicked %s from seat %d: %s", id, seat, reason)
	s.events.Publish(&GameEvent{Type: EventPlayerKicked, Seat: seat, Identity: id})
	return nil
}

// syncBusted forgets occupants whose seat the engine cleared after they ran
// out of chips. A seat that was filled again since is left alone.
func (s *Server) syncBusted() {
	seats := s.engine.Seats()
	for _, seat := range s.engine.Busted() {
		if seat < len(seats) && seats[seat] != nil {
			continue
		}
		id, ok := s.seats.RemoveSeat(seat)
		if !ok {
			continue
		}

		s.mu.Lock()
		delete(s.occupants, seat)
		s.refreshLocked()
		s.mu.Unlock()

		s.log.Infof("Seat %d (%s) busted", seat, id)
		s.events.Publish(&GameEvent{Type: EventPlayerKicked, Seat: seat, Identity: id})
	}
}

// updateOccupant keeps the name and endpoint of a seated peer current.
func (s *Server) updateOccupant(seat int, p directory.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if occ := s.occupants[seat]; occ != nil {
		occ.name = p.Name
		occ.endpoint = p.Endpoint
	}
}

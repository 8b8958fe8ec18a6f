package server

import (
	"context"
	"errors"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
	"github.com/vctt94/pokerhost/pkg/statemachine"
)

// Phase is the game loop's position in the hand lifecycle.
type Phase int

const (
	PhaseNoGame Phase = iota
	PhaseSeating
	PhaseHandInProgress
	PhaseShowdown
	PhaseBetweenHands
)

func (p Phase) String() string {
	switch p {
	case PhaseNoGame:
		return "NoGame"
	case PhaseSeating:
		return "Seating"
	case PhaseHandInProgress:
		return "HandInProgress"
	case PhaseShowdown:
		return "Showdown"
	case PhaseBetweenHands:
		return "BetweenHands"
	default:
		return "Unknown"
	}
}

type stateFn = statemachine.StateFn[Server]

// stateSeating kicks dead occupants and backfills free seats. It waits for
// the seating-retry timer while fewer than two seats are filled.
func stateSeating(ctx context.Context, s *Server) stateFn {
	s.setPhase(PhaseSeating)
	s.seatPlayers(ctx)

	if n := s.seats.Len(); n < 2 {
		s.log.Infof("Waiting for players: %d seated, retrying in %v", n, s.seatingRetry)
		s.pushUpdates(ctx)
		if !s.waitFor(ctx, TimerSeatingRetry, s.seatingRetry) {
			return nil
		}
		return stateSeating
	}
	s.sched.Cancel(TimerSeatingRetry)
	return stateStartHand
}

// stateStartHand deals a new hand and clears everything left from the last
// one.
func stateStartHand(ctx context.Context, s *Server) stateFn {
	if err := s.engine.StartHand(); err != nil {
		s.log.Warnf("Unable to start hand: %v", err)
		if !s.waitFor(ctx, TimerSeatingRetry, s.seatingRetry) {
			return nil
		}
		return stateSeating
	}

	s.mu.Lock()
	s.phase = PhaseHandInProgress
	s.table.HandID = uuid.NewString()
	s.table.Winners = nil
	s.table.PlayerToActLegalActions = nil
	s.history = []protocol.ActionHistoryEntry{}
	s.winners = make(map[int]bool)
	s.revealed = make(map[int]bool)
	s.refreshLocked()
	handID, button := s.table.HandID, s.table.Button
	s.mu.Unlock()

	s.log.Infof("Hand %s started, button on seat %d", handID, button)
	s.events.Publish(&GameEvent{Type: EventHandStarted, HandID: handID, Seat: button})
	return stateBetting
}

// stateBetting runs one betting round to its end.
func stateBetting(ctx context.Context, s *Server) stateFn {
	for s.engine.BettingRoundInProgress() {
		if ctx.Err() != nil {
			return nil
		}
		s.playTurn(ctx)
	}

	err := s.engine.EndBettingRound()
	switch {
	case err == nil:
	case errors.Is(err, poker.ErrRoundsCompleted):
	default:
		s.log.Errorf("Unable to end betting round: %v", err)
		if !s.engine.BettingRoundsCompleted() {
			return stateBetweenHands
		}
	}
	s.refresh()
	if s.log.Level() <= slog.LevelTrace {
		s.log.Tracef("Table after %s: %s", s.engine.RoundOfBetting(), spew.Sdump(s.TableState()))
	}

	if s.engine.BettingRoundsCompleted() {
		return stateShowdown
	}
	// The next street is dealt.
	s.events.Publish(&GameEvent{Type: EventRoundEnded, HandID: s.TableState().HandID, Seat: -1})
	s.pushUpdates(ctx)
	return stateBetting
}

// stateShowdown settles every pot and pushes the result to every peer.
func stateShowdown(ctx context.Context, s *Server) stateFn {
	s.setPhase(PhaseShowdown)
	winners := s.settle()

	s.mu.Lock()
	s.table.Winners = winners
	s.hands++
	s.refreshLocked()
	handID := s.table.HandID
	s.mu.Unlock()

	for _, w := range winners {
		s.log.Infof("Hand %s: seat %d (%s) wins %d with %s", handID, w.Seat, w.Name, w.Amount, w.Ranking)
	}
	s.events.Publish(&GameEvent{Type: EventShowdown, HandID: handID, Seat: -1})
	s.pushUpdates(ctx)
	s.syncBusted()
	return stateBetweenHands
}

// settle awards the pots. A single pot with a single eligible seat is
// recorded directly; anything else is decided by the engine's showdown.
func (s *Server) settle() []protocol.Winner {
	pots := s.engine.Pots()
	hole := s.engine.HoleCards()
	board := s.engine.CommunityCards()

	if len(pots) == 1 && len(pots[0].Eligible) == 1 {
		seat := pots[0].Eligible[0]
		w := protocol.Winner{
			Seat:    seat,
			Name:    s.nameAt(seat),
			Ranking: displayRanking(hole[seat], board),
			Amount:  pots[0].Amount,
		}
		if err := s.engine.Showdown(); err != nil {
			s.log.Errorf("Showdown failed: %v", err)
		}
		s.mu.Lock()
		s.markWinner(seat)
		s.mu.Unlock()
		return []protocol.Winner{w}
	}

	if err := s.engine.Showdown(); err != nil {
		s.log.Errorf("Showdown failed: %v", err)
		return []protocol.Winner{}
	}

	var out []protocol.Winner
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pot := range s.engine.Winners() {
		for _, w := range pot {
			pw := protocol.Winner{Seat: w.Seat, Name: s.nameLocked(w.Seat), Amount: w.Amount}
			if w.Hand != nil {
				pw.Ranking = w.Hand.Description
				pw.HoleCards = wireCards(w.HoleCards)
			} else {
				pw.Ranking = displayRanking(hole[w.Seat], board)
			}
			out = append(out, pw)
			s.markWinner(w.Seat)
		}
	}
	// Seats whose hands were compared are shown.
	for _, pot := range pots {
		if len(pot.Eligible) < 2 {
			continue
		}
		for _, seat := range pot.Eligible {
			s.revealed[seat] = true
		}
	}
	if out == nil {
		out = []protocol.Winner{}
	}
	return out
}

// stateBetweenHands pauses before the next seating pass.
func stateBetweenHands(ctx context.Context, s *Server) stateFn {
	s.setPhase(PhaseBetweenHands)
	s.events.Publish(&GameEvent{Type: EventBetweenHands, HandID: s.TableState().HandID, Seat: -1})
	if !s.waitFor(ctx, TimerNextHand, s.nextHandDelay) {
		return nil
	}
	return stateSeating
}

func (s *Server) nameAt(seat int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nameLocked(seat)
}

func (s *Server) nameLocked(seat int) string {
	if occ := s.occupants[seat]; occ != nil {
		return occ.name
	}
	return ""
}

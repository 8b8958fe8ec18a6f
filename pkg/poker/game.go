package poker

import (
	"fmt"
	"sort"
)

// StartHand moves the button, posts the ante and blinds, deals hole cards and
// opens the preflop round.
func (t *Table) StartHand() error {
	if t.handInProgress {
		return ErrHandInProgress
	}
	n := 0
	for _, p := range t.players {
		if p != nil && p.stack > 0 {
			n++
		}
	}
	if n < 2 {
		return fmt.Errorf("%w: %d seated with chips", ErrNotEnoughPlayers, n)
	}

	for _, p := range t.players {
		if p != nil {
			p.resetForHand()
		}
	}
	t.community = nil
	t.pm = NewPotManager()
	t.pots = nil
	t.winners = nil
	t.busted = nil
	t.roundsCompleted = false

	inHand := func(p *player) bool { return p.inHand }
	if t.button < 0 {
		t.button = t.nextSeat(-1, inHand)
	} else {
		t.button = t.nextSeat(t.button, inHand)
	}

	if len(t.nextDeck) > 0 {
		t.deck = NewDeckFromCards(t.nextDeck)
		t.nextDeck = nil
	} else {
		t.deck = NewDeck(t.rng)
	}

	if ante := t.forcedBets.Ante; ante > 0 {
		for seat, p := range t.players {
			if p.live() {
				amount := min(ante, p.stack)
				p.stack -= amount
				if p.stack == 0 {
					p.allIn = true
				}
				t.pm.AddDead(seat, amount)
			}
		}
	}

	// Heads-up the button posts the small blind.
	sb := t.button
	if n > 2 {
		sb = t.nextSeat(t.button, inHand)
	}
	bb := t.nextSeat(sb, inHand)
	t.pm.AddBet(sb, t.players[sb].put(t.forcedBets.SmallBlind))
	t.pm.AddBet(bb, t.players[bb].put(t.forcedBets.BigBlind))

	for round := 0; round < 2; round++ {
		seat := t.button
		for i := 0; i < n; i++ {
			seat = t.nextSeat(seat, inHand)
			c, _ := t.deck.Draw()
			t.players[seat].hole = append(t.players[seat].hole, c)
		}
	}

	t.handInProgress = true
	t.round = Preflop
	t.currentBet = max(t.players[sb].bet, t.players[bb].bet)
	t.lastRaise = t.forcedBets.BigBlind
	t.toAct = t.nextToAct(bb)
	t.roundInProgress = t.toAct >= 0 && !t.roundDone()
	t.log.Debugf("Hand started: button %d, small blind %d, big blind %d, %d players", t.button, sb, bb, n)
	return nil
}

// EndBettingRound collects bets and either deals the next street or marks the
// betting rounds completed.
func (t *Table) EndBettingRound() error {
	if !t.handInProgress {
		return ErrNoHandInProgress
	}
	if t.roundInProgress {
		return ErrRoundInProgress
	}
	if t.roundsCompleted {
		return ErrRoundsCompleted
	}

	if seat, amount := t.pm.ReturnUncalledBet(); seat >= 0 {
		t.players[seat].stack += amount
		t.players[seat].bet -= amount
		if t.players[seat].stack > 0 {
			t.players[seat].allIn = false
		}
		t.log.Debugf("Returned uncalled %d to seat %d", amount, seat)
	}
	for _, p := range t.players {
		if p != nil {
			p.bet = 0
		}
	}
	t.pm.ResetCurrentBets()
	t.pots = BuildPots(t.pm.TotalBets, t.Folded)

	live, active := 0, 0
	for _, p := range t.players {
		if p.live() {
			live++
		}
		if p.canAct() {
			active++
		}
	}
	switch {
	case live <= 1:
		t.roundsCompleted = true
		return nil
	case active <= 1 || t.round == River:
		t.roundsCompleted = true
		t.dealBoard(5)
		return nil
	}

	switch t.round {
	case Preflop:
		t.round = Flop
		t.dealBoard(3)
	case Flop:
		t.round = Turn
		t.dealBoard(4)
	case Turn:
		t.round = River
		t.dealBoard(5)
	}
	t.currentBet = 0
	t.lastRaise = t.forcedBets.BigBlind
	for _, p := range t.players {
		if p != nil {
			p.acted = false
			p.facedBet = 0
		}
	}
	t.toAct = t.nextToAct(t.button)
	t.roundInProgress = t.toAct >= 0
	return nil
}

func (t *Table) dealBoard(size int) {
	for len(t.community) < size {
		c, ok := t.deck.Draw()
		if !ok {
			return
		}
		t.community = append(t.community, c)
	}
}

// Showdown awards every pot and ends the hand. Pots with a single eligible
// seat are awarded without comparing hands. Seats left without chips are
// cleared.
func (t *Table) Showdown() error {
	if !t.handInProgress {
		return ErrNoHandInProgress
	}
	if !t.roundsCompleted {
		return ErrRoundsIncomplete
	}

	t.pots = BuildPots(t.pm.TotalBets, t.Folded)
	t.winners = make([][]Winner, len(t.pots))
	for i, pot := range t.pots {
		t.winners[i] = t.awardPot(pot)
	}

	t.handInProgress = false
	t.roundInProgress = false
	for seat, p := range t.players {
		if p != nil && p.stack == 0 {
			t.players[seat] = nil
			t.busted = append(t.busted, seat)
		}
	}
	if len(t.busted) > 0 {
		t.log.Debugf("Cleared busted seats %v", t.busted)
	}
	return nil
}

func (t *Table) awardPot(pot Pot) []Winner {
	if len(pot.Eligible) == 0 {
		return nil
	}
	if len(pot.Eligible) == 1 {
		seat := pot.Eligible[0]
		t.players[seat].stack += pot.Amount
		return []Winner{{Seat: seat, Amount: pot.Amount, HoleCards: t.players[seat].hole}}
	}

	type entry struct {
		seat int
		hand HandValue
	}
	var best []entry
	for _, seat := range pot.Eligible {
		p := t.players[seat]
		cards := append(append([]Card(nil), p.hole...), t.community...)
		hv, err := EvaluateHand(cards)
		if err != nil {
			t.log.Errorf("Failed to evaluate seat %d: %v", seat, err)
			continue
		}
		switch {
		case len(best) == 0 || CompareHands(hv, best[0].hand) > 0:
			best = []entry{{seat, hv}}
		case CompareHands(hv, best[0].hand) == 0:
			best = append(best, entry{seat, hv})
		}
	}
	if len(best) == 0 {
		return nil
	}

	// Odd chips go to the first winners left of the button.
	dist := func(seat int) int { return (seat - t.button - 1 + t.numSeats) % t.numSeats }
	sort.Slice(best, func(i, j int) bool { return dist(best[i].seat) < dist(best[j].seat) })

	share := pot.Amount / int64(len(best))
	rem := pot.Amount % int64(len(best))
	winners := make([]Winner, len(best))
	for i, e := range best {
		amount := share
		if int64(i) < rem {
			amount++
		}
		t.players[e.seat].stack += amount
		hv := e.hand
		winners[i] = Winner{Seat: e.seat, Amount: amount, Hand: &hv, HoleCards: t.players[e.seat].hole}
	}
	return winners
}

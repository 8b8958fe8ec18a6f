// Package poker is a no-limit Texas Hold'em rules engine for a single table.
// It deals, tracks betting, builds pots and settles showdowns. It does not
// know about players' identities or the network; callers refer to seats by
// index.
package poker

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/decred/slog"
)

var (
	ErrHandInProgress   = errors.New("poker: hand in progress")
	ErrNoHandInProgress = errors.New("poker: no hand in progress")
	ErrNoBettingRound   = errors.New("poker: no betting round in progress")
	ErrRoundInProgress  = errors.New("poker: betting round still in progress")
	ErrRoundsIncomplete = errors.New("poker: betting rounds not completed")
	ErrRoundsCompleted  = errors.New("poker: betting rounds already completed")
	ErrIllegalAction    = errors.New("poker: illegal action")
	ErrSeatTaken        = errors.New("poker: seat taken")
	ErrSeatEmpty        = errors.New("poker: seat empty")
	ErrBadSeat          = errors.New("poker: seat out of range")
	ErrNotEnoughPlayers = errors.New("poker: not enough players")
)

// ForcedBets are the ante and blinds.
type ForcedBets struct {
	Ante       int64
	SmallBlind int64
	BigBlind   int64
}

// TableConfig configures a Table.
type TableConfig struct {
	NumSeats   int
	ForcedBets ForcedBets
	// Seed seeds the shuffle. Zero seeds from the clock.
	Seed int64
	Log  slog.Logger
}

// LegalActions is what the player to act may do. ChipRange is set when a bet
// or raise is allowed and bounds the round total.
type LegalActions struct {
	Actions   []Action
	ChipRange *ChipRange
}

// ChipRange bounds a bet or raise, as a round total.
type ChipRange struct {
	Min int64
	Max int64
}

// Contains reports whether a is allowed.
func (la LegalActions) Contains(a Action) bool {
	for _, x := range la.Actions {
		if x == a {
			return true
		}
	}
	return false
}

// Winner is one award of one pot. Hand is nil when the pot was won without a
// showdown.
type Winner struct {
	Seat      int
	Amount    int64
	Hand      *HandValue
	HoleCards []Card
}

// Table is the rules engine. It is not safe for concurrent use.
type Table struct {
	log        slog.Logger
	numSeats   int
	forcedBets ForcedBets
	rng        *rand.Rand

	players []*player
	button  int

	deck      *Deck
	community []Card
	pm        *PotManager
	pots      []Pot
	winners   [][]Winner
	busted    []int

	handInProgress  bool
	roundInProgress bool
	roundsCompleted bool
	round           Round
	toAct           int
	currentBet      int64
	lastRaise       int64

	// nextDeck overrides the shuffle for the next hand.
	nextDeck []Card
}

// NewTable returns an empty table.
func NewTable(cfg TableConfig) *Table {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Table{
		log:        log,
		numSeats:   cfg.NumSeats,
		forcedBets: cfg.ForcedBets,
		rng:        rand.New(rand.NewSource(seed)),
		players:    make([]*player, cfg.NumSeats),
		button:     -1,
		toAct:      -1,
		pm:         NewPotManager(),
	}
}

// NumSeats returns the table size.
func (t *Table) NumSeats() int { return t.numSeats }

// ForcedBets returns the ante and blinds.
func (t *Table) ForcedBets() ForcedBets { return t.forcedBets }

// SitDown seats a player with buyIn chips.
func (t *Table) SitDown(seat int, buyIn int64) error {
	if seat < 0 || seat >= t.numSeats {
		return fmt.Errorf("%w: %d", ErrBadSeat, seat)
	}
	if t.players[seat] != nil {
		return fmt.Errorf("%w: %d", ErrSeatTaken, seat)
	}
	if buyIn <= 0 {
		return fmt.Errorf("poker: buy-in must be positive, got %d", buyIn)
	}
	t.players[seat] = &player{stack: buyIn}
	return nil
}

// StandUp empties a seat. A seat dealt into a running hand cannot leave.
func (t *Table) StandUp(seat int) error {
	if seat < 0 || seat >= t.numSeats {
		return fmt.Errorf("%w: %d", ErrBadSeat, seat)
	}
	p := t.players[seat]
	if p == nil {
		return fmt.Errorf("%w: %d", ErrSeatEmpty, seat)
	}
	if t.handInProgress && p.live() {
		return fmt.Errorf("%w: seat %d is in the hand", ErrHandInProgress, seat)
	}
	t.players[seat] = nil
	return nil
}

// HandInProgress reports whether a hand is being played.
func (t *Table) HandInProgress() bool { return t.handInProgress }

// BettingRoundInProgress reports whether a player must act.
func (t *Table) BettingRoundInProgress() bool { return t.roundInProgress }

// BettingRoundsCompleted reports whether the hand is ready for showdown.
func (t *Table) BettingRoundsCompleted() bool { return t.roundsCompleted }

// RoundOfBetting returns the current or last betting round.
func (t *Table) RoundOfBetting() Round { return t.round }

// PlayerToAct returns the seat to act, or -1.
func (t *Table) PlayerToAct() int {
	if !t.roundInProgress {
		return -1
	}
	return t.toAct
}

// Button returns the dealer seat, or -1 before the first hand.
func (t *Table) Button() int { return t.button }

// CommunityCards returns the board.
func (t *Table) CommunityCards() []Card {
	return append([]Card(nil), t.community...)
}

// HoleCards returns the hole cards per seat. Seats not dealt in are nil.
func (t *Table) HoleCards() [][]Card {
	out := make([][]Card, t.numSeats)
	for i, p := range t.players {
		if p != nil && len(p.hole) > 0 {
			out[i] = append([]Card(nil), p.hole...)
		}
	}
	return out
}

// Seats returns the chip state per seat. Empty seats are nil.
func (t *Table) Seats() []*SeatInfo {
	out := make([]*SeatInfo, t.numSeats)
	for i, p := range t.players {
		if p != nil {
			out[i] = &SeatInfo{Stack: p.stack, BetSize: p.bet}
		}
	}
	return out
}

// Folded reports whether seat folded this hand.
func (t *Table) Folded(seat int) bool {
	if seat < 0 || seat >= t.numSeats || t.players[seat] == nil {
		return false
	}
	return t.players[seat].folded
}

// Pots returns the pots of chips collected in completed rounds. After a
// showdown it returns the pots that were awarded.
func (t *Table) Pots() []Pot {
	out := make([]Pot, len(t.pots))
	for i, p := range t.pots {
		out[i] = Pot{Amount: p.Amount, Eligible: append([]int(nil), p.Eligible...)}
	}
	return out
}

// Winners returns the awards of the last showdown, per pot.
func (t *Table) Winners() [][]Winner {
	out := make([][]Winner, len(t.winners))
	for i, ws := range t.winners {
		out[i] = append([]Winner(nil), ws...)
	}
	return out
}

// Busted returns the seats cleared at the end of the last hand because they
// ran out of chips.
func (t *Table) Busted() []int {
	return append([]int(nil), t.busted...)
}

// SetNextDeck makes the next hand deal cards in the given order.
func (t *Table) SetNextDeck(cards []Card) {
	t.nextDeck = append([]Card(nil), cards...)
}

// LegalActions returns the options of the player to act.
func (t *Table) LegalActions() (LegalActions, error) {
	if !t.roundInProgress {
		return LegalActions{}, ErrNoBettingRound
	}
	p := t.players[t.toAct]
	la := LegalActions{Actions: []Action{ActionFold}}
	if p.bet >= t.currentBet {
		la.Actions = append(la.Actions, ActionCheck)
	} else {
		la.Actions = append(la.Actions, ActionCall)
	}

	maxTotal := p.bet + p.stack
	canRaise := maxTotal > t.currentBet &&
		(!p.acted || t.currentBet-p.facedBet >= t.lastRaise) &&
		t.othersCanAct(t.toAct)
	if canRaise {
		minTotal := t.currentBet + t.lastRaise
		if minTotal > maxTotal {
			minTotal = maxTotal
		}
		if t.currentBet == 0 {
			la.Actions = append(la.Actions, ActionBet)
		} else {
			la.Actions = append(la.Actions, ActionRaise)
		}
		la.ChipRange = &ChipRange{Min: minTotal, Max: maxTotal}
	}
	return la, nil
}

// othersCanAct reports whether any live seat other than seat still has chips.
func (t *Table) othersCanAct(seat int) bool {
	for i, p := range t.players {
		if i != seat && p.canAct() {
			return true
		}
	}
	return false
}

// ActionTaken applies the action of the player to act. betSize is the round
// total for bet and raise and ignored otherwise.
func (t *Table) ActionTaken(action Action, betSize int64) error {
	la, err := t.LegalActions()
	if err != nil {
		return err
	}
	if !la.Contains(action) {
		return fmt.Errorf("%w: %s not in %v", ErrIllegalAction, action, la.Actions)
	}
	seat := t.toAct
	p := t.players[seat]

	switch action {
	case ActionFold:
		p.folded = true
	case ActionCheck:
	case ActionCall:
		moved := p.put(t.currentBet - p.bet)
		t.pm.AddBet(seat, moved)
	case ActionBet, ActionRaise:
		if betSize < la.ChipRange.Min || betSize > la.ChipRange.Max {
			return fmt.Errorf("%w: %s to %d outside [%d, %d]", ErrIllegalAction,
				action, betSize, la.ChipRange.Min, la.ChipRange.Max)
		}
		moved := p.put(betSize - p.bet)
		t.pm.AddBet(seat, moved)
		if raise := p.bet - t.currentBet; raise >= t.lastRaise {
			t.lastRaise = raise
		}
		t.currentBet = p.bet
		for i, o := range t.players {
			if i != seat && o.canAct() {
				o.acted = false
			}
		}
	}
	p.acted = true
	p.facedBet = t.currentBet
	t.log.Debugf("Seat %d %s (bet %d, stack %d) in %s", seat, action, p.bet, p.stack, t.round)

	if t.roundDone() {
		t.roundInProgress = false
		return nil
	}
	t.toAct = t.nextToAct(seat)
	return nil
}

// roundDone reports whether nobody else has to act this round.
func (t *Table) roundDone() bool {
	live, active := 0, 0
	var last *player
	for _, p := range t.players {
		if p.live() {
			live++
		}
		if p.canAct() {
			active++
			last = p
		}
	}
	if live <= 1 || active == 0 {
		return true
	}
	// A lone seat with chips facing no bet has nobody left to bet against.
	if active == 1 && last.bet >= t.currentBet {
		return true
	}
	for _, p := range t.players {
		if p.canAct() && (!p.acted || p.bet < t.currentBet) {
			return false
		}
	}
	return true
}

func (t *Table) nextToAct(from int) int {
	for i := 1; i <= t.numSeats; i++ {
		s := (from + i) % t.numSeats
		p := t.players[s]
		if p.canAct() && (!p.acted || p.bet < t.currentBet) {
			return s
		}
	}
	return -1
}

// nextSeat returns the next seat after from matching ok, or -1.
func (t *Table) nextSeat(from int, ok func(*player) bool) int {
	for i := 1; i <= t.numSeats; i++ {
		s := ((from+i)%t.numSeats + t.numSeats) % t.numSeats
		if p := t.players[s]; p != nil && ok(p) {
			return s
		}
	}
	return -1
}

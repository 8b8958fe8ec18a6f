package server

import (
	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
)

// RulesEngine is the seam to the rules engine. Only the game loop calls it.
type RulesEngine interface {
	NumSeats() int
	ForcedBets() poker.ForcedBets
	SitDown(seat int, buyIn int64) error
	StandUp(seat int) error

	StartHand() error
	HandInProgress() bool
	BettingRoundInProgress() bool
	BettingRoundsCompleted() bool
	RoundOfBetting() poker.Round
	PlayerToAct() int
	LegalActions() (poker.LegalActions, error)
	ActionTaken(action poker.Action, betSize int64) error
	EndBettingRound() error

	Pots() []poker.Pot
	CommunityCards() []poker.Card
	HoleCards() [][]poker.Card
	Seats() []*poker.SeatInfo
	Button() int
	Folded(seat int) bool
	Busted() []int

	Showdown() error
	Winners() [][]poker.Winner
}

var _ RulesEngine = (*poker.Table)(nil)

func wireCard(c poker.Card) protocol.Card {
	return protocol.Card{Rank: string(c.Value()), Suit: string(c.Suit())}
}

func wireCards(cards []poker.Card) []protocol.Card {
	if cards == nil {
		return nil
	}
	out := make([]protocol.Card, len(cards))
	for i, c := range cards {
		out[i] = wireCard(c)
	}
	return out
}

func wireLegalActions(la poker.LegalActions) *protocol.LegalActions {
	out := &protocol.LegalActions{Actions: make([]string, len(la.Actions))}
	for i, a := range la.Actions {
		out.Actions[i] = string(a)
	}
	if la.ChipRange != nil {
		out.ChipRange = &protocol.ChipRange{Min: la.ChipRange.Min, Max: la.ChipRange.Max}
	}
	return out
}

func wireSeats(seats []*poker.SeatInfo) ([]*protocol.SeatView, []int) {
	views := make([]*protocol.SeatView, len(seats))
	empty := []int{}
	for i, s := range seats {
		if s == nil {
			empty = append(empty, i)
			continue
		}
		views[i] = &protocol.SeatView{
			TotalChips: s.TotalChips(),
			Stack:      s.Stack,
			BetSize:    s.BetSize,
		}
	}
	return views, empty
}

func potSizes(pots []poker.Pot) []int64 {
	out := make([]int64, len(pots))
	for i, p := range pots {
		out[i] = p.Amount
	}
	return out
}

// displayRanking ranks hole plus board for display when the engine awarded a
// pot without comparing hands.
func displayRanking(hole, board []poker.Card) string {
	cards := append(append([]poker.Card(nil), hole...), board...)
	if len(cards) > 7 {
		cards = cards[:7]
	}
	hv, err := poker.EvaluateHand(cards)
	if err != nil {
		return ""
	}
	return hv.Description
}

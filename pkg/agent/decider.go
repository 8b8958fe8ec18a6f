package agent

import (
	"context"
	"strings"

	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
)

// RuleDecider plays by hand strength against pot odds. It only ever answers
// with an action from the legal set and a size inside the chip range.
type RuleDecider struct {
	// Aggression scales bet sizes from the minimum (0) toward the pot (1).
	Aggression float64
}

// Decide implements Decider.
func (d RuleDecider) Decide(_ context.Context, c protocol.Content) (protocol.ActionResponse, error) {
	legal := c.TableState.PlayerToActLegalActions
	if legal == nil {
		legal = c.PlayerState.LegalActions
	}
	if legal == nil || len(legal.Actions) == 0 {
		return protocol.FallbackAction(), nil
	}

	board := toEngineCards(c.TableState.CommunityCards)
	strength := HandStrength(toEngineCards(c.PlayerState.HoleCards), board)
	toCall, pot := callAndPot(c)

	can := legal.Contains
	switch {
	case strength >= 0.75 && (can(protocol.ActionRaise) || can(protocol.ActionBet)):
		action := protocol.ActionRaise
		if can(protocol.ActionBet) {
			action = protocol.ActionBet
		}
		return protocol.ActionResponse{Action: action, BetSize: d.size(legal.ChipRange, pot)}, nil

	case can(protocol.ActionCheck):
		return protocol.ActionResponse{Action: protocol.ActionCheck}, nil

	case can(protocol.ActionCall):
		// Call when the price is below what the hand is worth.
		odds := float64(toCall) / float64(pot+toCall)
		if strength >= odds || strength >= 0.5 {
			return protocol.ActionResponse{Action: protocol.ActionCall}, nil
		}
	}
	return protocol.FallbackAction(), nil
}

func (d RuleDecider) size(r *protocol.ChipRange, pot int64) int64 {
	if r == nil {
		return 0
	}
	aggression := min(max(d.Aggression, 0), 1)
	target := r.Min + int64(aggression*float64(pot))
	return min(max(target, r.Min), r.Max)
}

// callAndPot returns the chips the player must add to call and the chips
// already committed by everyone.
func callAndPot(c protocol.Content) (int64, int64) {
	var pot, high, mine int64
	for _, p := range c.TableState.Pots {
		pot += p
	}
	for seat, s := range c.TableState.Players {
		if s == nil {
			continue
		}
		pot += s.BetSize
		high = max(high, s.BetSize)
		if seat == c.PlayerState.Seat {
			mine = s.BetSize
		}
	}
	return max(high-mine, 0), max(pot, 1)
}

// HandStrength scores hole cards with the board on a 0 to 1 scale.
func HandStrength(hole, board []poker.Card) float64 {
	if len(hole) < 2 {
		return 0
	}
	if len(board) == 0 {
		return preflopStrength(hole[0], hole[1])
	}
	hv, err := poker.EvaluateHand(append(append([]poker.Card(nil), hole...), board...))
	if err != nil {
		return 0
	}
	switch hv.Rank {
	case poker.HighCard:
		return 0.15
	case poker.Pair:
		return 0.45
	case poker.TwoPair:
		return 0.65
	case poker.ThreeOfAKind:
		return 0.75
	case poker.Straight:
		return 0.82
	case poker.Flush:
		return 0.86
	case poker.FullHouse:
		return 0.92
	default:
		return 0.98
	}
}

const ranks = "23456789TJQKA"

func rankOf(c poker.Card) int {
	return strings.Index(ranks, string(c.Value())) + 2
}

func preflopStrength(a, b poker.Card) float64 {
	hi, lo := rankOf(a), rankOf(b)
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi == lo {
		return 0.5 + 0.5*float64(hi-2)/12
	}
	s := float64(hi+lo-5) / 40
	if a.Suit() == b.Suit() {
		s += 0.05
	}
	if hi-lo == 1 {
		s += 0.03
	}
	return min(s, 0.7)
}

func toEngineCards(cards []protocol.Card) []poker.Card {
	out := make([]poker.Card, 0, len(cards))
	for _, c := range cards {
		out = append(out, poker.NewCard(poker.Suit(c.Suit), poker.Value(c.Rank)))
	}
	return out
}

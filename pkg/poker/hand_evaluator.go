package poker

import (
	"fmt"
	"sort"

	"github.com/chehsunliu/poker"
)

// HandRank is the category of a hand.
type HandRank int

const (
	HighCard HandRank = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

var handRankNames = map[HandRank]string{
	HighCard:      "High Card",
	Pair:          "Pair",
	TwoPair:       "Two Pair",
	ThreeOfAKind:  "Three of a Kind",
	Straight:      "Straight",
	Flush:         "Flush",
	FullHouse:     "Full House",
	FourOfAKind:   "Four of a Kind",
	StraightFlush: "Straight Flush",
}

func (r HandRank) String() string {
	if s, ok := handRankNames[r]; ok {
		return s
	}
	return fmt.Sprintf("HandRank(%d)", int(r))
}

// HandValue is the evaluation of a hand. Lower RankValue is better, following
// the evaluator's convention.
type HandValue struct {
	Rank        HandRank
	RankValue   int32
	Description string
	Cards       []Card
}

// worstRankValue is the evaluator's value for 7-5-4-3-2 offsuit.
const worstRankValue = 7462

func valueToInt(value Value) int {
	for i, v := range allValues {
		if v == value {
			return i + 2
		}
	}
	return 0
}

func toEvaluatorCard(c Card) poker.Card {
	return poker.NewCard(string(c.value) + string(c.suit)[:1])
}

func rankFromClass(rankClass int32) HandRank {
	switch rankClass {
	case 1:
		return StraightFlush
	case 2:
		return FourOfAKind
	case 3:
		return FullHouse
	case 4:
		return Flush
	case 5:
		return Straight
	case 6:
		return ThreeOfAKind
	case 7:
		return TwoPair
	case 8:
		return Pair
	default:
		return HighCard
	}
}

// EvaluateHand ranks the best hand that can be made from cards. Five to seven
// cards are ranked by the evaluator. With fewer cards only pairs, trips and
// quads can be made, so they are ranked by grouping; RankValue is then an
// approximation on the same scale and only meaningful for display.
func EvaluateHand(cards []Card) (HandValue, error) {
	if len(cards) < 2 || len(cards) > 7 {
		return HandValue{}, fmt.Errorf("cannot evaluate %d cards", len(cards))
	}
	if len(cards) < 5 {
		return evaluatePartial(cards), nil
	}

	ec := make([]poker.Card, len(cards))
	for i, c := range cards {
		ec[i] = toEvaluatorCard(c)
	}
	rank := poker.Evaluate(ec)
	rankClass := poker.RankClass(rank)
	return HandValue{
		Rank:        rankFromClass(rankClass),
		RankValue:   rank,
		Description: poker.RankString(rank),
		Cards:       append([]Card(nil), cards...),
	}, nil
}

func evaluatePartial(cards []Card) HandValue {
	counts := make(map[Value]int)
	for _, c := range cards {
		counts[c.value]++
	}
	groups := make([]int, 0, len(counts))
	for _, n := range counts {
		groups = append(groups, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(groups)))

	hr := HighCard
	switch {
	case groups[0] == 4:
		hr = FourOfAKind
	case groups[0] == 3:
		hr = ThreeOfAKind
	case groups[0] == 2 && len(groups) > 1 && groups[1] == 2:
		hr = TwoPair
	case groups[0] == 2:
		hr = Pair
	}

	high := 0
	for _, c := range cards {
		if v := valueToInt(c.value); v > high {
			high = v
		}
	}
	// Place the value inside the band of its category, better categories
	// and higher cards getting lower values.
	bands := map[HandRank]int32{
		FourOfAKind:  11,
		ThreeOfAKind: 1610,
		TwoPair:      2468,
		Pair:         3326,
		HighCard:     6186,
	}
	return HandValue{
		Rank:        hr,
		RankValue:   bands[hr] + int32(14-high),
		Description: hr.String(),
		Cards:       append([]Card(nil), cards...),
	}
}

// CompareHands returns 1 if a beats b, -1 if b beats a, 0 on a tie.
func CompareHands(a, b HandValue) int {
	switch {
	case a.RankValue < b.RankValue:
		return 1
	case a.RankValue > b.RankValue:
		return -1
	default:
		return 0
	}
}

package poker

// Round is a betting round of a hand.
type Round string

const (
	Preflop Round = "preflop"
	Flop    Round = "flop"
	Turn    Round = "turn"
	River   Round = "river"
)

// Action is a betting action.
type Action string

const (
	ActionFold  Action = "fold"
	ActionCheck Action = "check"
	ActionCall  Action = "call"
	ActionBet   Action = "bet"
	ActionRaise Action = "raise"
)

// ParseAction converts a wire action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise:
		return a, true
	}
	return "", false
}

// SeatInfo is the public chip state of an occupied seat.
type SeatInfo struct {
	Stack   int64 // behind, excluding the current bet
	BetSize int64 // in front, this round
}

// TotalChips is stack plus current bet.
func (s SeatInfo) TotalChips() int64 {
	return s.Stack + s.BetSize
}

// player is the engine's per-seat state.
type player struct {
	stack int64
	bet   int64
	hole  []Card

	inHand bool // dealt into the current hand
	folded bool
	allIn  bool
	acted  bool
	// facedBet is the round's bet level when the seat last acted. A seat may
	// only raise again after a full raise above it.
	facedBet int64
}

func (p *player) live() bool {
	return p != nil && p.inHand && !p.folded
}

func (p *player) canAct() bool {
	return p.live() && !p.allIn
}

func (p *player) resetForHand() {
	p.bet = 0
	p.hole = nil
	p.inHand = p.stack > 0
	p.folded = false
	p.allIn = false
	p.acted = false
	p.facedBet = 0
}

// put moves up to amount from stack to bet and returns what was moved.
func (p *player) put(amount int64) int64 {
	if amount > p.stack {
		amount = p.stack
	}
	p.stack -= amount
	p.bet += amount
	if p.stack == 0 && p.inHand {
		p.allIn = true
	}
	return amount
}

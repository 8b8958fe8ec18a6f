package protocol

// Action names accepted on the wire.
const (
	ActionFold  = "fold"
	ActionCheck = "check"
	ActionCall  = "call"
	ActionBet   = "bet"
	ActionRaise = "raise"
)

// Card is the wire form of a playing card.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// ForcedBets are the table's ante and blinds.
type ForcedBets struct {
	Ante       int64 `json:"ante"`
	BigBlind   int64 `json:"bigBlind"`
	SmallBlind int64 `json:"smallBlind"`
}

// SeatView is the public chip state of an occupied seat.
type SeatView struct {
	TotalChips int64 `json:"totalChips"`
	Stack      int64 `json:"stack"`
	BetSize    int64 `json:"betSize"`
}

// ChipRange bounds the size of a bet or raise.
type ChipRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// LegalActions is the action set offered to the player to act.
type LegalActions struct {
	Actions   []string   `json:"actions"`
	ChipRange *ChipRange `json:"chipRange,omitempty"`
}

// Contains reports whether action is in the set.
func (la *LegalActions) Contains(action string) bool {
	if la == nil {
		return false
	}
	for _, a := range la.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Winner is one award of one pot.
type Winner struct {
	Seat      int    `json:"seat"`
	Name      string `json:"name,omitempty"`
	Ranking   string `json:"ranking,omitempty"`
	Amount    int64  `json:"amount"`
	HoleCards []Card `json:"holeCards,omitempty"`
}

// TableState is everything at the table every participant may know.
type TableState struct {
	HandID     string      `json:"handId,omitempty"`
	Players    []*SeatView `json:"players"`
	EmptySeats []int       `json:"emptySeats"`
	ForcedBets ForcedBets  `json:"forcedBets"`
	NumSeats   int         `json:"numSeats"`

	IsHandInProgress          bool          `json:"isHandInProgress"`
	IsBettingRoundInProgress  bool          `json:"isBettingRoundInProgress"`
	AreBettingRoundsCompleted bool          `json:"areBettingRoundsCompleted"`
	RoundOfBetting            string        `json:"roundOfBetting"`
	PlayerToActSeat           int           `json:"playerToActSeat"`
	PlayerToActKey            string        `json:"playerToActKey"`
	PlayerToActName           string        `json:"playerToActName"`
	PlayerToActLegalActions   *LegalActions `json:"playerToActLegalActions,omitempty"`

	Button         int      `json:"button"`
	CommunityCards []Card   `json:"communityCards"`
	Pots           []int64  `json:"pots"`
	Winners        []Winner `json:"winners"`

	GameStateString string `json:"gameStateString"`
}

// PlayerState is what only the receiving participant may know.
type PlayerState struct {
	PublicKey       string        `json:"publicKey"`
	Name            string        `json:"name"`
	Seat            int           `json:"seat"`
	Stack           int64         `json:"stack"`
	HoleCards       []Card        `json:"holeCards,omitempty"`
	LegalActions    *LegalActions `json:"legalActions,omitempty"`
	IsFolded        bool          `json:"isFolded"`
	IsDealer        bool          `json:"isDealer"`
	IsWinner        bool          `json:"isWinner"`
	PotsEligibleFor []int         `json:"potsEligibleFor,omitempty"`
}

// Seated reports whether the participant holds a seat.
func (ps *PlayerState) Seated() bool {
	return ps != nil && ps.Seat >= 0
}

// ActionHistoryEntry is one applied action of the current hand.
type ActionHistoryEntry struct {
	RoundOfBetting string `json:"roundOfBetting"`
	Seat           int    `json:"seat"`
	Name           string `json:"name,omitempty"`
	Action         string `json:"action"`
	BetSize        *int64 `json:"betSize"`
}

// Content is the body of Update and Query messages.
type Content struct {
	TableState    TableState           `json:"tableState"`
	PlayerState   PlayerState          `json:"playerState"`
	ActionHistory []ActionHistoryEntry `json:"actionHistory"`
}

// IsTurnOf reports whether the view solicits an action from identity.
func (c *Content) IsTurnOf(identity string) bool {
	return c.TableState.IsBettingRoundInProgress && c.TableState.PlayerToActKey == identity
}

// ActionResponse is the reply body of a Query.
type ActionResponse struct {
	Action  string `json:"action"`
	BetSize int64  `json:"betSize"`
}

// FallbackAction is substituted whenever a solicited peer fails to answer.
func FallbackAction() ActionResponse {
	return ActionResponse{Action: ActionFold, BetSize: 0}
}

// NeedsBetSize reports whether action carries a chip amount.
func NeedsBetSize(action string) bool {
	return action == ActionBet || action == ActionRaise
}

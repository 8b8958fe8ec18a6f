package poker

import "sort"

// Pot is an amount of chips and the seats that can win it.
type Pot struct {
	Amount   int64
	Eligible []int // seats, ascending
}

// IsEligible reports whether seat can win the pot.
func (p Pot) IsEligible(seat int) bool {
	for _, s := range p.Eligible {
		if s == seat {
			return true
		}
	}
	return false
}

// PotManager tracks contributions per seat and builds main and side pots from
// them.
type PotManager struct {
	CurrentBets map[int]int64 // this betting round
	TotalBets   map[int]int64 // whole hand, antes included
}

// NewPotManager returns an empty manager.
func NewPotManager() *PotManager {
	return &PotManager{
		CurrentBets: make(map[int]int64),
		TotalBets:   make(map[int]int64),
	}
}

// AddBet records amount put in by seat during the current round.
func (pm *PotManager) AddBet(seat int, amount int64) {
	pm.CurrentBets[seat] += amount
	pm.TotalBets[seat] += amount
}

// AddDead records chips that go straight to the pot, such as antes.
func (pm *PotManager) AddDead(seat int, amount int64) {
	pm.TotalBets[seat] += amount
}

// ResetCurrentBets starts a new betting round.
func (pm *PotManager) ResetCurrentBets() {
	pm.CurrentBets = make(map[int]int64)
}

// GetCurrentBet returns the round contribution of seat.
func (pm *PotManager) GetCurrentBet(seat int) int64 {
	return pm.CurrentBets[seat]
}

// GetTotalBet returns the hand contribution of seat.
func (pm *PotManager) GetTotalBet(seat int) int64 {
	return pm.TotalBets[seat]
}

// Total returns every chip contributed this hand.
func (pm *PotManager) Total() int64 {
	var total int64
	for _, b := range pm.TotalBets {
		total += b
	}
	return total
}

// Collected returns the chips contributed in completed rounds.
func (pm *PotManager) Collected() int64 {
	var cur int64
	for _, b := range pm.CurrentBets {
		cur += b
	}
	return pm.Total() - cur
}

// ReturnUncalledBet gives back the part of the largest round bet that nobody
// matched. It returns the seat refunded and the amount, or -1 and 0.
func (pm *PotManager) ReturnUncalledBet() (int, int64) {
	var hi, second int64
	hiSeat := -1
	for seat, bet := range pm.CurrentBets {
		switch {
		case bet > hi:
			second = hi
			hi = bet
			hiSeat = seat
		case bet > second:
			second = bet
		}
	}
	if hiSeat < 0 || hi <= second {
		return -1, 0
	}
	uncalled := hi - second
	pm.CurrentBets[hiSeat] -= uncalled
	pm.TotalBets[hiSeat] -= uncalled
	return hiSeat, uncalled
}

// BuildPots splits totals into a main pot and side pots. A level is opened for
// every distinct contribution of a live seat; folded chips fill the levels
// without making their seat eligible. Adjacent levels with the same eligible
// seats are merged.
func BuildPots(totals map[int]int64, folded func(seat int) bool) []Pot {
	levelSet := make(map[int64]bool)
	for seat, b := range totals {
		if b > 0 && !folded(seat) {
			levelSet[b] = true
		}
	}
	if len(levelSet) == 0 {
		var amount int64
		for _, b := range totals {
			amount += b
		}
		if amount == 0 {
			return nil
		}
		return []Pot{{Amount: amount}}
	}
	levels := make([]int64, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	seats := make([]int, 0, len(totals))
	for s := range totals {
		seats = append(seats, s)
	}
	sort.Ints(seats)

	var pots []Pot
	prev := int64(0)
	top := levels[len(levels)-1]
	for i, lvl := range levels {
		var p Pot
		for _, s := range seats {
			tb := totals[s]
			c := min(tb, lvl) - prev
			// Folded chips above the highest live level go to the last pot.
			if i == len(levels)-1 && tb > top {
				c = tb - prev
			}
			if c > 0 {
				p.Amount += c
			}
			if !folded(s) && tb >= lvl {
				p.Eligible = append(p.Eligible, s)
			}
		}
		prev = lvl
		if n := len(pots); n > 0 && sameSeats(pots[n-1].Eligible, p.Eligible) {
			pots[n-1].Amount += p.Amount
			continue
		}
		pots = append(pots, p)
	}
	return pots
}

func sameSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

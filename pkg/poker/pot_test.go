package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noneFolded(int) bool { return false }

func TestPotManager(t *testing.T) {
	pm := NewPotManager()
	if pm.Total() != 0 {
		t.Errorf("Expected initial pot to be 0, got %d", pm.Total())
	}

	pm.AddDead(0, 1)
	pm.AddBet(0, 10)
	pm.AddBet(1, 10)
	pm.AddBet(2, 10)
	if pm.Total() != 31 {
		t.Errorf("Expected pot to be 31, got %d", pm.Total())
	}
	if pm.Collected() != 1 {
		t.Errorf("Expected 1 collected, got %d", pm.Collected())
	}

	pm.ResetCurrentBets()
	if pm.GetCurrentBet(0) != 0 {
		t.Errorf("Expected player 0 current bet to be 0 after reset, got %d", pm.GetCurrentBet(0))
	}
	if pm.GetTotalBet(0) != 11 {
		t.Errorf("Expected player 0 total bet to be 11, got %d", pm.GetTotalBet(0))
	}
	if pm.Collected() != 31 {
		t.Errorf("Expected 31 collected, got %d", pm.Collected())
	}
}

func TestReturnUncalledBet(t *testing.T) {
	pm := NewPotManager()
	pm.AddBet(0, 20)
	pm.AddBet(1, 20)
	pm.AddBet(2, 50)

	seat, amount := pm.ReturnUncalledBet()
	assert.Equal(t, 2, seat)
	assert.EqualValues(t, 30, amount)
	assert.EqualValues(t, 60, pm.Total())

	seat, amount = pm.ReturnUncalledBet()
	assert.Equal(t, -1, seat)
	assert.Zero(t, amount)
}

func TestBuildPotsSingle(t *testing.T) {
	pots := BuildPots(map[int]int64{0: 100, 3: 100}, noneFolded)
	require.Len(t, pots, 1)
	assert.EqualValues(t, 200, pots[0].Amount)
	assert.Equal(t, []int{0, 3}, pots[0].Eligible)
	assert.True(t, pots[0].IsEligible(3))
	assert.False(t, pots[0].IsEligible(1))

	assert.Nil(t, BuildPots(map[int]int64{}, noneFolded))
}

func TestBuildPotsSidePots(t *testing.T) {
	// Seat 0 all-in for 50, seat 1 all-in for 120, seats 2 and 3 put in 200.
	totals := map[int]int64{0: 50, 1: 120, 2: 200, 3: 200}
	pots := BuildPots(totals, noneFolded)
	require.Len(t, pots, 3)

	assert.EqualValues(t, 200, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2, 3}, pots[0].Eligible)
	assert.EqualValues(t, 210, pots[1].Amount)
	assert.Equal(t, []int{1, 2, 3}, pots[1].Eligible)
	assert.EqualValues(t, 160, pots[2].Amount)
	assert.Equal(t, []int{2, 3}, pots[2].Eligible)

	var sum int64
	for _, p := range pots {
		sum += p.Amount
	}
	assert.EqualValues(t, 570, sum)
}

func TestBuildPotsFoldedChips(t *testing.T) {
	// Seat 0 posted 5 and folded, seat 1 raised to 100 and folded, seats 2
	// and 3 are live with 60 each.
	totals := map[int]int64{0: 5, 1: 100, 2: 60, 3: 60}
	folded := func(s int) bool { return s == 0 || s == 1 }
	pots := BuildPots(totals, folded)
	require.Len(t, pots, 1)
	assert.EqualValues(t, 225, pots[0].Amount)
	assert.Equal(t, []int{2, 3}, pots[0].Eligible)

	// Everyone folded: the chips stay in one pot with nobody eligible.
	pots = BuildPots(map[int]int64{0: 5}, func(int) bool { return true })
	require.Len(t, pots, 1)
	assert.Empty(t, pots[0].Eligible)
}

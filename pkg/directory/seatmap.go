package directory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrSeatTaken is returned when assigning an occupied seat.
	ErrSeatTaken = errors.New("directory: seat taken")
	// ErrAlreadySeated is returned when assigning an identity that holds a seat.
	ErrAlreadySeated = errors.New("directory: identity already seated")
	// ErrBadSeat is returned for a seat index outside the table.
	ErrBadSeat = errors.New("directory: seat out of range")
)

// SeatMap is the seat <-> identity bijection. Both directions change under one
// lock so a removal is visible to every later lookup.
type SeatMap struct {
	mu       sync.RWMutex
	numSeats int
	bySeat   map[int]string
	byID     map[string]int
}

// NewSeatMap returns an empty map for numSeats seats.
func NewSeatMap(numSeats int) *SeatMap {
	return &SeatMap{
		numSeats: numSeats,
		bySeat:   make(map[int]string),
		byID:     make(map[string]int),
	}
}

// Assign binds identity to seat.
func (m *SeatMap) Assign(seat int, identity string) error {
	if seat < 0 || seat >= m.numSeats {
		return fmt.Errorf("%w: %d", ErrBadSeat, seat)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.bySeat[seat]; ok {
		return fmt.Errorf("%w: seat %d held by %s", ErrSeatTaken, seat, cur)
	}
	if cur, ok := m.byID[identity]; ok {
		return fmt.Errorf("%w: %s at seat %d", ErrAlreadySeated, identity, cur)
	}
	m.bySeat[seat] = identity
	m.byID[identity] = seat
	return nil
}

// RemoveIdentity frees the seat of identity. It returns the freed seat and
// whether identity was seated. Removing twice is harmless.
func (m *SeatMap) RemoveIdentity(identity string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seat, ok := m.byID[identity]
	if !ok {
		return -1, false
	}
	delete(m.byID, identity)
	delete(m.bySeat, seat)
	return seat, true
}

// RemoveSeat frees seat and returns the identity that held it.
func (m *SeatMap) RemoveSeat(seat int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySeat[seat]
	if !ok {
		return "", false
	}
	delete(m.bySeat, seat)
	delete(m.byID, id)
	return id, true
}

// SeatOf returns the seat of identity.
func (m *SeatMap) SeatOf(identity string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seat, ok := m.byID[identity]
	return seat, ok
}

// IdentityAt returns the occupant of seat.
func (m *SeatMap) IdentityAt(seat int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySeat[seat]
	return id, ok
}

// Seats returns the occupied seats in ascending order.
func (m *SeatMap) Seats() []int {
	m.mu.RLock()
	seats := make([]int, 0, len(m.bySeat))
	for s := range m.bySeat {
		seats = append(seats, s)
	}
	m.mu.RUnlock()
	sort.Ints(seats)
	return seats
}

// FreeSeats returns the empty seats in ascending order.
func (m *SeatMap) FreeSeats() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	free := make([]int, 0, m.numSeats-len(m.bySeat))
	for s := 0; s < m.numSeats; s++ {
		if _, ok := m.bySeat[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}

// Len returns the number of occupied seats.
func (m *SeatMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySeat)
}

// NumSeats returns the table size.
func (m *SeatMap) NumSeats() int {
	return m.numSeats
}

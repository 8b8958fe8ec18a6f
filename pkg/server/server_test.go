package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerhost/pkg/directory"
	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
	"github.com/vctt94/pokerhost/pkg/registry"
)

// fakeDirectory is an in-memory PeerDirectory. Peers listed in dead are
// active but fail liveness.
type fakeDirectory struct {
	mu    sync.Mutex
	peers []directory.Peer
	dead  map[string]bool
	err   error
}

func newFakeDirectory(names ...string) *fakeDirectory {
	d := &fakeDirectory{dead: make(map[string]bool)}
	for _, n := range names {
		d.add(n)
	}
	return d
}

func (d *fakeDirectory) add(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = append(d.peers, directory.Peer{
		Identity: name,
		Name:     "Player " + name,
		Endpoint: "http://" + name + ".test/fxn",
		Status:   registry.StatusActive,
	})
}

func (d *fakeDirectory) setDead(name string, dead bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dead[name] = dead
}

func (d *fakeDirectory) setStatus(name, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.peers {
		if d.peers[i].Identity == name {
			d.peers[i].Status = status
		}
	}
}

func (d *fakeDirectory) ActivePeers(context.Context) ([]directory.Peer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []directory.Peer
	for _, p := range d.peers {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeDirectory) LivePeers(ctx context.Context) ([]directory.Peer, error) {
	active, err := d.ActivePeers(ctx)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []directory.Peer
	for _, p := range active {
		if !d.dead[p.Identity] {
			out = append(out, p)
		}
	}
	return out, nil
}

type answerFunc func(identity string, c protocol.Content) (protocol.ActionResponse, error)

// fakeTransport records deliveries and answers queries with answer.
type fakeTransport struct {
	mu      sync.Mutex
	answer  answerFunc
	queries []protocol.Content
	updates map[string]int
}

func newFakeTransport(answer answerFunc) *fakeTransport {
	return &fakeTransport{answer: answer, updates: make(map[string]int)}
}

func (f *fakeTransport) Query(_ context.Context, _ string, c protocol.Content) (protocol.ActionResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, c)
	answer := f.answer
	f.mu.Unlock()
	if answer == nil {
		return protocol.ActionResponse{}, errors.New("no answer")
	}
	return answer(c.PlayerState.PublicKey, c)
}

func (f *fakeTransport) Send(_ context.Context, _ string, m protocol.Message) error {
	u, ok := m.(protocol.Update)
	if !ok {
		return fmt.Errorf("unexpected %s", m.Kind())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[u.Content.PlayerState.PublicKey]++
	return nil
}

func (f *fakeTransport) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeTransport) updateCount(identity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[identity]
}

// passive checks when it can and calls otherwise.
func passive(_ string, c protocol.Content) (protocol.ActionResponse, error) {
	if c.PlayerState.LegalActions.Contains(protocol.ActionCheck) {
		return protocol.ActionResponse{Action: protocol.ActionCheck}, nil
	}
	return protocol.ActionResponse{Action: protocol.ActionCall}, nil
}

type testTable struct {
	srv    *Server
	engine *poker.Table
	dir    *fakeDirectory
	tr     *fakeTransport
}

func newTestTable(t *testing.T, answer answerFunc, names ...string) *testTable {
	t.Helper()
	engine := poker.NewTable(poker.TableConfig{
		NumSeats:   9,
		ForcedBets: poker.ForcedBets{SmallBlind: 5, BigBlind: 10},
		Seed:       1,
	})
	dir := newFakeDirectory(names...)
	tr := newFakeTransport(answer)
	srv, err := NewServer(Config{
		Engine:           engine,
		Directory:        dir,
		Transport:        tr,
		BuyIn:            300,
		SeatingRetry:     20 * time.Millisecond,
		NextHandDelay:    20 * time.Millisecond,
		BroadcastCadence: time.Hour,
	})
	require.NoError(t, err)
	return &testTable{srv: srv, engine: engine, dir: dir, tr: tr}
}

// playHand drives one hand from the deal through showdown.
func (tt *testTable) playHand(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	before := tt.srv.HandsPlayed()
	var st stateFn = stateStartHand
	for i := 0; st != nil && tt.srv.HandsPlayed() == before; i++ {
		require.Less(t, i, 100, "hand did not finish")
		st = st(ctx, tt.srv)
	}
	require.Equal(t, before+1, tt.srv.HandsPlayed())
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)

	tt := newTestTable(t, passive)
	assert.Equal(t, PhaseNoGame, tt.srv.Phase())
	assert.Equal(t, "Waiting for players", tt.srv.TableState().GameStateString)
}

func TestSeatingFillsLowestFreeSeats(t *testing.T) {
	tt := newTestTable(t, passive, "alice", "bob", "carol")
	tt.srv.seatPlayers(context.Background())

	for want, id := range []string{"alice", "bob", "carol"} {
		seat, ok := tt.srv.SeatOf(id)
		require.True(t, ok, id)
		assert.Equal(t, want, seat)
		assert.EqualValues(t, 300, tt.engine.Seats()[seat].Stack)
	}
	assert.Equal(t, 3, tt.srv.seats.Len())
	assert.Len(t, tt.srv.TableState().EmptySeats, 6)
}

func TestSeatingKicksDeadPeersAndReseatsThem(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob", "carol")
	tt.srv.seatPlayers(ctx)

	tt.dir.setDead("bob", true)
	tt.srv.seatPlayers(ctx)
	_, ok := tt.srv.SeatOf("bob")
	assert.False(t, ok)
	assert.Nil(t, tt.engine.Seats()[1])
	id, ok := tt.srv.seats.IdentityAt(1)
	assert.False(t, ok, "seat 1 still held by %s", id)

	// A second pass with bob still dead changes nothing.
	tt.srv.seatPlayers(ctx)
	assert.Equal(t, 2, tt.srv.seats.Len())

	tt.dir.setDead("bob", false)
	tt.srv.seatPlayers(ctx)
	seat, ok := tt.srv.SeatOf("bob")
	require.True(t, ok)
	assert.Equal(t, 1, seat)
	assert.EqualValues(t, 300, tt.engine.Seats()[1].Stack)
}

func TestSeatingKicksUnsubscribedPeers(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	tt.srv.seatPlayers(ctx)

	tt.dir.setStatus("alice", registry.StatusCancelled)
	tt.srv.seatPlayers(ctx)
	_, ok := tt.srv.SeatOf("alice")
	assert.False(t, ok)
	assert.Equal(t, 1, tt.srv.seats.Len())
}

func TestSeatingKeepsSeatsWhenDirectoryFails(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	tt.srv.seatPlayers(ctx)

	tt.dir.err = errors.New("registry down")
	tt.srv.seatPlayers(ctx)
	assert.Equal(t, 2, tt.srv.seats.Len())
}

func TestSeatMapStaysBijective(t *testing.T) {
	ctx := context.Background()
	names := []string{"a", "b", "c", "d", "e"}
	tt := newTestTable(t, passive, names...)
	for round := 0; round < 6; round++ {
		for i, n := range names {
			tt.dir.setDead(n, (i+round)%3 == 0)
		}
		tt.srv.seatPlayers(ctx)

		seen := make(map[string]int)
		for _, seat := range tt.srv.seats.Seats() {
			id, ok := tt.srv.seats.IdentityAt(seat)
			require.True(t, ok)
			_, dup := seen[id]
			require.False(t, dup, "%s holds two seats", id)
			seen[id] = seat
			back, ok := tt.srv.SeatOf(id)
			require.True(t, ok)
			require.Equal(t, seat, back)
			require.NotNil(t, tt.engine.Seats()[seat])
		}
	}
}

func TestStartHandHeadsUp(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	require.NotNil(t, stateSeating(ctx, tt.srv))
	require.NotNil(t, stateStartHand(ctx, tt.srv))

	ts := tt.srv.TableState()
	assert.NotEmpty(t, ts.HandID)
	assert.True(t, ts.IsHandInProgress)
	assert.True(t, ts.IsBettingRoundInProgress)
	assert.Equal(t, "preflop", ts.RoundOfBetting)
	assert.Equal(t, "preflop", ts.GameStateString)
	assert.Equal(t, 0, ts.Button)
	// Heads-up the button posts the small blind and acts first.
	assert.Equal(t, 0, ts.PlayerToActSeat)
	assert.Equal(t, "alice", ts.PlayerToActKey)
	assert.Equal(t, "Player alice", ts.PlayerToActName)
	require.NotNil(t, ts.PlayerToActLegalActions)
	assert.True(t, ts.PlayerToActLegalActions.Contains(protocol.ActionFold))
	assert.True(t, ts.PlayerToActLegalActions.Contains(protocol.ActionCall))
	assert.EqualValues(t, 5, ts.Players[0].BetSize)
	assert.EqualValues(t, 10, ts.Players[1].BetSize)
	assert.Empty(t, tt.srv.History())
}

func TestRaiseIsRecordedAndAdvancesTurn(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, func(string, protocol.Content) (protocol.ActionResponse, error) {
		return protocol.ActionResponse{Action: protocol.ActionRaise, BetSize: 50}, nil
	}, "alice", "bob")
	stateSeating(ctx, tt.srv)
	stateStartHand(ctx, tt.srv)

	tt.srv.playTurn(ctx)

	hist := tt.srv.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "preflop", hist[0].RoundOfBetting)
	assert.Equal(t, 0, hist[0].Seat)
	assert.Equal(t, protocol.ActionRaise, hist[0].Action)
	require.NotNil(t, hist[0].BetSize)
	assert.EqualValues(t, 50, *hist[0].BetSize)

	ts := tt.srv.TableState()
	assert.Equal(t, 1, ts.PlayerToActSeat)
	assert.Equal(t, "bob", ts.PlayerToActKey)
	assert.EqualValues(t, 50, ts.Players[0].BetSize)

	assert.Equal(t, 1, tt.tr.queryCount())
	assert.Equal(t, 1, tt.tr.updateCount("bob"))
	assert.Zero(t, tt.tr.updateCount("alice"))
}

func TestQueryCarriesOnlyOwnHoleCards(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	stateSeating(ctx, tt.srv)
	stateStartHand(ctx, tt.srv)
	tt.srv.playTurn(ctx)

	require.Equal(t, 1, tt.tr.queryCount())
	q := tt.tr.queries[0]
	assert.Equal(t, "alice", q.PlayerState.PublicKey)
	assert.True(t, q.IsTurnOf("alice"))
	require.NotNil(t, q.PlayerState.LegalActions)
	assert.Len(t, q.PlayerState.HoleCards, 2)

	bob := tt.srv.ViewFor("bob")
	assert.NotEqual(t, q.PlayerState.HoleCards, bob.PlayerState.HoleCards)
	assert.Equal(t, wireCards(tt.engine.HoleCards()[1]), bob.PlayerState.HoleCards)
	assert.True(t, bob.IsTurnOf("bob"))

	stranger := tt.srv.ViewFor("mallory")
	assert.False(t, stranger.PlayerState.Seated())
	assert.Empty(t, stranger.PlayerState.HoleCards)
	assert.Nil(t, stranger.PlayerState.LegalActions)
}

func TestUnansweredQueryFoldsAndHandCompletes(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, func(id string, c protocol.Content) (protocol.ActionResponse, error) {
		if id == "alice" {
			return protocol.ActionResponse{}, context.DeadlineExceeded
		}
		return passive(id, c)
	}, "alice", "bob")
	stateSeating(ctx, tt.srv)
	tt.playHand(t)

	hist := tt.srv.History()
	require.Len(t, hist, 1)
	assert.Equal(t, protocol.ActionFold, hist[0].Action)
	assert.Nil(t, hist[0].BetSize)

	ts := tt.srv.TableState()
	require.Len(t, ts.Winners, 1)
	w := ts.Winners[0]
	assert.Equal(t, 1, w.Seat)
	assert.Equal(t, "Player bob", w.Name)
	assert.NotEmpty(t, w.Ranking)
	assert.Empty(t, w.HoleCards)

	seats := tt.engine.Seats()
	assert.EqualValues(t, 600, seats[0].Stack+seats[1].Stack)
	assert.EqualValues(t, 300+5, seats[1].Stack)
	assert.True(t, tt.srv.ViewFor("bob").PlayerState.IsWinner)
	assert.Equal(t, "Showdown", ts.GameStateString)
}

func TestMissingSubscriberIsFoldedWithoutQuery(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	stateSeating(ctx, tt.srv)
	stateStartHand(ctx, tt.srv)

	tt.dir.setStatus("alice", registry.StatusExpired)
	tt.srv.playTurn(ctx)

	assert.Zero(t, tt.tr.queryCount())
	hist := tt.srv.History()
	require.Len(t, hist, 1)
	assert.Equal(t, protocol.ActionFold, hist[0].Action)
}

func TestIllegalAnswerFolds(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, func(string, protocol.Content) (protocol.ActionResponse, error) {
		return protocol.ActionResponse{Action: protocol.ActionCheck}, nil
	}, "alice", "bob")
	stateSeating(ctx, tt.srv)
	stateStartHand(ctx, tt.srv)

	// Alice faces the big blind, so check is not offered.
	tt.srv.playTurn(ctx)
	hist := tt.srv.History()
	require.Len(t, hist, 1)
	assert.Equal(t, protocol.ActionFold, hist[0].Action)
}

func TestValidateAction(t *testing.T) {
	legal := &protocol.LegalActions{
		Actions:   []string{protocol.ActionFold, protocol.ActionCall, protocol.ActionRaise},
		ChipRange: &protocol.ChipRange{Min: 20, Max: 300},
	}
	tests := []struct {
		name   string
		resp   protocol.ActionResponse
		action poker.Action
		size   int64
		ok     bool
	}{
		{"call", protocol.ActionResponse{Action: "call", BetSize: 99}, poker.ActionCall, 0, true},
		{"raise in range", protocol.ActionResponse{Action: "raise", BetSize: 50}, poker.ActionRaise, 50, true},
		{"raise below min", protocol.ActionResponse{Action: "raise", BetSize: 1}, poker.ActionRaise, 20, true},
		{"raise above max", protocol.ActionResponse{Action: "raise", BetSize: 5000}, poker.ActionRaise, 300, true},
		{"not offered", protocol.ActionResponse{Action: "check"}, poker.ActionFold, 0, false},
		{"unknown", protocol.ActionResponse{Action: "shove"}, poker.ActionFold, 0, false},
		{"empty", protocol.ActionResponse{}, poker.ActionFold, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			action, size, ok := validateAction(tc.resp, legal)
			assert.Equal(t, tc.action, action)
			assert.Equal(t, tc.size, size)
			assert.Equal(t, tc.ok, ok)
		})
	}

	noRange := &protocol.LegalActions{Actions: []string{protocol.ActionFold, protocol.ActionBet}}
	action, _, ok := validateAction(protocol.ActionResponse{Action: "bet", BetSize: 10}, noRange)
	assert.Equal(t, poker.ActionFold, action)
	assert.False(t, ok)

	action, _, ok = validateAction(protocol.ActionResponse{Action: "call"}, nil)
	assert.Equal(t, poker.ActionFold, action)
	assert.False(t, ok)
}

func TestHistoryMatchesSolicitations(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	stateSeating(ctx, tt.srv)
	tt.playHand(t)

	hist := tt.srv.History()
	assert.Len(t, hist, tt.tr.queryCount())

	// Each entry carries the round it was solicited in.
	for i, q := range tt.tr.queries {
		assert.Equal(t, q.TableState.RoundOfBetting, hist[i].RoundOfBetting, "entry %d", i)
		assert.Equal(t, q.TableState.PlayerToActSeat, hist[i].Seat, "entry %d", i)
		assert.Len(t, q.ActionHistory, i)
	}
	assert.Equal(t, "river", hist[len(hist)-1].RoundOfBetting)
}

func TestContestedShowdownMatchesEngine(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	stateSeating(ctx, tt.srv)
	tt.playHand(t)

	ts := tt.srv.TableState()
	require.NotEmpty(t, ts.Winners)
	pots := tt.engine.Pots()
	require.Len(t, pots, 1)

	var total int64
	engineWinners := tt.engine.Winners()[0]
	require.Len(t, ts.Winners, len(engineWinners))
	for i, w := range ts.Winners {
		assert.Equal(t, engineWinners[i].Seat, w.Seat)
		assert.Equal(t, engineWinners[i].Amount, w.Amount)
		assert.NotEmpty(t, w.Ranking)
		assert.Len(t, w.HoleCards, 2)
		total += w.Amount
	}
	assert.Equal(t, pots[0].Amount, total)
	assert.EqualValues(t, 20, total)
	assert.Len(t, ts.CommunityCards, 5)

	p := tt.srv.Presentation()
	require.Len(t, p.Players, 2)
	for _, pp := range p.Players {
		assert.Len(t, pp.Cards, 2, "seat %d", pp.Seat)
	}
}

func TestSnapshotConsistentWithEngine(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, func(string, protocol.Content) (protocol.ActionResponse, error) {
		return protocol.ActionResponse{Action: protocol.ActionCall}, nil
	}, "alice", "bob", "carol")
	stateSeating(ctx, tt.srv)
	stateStartHand(ctx, tt.srv)
	tt.srv.playTurn(ctx)

	view := tt.srv.ViewFor("bob")
	raw, err := json.Marshal(view)
	require.NoError(t, err)
	var got protocol.Content
	require.NoError(t, json.Unmarshal(raw, &got))

	e := tt.engine
	ts := got.TableState
	assert.Equal(t, e.HandInProgress(), ts.IsHandInProgress)
	assert.Equal(t, e.BettingRoundInProgress(), ts.IsBettingRoundInProgress)
	assert.Equal(t, string(e.RoundOfBetting()), ts.RoundOfBetting)
	assert.Equal(t, e.PlayerToAct(), ts.PlayerToActSeat)
	assert.Equal(t, e.Button(), ts.Button)
	assert.Equal(t, potSizes(e.Pots()), ts.Pots)
	assert.Len(t, ts.CommunityCards, len(e.CommunityCards()))
	for seat, info := range e.Seats() {
		if info == nil {
			assert.Nil(t, ts.Players[seat])
			assert.Contains(t, ts.EmptySeats, seat)
			continue
		}
		require.NotNil(t, ts.Players[seat])
		assert.Equal(t, info.Stack, ts.Players[seat].Stack)
		assert.Equal(t, info.BetSize, ts.Players[seat].BetSize)
		assert.Equal(t, info.TotalChips(), ts.Players[seat].TotalChips)
	}
	la, err := e.LegalActions()
	require.NoError(t, err)
	assert.Equal(t, wireLegalActions(la), ts.PlayerToActLegalActions)
	assert.Equal(t, wireCards(e.HoleCards()[1]), got.PlayerState.HoleCards)
	assert.Equal(t, e.Folded(1), got.PlayerState.IsFolded)
	assert.Len(t, got.ActionHistory, 1)
}

func TestRunPlaysHandsAndStops(t *testing.T) {
	tt := newTestTable(t, passive, "alice", "bob")

	done := make(chan error, 1)
	go func() { done <- tt.srv.Run(context.Background()) }()

	require.Eventually(t, func() bool { return tt.srv.HandsPlayed() >= 2 }, 5*time.Second, 10*time.Millisecond)
	tt.srv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.False(t, tt.srv.sched.Pending(TimerBroadcastCadence))
}

func TestRunWaitsForSecondPlayer(t *testing.T) {
	tt := newTestTable(t, passive, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tt.srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		return tt.srv.Phase() == PhaseSeating && tt.srv.sched.Pending(TimerSeatingRetry)
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, tt.srv.HandsPlayed())

	tt.dir.add("bob")
	require.Eventually(t, func() bool { return tt.srv.HandsPlayed() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCadenceRebroadcasts(t *testing.T) {
	engine := poker.NewTable(poker.TableConfig{NumSeats: 9, ForcedBets: poker.ForcedBets{SmallBlind: 5, BigBlind: 10}, Seed: 1})
	dir := newFakeDirectory("alice")
	tr := newFakeTransport(passive)
	srv, err := NewServer(Config{
		Engine:           engine,
		Directory:        dir,
		Transport:        tr,
		SeatingRetry:     time.Hour,
		BroadcastCadence: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// One update from the seating pass, the rest from the cadence.
	require.Eventually(t, func() bool { return tr.updateCount("alice") >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

// slowTransport answers queries after delay unless ctx ends first.
type slowTransport struct {
	*fakeTransport
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (s *slowTransport) Query(ctx context.Context, endpoint string, c protocol.Content) (protocol.ActionResponse, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-ctx.Done():
		return protocol.ActionResponse{}, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.fakeTransport.Query(ctx, endpoint, c)
}

func TestStopLeavesPendingTurnUnplayed(t *testing.T) {
	engine := poker.NewTable(poker.TableConfig{NumSeats: 9, ForcedBets: poker.ForcedBets{SmallBlind: 5, BigBlind: 10}, Seed: 1})
	tr := &slowTransport{
		fakeTransport: newFakeTransport(passive),
		delay:         200 * time.Millisecond,
		started:       make(chan struct{}),
	}
	srv, err := NewServer(Config{
		Engine:           engine,
		Directory:        newFakeDirectory("alice", "bob"),
		Transport:        tr,
		SeatingRetry:     time.Hour,
		NextHandDelay:    time.Hour,
		BroadcastCadence: time.Hour,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	select {
	case <-tr.started:
	case <-time.After(5 * time.Second):
		t.Fatal("no query was sent")
	}
	srv.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// The query was answered, yet nothing was applied for the peer.
	assert.Equal(t, 1, tr.queryCount())
	assert.Empty(t, srv.History())
	assert.True(t, engine.HandInProgress())
}

func TestKickPeerTwice(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	tt.srv.seatPlayers(ctx)

	require.NoError(t, tt.srv.kickPeer("alice", "leaving"))
	require.NoError(t, tt.srv.kickPeer("alice", "leaving"))
	_, ok := tt.srv.SeatOf("alice")
	assert.False(t, ok)
	assert.Nil(t, tt.engine.Seats()[0])
	assert.Equal(t, 1, tt.srv.seats.Len())
	seat, ok := tt.srv.SeatOf("bob")
	require.True(t, ok)
	assert.Equal(t, 1, seat)
}

// bustingEngine reports chosen seats as busted.
type bustingEngine struct {
	*poker.Table
	busted []int
}

func (e *bustingEngine) Busted() []int { return e.busted }

func TestBustedSeatsAreForgotten(t *testing.T) {
	ctx := context.Background()
	table := poker.NewTable(poker.TableConfig{NumSeats: 9, ForcedBets: poker.ForcedBets{SmallBlind: 5, BigBlind: 10}, Seed: 1})
	engine := &bustingEngine{Table: table}
	srv, err := NewServer(Config{
		Engine:    engine,
		Directory: newFakeDirectory("alice", "bob", "carol"),
		Transport: newFakeTransport(passive),
	})
	require.NoError(t, err)
	srv.seatPlayers(ctx)
	require.Equal(t, 3, srv.seats.Len())

	// Still seated in the engine, so bob stays.
	engine.busted = []int{1}
	srv.syncBusted()
	assert.Equal(t, 3, srv.seats.Len())

	require.NoError(t, table.StandUp(1))
	srv.syncBusted()
	_, ok := srv.SeatOf("bob")
	assert.False(t, ok)
	assert.Equal(t, 2, srv.seats.Len())
	assert.Len(t, srv.TableState().EmptySeats, 7)

	// bob buys in again at his old seat; the stale busted list leaves him be.
	srv.seatPlayers(ctx)
	seat, ok := srv.SeatOf("bob")
	require.True(t, ok)
	assert.Equal(t, 1, seat)
	srv.syncBusted()
	_, ok = srv.SeatOf("bob")
	assert.True(t, ok)
}

func TestDealtStreetsArePublished(t *testing.T) {
	ctx := context.Background()
	tt := newTestTable(t, passive, "alice", "bob")
	h := &recordingHandler{}
	tt.srv.events.AddHandler(h)
	tt.srv.events.Start()
	defer tt.srv.events.Stop()

	stateSeating(ctx, tt.srv)
	tt.playHand(t)

	countOf := func(typ GameEventType) int {
		h.mu.Lock()
		defer h.mu.Unlock()
		n := 0
		for _, e := range h.events {
			if e.Type == typ {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return countOf(EventShowdown) == 1 }, time.Second, 5*time.Millisecond)
	// Flop, turn and river.
	assert.Equal(t, 3, countOf(EventRoundEnded))
}

// fakeApprover activates the pending peers of a fakeDirectory.
type fakeApprover struct {
	dir     *fakeDirectory
	mu      sync.Mutex
	calls   int
	pending []string
}

func (a *fakeApprover) ApproveAll(_ context.Context, provider string) (int, error) {
	if provider != "host" {
		return 0, fmt.Errorf("unexpected provider %q", provider)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	for _, id := range a.pending {
		a.dir.setStatus(id, registry.StatusActive)
	}
	n := len(a.pending)
	a.pending = nil
	return n, nil
}

func (a *fakeApprover) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestApprovalCycleSeatsRequesters(t *testing.T) {
	engine := poker.NewTable(poker.TableConfig{NumSeats: 9, ForcedBets: poker.ForcedBets{SmallBlind: 5, BigBlind: 10}, Seed: 1})
	dir := newFakeDirectory("alice", "bob")
	dir.setStatus("bob", registry.StatusPending)
	approver := &fakeApprover{dir: dir}

	_, err := NewServer(Config{Engine: engine, Directory: dir, Transport: newFakeTransport(passive), Approver: approver})
	assert.Error(t, err, "approver without provider")

	srv, err := NewServer(Config{
		Engine:           engine,
		Directory:        dir,
		Transport:        newFakeTransport(passive),
		BuyIn:            300,
		SeatingRetry:     10 * time.Millisecond,
		NextHandDelay:    10 * time.Millisecond,
		BroadcastCadence: time.Hour,
		Approver:         approver,
		Provider:         "host",
		ApproveInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.sched.Pending(TimerApproveRequests) }, time.Second, 5*time.Millisecond)
	approver.mu.Lock()
	approver.pending = []string{"bob"}
	approver.mu.Unlock()

	require.Eventually(t, func() bool { return srv.HandsPlayed() >= 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return approver.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, srv.sched.Pending(TimerApproveRequests))
}

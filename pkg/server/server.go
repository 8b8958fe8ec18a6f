package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/pokerhost/pkg/directory"
	"github.com/vctt94/pokerhost/pkg/logging"
	"github.com/vctt94/pokerhost/pkg/protocol"
	"github.com/vctt94/pokerhost/pkg/statemachine"
)

// Defaults used when the matching Config field is zero.
const (
	DefaultBuyIn            = 300
	DefaultSeatingRetry     = 10 * time.Second
	DefaultNextHandDelay    = 5 * time.Second
	DefaultBroadcastCadence = 5 * time.Second
	DefaultFanoutLimit      = 16
	DefaultApproveInterval  = 30 * time.Second
)

// PeerDirectory lists the peers that may be seated.
type PeerDirectory interface {
	ActivePeers(ctx context.Context) ([]directory.Peer, error)
	LivePeers(ctx context.Context) ([]directory.Peer, error)
}

// Approver approves the pending subscription requests of a restricted host.
type Approver interface {
	ApproveAll(ctx context.Context, provider string) (int, error)
}

// Transport delivers signed messages to peers.
type Transport interface {
	protocol.Sender
	Query(ctx context.Context, endpoint string, content protocol.Content) (protocol.ActionResponse, error)
}

// Config configures a Server.
type Config struct {
	Engine    RulesEngine
	Directory PeerDirectory
	Transport Transport

	BuyIn            int64
	SeatingRetry     time.Duration
	NextHandDelay    time.Duration
	BroadcastCadence time.Duration
	// FanoutLimit bounds concurrent Update deliveries.
	FanoutLimit int

	// Approver, when set, approves the requests made to Provider every
	// ApproveInterval while the loop runs.
	Approver        Approver
	Provider        string
	ApproveInterval time.Duration

	LogBackend *logging.LogBackend
}

// occupant is the peer bound to a seat.
type occupant struct {
	identity string
	name     string
	endpoint string
}

// Server is the authoritative host of one table. A single game loop
// goroutine drives the engine and owns every write to the state below; HTTP
// handlers, the cadence timer and event workers only read it.
type Server struct {
	log     slog.Logger
	httpLog slog.Logger

	engine    RulesEngine
	dir       PeerDirectory
	transport Transport
	bcast     *protocol.Broadcaster
	sched     *Scheduler
	events    *EventProcessor
	stream    *streamHub
	machine   *statemachine.StateMachine[Server]

	buyIn            int64
	seatingRetry     time.Duration
	nextHandDelay    time.Duration
	broadcastCadence time.Duration

	approver        Approver
	provider        string
	approveInterval time.Duration

	// seats mirrors the engine's occupied seats by identity.
	seats *directory.SeatMap
	wake  chan string

	mu        sync.RWMutex
	phase     Phase
	table     protocol.TableState
	occupants map[int]*occupant
	holeCards [][]protocol.Card
	eligible  [][]int
	folded    map[int]bool
	winners   map[int]bool
	revealed  map[int]bool
	history   []protocol.ActionHistoryEntry
	hands     int

	runMu  sync.Mutex
	cancel context.CancelFunc
	runCtx context.Context
}

// NewServer creates a server for cfg. Call Run to start the game loop.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("server: directory is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("server: transport is required")
	}
	if cfg.Approver != nil && cfg.Provider == "" {
		return nil, errors.New("server: approver needs a provider identity")
	}

	log, protoLog, httpLog := slog.Disabled, slog.Disabled, slog.Disabled
	if cfg.LogBackend != nil {
		log = cfg.LogBackend.Logger("GAME")
		protoLog = cfg.LogBackend.Logger("PROT")
		httpLog = cfg.LogBackend.Logger("HTTP")
	}

	s := &Server{
		log:              log,
		httpLog:          httpLog,
		engine:           cfg.Engine,
		dir:              cfg.Directory,
		transport:        cfg.Transport,
		bcast:            protocol.NewBroadcaster(cfg.Transport, orDefault(cfg.FanoutLimit, DefaultFanoutLimit), protoLog),
		sched:            NewScheduler(log),
		buyIn:            orDefault(cfg.BuyIn, DefaultBuyIn),
		seatingRetry:     orDefault(cfg.SeatingRetry, DefaultSeatingRetry),
		nextHandDelay:    orDefault(cfg.NextHandDelay, DefaultNextHandDelay),
		broadcastCadence: orDefault(cfg.BroadcastCadence, DefaultBroadcastCadence),
		approver:         cfg.Approver,
		provider:         cfg.Provider,
		approveInterval:  orDefault(cfg.ApproveInterval, DefaultApproveInterval),
		seats:            directory.NewSeatMap(cfg.Engine.NumSeats()),
		wake:             make(chan string, 1),
		phase:            PhaseNoGame,
		occupants:        make(map[int]*occupant),
		folded:           make(map[int]bool),
		winners:          make(map[int]bool),
		revealed:         make(map[int]bool),
		history:          []protocol.ActionHistoryEntry{},
	}
	s.stream = newStreamHub(httpLog)
	s.events = NewEventProcessor(s, 256, 1)
	s.machine = statemachine.NewStateMachine(s, stateSeating)

	s.mu.Lock()
	s.refreshLocked()
	s.mu.Unlock()
	return s, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Run drives the game loop until ctx is done or Stop is called. It returns
// nil on a clean stop.
func (s *Server) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.cancel != nil {
		s.runMu.Unlock()
		return errors.New("server: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx
	s.runMu.Unlock()

	s.events.Start()
	s.armCadence()
	if s.approver != nil {
		s.approveRequests(ctx)
	}
	s.log.Infof("Game loop started with %d seats", s.engine.NumSeats())

	err := s.machine.Run(ctx)

	s.sched.Stop()
	s.events.Stop()
	s.stream.closeAll()
	cancel()
	s.log.Infof("Game loop stopped after %d hands", s.HandsPlayed())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop ends the game loop and disarms every timer. Outstanding network calls
// finish or time out on their own.
func (s *Server) Stop() {
	s.sched.Stop()
	s.runMu.Lock()
	cancel := s.cancel
	s.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// waitFor arms purpose and blocks until it fires. It reports false when the
// loop is shutting down.
func (s *Server) waitFor(ctx context.Context, purpose string, d time.Duration) bool {
	select {
	case <-s.wake:
	default:
	}
	armed := s.sched.Arm(purpose, d, func() {
		select {
		case s.wake <- purpose:
		default:
		}
	})
	if !armed {
		return false
	}
	select {
	case <-ctx.Done():
		s.sched.Cancel(purpose)
		return false
	case <-s.wake:
		return true
	}
}

// armCadence schedules the next periodic re-broadcast. Each fire re-arms the
// timer, replacing rather than stacking.
func (s *Server) armCadence() {
	s.sched.Arm(TimerBroadcastCadence, s.broadcastCadence, func() {
		s.runMu.Lock()
		ctx := s.runCtx
		s.runMu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		s.pushUpdates(ctx)
		s.armCadence()
	})
}

// approveRequests approves every pending request to the host, then schedules
// the next pass.
func (s *Server) approveRequests(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.approver.ApproveAll(ctx, s.provider)
	switch {
	case err != nil:
		s.log.Errorf("Unable to approve subscription requests: %v", err)
	case n > 0:
		s.log.Infof("Approved %d subscription request(s)", n)
	}
	s.sched.Arm(TimerApproveRequests, s.approveInterval, func() {
		s.approveRequests(ctx)
	})
}

// refresh rebuilds the derived table state from the engine.
func (s *Server) refresh() {
	s.mu.Lock()
	s.refreshLocked()
	s.mu.Unlock()
}

// refreshLocked recomputes every engine-derived field. Slices are always
// replaced, never edited in place, so copies handed to readers stay valid.
func (s *Server) refreshLocked() {
	e := s.engine
	fb := e.ForcedBets()
	players, empty := wireSeats(e.Seats())
	pots := e.Pots()

	ts := protocol.TableState{
		HandID:     s.table.HandID,
		Players:    players,
		EmptySeats: empty,
		ForcedBets: protocol.ForcedBets{
			Ante:       fb.Ante,
			BigBlind:   fb.BigBlind,
			SmallBlind: fb.SmallBlind,
		},
		NumSeats:                  e.NumSeats(),
		IsHandInProgress:          e.HandInProgress(),
		IsBettingRoundInProgress:  e.BettingRoundInProgress(),
		AreBettingRoundsCompleted: e.BettingRoundsCompleted(),
		RoundOfBetting:            string(e.RoundOfBetting()),
		PlayerToActSeat:           -1,
		Button:                    e.Button(),
		CommunityCards:            wireCards(e.CommunityCards()),
		Pots:                      potSizes(pots),
		Winners:                   s.table.Winners,
	}
	if ts.CommunityCards == nil {
		ts.CommunityCards = []protocol.Card{}
	}
	if ts.Winners == nil {
		ts.Winners = []protocol.Winner{}
	}

	if ts.IsBettingRoundInProgress {
		seat := e.PlayerToAct()
		ts.PlayerToActSeat = seat
		if occ := s.occupants[seat]; occ != nil {
			ts.PlayerToActKey = occ.identity
			ts.PlayerToActName = occ.name
		}
		if la, err := e.LegalActions(); err == nil {
			ts.PlayerToActLegalActions = wireLegalActions(la)
		}
	}

	s.eligible = make([][]int, len(pots))
	for i, pot := range pots {
		s.eligible[i] = pot.Eligible
	}

	hole := e.HoleCards()
	s.holeCards = make([][]protocol.Card, len(hole))
	for i, cards := range hole {
		s.holeCards[i] = wireCards(cards)
	}
	s.markFolded()

	ts.GameStateString = s.gameStateString(ts)
	s.table = ts
}

// markFolded copies the fold flags of the occupied seats from the engine.
func (s *Server) markFolded() {
	folded := make(map[int]bool)
	for seat := range s.occupants {
		if s.engine.Folded(seat) {
			folded[seat] = true
		}
	}
	s.folded = folded
}

// markWinner flags seat as a winner of the current hand.
func (s *Server) markWinner(seat int) {
	s.winners[seat] = true
}

func (s *Server) gameStateString(ts protocol.TableState) string {
	switch s.phase {
	case PhaseHandInProgress:
		if ts.RoundOfBetting != "" {
			return ts.RoundOfBetting
		}
		return "Dealing"
	case PhaseShowdown:
		return "Showdown"
	case PhaseBetweenHands:
		return "Between Hands"
	default:
		return "Waiting for players"
	}
}

func (s *Server) setPhase(p Phase) {
	s.mu.Lock()
	if s.phase != p {
		s.log.Debugf("Phase %s -> %s", s.phase, p)
	}
	s.phase = p
	s.refreshLocked()
	s.mu.Unlock()
}

// Phase returns the loop's current phase.
func (s *Server) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// HandsPlayed returns how many hands reached showdown.
func (s *Server) HandsPlayed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hands
}

// TableState returns a copy of the public table state.
func (s *Server) TableState() protocol.TableState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// History returns the action history of the current hand.
func (s *Server) History() []protocol.ActionHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.ActionHistoryEntry(nil), s.history...)
}

// SeatOf returns the seat held by identity.
func (s *Server) SeatOf(identity string) (int, bool) {
	return s.seats.SeatOf(identity)
}

// ViewFor builds the content identity would receive right now.
func (s *Server) ViewFor(identity string) protocol.Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked(identity)
}

func (s *Server) viewLocked(identity string) protocol.Content {
	ps := protocol.PlayerState{PublicKey: identity, Seat: -1}
	if seat, ok := s.seats.SeatOf(identity); ok {
		ps.Seat = seat
		if occ := s.occupants[seat]; occ != nil {
			ps.Name = occ.name
		}
		if seat < len(s.table.Players) && s.table.Players[seat] != nil {
			ps.Stack = s.table.Players[seat].Stack
		}
		if seat < len(s.holeCards) {
			ps.HoleCards = s.holeCards[seat]
		}
		if s.table.IsBettingRoundInProgress && s.table.PlayerToActSeat == seat {
			ps.LegalActions = s.table.PlayerToActLegalActions
		}
		ps.IsFolded = s.folded[seat]
		ps.IsDealer = s.table.Button == seat
		ps.IsWinner = s.winners[seat]
		for i, seats := range s.eligible {
			if slices.Contains(seats, seat) {
				ps.PotsEligibleFor = append(ps.PotsEligibleFor, i)
			}
		}
	}
	return protocol.Content{
		TableState:    s.table,
		PlayerState:   ps,
		ActionHistory: append([]protocol.ActionHistoryEntry{}, s.history...),
	}
}

// String describes the server for logs.
func (s *Server) String() string {
	ts := s.TableState()
	return fmt.Sprintf("table(seats=%d hand=%s state=%q)", ts.NumSeats, ts.HandID, ts.GameStateString)
}

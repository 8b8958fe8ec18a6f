package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vctt94/pokerhost/pkg/protocol"
)

// PresentationPlayer is one seated player as a display client shows it.
type PresentationPlayer struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Seat     int             `json:"seat"`
	Money    int64           `json:"money"`
	Cards    []protocol.Card `json:"cards"`
	IsFolded bool            `json:"isFolded"`
	IsDealer bool            `json:"isDealer"`
	IsWinner bool            `json:"isWinner"`
	Avatar   string          `json:"avatar"`
}

// Presentation is the read-only snapshot served to display clients. Hole
// cards stay hidden until the hand is over, and then only the hands that
// went to a showdown are shown.
type Presentation struct {
	HandID         string               `json:"handId,omitempty"`
	PotSize        []int64              `json:"potSize"`
	CommunityCards []protocol.Card      `json:"communityCards"`
	Players        []PresentationPlayer `json:"players"`
	ActionOn       string               `json:"actionOn"`
	GameState      string               `json:"gameState"`
	Winners        []protocol.Winner    `json:"winners"`
}

// Presentation builds the display snapshot.
func (s *Server) Presentation() Presentation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts := s.table
	p := Presentation{
		HandID:         ts.HandID,
		PotSize:        ts.Pots,
		CommunityCards: ts.CommunityCards,
		Players:        make([]PresentationPlayer, 0, len(s.occupants)),
		ActionOn:       ts.PlayerToActName,
		GameState:      ts.GameStateString,
		Winners:        ts.Winners,
	}
	for seat, occ := range s.occupants {
		pp := PresentationPlayer{
			ID:       occ.identity,
			Name:     occ.name,
			Seat:     seat,
			Cards:    []protocol.Card{},
			IsFolded: s.folded[seat],
			IsDealer: ts.Button == seat,
			IsWinner: s.winners[seat],
		}
		if seat < len(ts.Players) && ts.Players[seat] != nil {
			pp.Money = ts.Players[seat].Stack
		}
		if !ts.IsHandInProgress && s.revealed[seat] && seat < len(s.holeCards) && s.holeCards[seat] != nil {
			pp.Cards = s.holeCards[seat]
		}
		p.Players = append(p.Players, pp)
	}
	sort.Slice(p.Players, func(i, j int) bool { return p.Players[i].Seat < p.Players[j].Seat })
	return p
}

// Handler returns the host's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /current-game-state", s.handleGameState)
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, s.Presentation())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"phase":  s.Phase().String(),
		"hands":  s.HandsPlayed(),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleStream upgrades to a websocket and sends the presentation snapshot
// now and after every table event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.httpLog.Debugf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, 16)}
	if data, err := json.Marshal(s.Presentation()); err == nil {
		c.send <- data
	}
	if !s.stream.add(c) {
		conn.Close()
		return
	}
	s.httpLog.Debugf("Stream client %s connected", r.RemoteAddr)

	go c.writePump()
	c.readPump()
	s.stream.remove(c)
	s.httpLog.Debugf("Stream client %s disconnected", r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

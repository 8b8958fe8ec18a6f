// Package agent is the player side of the broadcast protocol: an HTTP
// endpoint that accepts the host's signed messages and answers turn
// solicitations.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/decred/slog"

	"github.com/vctt94/pokerhost/pkg/envelope"
	"github.com/vctt94/pokerhost/pkg/protocol"
)

const maxBodyBytes = 1 << 20

// Decider picks an action for a view in which it is the agent's turn.
type Decider interface {
	Decide(ctx context.Context, c protocol.Content) (protocol.ActionResponse, error)
}

// Config configures a Handler.
type Config struct {
	// HostKey is the base58 identity whose signature every message must carry.
	HostKey string
	// Identity is this agent's base58 public key.
	Identity string
	Decider  Decider
	Log      slog.Logger
}

// Handler serves the agent endpoint.
type Handler struct {
	hostKey  string
	identity string
	decider  Decider
	log      slog.Logger

	mu   sync.RWMutex
	last *protocol.Content
	seen map[protocol.Kind]int
}

// NewHandler returns a handler for cfg.
func NewHandler(cfg Config) (*Handler, error) {
	if _, err := envelope.ParsePublicKey(cfg.HostKey); err != nil {
		return nil, fmt.Errorf("host key: %w", err)
	}
	if cfg.Identity == "" {
		return nil, errors.New("agent: identity is required")
	}
	decider := cfg.Decider
	if decider == nil {
		decider = RuleDecider{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Handler{
		hostKey:  cfg.HostKey,
		identity: cfg.Identity,
		decider:  decider,
		log:      log,
		seen:     make(map[protocol.Kind]int),
	}, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ServeHTTP handles one signed message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Unreadable body", Details: err.Error()})
		return
	}

	msg, err := envelope.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Malformed message", Details: err.Error()})
		return
	}
	var p protocol.Payload
	if err := envelope.Open(msg, h.hostKey, &p); err != nil {
		if errors.Is(err, envelope.ErrMalformed) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Malformed message", Details: err.Error()})
			return
		}
		h.log.Warnf("Rejected message from %s: %v", msg.PublicKey, err)
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error:   "Invalid signature",
			Details: "Message signature verification failed",
		})
		return
	}
	m, err := protocol.Decode(p)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Malformed payload", Details: err.Error()})
		return
	}

	h.mu.Lock()
	h.seen[m.Kind()]++
	h.mu.Unlock()

	switch m := m.(type) {
	case protocol.Ping:
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "Got ping")

	case protocol.Update:
		h.remember(m.Content)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "Got update")

	case protocol.Query:
		h.remember(m.Content)
		if !m.Content.IsTurnOf(h.identity) {
			w.WriteHeader(http.StatusOK)
			return
		}
		resp, err := h.decider.Decide(r.Context(), m.Content)
		if err != nil {
			h.log.Errorf("Decider failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error", Details: err.Error()})
			return
		}
		h.log.Debugf("Seat %d in %s: %s %d", m.Content.PlayerState.Seat,
			m.Content.TableState.RoundOfBetting, resp.Action, resp.BetSize)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) remember(c protocol.Content) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &c
}

// LastContent returns the most recent view received, if any.
func (h *Handler) LastContent() (protocol.Content, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return protocol.Content{}, false
	}
	return *h.last, true
}

// Received returns how many verified messages of kind arrived.
func (h *Handler) Received(kind protocol.Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seen[kind]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

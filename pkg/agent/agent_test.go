package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerhost/pkg/envelope"
	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
)

type fixture struct {
	host    *envelope.Keypair
	self    *envelope.Keypair
	handler *Handler
	srv     *httptest.Server
	client  *protocol.Client
}

func newFixture(t *testing.T, d Decider) *fixture {
	t.Helper()
	host, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	self, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	h, err := NewHandler(Config{HostKey: host.PublicBase58(), Identity: self.PublicBase58(), Decider: d})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := protocol.NewClient(protocol.ClientConfig{Keypair: host})
	require.NoError(t, err)
	return &fixture{host: host, self: self, handler: h, srv: srv, client: client}
}

func turnContent(identity string) protocol.Content {
	return protocol.Content{
		TableState: protocol.TableState{
			IsHandInProgress:         true,
			IsBettingRoundInProgress: true,
			RoundOfBetting:           "preflop",
			PlayerToActSeat:          0,
			PlayerToActKey:           identity,
			PlayerToActLegalActions: &protocol.LegalActions{
				Actions:   []string{"fold", "call", "raise"},
				ChipRange: &protocol.ChipRange{Min: 20, Max: 300},
			},
			Players: []*protocol.SeatView{
				{TotalChips: 300, Stack: 295, BetSize: 5},
				{TotalChips: 300, Stack: 290, BetSize: 10},
			},
		},
		PlayerState: protocol.PlayerState{
			PublicKey: identity,
			Seat:      0,
			Stack:     295,
			HoleCards: []protocol.Card{{Rank: "A", Suit: "spades"}, {Rank: "A", Suit: "hearts"}},
		},
		ActionHistory: []protocol.ActionHistoryEntry{},
	}
}

type staticDecider struct {
	resp protocol.ActionResponse
	err  error
}

func (d staticDecider) Decide(context.Context, protocol.Content) (protocol.ActionResponse, error) {
	return d.resp, d.err
}

func post(t *testing.T, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func signed(t *testing.T, kp *envelope.Keypair, m protocol.Message) []byte {
	t.Helper()
	p, err := protocol.Encode(m)
	require.NoError(t, err)
	msg, err := envelope.Sign(kp, p)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestNewHandlerValidatesConfig(t *testing.T) {
	_, err := NewHandler(Config{HostKey: "not-a-key", Identity: "x"})
	assert.Error(t, err)

	kp, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	_, err = NewHandler(Config{HostKey: kp.PublicBase58()})
	assert.Error(t, err)
}

func TestPingAndUpdate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.client.Ping(ctx, f.srv.URL))
	assert.Equal(t, 1, f.handler.Received(protocol.KindPing))
	_, ok := f.handler.LastContent()
	assert.False(t, ok)

	c := turnContent("someone-else")
	require.NoError(t, f.client.Update(ctx, f.srv.URL, c))
	last, ok := f.handler.LastContent()
	require.True(t, ok)
	assert.Equal(t, c.TableState.PlayerToActKey, last.TableState.PlayerToActKey)
	assert.Equal(t, 1, f.handler.Received(protocol.KindUpdate))
}

func TestQueryOnOwnTurn(t *testing.T) {
	f := newFixture(t, staticDecider{resp: protocol.ActionResponse{Action: "raise", BetSize: 50}})

	resp, err := f.client.Query(context.Background(), f.srv.URL, turnContent(f.self.PublicBase58()))
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionResponse{Action: "raise", BetSize: 50}, resp)
}

func TestQueryNotOwnTurnHasNoBody(t *testing.T) {
	f := newFixture(t, staticDecider{resp: protocol.ActionResponse{Action: "call"}})

	resp, body := post(t, f.srv.URL, signed(t, f.host, protocol.Query{Content: turnContent("someone-else")}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	_, err := f.client.Query(context.Background(), f.srv.URL, turnContent("someone-else"))
	assert.ErrorIs(t, err, protocol.ErrBadResponse)
}

func TestRejectsForeignSigner(t *testing.T) {
	f := newFixture(t, nil)
	mallory, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	resp, body := post(t, f.srv.URL, signed(t, mallory, protocol.Ping{}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var eb errorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, "Invalid signature", eb.Error)
	assert.Zero(t, f.handler.Received(protocol.KindPing))

	// A forged envelope that claims the host key but is signed by someone else.
	p, err := protocol.Encode(protocol.Query{Content: turnContent(f.self.PublicBase58())})
	require.NoError(t, err)
	forged, err := envelope.Sign(mallory, p)
	require.NoError(t, err)
	forged.PublicKey = f.host.PublicBase58()
	data, err := json.Marshal(forged)
	require.NoError(t, err)
	resp, _ = post(t, f.srv.URL, data)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, ok := f.handler.LastContent()
	assert.False(t, ok)
}

func TestRejectsMalformed(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := post(t, f.srv.URL, []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, f.srv.URL, []byte(`{"payload":{"type":"ping"}}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Properly signed but the payload is not a known message.
	msg, err := envelope.Sign(f.host, map[string]string{"type": "shout"})
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	resp, _ = post(t, f.srv.URL, data)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// An update without content.
	msg, err = envelope.Sign(f.host, protocol.Payload{Type: protocol.KindUpdate})
	require.NoError(t, err)
	data, err = json.Marshal(msg)
	require.NoError(t, err)
	resp, _ = post(t, f.srv.URL, data)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestDeciderFailureIs500(t *testing.T) {
	f := newFixture(t, staticDecider{err: errors.New("model offline")})

	_, err := f.client.Query(context.Background(), f.srv.URL, turnContent(f.self.PublicBase58()))
	assert.ErrorIs(t, err, protocol.ErrUnexpectedStatus)
}

func TestRuleDeciderStaysLegal(t *testing.T) {
	d := RuleDecider{Aggression: 0.5}
	ctx := context.Background()

	// Aces raise within the range.
	c := turnContent("me")
	resp, err := d.Decide(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "raise", resp.Action)
	assert.GreaterOrEqual(t, resp.BetSize, int64(20))
	assert.LessOrEqual(t, resp.BetSize, int64(300))

	// Seven-deuce facing a big bet folds.
	c.PlayerState.HoleCards = []protocol.Card{{Rank: "7", Suit: "clubs"}, {Rank: "2", Suit: "diamonds"}}
	c.TableState.Players[1].BetSize = 200
	resp, err = d.Decide(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, protocol.FallbackAction(), resp)

	// The same hand checks when it can.
	c.TableState.PlayerToActLegalActions = &protocol.LegalActions{Actions: []string{"fold", "check", "bet"}, ChipRange: &protocol.ChipRange{Min: 10, Max: 290}}
	resp, err = d.Decide(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "check", resp.Action)

	// No legal actions offered.
	c.TableState.PlayerToActLegalActions = nil
	resp, err = d.Decide(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, protocol.FallbackAction(), resp)
}

func TestRuleDeciderBetsMadeHands(t *testing.T) {
	c := turnContent("me")
	c.TableState.RoundOfBetting = "flop"
	c.TableState.Pots = []int64{20}
	c.TableState.Players = []*protocol.SeatView{{Stack: 290}, {Stack: 290}}
	c.TableState.CommunityCards = []protocol.Card{{Rank: "A", Suit: "clubs"}, {Rank: "K", Suit: "clubs"}, {Rank: "2", Suit: "hearts"}}
	c.TableState.PlayerToActLegalActions = &protocol.LegalActions{Actions: []string{"fold", "check", "bet"}, ChipRange: &protocol.ChipRange{Min: 10, Max: 290}}

	resp, err := RuleDecider{Aggression: 1}.Decide(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "bet", resp.Action)
	assert.EqualValues(t, 30, resp.BetSize)
}

func TestHandStrengthOrdering(t *testing.T) {
	board := poker.MustParseCards("Ac Kc 2h")
	trips := HandStrength(poker.MustParseCards("As Ad"), board)
	pair := HandStrength(poker.MustParseCards("Ah 7d"), board)
	air := HandStrength(poker.MustParseCards("9s 8d"), board)
	assert.Greater(t, trips, pair)
	assert.Greater(t, pair, air)

	assert.Greater(t, HandStrength(poker.MustParseCards("As Ah"), nil), HandStrength(poker.MustParseCards("Ks Qs"), nil))
	assert.Greater(t, HandStrength(poker.MustParseCards("Ks Qs"), nil), HandStrength(poker.MustParseCards("7c 2d"), nil))
	assert.Zero(t, HandStrength(nil, nil))
}

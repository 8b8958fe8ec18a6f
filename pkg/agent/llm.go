package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/pokerhost/pkg/protocol"
)

const defaultLLMTimeout = 30 * time.Second

// LLMConfig configures an LLMDecider.
type LLMConfig struct {
	// Endpoint is the base URL of an OpenAI compatible API, e.g.
	// https://openrouter.ai/api/v1.
	Endpoint string
	Model    string
	APIKey   string
	// Timeout bounds one completion request. Ignored when Client is set.
	Timeout time.Duration
	Client  *http.Client
	// Fallback answers whenever the model cannot. Defaults to RuleDecider.
	Fallback Decider
	Log      slog.Logger
}

// LLMDecider asks a chat completion model for the action and falls back to a
// local decider when the model is unreachable or answers with anything but a
// legal action.
type LLMDecider struct {
	url      string
	model    string
	apiKey   string
	client   *http.Client
	fallback Decider
	log      slog.Logger
}

// NewLLMDecider returns a decider for cfg.
func NewLLMDecider(cfg LLMConfig) (*LLMDecider, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("agent: llm endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("agent: llm model is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultLLMTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = RuleDecider{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &LLMDecider{
		url:      endpoint + "/chat/completions",
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   client,
		fallback: fallback,
		log:      log,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// decision is the JSON object the prompt asks the model for.
type decision struct {
	Action      string  `json:"action"`
	BetSize     float64 `json:"betSize"`
	Explanation string  `json:"explanation"`
}

// Decide implements Decider.
func (d *LLMDecider) Decide(ctx context.Context, c protocol.Content) (protocol.ActionResponse, error) {
	resp, err := d.ask(ctx, c)
	if err != nil {
		d.log.Warnf("Model decision failed, falling back: %v", err)
		return d.fallback.Decide(ctx, c)
	}
	return resp, nil
}

func (d *LLMDecider) ask(ctx context.Context, c protocol.Content) (protocol.ActionResponse, error) {
	legal := legalActionsOf(c)
	if legal == nil || len(legal.Actions) == 0 {
		return protocol.ActionResponse{}, errors.New("no legal actions offered")
	}

	body, err := json.Marshal(chatRequest{
		Model:    d.model,
		Messages: []chatMessage{{Role: "user", Content: Prompt(c)}},
	})
	if err != nil {
		return protocol.ActionResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return protocol.ActionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return protocol.ActionResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return protocol.ActionResponse{}, fmt.Errorf("failed to read completion: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return protocol.ActionResponse{}, fmt.Errorf("completion status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return protocol.ActionResponse{}, fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(cr.Choices) == 0 {
		return protocol.ActionResponse{}, errors.New("completion has no choices")
	}
	return d.parse(cr.Choices[0].Message.Content, legal)
}

// parse turns the model's answer into a legal response. Bet sizes outside
// the chip range are clamped to it.
func (d *LLMDecider) parse(text string, legal *protocol.LegalActions) (protocol.ActionResponse, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return protocol.ActionResponse{}, fmt.Errorf("no json object in answer %q", text)
	}
	var dec decision
	if err := json.Unmarshal([]byte(text[start:end+1]), &dec); err != nil {
		return protocol.ActionResponse{}, fmt.Errorf("malformed answer: %w", err)
	}

	action := strings.ToLower(strings.TrimSpace(dec.Action))
	if !legal.Contains(action) {
		return protocol.ActionResponse{}, fmt.Errorf("illegal action %q", dec.Action)
	}
	d.log.Debugf("Model chose %s %v: %s", action, dec.BetSize, dec.Explanation)
	if !protocol.NeedsBetSize(action) {
		return protocol.ActionResponse{Action: action}, nil
	}
	r := legal.ChipRange
	if r == nil {
		return protocol.ActionResponse{}, fmt.Errorf("%s offered without a chip range", action)
	}
	if math.IsNaN(dec.BetSize) {
		dec.BetSize = 0
	}
	size := int64(math.Round(dec.BetSize))
	return protocol.ActionResponse{Action: action, BetSize: min(max(size, r.Min), r.Max)}, nil
}

func legalActionsOf(c protocol.Content) *protocol.LegalActions {
	if la := c.TableState.PlayerToActLegalActions; la != nil {
		return la
	}
	return c.PlayerState.LegalActions
}

var pastTense = map[string]string{
	protocol.ActionFold:  "folded",
	protocol.ActionCheck: "checked",
	protocol.ActionCall:  "called",
	protocol.ActionBet:   "bet",
	protocol.ActionRaise: "raised",
}

func formatCards(cards []protocol.Card) string {
	parts := make([]string, 0, len(cards))
	for _, c := range cards {
		parts = append(parts, c.Rank+" of "+c.Suit)
	}
	return strings.Join(parts, ", ")
}

func formatHistory(history []protocol.ActionHistoryEntry) string {
	parts := make([]string, 0, len(history))
	for _, e := range history {
		who := e.Name
		if who == "" {
			who = fmt.Sprintf("seat %d", e.Seat)
		}
		verb, ok := pastTense[e.Action]
		if !ok {
			verb = e.Action
		}
		entry := fmt.Sprintf("During the %s, %s %s", e.RoundOfBetting, who, verb)
		if protocol.NeedsBetSize(e.Action) && e.BetSize != nil {
			entry += fmt.Sprintf(" %d dollars.", *e.BetSize)
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, ", ")
}

// Prompt renders the situation of the player to act as instructions for a
// language model.
func Prompt(c protocol.Content) string {
	legal := legalActionsOf(c)
	var actions []string
	var chipRange string
	if legal != nil {
		actions = legal.Actions
		if r := legal.ChipRange; r != nil {
			chipRange = fmt.Sprintf("If you choose an action that requires a bet size, it must be "+
				"a minimum of %d dollars and a maximum of %d dollars.\n", r.Min, r.Max)
		}
	}
	var pot int64
	for _, p := range c.TableState.Pots {
		pot += p
	}
	toCall, _ := callAndPot(c)
	choices := strings.Join(actions, ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "Your name is %s, and you are a poker agent playing Texas Hold'em.\n\n", c.PlayerState.Name)
	b.WriteString("Assess the current situation and decide what kind of action to take.\n")
	b.WriteString("If applicable, also decide the size of bet to make.\n\n")
	b.WriteString("Your current properties are:\n")
	fmt.Fprintf(&b, "- Chips: %d\n", c.PlayerState.Stack)
	fmt.Fprintf(&b, "- Hand: [%s]\n\n", formatCards(c.PlayerState.HoleCards))
	b.WriteString("Take into account the community cards and the current pot size to make your decision.\n")
	fmt.Fprintf(&b, "- Community Cards: [%s]\n", formatCards(c.TableState.CommunityCards))
	fmt.Fprintf(&b, "- Current Pot Size: %d\n", pot)
	fmt.Fprintf(&b, "- Amount To Call: %d\n\n", toCall)
	b.WriteString("Review the action history and opponent behavior to inform your decision:\n")
	fmt.Fprintf(&b, "- Action History: [%s]\n\n", formatHistory(c.ActionHistory))
	b.WriteString("If there are no entries in the Action History, you are the first player to act in this round.\n\n")
	b.WriteString("The basic strategy behind each type of action is as follows:\n")
	b.WriteString("- Fold: If your hand is weak and opponents show strength. Does not require a bet size.\n")
	b.WriteString("- Call: If the bet value is reasonable and your hand has potential. Does not require a bet size.\n")
	b.WriteString("- Raise: If your hand is strong and you want to increase the pot size or bluff. Requires a bet size.\n")
	b.WriteString("- Bet: The same as Raise, but only available when nobody has bet this round. Requires a bet size.\n")
	b.WriteString("- Check: If no bet is required and you want to see the next card for free. Does not require a bet size.\n\n")
	fmt.Fprintf(&b, "Based on this information, decide your next move. You may choose one of the following legal actions: [%s]\n", choices)
	b.WriteString(chipRange)
	b.WriteString("\nMake a decision now.\n\n")
	b.WriteString("Format Instructions:\n")
	b.WriteString("Do not include any preamble, only provide a RFC8259 compliant JSON response following this schema:\n")
	b.WriteString("{\n")
	fmt.Fprintf(&b, "    \"action\": string // Your chosen action. Possible values: %s\n", choices)
	b.WriteString("    \"betSize\": number // The bet size you have chosen, 0 if your action does not require one\n")
	b.WriteString("    \"explanation\": string // A brief explanation for your choice\n")
	b.WriteString("}\n")
	return b.String()
}

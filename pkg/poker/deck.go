package poker

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

// Suit represents a card suit
type Suit string

const (
	Clubs    Suit = "clubs"
	Diamonds Suit = "diamonds"
	Hearts   Suit = "hearts"
	Spades   Suit = "spades"
)

// Value represents a card rank
type Value string

const (
	Two   Value = "2"
	Three Value = "3"
	Four  Value = "4"
	Five  Value = "5"
	Six   Value = "6"
	Seven Value = "7"
	Eight Value = "8"
	Nine  Value = "9"
	Ten   Value = "T"
	Jack  Value = "J"
	Queen Value = "Q"
	King  Value = "K"
	Ace   Value = "A"
)

var (
	allSuits  = []Suit{Clubs, Diamonds, Hearts, Spades}
	allValues = []Value{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}
)

// Card represents a playing card
type Card struct {
	suit  Suit
	value Value
}

// NewCard returns the card with the given suit and value.
func NewCard(suit Suit, value Value) Card {
	return Card{suit: suit, value: value}
}

// ParseCard parses the short form used in logs and tests, e.g. "As", "Td".
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	v, err := parseValue(s[:1])
	if err != nil {
		return Card{}, err
	}
	su, err := parseSuit(s[1:])
	if err != nil {
		return Card{}, err
	}
	return Card{suit: su, value: v}, nil
}

// MustParseCards parses a space separated list of cards and panics on error.
func MustParseCards(s string) []Card {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			panic(err)
		}
		cards = append(cards, c)
	}
	return cards
}

func parseValue(s string) (Value, error) {
	switch strings.ToUpper(s) {
	case "10":
		return Ten, nil
	default:
		for _, v := range allValues {
			if string(v) == strings.ToUpper(s) {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("invalid value: %s", s)
}

func parseSuit(s string) (Suit, error) {
	switch strings.ToLower(s) {
	case "c", "clubs", "♣":
		return Clubs, nil
	case "d", "diamonds", "♦":
		return Diamonds, nil
	case "h", "hearts", "♥":
		return Hearts, nil
	case "s", "spades", "♠":
		return Spades, nil
	}
	return "", fmt.Errorf("invalid suit: %s", s)
}

type cardJSON struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// MarshalJSON implements json.Marshaler.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{Rank: string(c.value), Suit: string(c.suit)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj cardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	v, err := parseValue(cj.Rank)
	if err != nil {
		return err
	}
	s, err := parseSuit(cj.Suit)
	if err != nil {
		return err
	}
	c.value, c.suit = v, s
	return nil
}

// String returns the short form, e.g. "As".
func (c Card) String() string {
	if c.suit == "" {
		return "??"
	}
	return string(c.value) + string(c.suit)[:1]
}

// Suit returns the card's suit.
func (c Card) Suit() Suit { return c.suit }

// Value returns the card's rank.
func (c Card) Value() Value { return c.value }

// Deck represents a deck of cards
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a shuffled 52 card deck using rng.
func NewDeck(rng *rand.Rand) *Deck {
	deck := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for _, suit := range allSuits {
		for _, value := range allValues {
			deck.cards = append(deck.cards, Card{suit: suit, value: value})
		}
	}
	deck.Shuffle()
	return deck
}

// NewDeckFromCards creates an unshuffled deck that deals cards in order.
func NewDeckFromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Shuffle randomizes the order of cards in the deck
func (d *Deck) Shuffle() {
	if d.rng == nil {
		return
	}
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card from the deck
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// Size returns the number of cards remaining in the deck
func (d *Deck) Size() int {
	return len(d.cards)
}

// Package protocol implements the host to peer broadcast exchange: the three
// message kinds, their wire payloads, the signing HTTP client and the join-all
// fan-out.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags a broadcast payload.
type Kind string

const (
	KindPing   Kind = "ping"
	KindUpdate Kind = "update"
	KindQuery  Kind = "query"
)

var (
	// ErrUnknownKind is returned when decoding a payload of an unknown kind.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrMissingContent is returned for an Update or Query without content.
	ErrMissingContent = errors.New("protocol: missing content")
)

// Message is one of Ping, Update or Query.
type Message interface {
	Kind() Kind
	isMessage()
}

// Ping probes liveness. It carries nothing.
type Ping struct{}

// Update pushes the receiver's current view. No reply is expected.
type Update struct {
	Content Content
}

// Query solicits an action from the player to act.
type Query struct {
	Content Content
}

func (Ping) Kind() Kind   { return KindPing }
func (Update) Kind() Kind { return KindUpdate }
func (Query) Kind() Kind  { return KindQuery }

func (Ping) isMessage()   {}
func (Update) isMessage() {}
func (Query) isMessage()  {}

// Payload is the signed wire form of a Message.
type Payload struct {
	Type    Kind            `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Encode converts m to its wire payload.
func Encode(m Message) (Payload, error) {
	switch msg := m.(type) {
	case Ping:
		return Payload{Type: KindPing}, nil
	case Update:
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Type: KindUpdate, Content: raw}, nil
	case Query:
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Type: KindQuery, Content: raw}, nil
	default:
		return Payload{}, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
}

// Decode converts a wire payload to its Message.
func Decode(p Payload) (Message, error) {
	switch p.Type {
	case KindPing:
		return Ping{}, nil
	case KindUpdate:
		c, err := decodeContent(p)
		if err != nil {
			return nil, err
		}
		return Update{Content: c}, nil
	case KindQuery:
		c, err := decodeContent(p)
		if err != nil {
			return nil, err
		}
		return Query{Content: c}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Type)
	}
}

func decodeContent(p Payload) (Content, error) {
	var c Content
	if len(p.Content) == 0 || string(p.Content) == "null" {
		return c, fmt.Errorf("%w for %s", ErrMissingContent, p.Type)
	}
	if err := json.Unmarshal(p.Content, &c); err != nil {
		return c, fmt.Errorf("decode %s content: %w", p.Type, err)
	}
	return c, nil
}

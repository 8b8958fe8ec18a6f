// Package envelope wraps payloads with a detached ed25519 signature and the
// sender identity, and verifies them against the identity the receiver expects.
//
// Keys and signatures travel as base58 text. Secret keys use the 64 byte
// seed||public layout, so wallet exports can be loaded directly.
package envelope

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/decred/base58"
)

var (
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("envelope: invalid signature")
	// ErrSignerMismatch is returned when the declared sender is not the
	// expected counterparty.
	ErrSignerMismatch = errors.New("envelope: unexpected signer")
	// ErrMalformed is returned for envelopes missing required fields.
	ErrMalformed = errors.New("envelope: malformed message")
)

// Keypair is an ed25519 signing identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a random keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// KeypairFromBase58 decodes a base58 secret key. Both the 64 byte secret and
// the bare 32 byte seed are accepted.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw := base58.Decode(secret)
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(raw)
		pub := priv.Public().(ed25519.PublicKey)
		if !bytes.Equal(pub, raw[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("envelope: secret key public half does not match its seed")
		}
		return &Keypair{Public: pub, Private: priv}, nil
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(raw)
		return &Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
	default:
		return nil, fmt.Errorf("envelope: secret key has %d bytes", len(raw))
	}
}

// PublicBase58 returns the identity string of the keypair.
func (kp *Keypair) PublicBase58() string {
	return base58.Encode(kp.Public)
}

// SecretBase58 returns the 64 byte secret key as base58.
func (kp *Keypair) SecretBase58() string {
	return base58.Encode(kp.Private)
}

// ParsePublicKey decodes a base58 identity.
func ParsePublicKey(identity string) (ed25519.PublicKey, error) {
	raw := base58.Decode(identity)
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("envelope: public key %q has %d bytes", identity, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// SignedMessage is the wire envelope.
type SignedMessage struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"publicKey"`
}

// Sign marshals payload and signs the resulting bytes.
func Sign(kp *Keypair, payload any) (*SignedMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return SignRaw(kp, raw), nil
}

// SignRaw signs already encoded payload bytes.
func SignRaw(kp *Keypair, raw []byte) *SignedMessage {
	sig := ed25519.Sign(kp.Private, raw)
	return &SignedMessage{
		Payload:   json.RawMessage(raw),
		Signature: base58.Encode(sig),
		PublicKey: kp.PublicBase58(),
	}
}

// Verify checks that msg was signed by expected over its exact payload bytes.
func Verify(msg *SignedMessage, expected string) error {
	if msg == nil || len(msg.Payload) == 0 || msg.Signature == "" {
		return ErrMalformed
	}
	if msg.PublicKey != "" && msg.PublicKey != expected {
		return fmt.Errorf("%w: got %s", ErrSignerMismatch, msg.PublicKey)
	}
	pub, err := ParsePublicKey(expected)
	if err != nil {
		return err
	}
	sig := base58.Decode(msg.Signature)
	if len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(pub, msg.Payload, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Open verifies msg against expected and decodes its payload into v.
func Open(msg *SignedMessage, expected string, v any) error {
	if err := Verify(msg, expected); err != nil {
		return err
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Decode parses a wire envelope without verifying it.
func Decode(data []byte) (*SignedMessage, error) {
	var msg SignedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(msg.Payload) == 0 || msg.Signature == "" {
		return nil, ErrMalformed
	}
	return &msg, nil
}

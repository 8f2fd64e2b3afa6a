package consensus

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Signed bytes are prefixed with a per-envelope context so that a proposal
// signature can never be presented as a vote signature, or the other way round.
const (
	actionContext = "flow-lottery/action\x00"
	voteContext   = "flow-lottery/vote\x00"
)

// signedBytes returns what an envelope signature covers: the context
// followed by the JSON form of the envelope without its signature.
func signedBytes(context string, envelope any) ([]byte, error) {
	b, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", context[:len(context)-1], err)
	}
	return append([]byte(context), b...), nil
}

func verifySigned(pub ed25519.PublicKey, context string, envelope any, sig []byte) (bool, error) {
	if len(sig) == 0 {
		return false, ErrMissingSignature
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(pub))
	}
	b, err := signedBytes(context, envelope)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, b, sig), nil
}

func (a Action) unsigned() Action {
	a.Signature = nil
	return a
}

func (v Vote) unsigned() Vote {
	v.Signature = nil
	return v
}

// Sign stamps the proposal with the current time and signs it.
func (a *Action) Sign(priv ed25519.PrivateKey) error {
	a.Timestamp = time.Now().UnixNano()
	b, err := signedBytes(actionContext, a.unsigned())
	if err != nil {
		return err
	}
	a.Signature = ed25519.Sign(priv, b)
	return nil
}

// Sign signs the vote. Votes are not stamped: their signature feeds the
// draw seed and must be a pure function of the vote content and the key.
func (v *Vote) Sign(priv ed25519.PrivateKey) error {
	b, err := signedBytes(voteContext, v.unsigned())
	if err != nil {
		return err
	}
	v.Signature = ed25519.Sign(priv, b)
	return nil
}

// VerifySignature reports whether the proposal was signed by pub.
// ErrMissingSignature and ErrInvalidPublicKey are returned for malformed input.
func (a *Action) VerifySignature(pub ed25519.PublicKey) (bool, error) {
	return verifySigned(pub, actionContext, a.unsigned(), a.Signature)
}

func (v *Vote) VerifySignature(pub ed25519.PublicKey) (bool, error) {
	return verifySigned(pub, voteContext, v.unsigned(), v.Signature)
}

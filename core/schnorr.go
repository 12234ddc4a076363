package core

import (
	"encoding/hex"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/group/edwards25519"
	"go.dedis.ch/kyber/v4/sign/schnorr"
)

var schnorrSuite = edwards25519.NewBlakeSHA256Ed25519()

// SchnorrScheme signs with Schnorr over Ed25519. Public keys and signatures are
// the hex of their kyber binary encodings.
type SchnorrScheme struct{}

func (SchnorrScheme) Name() string { return SchemeSchnorr }

// NewSigner generates a fresh Ed25519 keypair.
func (SchnorrScheme) NewSigner() (Signer, error) {
	priv := schnorrSuite.Scalar().Pick(schnorrSuite.RandomStream())
	pub := schnorrSuite.Point().Mul(priv, nil)
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %v", err)
	}
	return &schnorrSigner{priv: priv, address: hex.EncodeToString(pubBytes)}, nil
}

// Verify checks signature against the canonical payload under sender's key.
func (SchnorrScheme) Verify(sender, recipient string, amount float64, signature string) error {
	pubBytes, err := hex.DecodeString(sender)
	if err != nil {
		return fmt.Errorf("%w: malformed public key", ErrInvalidSignature)
	}
	pub := schnorrSuite.Point()
	if err := pub.UnmarshalBinary(pubBytes); err != nil {
		return fmt.Errorf("%w: malformed public key", ErrInvalidSignature)
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	if err := schnorr.Verify(schnorrSuite, pub, SigningPayload(sender, recipient, amount), sig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

type schnorrSigner struct {
	priv    kyber.Scalar
	address string
}

func (s *schnorrSigner) Address() string { return s.address }

func (s *schnorrSigner) Sign(recipient string, amount float64) (string, error) {
	sig, err := schnorr.Sign(schnorrSuite, s.priv, SigningPayload(s.address, recipient, amount))
	if err != nil {
		return "", fmt.Errorf("sign: %v", err)
	}
	return hex.EncodeToString(sig), nil
}

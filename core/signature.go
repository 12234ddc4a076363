package core

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	SchemeECDSA   = "ecdsa"
	SchemeSchnorr = "schnorr"
)

// Scheme verifies transfer signatures. A sender's address is its hex-encoded
// public key, so verification needs nothing beyond the transaction itself.
type Scheme interface {
	Name() string
	NewSigner() (Signer, error)
	Verify(sender, recipient string, amount float64, signature string) error
}

// Signer holds a private key and signs transfers from its own address.
type Signer interface {
	Address() string
	Sign(recipient string, amount float64) (string, error)
}

// SchemeByName resolves a configured scheme name.
func SchemeByName(name string) (Scheme, error) {
	switch name {
	case "", SchemeECDSA:
		return ECDSAScheme{}, nil
	case SchemeSchnorr:
		return SchnorrScheme{}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", name)
	}
}

// SigningPayload is the canonical (sender, recipient, amount) tuple that
// signatures cover.
func SigningPayload(sender, recipient string, amount float64) []byte {
	data, _ := Canonical(struct {
		Sender    string  `json:"sender"`
		Recipient string  `json:"recipient"`
		Amount    float64 `json:"amount"`
	}{sender, recipient, amount})
	return data
}

// ECDSAScheme uses P-256. Public keys are hex(X||Y) and signatures hex(r||s),
// each half 32 bytes.
type ECDSAScheme struct{}

func (ECDSAScheme) Name() string { return SchemeECDSA }

// NewSigner generates a fresh P-256 keypair.
func (ECDSAScheme) NewSigner() (Signer, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %v", err)
	}
	pub := make([]byte, 64)
	privKey.PublicKey.X.FillBytes(pub[:32])
	privKey.PublicKey.Y.FillBytes(pub[32:])
	return &ecdsaSigner{priv: privKey, address: hex.EncodeToString(pub)}, nil
}

// Verify checks signature against the canonical payload under sender's key.
func (ECDSAScheme) Verify(sender, recipient string, amount float64, signature string) error {
	pubKeyBytes, err := hex.DecodeString(sender)
	if err != nil || len(pubKeyBytes) != 64 {
		return fmt.Errorf("%w: malformed public key", ErrInvalidSignature)
	}
	sigBytes, err := hex.DecodeString(signature)
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	x := new(big.Int).SetBytes(pubKeyBytes[:32])
	y := new(big.Int).SetBytes(pubKeyBytes[32:])
	pubKey := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	sigR := new(big.Int).SetBytes(sigBytes[:32])
	sigS := new(big.Int).SetBytes(sigBytes[32:])
	hash := sha256.Sum256(SigningPayload(sender, recipient, amount))
	if !ecdsa.Verify(pubKey, hash[:], sigR, sigS) {
		return ErrInvalidSignature
	}
	return nil
}

type ecdsaSigner struct {
	priv    *ecdsa.PrivateKey
	address string
}

func (s *ecdsaSigner) Address() string { return s.address }

func (s *ecdsaSigner) Sign(recipient string, amount float64) (string, error) {
	hash := sha256.Sum256(SigningPayload(s.address, recipient, amount))
	r, sigS, err := ecdsa.Sign(rand.Reader, s.priv, hash[:])
	if err != nil {
		return "", fmt.Errorf("sign: %v", err)
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	sigS.FillBytes(sig[32:])
	return hex.EncodeToString(sig), nil
}

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const didKeyPrefix = "did:key:"

// Signer manages an Ed25519 key pair and the did:key identifier derived
// from its public key.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	did        string
}

// GenerateKey creates a new random Ed25519 key pair.
func GenerateKey() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{
		privateKey: priv,
		publicKey:  pub,
		did:        didKeyPrefix + hex.EncodeToString(pub),
	}, nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded Ed25519 seed or
// full private key (32 or 64 bytes).
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{
		privateKey: priv,
		publicKey:  pub,
		did:        didKeyPrefix + hex.EncodeToString(pub),
	}, nil
}

// DID returns the did:key identifier derived from the public key, in the
// format the gateway expects in X-Agent-ID.
func (s *Signer) DID() string {
	return s.did
}

// PrivateKeyHex returns the private key seed as hex.
// WARNING: keep this secret; never expose to users or logs.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.privateKey.Seed())
}

// PublicKeyHex returns the public key as hex.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.publicKey)
}

// Sign signs an arbitrary message and returns the raw 64-byte signature.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.privateKey, message)
}

// SignRequest builds the canonical METHOD+PATH+TIMESTAMP+BODY_HASH
// message and signs it, returning a hex-encoded signature suitable for
// the X-Signature header.
func (s *Signer) SignRequest(method, path string, timestamp int64, bodyHash string) string {
	message := CanonicalRequestMessage(method, path, timestamp, bodyHash)
	sig := s.Sign([]byte(message))
	return hex.EncodeToString(sig)
}

// CanonicalRequestMessage reproduces the gateway's signed-message
// construction so signers and verifiers never drift apart.
func CanonicalRequestMessage(method, path string, timestamp int64, bodyHash string) string {
	return fmt.Sprintf("%s%s%d%s", method, path, timestamp, bodyHash)
}

// ParseDID extracts the raw public key bytes from a did:key identifier.
func ParseDID(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, fmt.Errorf("invalid DID format: %q, expected %s<hex-pubkey>", did, didKeyPrefix)
	}
	hexPart := strings.TrimPrefix(did, didKeyPrefix)
	if hexPart == "" {
		return nil, fmt.Errorf("invalid DID format: empty public key")
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return nil, fmt.Errorf("invalid public key in DID: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length in DID: got %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// VerifySignature verifies that signature (hex-encoded) over message was
// produced by the holder of did.
func VerifySignature(did string, message []byte, signatureHex string) error {
	pub, err := ParseDID(did)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature format: expected hex-encoded string: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length: got %d, want %d", len(sig), ed25519.SignatureSize)
	}
	if !ed25519.Verify(pub, message, sig) {
		return fmt.Errorf("invalid signature - request may have been tampered with")
	}
	return nil
}

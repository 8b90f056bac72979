package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// fernetVersion is the single defined Fernet token version byte.
const fernetVersion byte = 0x80

// SecretEncryption implements Fernet-compatible authenticated symmetric
// encryption (AES-128-CBC + HMAC-SHA256) for LockedDeal reservation
// secrets. No ecosystem Fernet client exists in the retrieved corpus
// (see DESIGN.md §Open Question 6), so this is built directly on
// standard-library primitives plus golang.org/x/crypto/hkdf-free key
// splitting identical to the Fernet spec: the first 16 bytes of the
// 32-byte key are the signing key, the last 16 are the AES key.
type SecretEncryption struct {
	signingKey    [16]byte
	encryptionKey [16]byte
}

// NewSecretEncryption builds a SecretEncryption from a base64 urlsafe
// encoded 32-byte key, matching Fernet.generate_key()'s format.
func NewSecretEncryption(encryptionKeyB64 string) (*SecretEncryption, error) {
	raw, err := base64.URLEncoding.DecodeString(encryptionKeyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid encryption key: expected 32 bytes, got %d", len(raw))
	}
	se := &SecretEncryption{}
	copy(se.signingKey[:], raw[:16])
	copy(se.encryptionKey[:], raw[16:])
	return se, nil
}

// GenerateEncryptionKey creates a new base64 urlsafe encoded 32-byte
// key suitable for AURA_CRYPTO_SECRET_ENCRYPTION_KEY.
func GenerateEncryptionKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Encrypt encrypts plaintext into a Fernet token:
// version(1) || timestamp(8, big-endian) || IV(16) || ciphertext || HMAC-SHA256(32),
// base64 urlsafe encoded.
func (s *SecretEncryption) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("encryption failed: %w", err)
	}

	block, err := aes.NewCipher(s.encryptionKey[:])
	if err != nil {
		return "", fmt.Errorf("encryption failed: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	header := make([]byte, 9)
	header[0] = fernetVersion
	binary.BigEndian.PutUint64(header[1:], uint64(time.Now().Unix()))

	payload := append(append(header, iv...), ciphertext...)
	mac := hmac.New(sha256.New, s.signingKey[:])
	mac.Write(payload)
	token := append(payload, mac.Sum(nil)...)

	return base64.URLEncoding.EncodeToString(token), nil
}

// Decrypt decrypts a Fernet token produced by Encrypt, rejecting any
// token whose HMAC does not verify.
func (s *SecretEncryption) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decryption failed: invalid token or wrong key: %w", err)
	}
	if len(raw) < 9+aes.BlockSize+sha256.Size {
		return "", fmt.Errorf("decryption failed: invalid token or wrong key")
	}

	payload := raw[:len(raw)-sha256.Size]
	wantMAC := raw[len(raw)-sha256.Size:]
	mac := hmac.New(sha256.New, s.signingKey[:])
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), wantMAC) {
		return "", fmt.Errorf("decryption failed: invalid token or wrong key")
	}

	if payload[0] != fernetVersion {
		return "", fmt.Errorf("decryption failed: invalid token or wrong key")
	}
	iv := payload[9 : 9+aes.BlockSize]
	ciphertext := payload[9+aes.BlockSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("decryption failed: invalid token or wrong key")
	}

	block, err := aes.NewCipher(s.encryptionKey[:])
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	plainPadded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainPadded, ciphertext)

	plain, err := pkcs7Unpad(plainPadded, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("decryption failed: invalid token or wrong key")
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_DIDRoundTrip(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	pub, err := ParseDID(signer.DID())
	require.NoError(t, err)
	assert.True(t, pub.Equal(signer.publicKey))
}

func TestFromPrivateKeyHex_SeedAndFullKey(t *testing.T) {
	original, err := GenerateKey()
	require.NoError(t, err)

	fromSeed, err := FromPrivateKeyHex(original.PrivateKeyHex())
	require.NoError(t, err)
	assert.Equal(t, original.DID(), fromSeed.DID())

	fromFull, err := FromPrivateKeyHex("0x" + encodeHex(original.privateKey))
	require.NoError(t, err)
	assert.Equal(t, original.DID(), fromFull.DID())
}

func encodeHex(priv ed25519.PrivateKey) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(priv)*2)
	for i, b := range priv {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

func TestFromPrivateKeyHex_RejectsBadLength(t *testing.T) {
	_, err := FromPrivateKeyHex("deadbeef")
	assert.Error(t, err)
}

func TestSignRequest_VerifiesAgainstCanonicalMessage(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	sig := signer.SignRequest("POST", "/v1/negotiate", 1_700_000_000, "abc123")
	msg := CanonicalRequestMessage("POST", "/v1/negotiate", 1_700_000_000, "abc123")

	err = VerifySignature(signer.DID(), []byte(msg), sig)
	assert.NoError(t, err)
}

func TestVerifySignature_RejectsTamperedBody(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	sig := signer.SignRequest("POST", "/v1/negotiate", 1_700_000_000, "abc123")
	tamperedMsg := CanonicalRequestMessage("POST", "/v1/negotiate", 1_700_000_000, "tampered")

	err = VerifySignature(signer.DID(), []byte(tamperedMsg), sig)
	assert.Error(t, err)
}

func TestVerifySignature_RejectsWrongSigner(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	sig := signer.SignRequest("GET", "/v1/items", 1_700_000_000, "")
	msg := CanonicalRequestMessage("GET", "/v1/items", 1_700_000_000, "")

	err = VerifySignature(other.DID(), []byte(msg), sig)
	assert.Error(t, err)
}

func TestParseDID_RejectsMalformedInput(t *testing.T) {
	_, err := ParseDID("not-a-did")
	assert.Error(t, err)

	_, err = ParseDID("did:key:")
	assert.Error(t, err)

	_, err = ParseDID("did:key:zz")
	assert.Error(t, err)

	_, err = ParseDID("did:key:ab")
	assert.Error(t, err, "truncated public key must be rejected")
}

func TestVerifySignature_RejectsMalformedSignature(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)
	err = VerifySignature(signer.DID(), []byte("msg"), "not-hex")
	assert.Error(t, err)

	err = VerifySignature(signer.DID(), []byte("msg"), "aabb")
	assert.Error(t, err)
}

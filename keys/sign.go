package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

const (
	PublicKeySize = ed25519.PublicKeySize
	SecretKeySize = ed25519.PrivateKeySize
	SignatureSize = ed25519.SignatureSize
	SeedSize      = ed25519.SeedSize
)

// PublicKey is an Ed25519 public key identifying a transaction author.
type PublicKey [PublicKeySize]byte

// SecretKey is an Ed25519 private key (seed followed by public key).
type SecretKey [SecretKeySize]byte

// Signature is an Ed25519 signature.
type Signature [SignatureSize]byte

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("ed25519 public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// SignatureFromBytes copies b into a Signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("ed25519 signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// Tagged returns the "ed25519:<base64>" form used in configuration documents.
func (k PublicKey) Tagged() string {
	return string(AlgEd25519) + ":" + base64.StdEncoding.EncodeToString(k[:])
}

// PublicKey returns the public half of the secret key.
func (k SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k[SeedSize:])
	return pk
}

// KeypairFromSeed deterministically derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (PublicKey, SecretKey, error) {
	var sk SecretKey
	if len(seed) != SeedSize {
		return PublicKey{}, sk, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	copy(sk[:], ed25519.NewKeyFromSeed(seed))
	return sk.PublicKey(), sk, nil
}

// GenerateKeypair returns a fresh keypair read from rand.
func GenerateKeypair(rand io.Reader) (PublicKey, SecretKey, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return PublicKey{}, SecretKey{}, err
	}
	return KeypairFromSeed(seed)
}

// Sign signs message with sk.
func Sign(message []byte, sk SecretKey) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(sk[:]), message))
	return sig
}

// Verify reports whether sig is a valid signature of message by pk.
func Verify(message []byte, sig Signature, pk PublicKey) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig[:])
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair for use as a validator key.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

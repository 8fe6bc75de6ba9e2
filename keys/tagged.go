package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Algorithm names a validator key scheme.
type Algorithm string

const (
	AlgEd25519    Algorithm = "ed25519"
	AlgDilithium3 Algorithm = "dilithium3"
	AlgSecp256k1  Algorithm = "secp256k1"
)

// TaggedKey is a public key together with its scheme.
type TaggedKey struct {
	Alg   Algorithm
	Bytes []byte
}

// ParseTaggedKey parses "<alg>:<base64>" and validates the key material.
//
// Only padded standard base64 is accepted so that a key has exactly one
// textual form.
func ParseTaggedKey(s string) (TaggedKey, error) {
	alg, enc, ok := strings.Cut(s, ":")
	if !ok {
		return TaggedKey{}, fmt.Errorf("invalid tagged key encoding %q", s)
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return TaggedKey{}, fmt.Errorf("invalid tagged key base64: %w", err)
	}
	k := TaggedKey{Alg: Algorithm(alg), Bytes: raw}
	if err := k.Validate(); err != nil {
		return TaggedKey{}, err
	}
	return k, nil
}

// Validate checks the key bytes against the scheme.
func (k TaggedKey) Validate() error {
	switch k.Alg {
	case AlgEd25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(k.Bytes))
		}
		return nil
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(k.Bytes); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		return nil
	case AlgSecp256k1:
		switch len(k.Bytes) {
		case 33:
			if _, err := ethcrypto.DecompressPubkey(k.Bytes); err != nil {
				return fmt.Errorf("invalid secp256k1 public key: %w", err)
			}
			return nil
		case 65:
			if _, err := ethcrypto.UnmarshalPubkey(k.Bytes); err != nil {
				return fmt.Errorf("invalid secp256k1 public key: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("secp256k1 public key must be 33 or 65 bytes, got %d", len(k.Bytes))
		}
	default:
		return fmt.Errorf("unsupported key algorithm %q", k.Alg)
	}
}

func (k TaggedKey) String() string {
	return string(k.Alg) + ":" + base64.StdEncoding.EncodeToString(k.Bytes)
}

// Equal reports whether both keys use the same scheme and bytes.
func (k TaggedKey) Equal(o TaggedKey) bool {
	return k.Alg == o.Alg && string(k.Bytes) == string(o.Bytes)
}

// Ed25519 returns the key as a transaction PublicKey when it is an ed25519 key.
func (k TaggedKey) Ed25519() (PublicKey, bool) {
	if k.Alg != AlgEd25519 {
		return PublicKey{}, false
	}
	pk, err := PublicKeyFromBytes(k.Bytes)
	if err != nil {
		return PublicKey{}, false
	}
	return pk, true
}

// TaggedDilithium3 encodes a Dilithium3 public key in tagged form.
func TaggedDilithium3(pk *mode3.PublicKey) (string, error) {
	if pk == nil {
		return "", fmt.Errorf("missing dilithium3 public key")
	}
	b, err := pk.MarshalBinary()
	if err != nil {
		return "", err
	}
	return TaggedKey{Alg: AlgDilithium3, Bytes: b}.String(), nil
}

// TaggedSecp256k1 encodes a secp256k1 public key in compressed tagged form.
func TaggedSecp256k1(pk *ecdsa.PublicKey) (string, error) {
	if pk == nil {
		return "", fmt.Errorf("missing secp256k1 public key")
	}
	return TaggedKey{Alg: AlgSecp256k1, Bytes: ethcrypto.CompressPubkey(pk)}.String(), nil
}

package keys

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func seedOf(b byte) []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = b
	}
	return seed
}

func TestSignVerify(t *testing.T) {
	pk, sk, err := KeypairFromSeed(seedOf(7))
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	if sk.PublicKey() != pk {
		t.Fatalf("public key mismatch")
	}
	msg := []byte("scope")
	sig := Sign(msg, sk)
	if !Verify(msg, sig, pk) {
		t.Fatalf("signature did not verify")
	}
	if Verify([]byte("scopf"), sig, pk) {
		t.Fatalf("signature verified over different message")
	}
	other, _, err := KeypairFromSeed(seedOf(8))
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	if Verify(msg, sig, other) {
		t.Fatalf("signature verified under different key")
	}
}

func TestGenerateKeypair_ReadsSeed(t *testing.T) {
	a, _, err := GenerateKeypair(&deterministicReader{})
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	b, _, err := GenerateKeypair(&deterministicReader{})
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if a != b {
		t.Fatalf("expected same keys from same reader state")
	}
}

func TestFromBytes_LengthChecks(t *testing.T) {
	if _, err := PublicKeyFromBytes(make([]byte, 31)); err == nil {
		t.Fatalf("expected error for short public key")
	}
	if _, err := SignatureFromBytes(make([]byte, 65)); err == nil {
		t.Fatalf("expected error for long signature")
	}
	if _, _, err := KeypairFromSeed(make([]byte, 3)); err == nil {
		t.Fatalf("expected error for short seed")
	}
}

func TestParseTaggedKey_Ed25519(t *testing.T) {
	pk, _, err := KeypairFromSeed(seedOf(1))
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	k, err := ParseTaggedKey(pk.Tagged())
	if err != nil {
		t.Fatalf("ParseTaggedKey: %v", err)
	}
	if k.String() != pk.Tagged() {
		t.Fatalf("round trip mismatch")
	}
	got, ok := k.Ed25519()
	if !ok || got != pk {
		t.Fatalf("Ed25519 view mismatch")
	}
}

func TestParseTaggedKey_Dilithium3(t *testing.T) {
	pk, _, err := GenerateDilithium3Keypair(&deterministicReader{})
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}
	s, err := TaggedDilithium3(pk)
	if err != nil {
		t.Fatalf("TaggedDilithium3: %v", err)
	}
	k, err := ParseTaggedKey(s)
	if err != nil {
		t.Fatalf("ParseTaggedKey: %v", err)
	}
	if k.Alg != AlgDilithium3 {
		t.Fatalf("unexpected alg %q", k.Alg)
	}
	if _, ok := k.Ed25519(); ok {
		t.Fatalf("dilithium3 key must not convert to ed25519")
	}
}

func TestParseTaggedKey_Secp256k1(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	compressed := ethcrypto.CompressPubkey(&priv.PublicKey)
	s := "secp256k1:" + base64.StdEncoding.EncodeToString(compressed)
	k, err := ParseTaggedKey(s)
	if err != nil {
		t.Fatalf("ParseTaggedKey: %v", err)
	}
	if !bytes.Equal(k.Bytes, compressed) {
		t.Fatalf("bytes mismatch")
	}
	tagged, err := TaggedSecp256k1(&priv.PublicKey)
	if err != nil {
		t.Fatalf("TaggedSecp256k1: %v", err)
	}
	if tagged != s {
		t.Fatalf("TaggedSecp256k1 = %q, want %q", tagged, s)
	}

	bad := make([]byte, 33)
	bad[0] = 0x05
	if _, err := ParseTaggedKey("secp256k1:" + base64.StdEncoding.EncodeToString(bad)); err == nil {
		t.Fatalf("expected invalid secp256k1 point to be rejected")
	}
}

func TestParseTaggedKey_Rejects(t *testing.T) {
	cases := []string{
		"",
		"ed25519",
		"ed25519:!!!",
		"ed25519:" + base64.StdEncoding.EncodeToString(make([]byte, 31)),
		"ed25519:" + base64.RawStdEncoding.EncodeToString(make([]byte, 32)),
		"rsa:" + base64.StdEncoding.EncodeToString(make([]byte, 32)),
		"dilithium3:" + base64.StdEncoding.EncodeToString(make([]byte, 10)),
	}
	for _, c := range cases {
		if _, err := ParseTaggedKey(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := seedOf(3)
	a, err := DeriveRoleSeed(root, "governance")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "governance")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation")
	}
	c, err := DeriveRoleSeed(root, "validator-1")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
	if _, err := DeriveRoleSeed(root, "bad role"); err == nil {
		t.Fatalf("expected invalid role to be rejected")
	}
}

func TestKeyStore_RoundTrip(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand: %v", err)
	}
	rootPub, _, err := ks.InitRoot("alice", seed, false)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	if !strings.HasPrefix(rootPub, "ed25519:") {
		t.Fatalf("unexpected key format %q", rootPub)
	}
	if _, _, err := ks.InitRoot("alice", seed, false); err == nil {
		t.Fatalf("expected refusal to overwrite without force")
	}
	rolePub, _, err := ks.DeriveRole("alice", "governance", false)
	if err != nil {
		t.Fatalf("DeriveRole: %v", err)
	}
	exported, err := ks.Export("alice", "governance")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exported != rolePub {
		t.Fatalf("Export mismatch: %q vs %q", exported, rolePub)
	}
	sk, err := ks.LoadSecretKey("", "alice", "", "")
	if err != nil {
		t.Fatalf("LoadSecretKey: %v", err)
	}
	if sk.PublicKey().Tagged() != rootPub {
		t.Fatalf("loaded key does not match root")
	}
	list, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "alice" || len(list[0].Roles) != 1 || list[0].Roles[0] != "governance" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

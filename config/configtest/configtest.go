// Package configtest builds valid configuration documents for tests.
package configtest

import (
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/config"
	"xdao.co/ledger/keys"
)

// Key returns a deterministic ed25519 tagged key derived from b.
func Key(t testing.TB, b byte) keys.TaggedKey {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	pk, _, err := keys.KeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	return keys.TaggedKey{Alg: keys.AlgEd25519, Bytes: pk[:]}
}

// Stored returns a valid configuration with n validators.
func Stored(t testing.TB, actualFrom uint64, prev cid.Cid, n int) *config.Stored {
	t.Helper()
	s := &config.Stored{
		PreviousConfig: prev,
		ActualFrom:     actualFrom,
		Consensus: config.Consensus{
			RoundTimeout:            3000,
			StatusTimeout:           5000,
			PeersTimeout:            10000,
			TxsBlockLimit:           1000,
			MaxMessageLen:           1 << 20,
			MinProposeTimeout:       10,
			MaxProposeTimeout:       200,
			ProposeTimeoutThreshold: 500,
		},
		Services: map[string]string{},
	}
	for i := 0; i < n; i++ {
		s.Validators = append(s.Validators, config.Validator{
			ConsensusKey: Key(t, byte(2*i+1)),
			ServiceKey:   Key(t, byte(2*i+2)),
		})
	}
	return s
}

// Bytes renders Stored(t, actualFrom, prev, 1).
func Bytes(t testing.TB, actualFrom uint64, prev cid.Cid) []byte {
	t.Helper()
	b, err := config.Encode(Stored(t, actualFrom, prev, 1))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

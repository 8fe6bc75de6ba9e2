package configupdater

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/config/configtest"
	"xdao.co/ledger/keys"
	"xdao.co/ledger/message"
	"xdao.co/ledger/storage/memdb"
)

func secret(t *testing.T, b byte) keys.SecretKey {
	t.Helper()
	_, sk, err := keys.KeypairFromSeed(bytes.Repeat([]byte{b}, keys.SeedSize))
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	return sk
}

func TestTxConfig_RoundTrip(t *testing.T) {
	sk := secret(t, 1)
	cases := []*TxConfig{
		{Sender: sk.PublicKey(), Config: []byte{}, ActualFrom: 0},
		{Sender: sk.PublicKey(), Config: []byte("doc"), ActualFrom: 100},
		{Sender: sk.PublicKey(), Config: bytes.Repeat([]byte{0xCC}, 1000), ActualFrom: ^blockchain.Height(0)},
	}
	for _, want := range cases {
		got, err := Unmarshal(want.Marshal())
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got.Sender != want.Sender || !bytes.Equal(got.Config, want.Config) || got.ActualFrom != want.ActualFrom {
			t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
		}
	}
}

func TestDecode_Dispatch(t *testing.T) {
	svc := New()
	sk := secret(t, 2)
	tx := &TxConfig{Sender: sk.PublicKey(), Config: []byte("cfg"), ActualFrom: 12}

	decoded, err := svc.Decode(tx.Raw())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(*TxConfig)
	if !ok {
		t.Fatalf("decoded %T, want *TxConfig", decoded)
	}
	if got.Sender != tx.Sender || string(got.Config) != "cfg" || got.ActualFrom != 12 {
		t.Fatalf("decoded fields mismatch: %+v", got)
	}

	for _, id := range []uint16{1, 2, 0xFFFF} {
		raw := tx.Raw()
		raw.MessageID = id
		if _, err := svc.Decode(raw); !blockchain.IsKind(err, blockchain.KindDecode) {
			t.Fatalf("message id %d: expected decode error, got %v", id, err)
		}
	}

	raw := tx.Raw()
	raw.ServiceID = 2
	if _, err := svc.Decode(raw); !blockchain.IsKind(err, blockchain.KindDecode) {
		t.Fatalf("foreign service id: expected decode error, got %v", err)
	}

	raw = tx.Raw()
	raw.Payload = raw.Payload[:len(raw.Payload)-1]
	if _, err := svc.Decode(raw); !blockchain.IsKind(err, blockchain.KindDecode) {
		t.Fatalf("truncated payload: expected decode error, got %v", err)
	}
}

func TestCreateSigned_Verifies(t *testing.T) {
	sk := secret(t, 3)
	env := CreateSigned([]byte("cfg"), 9, sk)
	signed, err := message.Verify(env)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if signed.Author != sk.PublicKey() {
		t.Fatalf("author mismatch")
	}
	if signed.Payload.ServiceID != ServiceID || signed.Payload.MessageID != MessageTxConfig {
		t.Fatalf("routing mismatch: %+v", signed.Payload)
	}
	tx, err := Unmarshal(signed.Payload.Payload)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if tx.From() != sk.PublicKey() {
		t.Fatalf("From differs from signer")
	}
}

func TestExecute_MalformedLeavesStateUnchanged(t *testing.T) {
	db := memdb.New()
	fork := db.Fork()
	tx := &TxConfig{Sender: secret(t, 4).PublicKey(), Config: []byte{0xFF, 0x00}, ActualFrom: 5}
	ctx := &blockchain.TransactionContext{Fork: fork, Height: 1}

	err := tx.Execute(ctx)
	ee, ok := err.(*blockchain.ExecutionError)
	if !ok {
		t.Fatalf("expected *ExecutionError, got %T (%v)", err, err)
	}
	if ee.Code != blockchain.CodeMalformedConfig {
		t.Fatalf("code %d, want %d", ee.Code, blockchain.CodeMalformedConfig)
	}
	if fork.Patch().Len() != 0 {
		t.Fatalf("malformed config wrote to the fork")
	}
}

func TestExecute_Commits(t *testing.T) {
	db := memdb.New()
	fork := db.Fork()
	doc := configtest.Bytes(t, 5, cid.Undef)
	tx := &TxConfig{Sender: secret(t, 5).PublicKey(), Config: doc, ActualFrom: 5}

	if err := tx.Execute(&blockchain.TransactionContext{Fork: fork, Height: 1}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	hist, err := blockchain.NewSchema(fork).ConfigurationHistory()
	if err != nil {
		t.Fatalf("ConfigurationHistory: %v", err)
	}
	if len(hist) != 1 || hist[0].ActualFrom != 5 {
		t.Fatalf("unexpected history %+v", hist)
	}
}

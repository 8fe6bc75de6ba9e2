package message

import (
	"github.com/ipfs/go-cid"
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/keys"
)

const (
	fieldEnvPayload   protowire.Number = 1
	fieldEnvAuthor    protowire.Number = 2
	fieldEnvSignature protowire.Number = 3
)

// Signed is a RawTransaction whose signature has been checked against Author.
//
// Values are only produced by Verify, so holding a *Signed means the envelope
// was well-formed and correctly signed.
type Signed struct {
	Payload   RawTransaction
	Author    keys.PublicKey
	Signature keys.Signature

	raw  []byte
	hash cid.Cid
}

// Bytes returns a copy of the envelope bytes that were verified.
func (s *Signed) Bytes() []byte { return append([]byte(nil), s.raw...) }

// Hash is the transaction hash: the CID of the full envelope bytes.
func (s *Signed) Hash() cid.Cid { return s.hash }

// signedScope is the prefix of the envelope covered by the signature: the
// encoded payload followed by the author key.
func signedScope(payload []byte, author keys.PublicKey) []byte {
	var e Encoder
	e.Bytes(fieldEnvPayload, payload)
	e.Bytes(fieldEnvAuthor, author[:])
	return e.Output()
}

// Sign produces envelope bytes for raw signed by sk. The author is sk's public key.
func Sign(raw RawTransaction, sk keys.SecretKey) []byte {
	author := sk.PublicKey()
	scope := signedScope(raw.Marshal(), author)
	sig := keys.Sign(scope, sk)
	e := Encoder{buf: scope}
	e.Bytes(fieldEnvSignature, sig[:])
	return e.Output()
}

// Verify decodes envelope bytes, checks the signature over the exact signed
// scope and decodes the payload. Every failure is a KindVerification error.
func Verify(b []byte) (*Signed, error) {
	d := NewDecoder(b)
	payload, err := d.Bytes(fieldEnvPayload)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-001", "malformed envelope payload", err)
	}
	authorBytes, err := d.FixedBytes(fieldEnvAuthor, keys.PublicKeySize)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-002", "malformed envelope author", err)
	}
	scopeLen := len(b) - len(d.buf)
	sigBytes, err := d.FixedBytes(fieldEnvSignature, keys.SignatureSize)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-003", "malformed envelope signature", err)
	}
	if err := d.Finish(); err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-004", "malformed envelope", err)
	}

	author, err := keys.PublicKeyFromBytes(authorBytes)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-002", "malformed envelope author", err)
	}
	sig, err := keys.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-003", "malformed envelope signature", err)
	}
	if !keys.Verify(b[:scopeLen], sig, author) {
		return nil, newError(KindVerification, "MSG-SIG-001", "signature invalid")
	}

	raw, err := UnmarshalRaw(payload)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-005", "malformed raw transaction", err)
	}
	hash, err := cidutil.Sum(b)
	if err != nil {
		return nil, wrapError(KindVerification, "MSG-ENV-006", "transaction hash", err)
	}
	return &Signed{
		Payload:   raw,
		Author:    author,
		Signature: sig,
		raw:       append([]byte(nil), b...),
		hash:      hash,
	}, nil
}

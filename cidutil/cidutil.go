// Package cidutil derives the content identifiers used as hashes across the ledger.
//
// Every hash in the ledger (configuration documents, transactions) is a CIDv1
// with the "raw" multicodec and a sha2-256 multihash over canonical bytes.
package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns the CIDv1 (raw + sha2-256) of data.
func Sum(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// MustSum is like Sum but panics on error.
//
// multihash.Sum only fails for unknown codes or bad lengths, neither of which
// can happen with SHA2_256 and the default length.
func MustSum(data []byte) cid.Cid {
	id, err := Sum(data)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string form of Sum(data), or "" on failure.
func String(data []byte) string {
	id, err := Sum(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Matches reports whether id is the content identifier of data.
func Matches(id cid.Cid, data []byte) bool {
	if !id.Defined() {
		return false
	}
	got, err := Sum(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}

// FromBytes decodes a binary CID and requires it to use the ledger's hash contract.
func FromBytes(b []byte) (cid.Cid, error) {
	id, err := cid.Cast(b)
	if err != nil {
		return cid.Undef, err
	}
	if err := Check(id); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// Parse decodes a textual CID and requires it to use the ledger's hash contract.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if err := Check(id); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// Check reports an error unless id is a CIDv1 raw + sha2-256 identifier.
func Check(id cid.Cid) error {
	if !id.Defined() {
		return ErrUndefined
	}
	p := id.Prefix()
	if p.Version != 1 || p.Codec != cid.Raw || p.MhType != multihash.SHA2_256 {
		return ErrUnsupported
	}
	return nil
}

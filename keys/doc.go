// Package keys provides the key material used by the ledger.
//
// Transaction keys are Ed25519: every signed envelope carries a fixed-width
// 32-byte author key and a 64-byte signature.
//
// Validator keys inside configuration documents use the tagged string form
// "<alg>:<base64>" and may be ed25519, dilithium3 (post-quantum) or secp256k1.
//
// Stable:
//   - Pure, deterministic primitives (signing, verification, tagged key parsing, role-seed derivation).
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore). It is a local-first convenience for the CLI
//     and not part of the ledger protocol.
package keys

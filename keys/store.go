package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps Ed25519 seeds on the local filesystem.
//
// EXPERIMENTAL: this is a convenience for the CLI, not part of the ledger protocol.
//
// Layout:
//
//	<Directory>/<name>/root.key
//	<Directory>/<name>/roles/<role>.key
//
// Each file holds a hex seed followed by a newline and is created with mode 0600.
type KeyStore struct {
	Directory string
}

// KeyEntry lists an identity and the roles derived from it.
type KeyEntry struct {
	Name  string
	Roles []string
}

func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "ledger-keys"), nil
}

// OpenKeyStore returns a KeyStore rooted at directory, or at DefaultDirectory when empty.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Directory, name, "roles", role+".key")
}

func checkIdent(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, kind)
	}
	return nil
}

func CheckKeyName(name string) error { return checkIdent("key name", name) }

func CheckRole(role string) error { return checkIdent("role", role) }

// ParseSeedHex parses a 32-byte seed written as hex, with an optional 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitRoot stores seed as the root key of name and returns its tagged public key.
func (ks *KeyStore) InitRoot(name string, seed []byte, overwrite bool) (publicKey string, path string, err error) {
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	path = ks.rootPath(name)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = PublicKeyFromSeed(seed)
	return publicKey, path, err
}

// DeriveRole derives and stores the role key of name.
func (ks *KeyStore) DeriveRole(name, role string, overwrite bool) (publicKey string, path string, err error) {
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	rootSeed, err := readSeed(ks.rootPath(name))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	path = ks.rolePath(name, role)
	if err := writeSeed(path, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = PublicKeyFromSeed(roleSeed)
	return publicKey, path, err
}

// Export returns the tagged public key of name (or of one of its roles).
func (ks *KeyStore) Export(name, role string) (string, error) {
	seed, err := ks.seed(name, role)
	if err != nil {
		return "", err
	}
	return PublicKeyFromSeed(seed)
}

func (ks *KeyStore) seed(name, role string) ([]byte, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	if role == "" {
		return readSeed(ks.rootPath(name))
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	return readSeed(ks.rolePath(name, role))
}

// LoadSecretKey resolves a signing key from, in order: a hex seed, a key file,
// or a stored name (and optional role).
func (ks *KeyStore) LoadSecretKey(seedHex, name, role, keyFile string) (SecretKey, error) {
	var seed []byte
	var err error
	switch {
	case seedHex != "":
		seed, err = ParseSeedHex(seedHex)
	case keyFile != "":
		seed, err = readSeed(keyFile)
	case name != "":
		seed, err = ks.seed(name, role)
	default:
		return SecretKey{}, errors.New("no signer provided")
	}
	if err != nil {
		return SecretKey{}, err
	}
	_, sk, err := KeypairFromSeed(seed)
	return sk, err
}

// List returns stored identities and their roles, sorted by name.
func (ks *KeyStore) List() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var out []KeyEntry
	for _, name := range names {
		roleEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, name, "roles"))
		var roles []string
		if rerr == nil {
			for _, e := range roleEntries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(e.Name(), ".key"))
				}
			}
			sort.Strings(roles)
		}
		out = append(out, KeyEntry{Name: name, Roles: roles})
	}
	return out, nil
}

package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"xdao.co/ledger/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "validator-keygen":
		return cmdKeyValidatorKeygen(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-ledger key: local transaction keys and validator keygen")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-ledger key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-ledger key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-ledger key list")
	fmt.Fprintln(w, "  xdao-ledger key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  xdao-ledger key validator-keygen [--alg dilithium3|secp256k1] [--out <file>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under ~/.xdao/ledger-keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible setups)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, ok := openKeyStore(errOut)
	if !ok {
		return 1
	}

	var seed []byte
	var err error
	if seedHex != "" {
		seed, err = keys.ParseSeedHex(seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed, err = randomSeed()
		if err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	publicKey, rootPath, err := ks.InitRoot(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", publicKey)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. operator, validator-admin)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, ok := openKeyStore(errOut)
	if !ok {
		return 1
	}
	publicKey, rolePath, err := ks.DeriveRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", publicKey)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, ok := openKeyStore(errOut)
	if !ok {
		return 1
	}
	publicKey, err := ks.Export(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, publicKey)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, ok := openKeyStore(errOut)
	if !ok {
		return 1
	}
	entries, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Name)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

// cmdKeyValidatorKeygen prints a tagged validator public key for a
// configuration document. The private key is written hex encoded to --out.
func cmdKeyValidatorKeygen(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key validator-keygen", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var alg string
	var outPath string

	fs.StringVar(&alg, "alg", string(keys.AlgDilithium3), "Key algorithm: dilithium3 or secp256k1")
	fs.StringVar(&outPath, "out", "", "Write the private key (hex) to this file (0600)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	var tagged string
	var private []byte
	switch keys.Algorithm(alg) {
	case keys.AlgDilithium3:
		pk, sk, err := keys.GenerateDilithium3Keypair(rand.Reader)
		if err != nil {
			fmt.Fprintf(errOut, "keygen: %v\n", err)
			return 1
		}
		if tagged, err = keys.TaggedDilithium3(pk); err != nil {
			fmt.Fprintf(errOut, "encode public key: %v\n", err)
			return 1
		}
		if private, err = sk.MarshalBinary(); err != nil {
			fmt.Fprintf(errOut, "encode private key: %v\n", err)
			return 1
		}
	case keys.AlgSecp256k1:
		sk, err := ethcrypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(errOut, "keygen: %v\n", err)
			return 1
		}
		if tagged, err = keys.TaggedSecp256k1(&sk.PublicKey); err != nil {
			fmt.Fprintf(errOut, "encode public key: %v\n", err)
			return 1
		}
		private = ethcrypto.FromECDSA(sk)
	default:
		fmt.Fprintf(errOut, "unsupported --alg %q\n", alg)
		return 2
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(hex.EncodeToString(private)+"\n"), 0o600); err != nil {
			fmt.Fprintf(errOut, "write private key: %v\n", err)
			return 1
		}
	}
	_, _ = fmt.Fprintln(out, tagged)
	return 0
}

package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/ledger/keys"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "archive":
		return cmdArchive(args[1:], out, errOut)
	case "config":
		return cmdConfig(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "tx":
		return cmdTx(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-ledger: configuration ledger CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-ledger config cid <file>")
	fmt.Fprintln(w, "  xdao-ledger config validate <file>")
	fmt.Fprintln(w, "  xdao-ledger config get --target <addr> (--cid <CID> | --height <h>)")
	fmt.Fprintln(w, "  xdao-ledger tx config --config <file> --actual-from <h> (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>) [--out <file>]")
	fmt.Fprintln(w, "  xdao-ledger tx verify <file>")
	fmt.Fprintln(w, "  xdao-ledger tx submit --target <addr> <file>")
	fmt.Fprintln(w, "  xdao-ledger archive put --backend <name> [backend flags] <file>")
	fmt.Fprintln(w, "  xdao-ledger archive get --backend <name> [backend flags] <CID>")
	fmt.Fprintln(w, "  xdao-ledger archive export --backend <name> [backend flags] [--out <file>] <CID> [<CID> ...]")
	fmt.Fprintln(w, "  xdao-ledger archive import --backend <name> [backend flags] <bundle.tar>")
	fmt.Fprintln(w, "  xdao-ledger archive backends")
	fmt.Fprintln(w, "  xdao-ledger key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-ledger key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-ledger key list")
	fmt.Fprintln(w, "  xdao-ledger key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  xdao-ledger key validator-keygen [--alg dilithium3|secp256k1] [--out <file>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --seed-hex must be 32 bytes (64 hex chars) ed25519 seed")
	fmt.Fprintln(w, "  - keys are stored under ~/.xdao/ledger-keys/<name> (0600 seed files)")
	fmt.Fprintln(w, "  - tx config writes signed envelope bytes to stdout unless --out is set")
	fmt.Fprintln(w, "  - config documents must be canonical; config validate prints the violated rule")
}

type signerFlags struct {
	seedHex string
	name    string
	role    string
	keyFile string
}

func (s *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&s.name, "signer", "", "Use a stored key by name (from 'xdao-ledger key init')")
	fs.StringVar(&s.role, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&s.keyFile, "key-file", "", "Path to a seed file (hex) created by 'xdao-ledger key init/derive'")
}

// check returns a usage error for missing or conflicting signer flags.
func (s *signerFlags) check() error {
	if s.seedHex == "" && s.name == "" && s.keyFile == "" {
		return fmt.Errorf("missing signer: use --seed-hex, --signer, or --key-file")
	}
	if s.seedHex != "" && (s.name != "" || s.keyFile != "") {
		return fmt.Errorf("conflicting signer flags: --seed-hex cannot be combined with --signer or --key-file")
	}
	if s.name != "" && s.keyFile != "" {
		return fmt.Errorf("conflicting signer flags: --signer cannot be combined with --key-file")
	}
	return nil
}

func (s *signerFlags) load() (keys.SecretKey, error) {
	ks, err := keys.OpenKeyStore(os.Getenv("XDAO_LEDGER_KEYS"))
	if err != nil {
		return keys.SecretKey{}, err
	}
	return ks.LoadSecretKey(s.seedHex, s.name, s.role, s.keyFile)
}

func openKeyStore(errOut io.Writer) (*keys.KeyStore, bool) {
	ks, err := keys.OpenKeyStore(os.Getenv("XDAO_LEDGER_KEYS"))
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

func randomSeed() ([]byte, error) {
	seed := make([]byte, keys.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func writeOutput(path string, b []byte, out io.Writer) error {
	if path == "" {
		_, err := out.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

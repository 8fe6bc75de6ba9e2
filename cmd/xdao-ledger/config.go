package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/config"
	"xdao.co/ledger/ledgerrpc"
	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/bundle"
	"xdao.co/ledger/storage/casregistry"

	_ "xdao.co/ledger/storage/ipfs"
	_ "xdao.co/ledger/storage/localfs"
)

func cmdConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-ledger config <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: cid, validate, get")
		return 2
	}
	switch args[0] {
	case "cid", "validate":
		fs := flag.NewFlagSet("config "+args[0], flag.ContinueOnError)
		fs.SetOutput(errOut)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintf(errOut, "usage: xdao-ledger config %s <file>\n", args[0])
			return 2
		}
		path := fs.Arg(0)
		b, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
			return 1
		}
		stored, err := config.Parse(b)
		if err != nil {
			fmt.Fprintf(errOut, "invalid: %v\n", err)
			return 1
		}
		if args[0] == "validate" {
			_, _ = fmt.Fprintln(out, "OK")
			return 0
		}
		id, err := config.Hash(stored)
		if err != nil {
			fmt.Fprintf(errOut, "hash: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	case "get":
		return cmdConfigGet(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func cmdConfigGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var target string
	var cidStr string
	var height int64
	var timeout time.Duration
	fs.StringVar(&target, "target", "127.0.0.1:7400", "Node gRPC address")
	fs.StringVar(&cidStr, "cid", "", "Configuration CID")
	fs.Int64Var(&height, "height", -1, "Return the configuration active at this height")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "Per-call timeout")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (cidStr == "") == (height < 0) {
		fmt.Fprintln(errOut, "usage: xdao-ledger config get --target <addr> (--cid <CID> | --height <h>)")
		return 2
	}

	client, err := ledgerrpc.Dial(target, ledgerrpc.DialOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", target, err)
		return 1
	}
	defer client.Close()
	client.Timeout = timeout

	var b []byte
	if cidStr != "" {
		id, perr := cidutil.Parse(cidStr)
		if perr != nil {
			fmt.Fprintf(errOut, "invalid --cid: %v\n", perr)
			return 2
		}
		b, err = client.Configuration(context.Background(), id)
	} else {
		b, err = client.ActiveConfiguration(context.Background(), blockchain.Height(height))
	}
	if err != nil {
		fmt.Fprintf(errOut, "get: %v\n", err)
		return 1
	}
	_, _ = out.Write(b)
	return 0
}

func cmdArchive(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-ledger archive <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: put, get, export, import, backends")
		return 2
	}
	switch args[0] {
	case "backends":
		if err := casregistry.WriteList(out, casregistry.UsageCLI); err != nil {
			return 1
		}
		return 0
	case "put", "get", "export", "import":
	default:
		fmt.Fprintf(errOut, "unknown archive subcommand: %s\n", args[0])
		return 2
	}

	fs := flag.NewFlagSet("archive "+args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	var backend string
	var outPath string
	fs.StringVar(&backend, "backend", "localfs", "Archive backend name")
	if args[0] == "export" {
		fs.StringVar(&outPath, "out", "", "Write the bundle to this file instead of stdout")
	}
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if (args[0] == "export" && fs.NArg() == 0) || (args[0] != "export" && fs.NArg() != 1) {
		fmt.Fprintf(errOut, "usage: xdao-ledger archive %s --backend <name> [backend flags] <arg>\n", args[0])
		return 2
	}

	cas, closeFn, err := casregistry.Open(backend, casregistry.UsageCLI)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	switch args[0] {
	case "put":
		return archivePut(cas, fs.Arg(0), out, errOut)
	case "export":
		return archiveExport(cas, fs.Args(), outPath, out, errOut)
	case "import":
		return archiveImport(cas, fs.Arg(0), out, errOut)
	default:
		return archiveGet(cas, fs.Arg(0), out, errOut)
	}
}

// archivePut stores a configuration document. Only canonical documents are accepted.
func archivePut(cas storage.CAS, path string, out io.Writer, errOut io.Writer) int {
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
		return 1
	}
	if _, err := config.Parse(b); err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	id, err := cas.Put(b)
	if err != nil {
		fmt.Fprintf(errOut, "put: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func archiveGet(cas storage.CAS, s string, out io.Writer, errOut io.Writer) int {
	id, err := cidutil.Parse(s)
	if err != nil {
		fmt.Fprintf(errOut, "invalid CID: %v\n", err)
		return 2
	}
	b, err := cas.Get(id)
	if err != nil {
		fmt.Fprintf(errOut, "get: %v\n", err)
		return 1
	}
	_, _ = out.Write(b)
	return 0
}

func archiveExport(cas storage.CAS, ids []string, outPath string, out io.Writer, errOut io.Writer) int {
	entries := make([]bundle.Entry, 0, len(ids))
	for _, s := range ids {
		id, err := cidutil.Parse(s)
		if err != nil {
			fmt.Fprintf(errOut, "invalid CID %q: %v\n", s, err)
			return 2
		}
		entries = append(entries, bundle.Entry{ID: id})
	}
	var buf bytes.Buffer
	if err := bundle.Export(&buf, cas, entries); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, buf.Bytes(), out); err != nil {
		fmt.Fprintf(errOut, "write bundle: %v\n", err)
		return 1
	}
	return 0
}

// archiveImport loads a bundle, accepting only canonical configuration documents.
func archiveImport(cas storage.CAS, path string, out io.Writer, errOut io.Writer) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(path), err)
		return 1
	}
	defer f.Close()

	entries, err := bundle.Import(f, cas, bundle.ImportOptions{Check: func(doc []byte) error {
		_, err := config.Parse(doc)
		return err
	}})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	for _, e := range entries {
		if e.Label == "" {
			fmt.Fprintf(out, "%s\n", e.ID)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", e.ID, e.Label)
	}
	return 0
}

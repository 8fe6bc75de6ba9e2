package main

import (
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
	"xdao.co/ledger/message"
	"xdao.co/ledger/services/configupdater"
)

func cmdTx(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-ledger tx <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: config, verify, submit")
		return 2
	}
	switch args[0] {
	case "config":
		return cmdTxConfig(args[1:], out, errOut)
	case "verify":
		return cmdTxVerify(args[1:], out, errOut)
	case "submit":
		return cmdTxSubmit(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown tx subcommand: %s\n", args[0])
		return 2
	}
}

func cmdTxConfig(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("tx config", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var signer signerFlags
	var configPath string
	var actualFrom uint64
	var outPath string
	var unchecked bool

	signer.register(fs)
	fs.StringVar(&configPath, "config", "", "Configuration document to schedule")
	fs.Uint64Var(&actualFrom, "actual-from", 0, "Activation height; must match the document's Actual-From")
	fs.StringVar(&outPath, "out", "", "Write the signed transaction to this file instead of stdout")
	fs.BoolVar(&unchecked, "unchecked", false, "Sign the document without validating it first")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if configPath == "" {
		fmt.Fprintln(errOut, "missing --config")
		return 2
	}
	if err := signer.check(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	doc, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(configPath), err)
		return 1
	}
	if !unchecked {
		stored, err := config.Parse(doc)
		if err != nil {
			fmt.Fprintf(errOut, "invalid configuration: %v\n", err)
			return 1
		}
		if stored.ActualFrom != actualFrom {
			fmt.Fprintf(errOut, "--actual-from %d differs from document Actual-From %d\n", actualFrom, stored.ActualFrom)
			return 2
		}
	}

	sk, err := signer.load()
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return 2
	}
	raw := configupdater.CreateSigned(doc, blockchain.Height(actualFrom), sk)
	if err := writeOutput(outPath, raw, out); err != nil {
		fmt.Fprintf(errOut, "write transaction: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "Transaction: %s\n", cidutil.String(raw))
	return 0
}

func cmdTxVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("tx verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-ledger tx verify <file>")
		return 2
	}
	path := fs.Arg(0)
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
		return 1
	}
	signed, err := message.Verify(b)
	if err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Hash: %s\n", signed.Hash())
	fmt.Fprintf(out, "Author: %s\n", signed.Author.Tagged())
	fmt.Fprintf(out, "Service: %d\n", signed.Payload.ServiceID)
	fmt.Fprintf(out, "Message: %d\n", signed.Payload.MessageID)

	if signed.Payload.ServiceID != configupdater.ServiceID {
		return 0
	}
	tx, err := configupdater.New().Decode(signed.Payload)
	if err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	if txc, ok := tx.(*configupdater.TxConfig); ok {
		if txc.From() != signed.Author {
			fmt.Fprintln(errOut, "invalid: transaction sender differs from envelope author")
			return 1
		}
		fmt.Fprintf(out, "Actual-From: %d\n", txc.ActualFrom)
		fmt.Fprintf(out, "Config: %s\n", cidutil.String(txc.Config))
	}
	return 0
}

func cmdTxSubmit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("tx submit", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var target string
	var timeout time.Duration
	fs.StringVar(&target, "target", "127.0.0.1:7400", "Node gRPC address")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "Per-call timeout")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-ledger tx submit --target <addr> <file>")
		return 2
	}
	path := fs.Arg(0)
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
		return 1
	}

	client, err := ledgerrpc.Dial(target, ledgerrpc.DialOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", target, err)
		return 1
	}
	defer client.Close()
	client.Timeout = timeout

	hash, err := client.Submit(context.Background(), b)
	if err != nil {
		fmt.Fprintf(errOut, "submit: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, hash)
	return 0
}

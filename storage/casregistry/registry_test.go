package casregistry

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"xdao.co/ledger/storage"
)

func TestMemoryBackendRegistered(t *testing.T) {
	names := Names(UsageDaemon)
	found := false
	for _, n := range names {
		if n == "memory" {
			found = true
		}
	}
	if !found {
		t.Fatalf("memory backend missing from %v", names)
	}

	cas, _, err := OpenWithConfig("memory", UsageDaemon, nil)
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	id, err := cas.Put([]byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !cas.Has(id) {
		t.Fatalf("Has false after Put")
	}
}

func TestRegister_Rejects(t *testing.T) {
	open := func() (storage.CAS, func() error, error) { return storage.NewMemoryCAS(), nil, nil }
	openCfg := func(map[string]string) (storage.CAS, func() error, error) { return open() }
	flags := func(*flag.FlagSet) {}

	cases := map[string]Backend{
		"no name":      {Usage: UsageCLI, RegisterFlags: flags, Open: open, OpenConfig: openCfg},
		"no usage":     {Name: "x-no-usage", RegisterFlags: flags, Open: open, OpenConfig: openCfg},
		"no open":      {Name: "x-no-open", Usage: UsageCLI, RegisterFlags: flags, OpenConfig: openCfg},
		"no openconf":  {Name: "x-no-openconf", Usage: UsageCLI, RegisterFlags: flags, Open: open},
		"duplicate":    {Name: "memory", Usage: UsageCLI, RegisterFlags: flags, Open: open, OpenConfig: openCfg},
		"no reg flags": {Name: "x-no-flags", Usage: UsageCLI, Open: open, OpenConfig: openCfg},
	}
	for name, b := range cases {
		if err := Register(b); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestOpen_UnknownAndUsage(t *testing.T) {
	if _, _, err := OpenWithConfig("nope", UsageCLI, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	MustRegister(Backend{
		Name:          "cli-only-test",
		Usage:         UsageCLI,
		RegisterFlags: func(*flag.FlagSet) {},
		Open:          func() (storage.CAS, func() error, error) { return storage.NewMemoryCAS(), nil, nil },
		OpenConfig: func(map[string]string) (storage.CAS, func() error, error) {
			return storage.NewMemoryCAS(), nil, nil
		},
	})
	if _, _, err := Open("cli-only-test", UsageDaemon); err == nil {
		t.Fatalf("expected usage error")
	}
	if _, _, err := Open("cli-only-test", UsageCLI); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestWriteList(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteList(&buf, UsageCLI); err != nil {
		t.Fatalf("WriteList: %v", err)
	}
	if !strings.Contains(buf.String(), "memory\tin-process archive, lost on exit\n") {
		t.Fatalf("unexpected list:\n%s", buf.String())
	}
}

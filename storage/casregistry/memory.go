package casregistry

import (
	"flag"

	"xdao.co/ledger/storage"
)

// The memory backend keeps the archive in process memory. It is useful for
// tests and for nodes that do not need an archive surviving restarts.
func init() {
	open := func() (storage.CAS, func() error, error) {
		return storage.NewMemoryCAS(), nil, nil
	}
	MustRegister(Backend{
		Name:          "memory",
		Description:   "in-process archive, lost on exit",
		Usage:         UsageCLI | UsageDaemon,
		RegisterFlags: func(*flag.FlagSet) {},
		Open:          open,
		OpenConfig:    func(map[string]string) (storage.CAS, func() error, error) { return open() },
	})
}

package ipfs

import (
	"flag"
	"os"

	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/casregistry"
)

var (
	flagBin  string
	flagRepo string
	flagPin  bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "configuration archive in a local IPFS repo (Kubo CLI)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "ipfs executable (for --backend=ipfs)")
			fs.StringVar(&flagRepo, "ipfs-path", "", "IPFS repo directory; default from IPFS_PATH (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "ipfs-pin", true, "pin archived documents (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagBin, flagRepo, flagPin), nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg["ipfs-bin"], cfg["ipfs-path"], cfg["ipfs-pin"] != "false"), nil, nil
		},
	})
}

func open(bin, repo string, pin bool) storage.CAS {
	opts := Options{Bin: bin, Pin: pin}
	if repo != "" {
		opts.Env = append(os.Environ(), "IPFS_PATH="+repo)
	}
	return New(opts)
}

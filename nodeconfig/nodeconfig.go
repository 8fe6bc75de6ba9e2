// Package nodeconfig loads the JSON configuration of xdao-noded.
//
// Example:
//
//	{
//	  "listen": "127.0.0.1:7400",
//	  "block_interval": "1s",
//	  "max_block_txs": 1000,
//	  "mempool_size": 10000,
//	  "empty_blocks": true,
//	  "log_level": "info",
//	  "genesis": "genesis.cfg",
//	  "archive": {
//	    "write_policy": "all",
//	    "backends": [
//	      {"name": "localfs", "config": {"localfs-dir": "/var/lib/xdao/archive"}},
//	      {"name": "memory", "id": "hot"}
//	    ]
//	  }
//	}
package nodeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"xdao.co/ledger/logging"
	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/casregistry"
)

type Config struct {
	Listen        string `json:"listen"`
	BlockInterval string `json:"block_interval,omitempty"`
	MaxBlockTxs   int    `json:"max_block_txs,omitempty"`
	MempoolSize   int    `json:"mempool_size,omitempty"`
	EmptyBlocks   bool   `json:"empty_blocks,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`
	// Genesis is the path of the first configuration document (actual_from 0).
	Genesis string `json:"genesis,omitempty"`
	// Archive is optional; without it scheduled configurations are not mirrored.
	Archive *Archive `json:"archive,omitempty"`
}

// Archive selects the CAS backends that mirror configuration documents.
//
// WritePolicy "first" (default) writes to the first backend and reads in
// order; "all" writes to every backend and requires matching CIDs.
type Archive struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend name.
	Name string `json:"name"`
	// ID distinguishes two backends of the same kind; defaults to Name.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("nodeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("nodeconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("nodeconfig: listen address is required")
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	if c.MaxBlockTxs < 0 || c.MempoolSize < 0 {
		return errors.New("nodeconfig: max_block_txs and mempool_size must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("nodeconfig: %w", err)
	}
	if c.Archive != nil {
		return c.Archive.Validate()
	}
	return nil
}

// Interval returns the parsed block interval; zero when unset.
func (c Config) Interval() (time.Duration, error) {
	if c.BlockInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.BlockInterval)
	if err != nil {
		return 0, fmt.Errorf("nodeconfig: invalid block_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("nodeconfig: block_interval must be positive")
	}
	return d, nil
}

func (a Archive) Validate() error {
	if len(a.Backends) == 0 {
		return errors.New("nodeconfig: archive needs at least one backend")
	}
	seen := make(map[string]bool, len(a.Backends))
	for _, b := range a.Backends {
		if b.Name == "" {
			return errors.New("nodeconfig: archive backend name is required")
		}
		if seen[b.id()] {
			return fmt.Errorf("nodeconfig: duplicate archive backend id %q", b.id())
		}
		seen[b.id()] = true
	}
	switch a.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("nodeconfig: invalid write_policy %q", a.WritePolicy)
	}
}

// Open opens every backend through casregistry and combines them per WritePolicy.
// The returned function closes all opened backends.
func (a Archive) Open(usage casregistry.Usage) (storage.CAS, func() error, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, err
	}
	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	named := make([]storage.NamedCAS, 0, len(a.Backends))
	for _, b := range a.Backends {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("nodeconfig: archive backend %q: %w", b.id(), err)
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}
	if a.WritePolicy == "all" {
		return storage.ReplicatingCAS{Backends: named}, closeAll, nil
	}
	multi := storage.MultiCAS{}
	for _, n := range named {
		multi.Backends = append(multi.Backends, n.CAS)
	}
	return multi, closeAll, nil
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/config/configtest"
	"xdao.co/ledger/keys"
	"xdao.co/ledger/logging"
	"xdao.co/ledger/nodeconfig"
	"xdao.co/ledger/services/configupdater"
	"xdao.co/ledger/storage/localfs"
)

func TestBuild_GenesisAndArchive(t *testing.T) {
	dir := t.TempDir()
	genesis := configtest.Bytes(t, 0, cid.Undef)
	genesisPath := filepath.Join(dir, "genesis.cfg")
	require.NoError(t, os.WriteFile(genesisPath, genesis, 0o600))

	archiveDir := filepath.Join(dir, "archive")
	cfg := nodeconfig.Config{
		Listen:  "127.0.0.1:0",
		Genesis: genesisPath,
		Archive: &nodeconfig.Archive{Backends: []nodeconfig.BackendConfig{
			{Name: "localfs", Config: map[string]string{"localfs-dir": archiveDir}},
		}},
	}
	require.NoError(t, cfg.Validate())

	n, closeFn, err := build(cfg, logging.Nop())
	require.NoError(t, err)
	defer closeFn()

	id, b, err := n.ActiveConfiguration(0)
	require.NoError(t, err)
	assert.Equal(t, genesis, b)
	assert.True(t, id.Equals(cidutil.MustSum(genesis)))

	_, sk, err := keys.KeypairFromSeed(bytes.Repeat([]byte{3}, keys.SeedSize))
	require.NoError(t, err)
	next := configtest.Bytes(t, 5, id)
	_, err = n.Submit(context.Background(), configupdater.CreateSigned(next, 5, sk))
	require.NoError(t, err)
	_, err = n.SealBlock()
	require.NoError(t, err)

	got, err := n.ConfigurationBytes(cidutil.MustSum(next))
	require.NoError(t, err)
	assert.Equal(t, next, got)

	archive, err := localfs.New(archiveDir)
	require.NoError(t, err)
	assert.True(t, archive.Has(cidutil.MustSum(next)), "scheduled configuration should be mirrored")
}

func TestBuild_RejectsBadGenesis(t *testing.T) {
	p := filepath.Join(t.TempDir(), "genesis.cfg")
	require.NoError(t, os.WriteFile(p, configtest.Bytes(t, 4, cid.Undef), 0o600))

	_, _, err := build(nodeconfig.Config{Listen: ":0", Genesis: p}, logging.Nop())
	assert.Error(t, err)
}

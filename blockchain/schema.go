package blockchain

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/config"
	"xdao.co/ledger/logging"
	"xdao.co/ledger/message"
	"xdao.co/ledger/storage"
)

// Key layout of the core schema.
const (
	prefixConfigs    = "core.configs/"
	prefixActualFrom = "core.configs_actual_from/"
	prefixTxResults  = "core.tx_results/"
	keyHeight        = "core.height"
)

// ConfigReference names a scheduled configuration.
type ConfigReference struct {
	ActualFrom Height
	Hash       cid.Cid
}

// Schema reads and writes the core tables over a snapshot or a fork.
type Schema struct {
	view storage.Snapshot
	log  logging.Logger
}

// NewSchema returns a schema over view. Writes need view to be a *storage.Fork.
func NewSchema(view storage.Snapshot) *Schema {
	return &Schema{view: view, log: logging.Nop()}
}

func (s *Schema) WithLogger(l logging.Logger) *Schema {
	if l != nil {
		s.log = l
	}
	return s
}

func (s *Schema) fork() (*storage.Fork, error) {
	f, ok := s.view.(*storage.Fork)
	if !ok {
		return nil, errors.WithStack(storage.ErrReadOnly)
	}
	return f, nil
}

func heightKey(prefix string, h Height) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(h))
	return k
}

func (s *Schema) configs() storage.Table {
	if f, ok := s.view.(*storage.Fork); ok {
		return storage.NewTable(f, prefixConfigs)
	}
	return storage.NewTableView(s.view, prefixConfigs)
}

// Configurations exposes the configuration documents as a CAS.
func (s *Schema) Configurations() storage.CAS { return s.configs() }

// CommitConfiguration schedules doc to become active at doc.ActualFrom.
//
// The activation height must lie after current and after every configuration
// already scheduled, and doc.PreviousConfig must name the last scheduled
// configuration (or be undefined when there is none). Violations are returned
// as *ExecutionError.
func (s *Schema) CommitConfiguration(doc *config.Stored, current Height) (cid.Cid, error) {
	f, err := s.fork()
	if err != nil {
		return cid.Undef, err
	}
	if Height(doc.ActualFrom) <= current {
		return cid.Undef, NewExecutionError(CodeActivationNotInFuture,
			"actual_from %d is not after current height %d", doc.ActualFrom, current)
	}
	last, ok, err := s.LastScheduled()
	if err != nil {
		return cid.Undef, err
	}
	if ok {
		if Height(doc.ActualFrom) <= last.ActualFrom {
			return cid.Undef, NewExecutionError(CodeActivationNotMonotonic,
				"actual_from %d is not after scheduled configuration at %d", doc.ActualFrom, last.ActualFrom)
		}
		if !doc.PreviousConfig.Equals(last.Hash) {
			return cid.Undef, NewExecutionError(CodePreviousConfigMismatch,
				"previous_config does not name the last scheduled configuration %s", last.Hash)
		}
	} else if doc.PreviousConfig.Defined() {
		return cid.Undef, NewExecutionError(CodePreviousConfigMismatch,
			"previous_config set but no configuration is scheduled")
	}
	return s.put(f, doc)
}

// InitGenesis stores the first configuration, active from height 0.
func (s *Schema) InitGenesis(doc *config.Stored) (cid.Cid, error) {
	f, err := s.fork()
	if err != nil {
		return cid.Undef, err
	}
	if _, ok, err := s.LastScheduled(); err != nil {
		return cid.Undef, err
	} else if ok {
		return cid.Undef, newError(KindInternal, "GEN-001", "genesis configuration already stored")
	}
	if doc.ActualFrom != 0 || doc.PreviousConfig.Defined() {
		return cid.Undef, newError(KindInternal, "GEN-002", "genesis configuration must have actual_from 0 and no previous configuration")
	}
	return s.put(f, doc)
}

func (s *Schema) put(f *storage.Fork, doc *config.Stored) (cid.Cid, error) {
	b, err := config.Encode(doc)
	if err != nil {
		return cid.Undef, NewExecutionError(CodeMalformedConfig, "%v", err)
	}
	hash, err := s.configs().Put(b)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "store configuration")
	}
	f.Put(heightKey(prefixActualFrom, Height(doc.ActualFrom)), hash.Bytes())
	s.log.Info("scheduled configuration", "actual_from", doc.ActualFrom, "hash", hash.String())
	return hash, nil
}

// ConfigurationHistory lists every scheduled configuration by activation height.
func (s *Schema) ConfigurationHistory() ([]ConfigReference, error) {
	var out []ConfigReference
	var decodeErr error
	err := s.view.Iterate([]byte(prefixActualFrom), func(k, v []byte) bool {
		id, err := cidutil.FromBytes(v)
		if err != nil {
			decodeErr = errors.Wrapf(err, "configuration reference %x", k)
			return false
		}
		h := Height(binary.BigEndian.Uint64(k[len(prefixActualFrom):]))
		out = append(out, ConfigReference{ActualFrom: h, Hash: id})
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterate configurations")
	}
	return out, decodeErr
}

// LastScheduled returns the configuration with the highest activation height.
func (s *Schema) LastScheduled() (ConfigReference, bool, error) {
	hist, err := s.ConfigurationHistory()
	if err != nil || len(hist) == 0 {
		return ConfigReference{}, false, err
	}
	return hist[len(hist)-1], true, nil
}

// ActiveConfigurationAt returns the configuration in force at height h: the
// one with the greatest activation height not above h.
// It returns storage.ErrNotFound when none is.
func (s *Schema) ActiveConfigurationAt(h Height) (ConfigReference, *config.Stored, error) {
	hist, err := s.ConfigurationHistory()
	if err != nil {
		return ConfigReference{}, nil, err
	}
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].ActualFrom <= h {
			doc, err := s.ConfigurationByHash(hist[i].Hash)
			return hist[i], doc, err
		}
	}
	return ConfigReference{}, nil, storage.ErrNotFound
}

// ConfigurationBytes returns the stored canonical bytes of a configuration.
func (s *Schema) ConfigurationBytes(hash cid.Cid) ([]byte, error) {
	b, err := s.configs().Get(hash)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "configuration %s", hash)
	}
	return b, nil
}

// ConfigurationByHash returns a stored configuration.
func (s *Schema) ConfigurationByHash(hash cid.Cid) (*config.Stored, error) {
	b, err := s.ConfigurationBytes(hash)
	if err != nil {
		return nil, err
	}
	doc, err := config.Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "stored configuration %s", hash)
	}
	return doc, nil
}

// Height returns the last committed height; 0 before the first block.
func (s *Schema) Height() (Height, error) {
	b, err := s.view.Get([]byte(keyHeight))
	if storage.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read height")
	}
	if len(b) != 8 {
		return 0, errors.Errorf("corrupt height record of %d bytes", len(b))
	}
	return Height(binary.BigEndian.Uint64(b)), nil
}

func (s *Schema) setHeight(h Height) error {
	f, err := s.fork()
	if err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(h))
	f.Put([]byte(keyHeight), b[:])
	return nil
}

// TransactionResult is the recorded outcome of an executed transaction.
type TransactionResult struct {
	Height Height
	// Err is nil for transactions that succeeded.
	Err *ExecutionError
}

const (
	fieldResultHeight = 1
	fieldResultCode   = 2
	fieldResultDesc   = 3
)

func (r TransactionResult) marshal() []byte {
	var e message.Encoder
	e.Uint(fieldResultHeight, uint64(r.Height))
	code, desc := uint64(0), ""
	if r.Err != nil {
		code, desc = uint64(r.Err.Code), r.Err.Description
	}
	e.Uint(fieldResultCode, code)
	e.Bytes(fieldResultDesc, []byte(desc))
	return e.Output()
}

func unmarshalResult(b []byte) (TransactionResult, error) {
	d := message.NewDecoder(b)
	h, err := d.Uint(fieldResultHeight, ^uint64(0))
	if err != nil {
		return TransactionResult{}, err
	}
	code, err := d.Uint(fieldResultCode, 0xFF)
	if err != nil {
		return TransactionResult{}, err
	}
	desc, err := d.Bytes(fieldResultDesc)
	if err != nil {
		return TransactionResult{}, err
	}
	if err := d.Finish(); err != nil {
		return TransactionResult{}, err
	}
	r := TransactionResult{Height: Height(h)}
	if code != 0 {
		r.Err = &ExecutionError{Code: uint8(code), Description: string(desc)}
	}
	return r, nil
}

func (s *Schema) putResult(hash cid.Cid, r TransactionResult) error {
	f, err := s.fork()
	if err != nil {
		return err
	}
	f.Put(append([]byte(prefixTxResults), hash.Bytes()...), r.marshal())
	return nil
}

// TransactionResult returns the outcome recorded for a transaction hash.
func (s *Schema) TransactionResult(hash cid.Cid) (TransactionResult, error) {
	b, err := s.view.Get(append([]byte(prefixTxResults), hash.Bytes()...))
	if err != nil {
		return TransactionResult{}, err
	}
	r, err := unmarshalResult(b)
	if err != nil {
		return TransactionResult{}, errors.Wrapf(err, "transaction result %s", hash)
	}
	return r, nil
}

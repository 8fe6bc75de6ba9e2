// Package configupdater is the configuration-update service: one transaction,
// TxConfig, that schedules a configuration document for a future height.
package configupdater

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/config"
	"xdao.co/ledger/keys"
	"xdao.co/ledger/message"
	"xdao.co/ledger/storage"
)

const (
	ServiceID   uint16 = 1
	ServiceName        = "config_updater"

	// MessageTxConfig is the message id of TxConfig.
	MessageTxConfig uint16 = 0
)

const (
	fieldFrom       = 1
	fieldConfig     = 2
	fieldActualFrom = 3
)

// TxConfig asks for Config to become the active configuration from ActualFrom.
// From must be the key that signed the envelope.
type TxConfig struct {
	Sender     keys.PublicKey
	Config     []byte
	ActualFrom blockchain.Height
}

var (
	_ blockchain.Transaction = (*TxConfig)(nil)
	_ blockchain.Authored    = (*TxConfig)(nil)
)

func (tx *TxConfig) From() keys.PublicKey { return tx.Sender }

// Marshal encodes the transaction payload.
func (tx *TxConfig) Marshal() []byte {
	var e message.Encoder
	e.Bytes(fieldFrom, tx.Sender[:])
	e.Bytes(fieldConfig, tx.Config)
	e.Uint(fieldActualFrom, uint64(tx.ActualFrom))
	return e.Output()
}

// Unmarshal decodes a TxConfig payload in canonical form.
func Unmarshal(payload []byte) (*TxConfig, error) {
	d := message.NewDecoder(payload)
	from, err := d.FixedBytes(fieldFrom, keys.PublicKeySize)
	if err != nil {
		return nil, err
	}
	cfg, err := d.Bytes(fieldConfig)
	if err != nil {
		return nil, err
	}
	h, err := d.Uint(fieldActualFrom, ^uint64(0))
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	pk, err := keys.PublicKeyFromBytes(from)
	if err != nil {
		return nil, err
	}
	return &TxConfig{Sender: pk, Config: cfg, ActualFrom: blockchain.Height(h)}, nil
}

// Raw wraps the transaction in a RawTransaction addressed to this service.
func (tx *TxConfig) Raw() message.RawTransaction {
	return message.RawTransaction{ServiceID: ServiceID, MessageID: MessageTxConfig, Payload: tx.Marshal()}
}

// CreateSigned builds signed envelope bytes for a TxConfig sent by sk's public key.
func CreateSigned(cfg []byte, actualFrom blockchain.Height, sk keys.SecretKey) []byte {
	tx := &TxConfig{Sender: sk.PublicKey(), Config: cfg, ActualFrom: actualFrom}
	return message.Sign(tx.Raw(), sk)
}

// Execute parses the document and schedules it.
func (tx *TxConfig) Execute(ctx *blockchain.TransactionContext) error {
	doc, err := config.Parse(tx.Config)
	if err != nil {
		return blockchain.NewExecutionError(blockchain.CodeMalformedConfig,
			"invalid configuration (%s): %v", config.RuleID(err), err)
	}
	if blockchain.Height(doc.ActualFrom) != tx.ActualFrom {
		return blockchain.NewExecutionError(blockchain.CodeHeightMismatch,
			"document actual_from %d differs from transaction actual_from %d", doc.ActualFrom, tx.ActualFrom)
	}
	_, err = ctx.Schema().CommitConfiguration(doc, ctx.Height)
	return err
}

// Service implements blockchain.Service.
type Service struct{}

var _ blockchain.Service = Service{}

func New() Service { return Service{} }

func (Service) ID() uint16   { return ServiceID }
func (Service) Name() string { return ServiceName }

// StateDigest is empty: configurations are part of the core schema.
func (Service) StateDigest(storage.Snapshot) []cid.Cid { return nil }

func (Service) Decode(raw message.RawTransaction) (blockchain.Transaction, error) {
	if raw.ServiceID != ServiceID {
		return nil, blockchain.DecodeError("CFGSVC-DEC-001",
			fmt.Sprintf("service id %d routed to %s", raw.ServiceID, ServiceName), nil)
	}
	switch raw.MessageID {
	case MessageTxConfig:
		tx, err := Unmarshal(raw.Payload)
		if err != nil {
			return nil, blockchain.DecodeError("CFGSVC-DEC-002", "malformed TxConfig payload", err)
		}
		return tx, nil
	default:
		return nil, blockchain.DecodeError("CFGSVC-DEC-003",
			fmt.Sprintf("unknown message id %d for %s", raw.MessageID, ServiceName), nil)
	}
}

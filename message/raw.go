// Package message implements the ledger's transaction wire format: the
// service-routed RawTransaction and the signed envelope that carries it.
package message

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldServiceID protowire.Number = 1
	fieldMessageID protowire.Number = 2
	fieldPayload   protowire.Number = 3
)

// RawTransaction identifies which service, and which of its transaction
// variants, decodes Payload.
type RawTransaction struct {
	ServiceID uint16
	MessageID uint16
	Payload   []byte
}

// Marshal returns the canonical encoding of r.
func (r RawTransaction) Marshal() []byte {
	var e Encoder
	e.Uint(fieldServiceID, uint64(r.ServiceID))
	e.Uint(fieldMessageID, uint64(r.MessageID))
	e.Bytes(fieldPayload, r.Payload)
	return e.Output()
}

// UnmarshalRaw decodes the canonical encoding of a RawTransaction.
func UnmarshalRaw(b []byte) (RawTransaction, error) {
	d := NewDecoder(b)
	serviceID, err := d.Uint(fieldServiceID, math.MaxUint16)
	if err != nil {
		return RawTransaction{}, err
	}
	messageID, err := d.Uint(fieldMessageID, math.MaxUint16)
	if err != nil {
		return RawTransaction{}, err
	}
	payload, err := d.Bytes(fieldPayload)
	if err != nil {
		return RawTransaction{}, err
	}
	if err := d.Finish(); err != nil {
		return RawTransaction{}, err
	}
	return RawTransaction{
		ServiceID: uint16(serviceID),
		MessageID: uint16(messageID),
		Payload:   payload,
	}, nil
}

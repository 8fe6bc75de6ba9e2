package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoder writes the canonical wire form: protobuf wire format where every
// field is present exactly once, in ascending field order, with minimal
// varints.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Uint(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Bytes(num protowire.Number, v []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

// Output returns the encoded bytes.
func (e *Encoder) Output() []byte { return e.buf }

// Decoder reads the canonical wire form written by Encoder.
//
// Fields must be requested in the order they were written. Any deviation from
// the canonical encoding (unexpected field, wrong wire type, non-minimal
// varint or length prefix, trailing bytes) is a KindDecode error, so every
// byte string decodes to at most one value.
type Decoder struct {
	buf []byte
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) tag(num protowire.Number, typ protowire.Type) error {
	gotNum, gotTyp, n := protowire.ConsumeTag(d.buf)
	if n < 0 {
		return wrapError(KindDecode, "MSG-WIRE-001", fmt.Sprintf("field %d: bad tag", num), protowire.ParseError(n))
	}
	if gotNum != num {
		return newError(KindDecode, "MSG-WIRE-002", fmt.Sprintf("expected field %d, got field %d", num, gotNum))
	}
	if gotTyp != typ {
		return newError(KindDecode, "MSG-WIRE-003", fmt.Sprintf("field %d: unexpected wire type %d", num, gotTyp))
	}
	if n != protowire.SizeTag(num) {
		return newError(KindDecode, "MSG-WIRE-004", fmt.Sprintf("field %d: non-minimal tag", num))
	}
	d.buf = d.buf[n:]
	return nil
}

// Uint reads a varint field and rejects values above max.
func (d *Decoder) Uint(num protowire.Number, max uint64) (uint64, error) {
	if err := d.tag(num, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		return 0, wrapError(KindDecode, "MSG-WIRE-005", fmt.Sprintf("field %d: bad varint", num), protowire.ParseError(n))
	}
	if n != protowire.SizeVarint(v) {
		return 0, newError(KindDecode, "MSG-WIRE-006", fmt.Sprintf("field %d: non-minimal varint", num))
	}
	if v > max {
		return 0, newError(KindDecode, "MSG-WIRE-007", fmt.Sprintf("field %d: value %d out of range", num, v))
	}
	d.buf = d.buf[n:]
	return v, nil
}

// Bytes reads a length-delimited field. The returned slice is a copy.
func (d *Decoder) Bytes(num protowire.Number) ([]byte, error) {
	if err := d.tag(num, protowire.BytesType); err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		return nil, wrapError(KindDecode, "MSG-WIRE-008", fmt.Sprintf("field %d: bad length-delimited value", num), protowire.ParseError(n))
	}
	if n != protowire.SizeBytes(len(v)) {
		return nil, newError(KindDecode, "MSG-WIRE-009", fmt.Sprintf("field %d: non-minimal length prefix", num))
	}
	d.buf = d.buf[n:]
	return append([]byte{}, v...), nil
}

// FixedBytes reads a length-delimited field that must be exactly size bytes long.
func (d *Decoder) FixedBytes(num protowire.Number, size int) ([]byte, error) {
	v, err := d.Bytes(num)
	if err != nil {
		return nil, err
	}
	if len(v) != size {
		return nil, newError(KindDecode, "MSG-WIRE-010", fmt.Sprintf("field %d: expected %d bytes, got %d", num, size, len(v)))
	}
	return v, nil
}

// Finish fails if any bytes remain.
func (d *Decoder) Finish() error {
	if len(d.buf) != 0 {
		return newError(KindDecode, "MSG-WIRE-011", fmt.Sprintf("%d trailing bytes", len(d.buf)))
	}
	return nil
}

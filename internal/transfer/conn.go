// Package transfer implements the Transfer Engine (spec.md §4.E): the
// sender and receiver file state machines built on wire, netio, latency,
// and buffer.
package transfer

import (
	"context"

	"github.com/jumpbeam/jumpbeam/internal/netio"
	"github.com/jumpbeam/jumpbeam/internal/wire"
)

// Conn adds frame-level WriteFrame/ReadFrame on top of a netio.Conn's
// exact-byte discipline, satisfying latency.FrameConn.
type Conn struct {
	*netio.Conn
}

// NewConn wraps a netio.Conn.
func NewConn(c *netio.Conn) *Conn {
	return &Conn{Conn: c}
}

// WriteFrame encodes and writes a single frame.
func (c *Conn) WriteFrame(ctx context.Context, kind wire.Kind, payload []byte) error {
	buf, err := wire.Encode(kind, payload)
	if err != nil {
		return err
	}
	return c.WriteAll(ctx, buf)
}

// ReadFrame reads and decodes a single frame. The header read respects the
// control-frame deadline; a subsequent large payload read (FILE_DATA) is
// governed by the stall deadline via netio.Conn's size-aware deadlineFor.
// An oversized or unknown-kind header is rejected before any payload
// buffer is allocated, satisfying spec.md §8's oversized-frame property.
func (c *Conn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	header, err := c.ReadExact(ctx, wire.HeaderSize)
	if err != nil {
		return wire.Frame{}, err
	}
	kind, payloadLen, err := wire.ParseHeader(header)
	if err != nil {
		return wire.Frame{}, err
	}
	if payloadLen == 0 {
		return wire.Frame{Kind: kind}, nil
	}
	payload, err := c.ReadExact(ctx, int(payloadLen))
	if err != nil {
		return wire.Frame{}, err
	}
	return wire.Frame{Kind: kind, Payload: payload}, nil
}

// Package wire implements the length-prefixed frame codec: the single
// wire format every jumpbeam session speaks once a byte stream (tunneled
// or direct) is established.
//
// Frame := Kind(1B) || Length(4B BE) || Payload(Length B)
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// Kind identifies the type of a frame's payload.
type Kind byte

const (
	KindMessage  Kind = 0x01
	KindFileInfo Kind = 0x02
	KindFileData Kind = 0x03
	KindFileEnd  Kind = 0x04
	KindPing     Kind = 0x05
	KindPong     Kind = 0x06
	KindError    Kind = 0x07
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "MESSAGE"
	case KindFileInfo:
		return "FILE_INFO"
	case KindFileData:
		return "FILE_DATA"
	case KindFileEnd:
		return "FILE_END"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(k))
	}
}

// HeaderSize is the size of the frame header in bytes: 1-byte kind + 4-byte
// big-endian payload length.
const HeaderSize = 5

// MaxPayloadSize is the maximum payload length allowed on the wire
// (spec.md §3: "payload_len ≤ 16 MiB").
const MaxPayloadSize = 16 * 1024 * 1024

// Frame is a single length-prefixed message on the wire.
type Frame struct {
	Kind    Kind
	Payload []byte
}

func isKnownKind(k Kind) bool {
	switch k {
	case KindMessage, KindFileInfo, KindFileData, KindFileEnd, KindPing, KindPong, KindError:
		return true
	default:
		return false
	}
}

// ParseHeader validates a HeaderSize-byte frame header (without touching
// the payload), returning the frame's kind and declared payload length.
// It fails with a Protocol error on payload_len > MaxPayloadSize or an
// unknown kind — in either case no payload buffer is ever allocated,
// satisfying spec.md §8's oversized-frame boundary behavior.
func ParseHeader(header []byte) (Kind, uint32, error) {
	if len(header) != HeaderSize {
		return 0, 0, xerrors.New(xerrors.Protocol, "malformed frame header")
	}
	kind := Kind(header[0])
	payloadLen := binary.BigEndian.Uint32(header[1:5])

	if payloadLen > MaxPayloadSize {
		return 0, 0, xerrors.ErrFrameTooLarge
	}
	if !isKnownKind(kind) {
		return 0, 0, xerrors.ErrUnknownKind
	}
	return kind, payloadLen, nil
}

// Encode prepends the 1-byte kind and 4-byte big-endian length to payload,
// returning the full frame bytes. Encode performs zero interpretation of
// payload — the caller is responsible for producing well-formed bytes for
// the given kind.
func Encode(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, xerrors.ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload))) //nolint:gosec // bounded by MaxPayloadSize check above
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodeNext reads exactly HeaderSize header bytes, then exactly
// payload_len body bytes from r, returning the decoded Frame.
//
// DecodeNext fails with a Protocol error on payload_len > MaxPayloadSize
// (without allocating a payload buffer), a short read, or an unknown kind.
// DecodeNext does not validate kind semantics — that is the Transfer
// Engine's responsibility.
func DecodeNext(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Frame{}, xerrors.Wrap(xerrors.Io, "read frame header", xerrors.ErrUnexpectedEOF)
		}
		return Frame{}, xerrors.Wrap(xerrors.Io, "read frame header", err)
	}

	kind, payloadLen, err := ParseHeader(header[:])
	if err != nil {
		return Frame{}, err
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Frame{}, xerrors.Wrap(xerrors.Io, "read frame payload", xerrors.ErrUnexpectedEOF)
			}
			return Frame{}, xerrors.Wrap(xerrors.Io, "read frame payload", err)
		}
	}

	return Frame{Kind: kind, Payload: payload}, nil
}

// Package wire implements the binary framing protocol spoken on the TCP
// channel. A frame carries a correlation id, an optional reply-to id, and an
// opaque MessagePack payload. Framing is transport-agnostic: encode and
// decode operate on io.Writer/io.Reader and do no I/O of their own beyond
// the stream handed to them.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Magic is the 4-byte frame marker, inherited from the OVNT protocol.
var Magic = [4]byte{0x4F, 0x56, 0x4E, 0x54}

// Version is the protocol version this package speaks.
const Version byte = 0x01

// Fixed prefix: magic(4) + version(1) + correlation id(16) + reply flag(1).
const prefixLen = 22

var (
	ErrInvalidMagic    = errors.New("wire: invalid magic marker")
	ErrVersionMismatch = errors.New("wire: unsupported protocol version")
	ErrTruncatedRead   = errors.New("wire: truncated frame")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)

// Limits constrains frame decode/encode memory use. The payload length
// declared in a frame header is checked against MaxPayloadBytes before any
// receive buffer is allocated.
type Limits struct {
	MaxPayloadBytes uint32
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 5 * 1024 * 1024}
}

// Message is one complete frame.
type Message struct {
	// CorrelationID binds a response to its originating request. A response
	// frame always carries the id of the request it answers.
	CorrelationID uuid.UUID

	// ReplyTo is set only on messages that answer an earlier message.
	ReplyTo *uuid.UUID

	// Payload is the MessagePack-serialized body.
	Payload []byte
}

// Decode reads exactly one frame from r.
//
// A clean end of stream before the first byte of a frame returns io.EOF so
// callers can distinguish an orderly disconnect from a frame cut off
// mid-read, which returns ErrTruncatedRead.
func Decode(r io.Reader, limits Limits) (Message, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrTruncatedRead
		}
		return Message{}, err
	}

	if [4]byte(prefix[0:4]) != Magic {
		return Message{}, fmt.Errorf("%w: % x", ErrInvalidMagic, prefix[0:4])
	}
	if prefix[4] != Version {
		return Message{}, fmt.Errorf("%w: 0x%02x", ErrVersionMismatch, prefix[4])
	}

	var m Message
	m.CorrelationID = uuid.UUID(prefix[5:21])

	if prefix[21] != 0 {
		var rt [16]byte
		if err := readFull(r, rt[:]); err != nil {
			return Message{}, err
		}
		id := uuid.UUID(rt)
		m.ReplyTo = &id
	}

	var lenBuf [4]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	payloadLen := binary.BigEndian.Uint32(lenBuf[:])

	// Reject oversized frames before allocating the receive buffer.
	if payloadLen > limits.MaxPayloadBytes {
		return Message{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, payloadLen, limits.MaxPayloadBytes)
	}

	m.Payload = make([]byte, payloadLen)
	if payloadLen > 0 {
		if err := readFull(r, m.Payload); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

// Encode writes m to w as one frame. The byte sequence is deterministic for
// identical input.
func Encode(w io.Writer, m Message, limits Limits) error {
	if uint64(len(m.Payload)) > uint64(limits.MaxPayloadBytes) {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(m.Payload), limits.MaxPayloadBytes)
	}

	size := prefixLen + 4 + len(m.Payload)
	if m.ReplyTo != nil {
		size += 16
	}
	buf := make([]byte, 0, size)

	buf = append(buf, Magic[:]...)
	buf = append(buf, Version)
	buf = append(buf, m.CorrelationID[:]...)
	if m.ReplyTo != nil {
		buf = append(buf, 1)
		buf = append(buf, m.ReplyTo[:]...)
	} else {
		buf = append(buf, 0)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, m.Payload...)

	_, err := w.Write(buf)
	return err
}

// readFull reads len(b) bytes, mapping any end of stream to ErrTruncatedRead
// since by this point part of a frame has already been consumed.
func readFull(r io.Reader, b []byte) error {
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncatedRead
		}
		return err
	}
	return nil
}

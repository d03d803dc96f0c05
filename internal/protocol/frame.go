package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed length of a frame header: 1 type byte plus a
// 4-byte big-endian body length.
const HeaderSize = 5

// MaxPayloadSize bounds a frame body. Frames declaring a larger body are
// rejected before the body buffer is allocated.
const MaxPayloadSize = 1 << 20 // 1 MiB

// EncodeFrame serializes a type + body into a ready-to-write frame.
func EncodeFrame(t MessageType, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	buf[0] = byte(t)
	binary.BigEndian.PutUint32(buf[1:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf
}

// DecodeHeader parses the 5-byte header into a MessageType and body
// length, rejecting an oversized declared length before any body bytes
// are read.
func DecodeHeader(header []byte) (MessageType, uint32, error) {
	if len(header) != HeaderSize {
		return 0, 0, &FramingError{Reason: fmt.Sprintf("header must be %d bytes, got %d", HeaderSize, len(header))}
	}
	t := MessageType(header[0])
	n := binary.BigEndian.Uint32(header[1:HeaderSize])
	if n > MaxPayloadSize {
		return t, n, ErrPayloadTooLarge
	}
	return t, n, nil
}

// ReadFrame reads one full frame (header + body) from r. The returned
// body slice is freshly allocated for this call and is safe to retain
// or hand to a JSON decoder across the next call to ReadFrame — it does
// not alias any buffer ReadFrame reuses internally.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, &TransportError{Op: "read_header", Err: err}
	}
	t, n, err := DecodeHeader(header[:])
	if err != nil {
		return t, nil, err
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return t, nil, &TransportError{Op: "read_body", Err: err}
		}
	}
	return t, body, nil
}

// WriteFrame writes a full frame (header + body) to w, following the
// write-all semantics required of Transport implementations.
func WriteFrame(w io.Writer, t MessageType, body []byte) error {
	frame := EncodeFrame(t, body)
	if _, err := w.Write(frame); err != nil {
		return &TransportError{Op: "write_frame", Err: err}
	}
	return nil
}

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type frameKind uint8

const (
	// Sent by the server right after accepting. Carries the client id.
	frameAccept frameKind = 1
	frameData   frameKind = 2
)

const (
	frameHeaderSize = 5
	maxFrameSize    = 16 << 20
)

var ErrFrameTooLarge = errors.New("frame too large")

// A frame is [kind:1][len:4 little endian][payload].
func writeFrame(w io.Writer, kind frameKind, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("writing frame: size=%d %w", len(payload), ErrFrameTooLarge)
	}

	buffer := make([]byte, frameHeaderSize+len(payload))
	buffer[0] = byte(kind)
	binary.LittleEndian.PutUint32(buffer[1:frameHeaderSize], uint32(len(payload)))
	copy(buffer[frameHeaderSize:], payload)

	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}

	return nil
}

func readFrame(r io.Reader) (frameKind, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	size := binary.LittleEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("reading frame: size=%d %w", size, ErrFrameTooLarge)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return frameKind(header[0]), payload, nil
}

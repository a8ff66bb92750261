package wire

import (
	"io"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single envelope's payload length. A length prefix
// larger than this is treated as a protocol violation rather than an
// allocation request, so a corrupt or hostile peer cannot make a handler
// allocate an unbounded buffer.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned by ReadEnvelope when the advertised length
// exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// Marshaler is implemented by every envelope type in this package.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is implemented by every envelope type in this package.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// WriteEnvelope encodes msg and writes it as one varint-length-prefixed
// frame. Callers sharing a single net.Conn across goroutines must serialize
// their own calls to WriteEnvelope (see the per-connection writer mutex in
// the rics package's handler.go and client.go) since a frame is only atomic if the
// length prefix and payload are written back to back.
func WriteEnvelope(w io.Writer, msg Marshaler) error {
	payload, err := msg.Marshal()
	if err != nil {
		return errors.Wrap(err, "wire: marshal envelope")
	}

	frame := protowire.AppendVarint(nil, uint64(len(payload)))
	frame = append(frame, payload...)

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "wire: write frame")
	}
	return nil
}

// ReadEnvelope blocks until it has read one full frame from r and decodes it
// into msg. It returns io.EOF, unmodified, when the peer closes the
// connection cleanly between frames; any other error (truncated frame,
// oversized length, malformed protobuf) is a protocol error and the caller
// should close the connection rather than attempt to resynchronize.
func ReadEnvelope(r io.Reader, msg Unmarshaler) error {
	length, err := readVarint(r)
	if err != nil {
		return err
	}
	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrap(err, "wire: read frame body")
	}

	if err := msg.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "wire: decode envelope")
	}
	return nil
}

// readVarint reads a protobuf-encoded unsigned varint one byte at a time.
// io.EOF is returned verbatim only when it occurs on the very first byte, so
// callers can distinguish "peer closed between frames" from "peer closed
// mid-frame"; any other read error (e.g. an elapsed deadline) is wrapped
// and stays visible to errors.Is.
func readVarint(r io.Reader) (uint64, error) {
	var (
		buf   [1]byte
		value uint64
		shift uint
	)
	for i := 0; ; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF && i == 0 {
				return 0, io.EOF
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, errors.Wrap(err, "wire: read length prefix")
		}
		if shift >= 64 {
			return 0, errors.New("wire: length prefix varint too long")
		}
		value |= uint64(buf[0]&0x7f) << shift
		if buf[0] < 0x80 {
			return value, nil
		}
		shift += 7
	}
}

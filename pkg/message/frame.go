package message

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single native-messaging frame.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("message: frame too large")

// ReadFrame reads one length-prefixed frame. The prefix is a 32-bit
// unsigned length in native byte order.
func ReadFrame(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.NativeEndian, &n); err != nil {
		return nil, err
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("message: truncated frame: %w", err)
	}
	return buf, nil
}

// WriteFrame writes data with its length prefix.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	if err := binary.Write(w, binary.NativeEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// Serve answers framed requests from r on w until r reaches EOF or ctx
// is done.
func Serve(ctx context.Context, s Sender, r io.Reader, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var resp Response
		if req, err := DecodeRequest(data); err != nil {
			resp = Failure(err)
		} else {
			resp = s.Send(ctx, req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("message: failed to encode response: %w", err)
		}
		if err := WriteFrame(w, out); err != nil {
			return err
		}
	}
}

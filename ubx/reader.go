package ubx

import (
	"errors"
	"io"
)

// Reader extracts UBX messages from a byte stream, carrying partial
// frames across short reads and discarding interleaved noise (NMEA
// sentences, line endings, corrupted frames).
//
// Reader is not safe for concurrent use.
type Reader struct {
	r       io.Reader
	buf     []byte
	scratch [512]byte
	payload []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, payload: make([]byte, MaxPayload)}
}

// ReadMessage returns the next complete message from the stream,
// blocking on the underlying reader as needed. Stream errors surface
// once all decodable messages buffered before them are drained.
func (r *Reader) ReadMessage() (Message, error) {
	for {
		if len(r.buf) > 0 {
			class, id, n, consumed, err := Decode(r.buf, r.payload)
			switch {
			case err == nil:
				r.buf = append(r.buf[:0], r.buf[consumed:]...)
				if n > len(r.payload) {
					return Message{}, ErrPayloadTooLarge
				}
				payload := make([]byte, n)
				copy(payload, r.payload[:n])
				return Message{Class: class, ID: id, Payload: payload}, nil

			case errors.Is(err, ErrNoFrame):
				// All noise.
				r.buf = r.buf[:0]

			case errors.Is(err, ErrTruncated):
				r.buf = append(r.buf[:0], r.buf[consumed:]...)
			}
		}

		n, err := r.r.Read(r.scratch[:])
		if n > 0 {
			r.buf = append(r.buf, r.scratch[:n]...)
			continue
		}
		if err != nil {
			return Message{}, err
		}
	}
}

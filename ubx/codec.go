package ubx

import (
	"errors"
	"math"
)

var (
	// ErrNoFrame is returned by Decode when the input holds no frame,
	// not even the start of one. The input was noise; supply fresh
	// bytes.
	ErrNoFrame = errors.New("ubx: no frame found")

	// ErrTruncated is returned by Decode when the input ends in the
	// middle of a frame. Call again with the unconsumed bytes plus
	// whatever arrives next.
	ErrTruncated = errors.New("ubx: truncated frame, more bytes needed")

	// ErrPayloadTooLarge is returned by Encode when the payload does
	// not fit the 16-bit length field, and by Reader when a frame
	// exceeds MaxPayload.
	ErrPayloadTooLarge = errors.New("ubx: payload too large")
)

// Checksum computes the UBX running checksum over b. For a whole frame
// the input spans class through the last payload byte.
func Checksum(b []byte) (ckA, ckB byte) {
	for _, c := range b {
		ckA += c
		ckB += ckA
	}
	return ckA, ckB
}

// Append appends the framed encoding of (class, id, payload) to dst and
// returns the extended slice. A frame adds Overhead bytes on top of the
// payload.
func Append(dst []byte, class, id byte, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}

	base := len(dst)
	dst = append(dst, Sync1, Sync2, class, id, byte(len(payload)), byte(len(payload)>>8))
	dst = append(dst, payload...)

	// Checksum covers class..payload, i.e. everything after the sync pair.
	ckA, ckB := Checksum(dst[base+2:])
	return append(dst, ckA, ckB), nil
}

// Encode frames (class, id, payload) into a freshly allocated buffer of
// len(payload)+Overhead bytes.
func Encode(class, id byte, payload []byte) ([]byte, error) {
	return Append(make([]byte, 0, len(payload)+Overhead), class, id, payload)
}

// Decoder states. One state per framing byte position, plus a counted
// payload state.
const (
	stateSync1 = iota
	stateSync2
	stateClass
	stateID
	stateLenLo
	stateLenHi
	statePayload
	stateCkA
	stateCkB
)

// Decode scans b for the first complete, checksum-valid frame and
// copies its payload into payload (which may be shorter than the actual
// payload: excess bytes are still consumed and checksummed but not
// copied, and the returned n is the true payload length either way).
//
// consumed reports how far the scan got so the caller can resume:
// on success it points past the decoded frame, on ErrNoFrame it is
// len(b), and on ErrTruncated it points at the start of the partial
// frame so the caller can retry with the tail plus more bytes.
//
// The scanner restarts whenever a byte fails a sync or checksum check,
// so garbage and corrupted frames are skipped silently and decoding
// resynchronizes on the next sync pair.
func Decode(b []byte, payload []byte) (class, id byte, n, consumed int, err error) {
	var (
		state      = stateSync1
		ckA, ckB   byte
		length     int
		got        int
		frameStart int
	)

	// Treat the byte that failed a match as a potential new sync byte
	// rather than dropping it, so B5 B5 62 still locks on.
	resync := func(i int, c byte) {
		if c == Sync1 {
			frameStart = i
			state = stateSync2
		} else {
			state = stateSync1
		}
	}

	for i := 0; i < len(b); i++ {
		c := b[i]
		switch state {
		case stateSync1:
			if c == Sync1 {
				frameStart = i
				state = stateSync2
			}
		case stateSync2:
			switch c {
			case Sync2:
				ckA, ckB = 0, 0
				state = stateClass
			case Sync1:
				frameStart = i
			default:
				state = stateSync1
			}
		case stateClass:
			class = c
			ckA += c
			ckB += ckA
			state = stateID
		case stateID:
			id = c
			ckA += c
			ckB += ckA
			state = stateLenLo
		case stateLenLo:
			length = int(c)
			ckA += c
			ckB += ckA
			state = stateLenHi
		case stateLenHi:
			length |= int(c) << 8
			ckA += c
			ckB += ckA
			got = 0
			if length == 0 {
				state = stateCkA
			} else {
				state = statePayload
			}
		case statePayload:
			ckA += c
			ckB += ckA
			if got < len(payload) {
				payload[got] = c
			}
			got++
			if got == length {
				state = stateCkA
			}
		case stateCkA:
			if c == ckA {
				state = stateCkB
			} else {
				resync(i, c)
			}
		case stateCkB:
			if c == ckB {
				return class, id, length, i + 1, nil
			}
			resync(i, c)
		}
	}

	if state == stateSync1 {
		return 0, 0, 0, len(b), ErrNoFrame
	}
	return 0, 0, 0, frameStart, ErrTruncated
}

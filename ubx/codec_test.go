package ubx_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/ubloxd/ubx"
)

func TestEncode(t *testing.T) {
	t.Run("AckAck", func(t *testing.T) {
		frame, err := ubx.Encode(ubx.ClassAck, ubx.AckAck, []byte{0x06, 0x00})
		require.NoError(t, err)
		assert.Equal(t, []byte{0xB5, 0x62, 0x05, 0x01, 0x02, 0x00, 0x06, 0x00, 0x0E, 0x37}, frame)
	})

	t.Run("CfgPrtDDC", func(t *testing.T) {
		// CFG-PRT for the DDC (I2C) port at address 0x42, UBX protocol
		// in and out.
		payload := make([]byte, 20)
		payload[4] = 0x42 << 1
		payload[12] = 1
		payload[14] = 1

		frame, err := ubx.Encode(ubx.ClassCfg, ubx.CfgPrt, payload)
		require.NoError(t, err)
		require.Len(t, frame, 28)
		assert.Equal(t, []byte{0xB5, 0x62, 0x06, 0x00, 0x14, 0x00}, frame[:6])

		ckA, ckB := ubx.Checksum(frame[2:26])
		assert.Equal(t, ckA, frame[26])
		assert.Equal(t, ckB, frame[27])
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		frame, err := ubx.Encode(ubx.ClassNav, ubx.NavPvt, nil)
		require.NoError(t, err)
		assert.Len(t, frame, ubx.Overhead)
	})

	t.Run("PayloadTooLarge", func(t *testing.T) {
		_, err := ubx.Encode(ubx.ClassMon, ubx.MonVer, make([]byte, 0x10000))
		assert.ErrorIs(t, err, ubx.ErrPayloadTooLarge)
	})
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		class   byte
		id      byte
		payload []byte
	}{
		{name: "empty payload", class: ubx.ClassAck, id: ubx.AckNak},
		{name: "short payload", class: ubx.ClassAck, id: ubx.AckAck, payload: []byte{0x06, 0x00}},
		{name: "sync bytes inside payload", class: ubx.ClassCfg, id: ubx.CfgMsg, payload: []byte{0xB5, 0x62, 0xB5, 0x62}},
		{name: "nav pvt sized payload", class: ubx.ClassNav, id: ubx.NavPvt, payload: bytes.Repeat([]byte{0xA7}, 92)},
		{name: "checksum looking payload", class: ubx.ClassMon, id: ubx.MonVer, payload: []byte{0x00, 0xFF, 0x55, 0xAA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ubx.Encode(tt.class, tt.id, tt.payload)
			require.NoError(t, err)

			payload := make([]byte, 256)
			class, id, n, consumed, err := ubx.Decode(frame, payload)
			require.NoError(t, err)
			assert.Equal(t, tt.class, class)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, len(tt.payload), n)
			assert.Equal(t, len(frame), consumed)
			assert.True(t, bytes.Equal(tt.payload, payload[:n]))
		})
	}
}

func TestDecodeResynchronization(t *testing.T) {
	t.Run("corrupted frame then valid frame", func(t *testing.T) {
		bad, err := ubx.Encode(ubx.ClassAck, ubx.AckAck, []byte{0x06, 0x00})
		require.NoError(t, err)
		bad[len(bad)-1] ^= 0xFF // flip a checksum byte

		good, err := ubx.Encode(ubx.ClassAck, ubx.AckNak, []byte{0x06, 0x01})
		require.NoError(t, err)

		input := append(append([]byte{}, bad...), good...)
		payload := make([]byte, 16)
		class, id, n, consumed, err := ubx.Decode(input, payload)
		require.NoError(t, err)
		assert.EqualValues(t, ubx.ClassAck, class)
		assert.EqualValues(t, ubx.AckNak, id)
		assert.Equal(t, []byte{0x06, 0x01}, payload[:n])
		assert.Equal(t, len(input), consumed)

		// The corrupted frame must not surface as a second decode.
		_, _, _, _, err = ubx.Decode(input[consumed:], payload)
		assert.ErrorIs(t, err, ubx.ErrNoFrame)
	})

	t.Run("garbage prefix", func(t *testing.T) {
		frame, err := ubx.Encode(ubx.ClassMon, ubx.MonVer, nil)
		require.NoError(t, err)
		input := append([]byte("$GNGGA,123519,4807.038,N*47\r\n"), frame...)

		class, id, _, consumed, err := ubx.Decode(input, nil)
		require.NoError(t, err)
		assert.EqualValues(t, ubx.ClassMon, class)
		assert.EqualValues(t, ubx.MonVer, id)
		assert.Equal(t, len(input), consumed)
	})

	t.Run("repeated sync1 before frame", func(t *testing.T) {
		frame, err := ubx.Encode(ubx.ClassAck, ubx.AckAck, []byte{0x06, 0x00})
		require.NoError(t, err)
		input := append([]byte{ubx.Sync1, ubx.Sync1}, frame[1:]...)

		class, id, _, _, err := ubx.Decode(input, make([]byte, 4))
		require.NoError(t, err)
		assert.EqualValues(t, ubx.ClassAck, class)
		assert.EqualValues(t, ubx.AckAck, id)
	})
}

func TestDecodePartialFrameResumption(t *testing.T) {
	frame, err := ubx.Encode(ubx.ClassCfg, ubx.CfgRate, []byte{0xE8, 0x03, 0x01, 0x00, 0x01, 0x00})
	require.NoError(t, err)

	payload := make([]byte, 16)
	wantClass, wantID, wantN, _, err := ubx.Decode(frame, payload)
	require.NoError(t, err)
	want := append([]byte{}, payload[:wantN]...)

	// Split the frame at every possible boundary and decode in two calls,
	// resuming from the reported consumed offset.
	for split := 1; split < len(frame); split++ {
		chunk1 := frame[:split]

		_, _, _, consumed, err := ubx.Decode(chunk1, payload)
		require.ErrorIs(t, err, ubx.ErrTruncated, "split at %d", split)
		require.Equal(t, 0, consumed, "split at %d", split)

		input := append(append([]byte{}, chunk1[consumed:]...), frame[split:]...)
		class, id, n, consumed, err := ubx.Decode(input, payload)
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, wantClass, class)
		assert.Equal(t, wantID, id)
		assert.Equal(t, want, append([]byte{}, payload[:n]...))
		assert.Equal(t, len(frame), consumed)
	}
}

func TestDecodeTruncatedWithGarbagePrefix(t *testing.T) {
	frame, err := ubx.Encode(ubx.ClassNav, ubx.NavStatus, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	input := append([]byte{0x00, 0x11, 0x22}, frame[:5]...)
	_, _, _, consumed, err := ubx.Decode(input, nil)
	require.ErrorIs(t, err, ubx.ErrTruncated)
	// consumed points at the partial frame's sync byte so the caller can
	// keep exactly the bytes that still matter.
	assert.Equal(t, 3, consumed)
	assert.EqualValues(t, ubx.Sync1, input[consumed])
}

func TestDecodeNoFrame(t *testing.T) {
	input := []byte("no sync bytes in here at all")
	_, _, _, consumed, err := ubx.Decode(input, nil)
	assert.ErrorIs(t, err, ubx.ErrNoFrame)
	assert.Equal(t, len(input), consumed)
}

func TestDecodePayloadLargerThanBuffer(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A}, 64)
	frame, err := ubx.Encode(ubx.ClassRxm, 0x15, payload)
	require.NoError(t, err)

	small := make([]byte, 8)
	class, id, n, consumed, err := ubx.Decode(frame, small)
	require.NoError(t, err)
	assert.EqualValues(t, ubx.ClassRxm, class)
	assert.EqualValues(t, 0x15, id)
	assert.Equal(t, 64, n) // true length, not the copied length
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, payload[:8], small[:])
}

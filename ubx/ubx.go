// Package ubx encodes and decodes the u-blox UBX binary protocol frame
// format used by GNSS receivers.
//
// On the wire a frame is: two sync bytes (0xB5 0x62), message class,
// message ID, a little-endian 16-bit payload length, the payload, and a
// two-byte running checksum computed over class through the last
// payload byte. The codec is stateless; package gnss layers stream
// handling on top of it.
package ubx

const (
	Sync1 = 0xB5
	Sync2 = 0x62

	// Overhead is the fixed number of framing bytes around a payload:
	// 2 sync + class + ID + 2 length + 2 checksum.
	Overhead = 8

	// MaxPayload is the largest payload Reader will buffer. The wire
	// format itself allows up to 65535 bytes, but no message this
	// library deals with comes anywhere near that.
	MaxPayload = 8192
)

// Message classes.
const (
	ClassNav = 0x01
	ClassRxm = 0x02
	ClassInf = 0x04
	ClassAck = 0x05
	ClassCfg = 0x06
	ClassMon = 0x0A
)

// Message IDs for the classes above.
const (
	AckNak = 0x00
	AckAck = 0x01

	CfgPrt  = 0x00
	CfgMsg  = 0x01
	CfgRate = 0x08

	NavStatus = 0x03
	NavPvt    = 0x07

	MonVer = 0x04
)

// Message is the logical (class, ID, payload) triple carried by one
// UBX frame.
type Message struct {
	Class   byte
	ID      byte
	Payload []byte
}

// Is reports whether the message carries the given class and ID.
func (m Message) Is(class, id byte) bool {
	return m.Class == class && m.ID == id
}

// Encode frames the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return Encode(m.Class, m.ID, m.Payload)
}

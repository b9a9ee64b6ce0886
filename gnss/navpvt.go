package gnss

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"i4.energy/across/ubloxd/ubx"
)

// navPvtLen is the fixed NAV-PVT payload length from protocol
// version 15 on.
const navPvtLen = 92

// Fix types reported in NAV-PVT.
const (
	FixNone     = 0
	FixDeadReck = 1
	Fix2D       = 2
	Fix3D       = 3
	FixGNSSDR   = 4
	FixTimeOnly = 5
)

// NavPVT is the decoded UBX-NAV-PVT navigation solution.
type NavPVT struct {
	ITOW  uint32 // GPS time of week, ms
	Year  uint16
	Month uint8
	Day   uint8
	Hour  uint8
	Min   uint8
	Sec   uint8
	Valid uint8 // validity flags for the date/time fields

	FixType uint8
	Flags   uint8
	NumSV   uint8 // satellites used in the solution

	Lon    int32 // 1e-7 degrees
	Lat    int32 // 1e-7 degrees
	Height int32 // above ellipsoid, mm
	HMSL   int32 // above mean sea level, mm

	HAcc uint32 // horizontal accuracy estimate, mm
	VAcc uint32 // vertical accuracy estimate, mm

	GSpeed  int32 // ground speed, mm/s
	HeadMot int32 // heading of motion, 1e-5 degrees
	PDOP    uint16
}

// ParseNavPVT decodes a NAV-PVT payload.
func ParseNavPVT(p []byte) (*NavPVT, error) {
	if len(p) < navPvtLen {
		return nil, errors.New("gnss: NAV-PVT payload too short")
	}
	le := binary.LittleEndian
	return &NavPVT{
		ITOW:    le.Uint32(p[0:]),
		Year:    le.Uint16(p[4:]),
		Month:   p[6],
		Day:     p[7],
		Hour:    p[8],
		Min:     p[9],
		Sec:     p[10],
		Valid:   p[11],
		FixType: p[20],
		Flags:   p[21],
		NumSV:   p[23],
		Lon:     int32(le.Uint32(p[24:])),
		Lat:     int32(le.Uint32(p[28:])),
		Height:  int32(le.Uint32(p[32:])),
		HMSL:    int32(le.Uint32(p[36:])),
		HAcc:    le.Uint32(p[40:]),
		VAcc:    le.Uint32(p[44:]),
		GSpeed:  int32(le.Uint32(p[60:])),
		HeadMot: int32(le.Uint32(p[64:])),
		PDOP:    le.Uint16(p[76:]),
	}, nil
}

// HasFix reports whether the solution carries a usable position.
func (n *NavPVT) HasFix() bool {
	return n.FixType == Fix2D || n.FixType == Fix3D || n.FixType == FixGNSSDR
}

// Latitude returns the latitude in degrees.
func (n *NavPVT) Latitude() float64 { return float64(n.Lat) * 1e-7 }

// Longitude returns the longitude in degrees.
func (n *NavPVT) Longitude() float64 { return float64(n.Lon) * 1e-7 }

// Time returns the UTC time of the solution.
func (n *NavPVT) Time() time.Time {
	return time.Date(int(n.Year), time.Month(n.Month), int(n.Day),
		int(n.Hour), int(n.Min), int(n.Sec), 0, time.UTC)
}

// Position polls the receiver for its current navigation solution.
func (d *Device) Position(ctx context.Context) (*NavPVT, error) {
	msg, err := d.Poll(ctx, ubx.ClassNav, ubx.NavPvt)
	if err != nil {
		return nil, err
	}
	return ParseNavPVT(msg.Payload)
}

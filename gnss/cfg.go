package gnss

import (
	"context"

	"i4.energy/across/ubloxd/ubx"
)

// CfgPrtDDC builds the CFG-PRT message that configures the receiver's
// DDC (I2C) port: slave address addr, UBX protocol enabled in both
// directions.
func CfgPrtDDC(addr byte) ubx.Message {
	payload := make([]byte, 20)
	// Port ID 0 is DDC. The mode field carries the 7-bit address
	// shifted into bits 7..1.
	payload[4] = addr << 1
	payload[12] = 1 // inProtoMask: UBX
	payload[14] = 1 // outProtoMask: UBX
	return ubx.Message{Class: ubx.ClassCfg, ID: ubx.CfgPrt, Payload: payload}
}

// CfgMsgRate builds the CFG-MSG message that sets the output rate of
// (class, id) on the current port: one message every rate navigation
// solutions, zero to disable.
func CfgMsgRate(class, id, rate byte) ubx.Message {
	return ubx.Message{Class: ubx.ClassCfg, ID: ubx.CfgMsg, Payload: []byte{class, id, rate}}
}

// ConfigureDDC applies CfgPrtDDC and waits for the acknowledgement.
func (d *Device) ConfigureDDC(ctx context.Context, addr byte) error {
	return d.SendWithAck(ctx, CfgPrtDDC(addr))
}

// EnablePeriodic asks the receiver to emit (class, id) every rate
// solutions and waits for the acknowledgement. Pair it with Handle to
// consume the messages.
func (d *Device) EnablePeriodic(ctx context.Context, class, id, rate byte) error {
	return d.SendWithAck(ctx, CfgMsgRate(class, id, rate))
}

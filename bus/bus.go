// Package bus defines the Bus capability the core SCSI protocol engine
// consumes: a thin interface over the physical (or simulated) SCSI control
// signals and the REQ/ACK handshake that moves bytes across them.
//
// Everything below this interface — GPIO pad control, pin timing, real
// bus-contention handling — is out of scope per spec.md §1; the core only
// ever talks to a Bus value.
package bus

import "github.com/PiSCSI/piscsi-sub003/scsi"

// Bus is the capability interface spec.md §4.1/§6.1 describes. Positive
// logic is assumed throughout (asserted == true) after the implementation's
// own inversion, matching spec.md §6.1.
type Bus interface {
	Init(mode int) error
	Reset()
	Cleanup()

	GetBSY() bool
	SetBSY(bool)
	GetSEL() bool
	SetSEL(bool)
	GetATN() bool
	SetATN(bool)
	GetACK() bool
	SetACK(bool)
	GetRST() bool
	SetRST(bool)
	GetMSG() bool
	SetMSG(bool)
	GetCD() bool
	SetCD(bool)
	GetIO() bool
	SetIO(bool)
	GetREQ() bool
	SetREQ(bool)
	GetDAT() byte
	SetDAT(byte)

	// Acquire latches all input lines into an internal snapshot; subsequent
	// getters reflect that snapshot until the next Acquire.
	Acquire() Signals

	// CommandHandShake drives the REQ/ACK exchange for a command descriptor
	// block and returns the number of bytes read (0 on error).
	CommandHandShake(buf []byte) int

	// SendHandShake drives the REQ/ACK exchange to push bytes to the
	// initiator, honoring the delay hint some device types (DaynaPort)
	// supply, and returns the number of bytes actually sent.
	SendHandShake(data []byte, delayHint int) int

	// ReceiveHandShake drives the REQ/ACK exchange to pull bytes from the
	// initiator and returns the number of bytes actually received.
	ReceiveHandShake(buf []byte) int
}

// Signals is re-exported from scsi for callers that only need the bus
// package import.
type Signals = scsi.Signals

// GetPhase derives the current phase from a Bus's latched signals, per
// spec.md §4.1.
func GetPhase(b Bus) scsi.Phase {
	s := b.Acquire()
	return scsi.GetPhase(s)
}

// GetCommandByteCount is re-exported for callers that only import bus.
func GetCommandByteCount(opcode byte) int {
	return scsi.GetCommandByteCount(opcode)
}

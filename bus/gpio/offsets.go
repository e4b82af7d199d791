// Package gpio is the hardware Bus implementation: it drives the physical
// SCSI control lines through the Pi's GPIO registers, mmap'd from the GPIO
// chardev, and derives REQ/ACK handshakes from edge-triggered register
// reads. Everything here is the "GPIO / pad-control layer" spec.md §1 calls
// out of scope for the core — it exists only to satisfy the bus.Bus
// capability interface the core consumes.
//
// Grounded on coreos-go-tcmu/struct_access.go's unsafe-pointer-offset-into-
// mmap idiom (rewritten here against GPIO chip registers instead of the
// TCMU mailbox) and other_examples' periph.io host/bcm283x register layout
// idiom.
package gpio

// Register byte offsets into the mmap'd GPIO register block, BCM283x
// layout: GPFSEL0..5 (function select), GPSET0/1, GPCLR0/1, GPLEV0/1.
const (
	offFSEL0 = 0x00
	offSET0  = 0x1c
	offCLR0  = 0x28
	offLEV0  = 0x34
)

// pinMap assigns each SCSI signal a BCM GPIO pin number. These match the
// PiSCSI standard (full-spec) pinout; a board with a different wiring
// would need a different map, not different code.
type pinMap struct {
	BSY, SEL, ATN, ACK, RST byte
	MSG, CD, IO, REQ        byte
	DAT                     [8]byte
	DP                      byte // data parity
	ENB                     byte // output enable
	IND, TAD, DTD           byte // control-signal direction pins (PiSCSI-specific)
}

// defaultPins is the full-spec PiSCSI pinout.
var defaultPins = pinMap{
	BSY: 7, SEL: 4, ATN: 10, ACK: 9, RST: 6,
	MSG: 8, CD: 14, IO: 12, REQ: 11,
	DAT: [8]byte{1, 3, 5, 2, 0, 22, 23, 21},
	DP:  18, ENB: 15, IND: 20, TAD: 24, DTD: 25,
}

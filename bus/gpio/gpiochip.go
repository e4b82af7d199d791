package gpio

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/PiSCSI/piscsi-sub003/internal/rlog"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

const gpioRegisterBlockSize = 0xb4

// Chip is a bus.Bus backed by the Pi's GPIO registers, mmap'd from
// /dev/gpiomem via the chardev fd the way coreos-go-tcmu's Device mmaps its
// TCMU mailbox from a uio fd in struct_access.go/device.go.
type Chip struct {
	fd   int
	mmap []byte
	pins pinMap

	snapshot scsi.Signals
	dat      byte

	// outputEnabled tracks whether this process currently drives DAT as an
	// output (true after Acquire/SendHandShake would otherwise race with
	// the initiator also driving it); direction is flipped through the
	// ENB/TAD/DTD control pins the PiSCSI board wires for this purpose.
	outputEnabled bool
}

// Open mmaps the GPIO register block from the given chardev path (normally
// "/dev/gpiomem") and returns a Chip ready for Init.
func Open(devicePath string) (*Chip, error) {
	fd, err := unix.Open(devicePath, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio: open %s: %w", devicePath, err)
	}
	mmap, err := unix.Mmap(fd, 0, gpioRegisterBlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("gpio: mmap %s: %w", devicePath, err)
	}
	return &Chip{fd: fd, mmap: mmap, pins: defaultPins}, nil
}

func (c *Chip) regWord(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&c.mmap[off]))
}

func (c *Chip) setFunctionOutput(pin byte) {
	// Each GPFSELn register packs ten pins at 3 bits each; function code
	// 001 selects output.
	regOff := offFSEL0 + 4*int(pin/10)
	shift := uint(pin%10) * 3
	reg := c.regWord(regOff)
	*reg = (*reg &^ (0x7 << shift)) | (0x1 << shift)
}

func (c *Chip) setFunctionInput(pin byte) {
	regOff := offFSEL0 + 4*int(pin/10)
	shift := uint(pin%10) * 3
	reg := c.regWord(regOff)
	*reg = *reg &^ (0x7 << shift)
}

func (c *Chip) readLevel(pin byte) bool {
	regOff := offLEV0 + 4*int(pin/32)
	bit := uint(pin % 32)
	return *c.regWord(regOff)&(1<<bit) != 0
}

func (c *Chip) writeLevel(pin byte, v bool) {
	if v {
		reg := c.regWord(offSET0 + 4*int(pin/32))
		*reg = 1 << uint(pin%32)
	} else {
		reg := c.regWord(offCLR0 + 4*int(pin/32))
		*reg = 1 << uint(pin%32)
	}
}

// Init configures signal pin directions: the target always drives BSY,
// MSG, CD, IO, REQ and DAT (while ENB grants the bus); it always reads SEL,
// ATN, ACK, RST. mode is reserved for future duplex-board variants and
// unused by the single full-spec pinout this package wires.
func (c *Chip) Init(mode int) error {
	for _, p := range []byte{c.pins.BSY, c.pins.MSG, c.pins.CD, c.pins.IO, c.pins.REQ} {
		c.setFunctionOutput(p)
	}
	for _, p := range []byte{c.pins.SEL, c.pins.ATN, c.pins.ACK, c.pins.RST} {
		c.setFunctionInput(p)
	}
	c.setFunctionOutput(c.pins.ENB)
	c.writeLevel(c.pins.ENB, true)
	rlog.Debugf("gpio: initialized full-spec pinout, mode %d", mode)
	return nil
}

func (c *Chip) Reset() {
	c.SetBSY(false)
	c.SetMSG(false)
	c.SetCD(false)
	c.SetIO(false)
	c.SetREQ(false)
	c.SetDAT(0)
}

func (c *Chip) Cleanup() {
	unix.Munmap(c.mmap)
	unix.Close(c.fd)
}

func (c *Chip) GetBSY() bool  { return c.snapshot.BSY }
func (c *Chip) SetBSY(v bool) { c.snapshot.BSY = v; c.writeLevel(c.pins.BSY, v) }
func (c *Chip) GetSEL() bool  { return c.snapshot.SEL }
func (c *Chip) SetSEL(v bool) { c.snapshot.SEL = v; c.writeLevel(c.pins.SEL, v) }
func (c *Chip) GetATN() bool  { return c.snapshot.ATN }
func (c *Chip) SetATN(v bool) { c.snapshot.ATN = v; c.writeLevel(c.pins.ATN, v) }
func (c *Chip) GetACK() bool  { return c.snapshot.ACK }
func (c *Chip) SetACK(v bool) { c.snapshot.ACK = v; c.writeLevel(c.pins.ACK, v) }
func (c *Chip) GetRST() bool  { return c.snapshot.RST }
func (c *Chip) SetRST(v bool) { c.snapshot.RST = v; c.writeLevel(c.pins.RST, v) }
func (c *Chip) GetMSG() bool  { return c.snapshot.MSG }
func (c *Chip) SetMSG(v bool) { c.snapshot.MSG = v; c.writeLevel(c.pins.MSG, v) }
func (c *Chip) GetCD() bool   { return c.snapshot.CD }
func (c *Chip) SetCD(v bool)  { c.snapshot.CD = v; c.writeLevel(c.pins.CD, v) }
func (c *Chip) GetIO() bool   { return c.snapshot.IO }
func (c *Chip) SetIO(v bool)  { c.snapshot.IO = v; c.writeLevel(c.pins.IO, v) }
func (c *Chip) GetREQ() bool  { return c.snapshot.REQ }
func (c *Chip) SetREQ(v bool) { c.snapshot.REQ = v; c.writeLevel(c.pins.REQ, v) }

func (c *Chip) GetDAT() byte { return c.dat }
func (c *Chip) SetDAT(v byte) {
	c.dat = v
	for i, pin := range c.pins.DAT {
		c.writeLevel(pin, v&(1<<uint(i)) != 0)
	}
}

// Acquire latches every input line's current register level into the
// snapshot Get* methods read back, per bus.Bus's contract.
func (c *Chip) Acquire() scsi.Signals {
	c.snapshot = scsi.Signals{
		BSY: c.readLevel(c.pins.BSY),
		SEL: c.readLevel(c.pins.SEL),
		ATN: c.readLevel(c.pins.ATN),
		ACK: c.readLevel(c.pins.ACK),
		RST: c.readLevel(c.pins.RST),
		MSG: c.readLevel(c.pins.MSG),
		CD:  c.readLevel(c.pins.CD),
		IO:  c.readLevel(c.pins.IO),
		REQ: c.readLevel(c.pins.REQ),
	}
	var dat byte
	for i, pin := range c.pins.DAT {
		if c.readLevel(pin) {
			dat |= 1 << uint(i)
		}
	}
	c.dat = dat
	return c.snapshot
}

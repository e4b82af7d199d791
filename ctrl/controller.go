package ctrl

import (
	"time"

	"github.com/PiSCSI/piscsi-sub003/bus"
	"github.com/PiSCSI/piscsi-sub003/internal/rlog"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

const MaxLuns = 32

// ShutdownMode is the host-services shutdown request spec.md §4.9
// describes: scheduled at dispatch time, only honored at the next BUS-FREE
// transition.
type ShutdownMode int

const (
	ShutdownNone ShutdownMode = iota
	ShutdownStopRascsi
	ShutdownStopPi
	ShutdownRestartPi
)

// Controller owns one target id's worth of state: the ctrl Block, the LUN
// map, current phase, and the synchronous-transfer substate, per spec.md
// §3/§4.3.
type Controller struct {
	TargetID byte

	bus   bus.Bus
	phase scsi.Phase

	block Block

	luns [MaxLuns]Device

	initiatorID   int
	identifiedLun int

	shutdown   ShutdownMode
	onShutdown func(ShutdownMode)

	sync syncState

	pendingMsgIn []byte
	execstart    time.Time
}

// OnShutdown registers a callback invoked when a requested shutdown mode is
// honored at BUS-FREE entry (spec.md §4.9).
func (c *Controller) OnShutdown(f func(ShutdownMode)) {
	c.onShutdown = f
}

// NewController constructs a Controller for the given target id (0..7)
// driving the given Bus.
func NewController(targetID byte, b bus.Bus) *Controller {
	c := &Controller{TargetID: targetID, bus: b}
	c.resetState()
	return c
}

func (c *Controller) resetState() {
	c.block = *newBlock()
	c.initiatorID = -1
	c.identifiedLun = -1
	c.shutdown = ShutdownNone
	c.phase = scsi.BusFree
	c.sync = syncState{}
	c.pendingMsgIn = nil
}

// Phase returns the controller's current bus phase.
func (c *Controller) Phase() scsi.Phase { return c.phase }

func (c *Controller) setPhase(p scsi.Phase) {
	c.phase = p
	rlog.Debugf("target %d: phase -> %s", c.TargetID, p)
}

func (c *Controller) IsBusFree() bool    { return c.phase == scsi.BusFree }
func (c *Controller) IsSelection() bool  { return c.phase == scsi.Selection }
func (c *Controller) IsCommand() bool    { return c.phase == scsi.Command }
func (c *Controller) IsDataOut() bool    { return c.phase == scsi.DataOut }
func (c *Controller) IsDataIn() bool     { return c.phase == scsi.DataIn }
func (c *Controller) IsStatusPhase() bool { return c.phase == scsi.Status }
func (c *Controller) IsMsgOut() bool     { return c.phase == scsi.MsgOut }
func (c *Controller) IsMsgIn() bool      { return c.phase == scsi.MsgIn }

// Block exposes the ctrl transfer block read-only state for tests and
// callers that need to inspect invariants; the controller itself is the
// only mutator.
func (c *Controller) Block() Block { return c.block }

// AddDevice attaches d at its own LUN. Per spec.md §3 invariants: the LUN
// must be in [0, MaxLuns) and unoccupied.
func (c *Controller) AddDevice(d Device) bool {
	lun := d.LUN()
	if lun < 0 || lun >= MaxLuns {
		return false
	}
	if c.luns[lun] != nil {
		return false
	}
	c.luns[lun] = d
	return true
}

// RemoveDevice detaches whatever device occupies lun, if any.
func (c *Controller) RemoveDevice(lun int) {
	if lun < 0 || lun >= MaxLuns {
		return
	}
	c.luns[lun] = nil
}

// DeviceAt returns the device at lun, or nil if unoccupied or out of range.
func (c *Controller) DeviceAt(lun int) Device {
	if lun < 0 || lun >= MaxLuns {
		return nil
	}
	return c.luns[lun]
}

// HasLun0 reports whether LUN 0 is occupied, the precondition the manager
// enforces before attaching any other LUN (spec.md §3).
func (c *Controller) HasLun0() bool {
	return c.luns[0] != nil
}

// AttachedLuns returns the occupied LUN numbers in ascending order.
func (c *Controller) AttachedLuns() []int {
	var out []int
	for i, d := range c.luns {
		if d != nil {
			out = append(out, i)
		}
	}
	return out
}

// Reset visits every attached LUN and resets it, then clears the ctrl
// block and phase/initiator/shutdown state. Per spec.md §3 invariant: every
// Reset call leaves the controller in BUS-FREE with status GOOD, length 0,
// blocks 0, offset 0, byte-transfer off.
func (c *Controller) Reset() {
	for _, d := range c.luns {
		if d != nil {
			d.Reset()
		}
	}
	c.resetState()
}

// RequestShutdown schedules a shutdown mode to be honored at the next
// BUS-FREE transition (spec.md §4.9 host-services START STOP UNIT).
func (c *Controller) RequestShutdown(m ShutdownMode) {
	c.shutdown = m
}

// ExtractInitiatorId returns the single other bit set besides the target's
// own bit in the DAT byte seen during selection, or -1 if no single other
// bit is present (unknown initiator, e.g. older host adapters).
func ExtractInitiatorId(dat byte, targetID byte) int {
	others := dat &^ (1 << targetID)
	if others == 0 {
		return -1
	}
	// Require exactly one bit set.
	if others&(others-1) != 0 {
		return -1
	}
	for i := 0; i < 8; i++ {
		if others&(1<<uint(i)) != 0 {
			return i
		}
	}
	return -1
}

package ctrl

import (
	"errors"
	"fmt"
	"time"

	"github.com/PiSCSI/piscsi-sub003/internal/metrics"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// MinExecTime is the minimum time spec.md §4.4 requires to elapse between
// COMMAND entry and STATUS/DATA-IN/DATA-OUT entry, guaranteeing inter-phase
// timing old initiators depend on.
const MinExecTime = 50 * time.Microsecond

// msgOutAction is the internal result of processing one MSG-OUT byte.
type msgOutAction int

const (
	msgOutToCommand msgOutAction = iota
	msgOutToBusFree
	msgOutToMsgInReject
	msgOutToMsgInSDTR
)

// Process drives one full bus transaction: if the bus reports a pending
// SELECTION addressed to this controller's target id, it runs selection
// through phases to BUS-FREE and returns. If no selection is pending, it
// returns nil immediately — the caller polls again on the next bus
// event, per spec.md §5's single-threaded cooperative model.
func (c *Controller) Process() error {
	if scsi.GetPhase(c.bus.Acquire()) != scsi.Selection {
		return nil
	}
	if !c.runSelection() {
		return nil
	}

	if c.phase == scsi.MsgOut {
		switch c.runMsgOutPhase() {
		case msgOutToBusFree:
			c.runBusFree()
			return nil
		case msgOutToMsgInReject, msgOutToMsgInSDTR:
			c.runMsgInPhase()
			c.runBusFree()
			return nil
		case msgOutToCommand:
			c.setPhase(scsi.Command)
		}
	}

	execStart := time.Now()
	resp, err := c.runCommandPhase()
	if err != nil {
		var fault *scsi.ScsiFault
		if !errors.As(err, &fault) {
			fault = scsi.AbortedCommand()
		}
		c.raiseFault(fault)
	} else {
		c.stageResponse(resp)
	}

	c.waitMinExecTime(execStart)
	if err == nil {
		c.runDataPhase(resp)
	}

	c.waitMinExecTime(execStart)
	c.runStatusPhase()
	c.runMsgInPhase()
	c.runBusFree()
	return err
}

// runSelection succeeds only if the DAT byte at SEL-down includes the
// target's id bit and at least one LUN is attached; otherwise it silently
// returns without raising BSY, per spec.md §4.4.
func (c *Controller) runSelection() bool {
	dat := c.bus.GetDAT()
	targetBit := byte(1) << c.TargetID
	if dat&targetBit == 0 {
		return false
	}
	if len(c.AttachedLuns()) == 0 {
		return false
	}

	c.initiatorID = ExtractInitiatorId(dat, c.TargetID)
	c.bus.SetBSY(true)
	c.bus.SetSEL(false)

	s := c.bus.Acquire()
	if s.ATN {
		c.setPhase(scsi.MsgOut)
	} else {
		c.setPhase(scsi.Command)
	}
	return true
}

func (c *Controller) runMsgOutPhase() msgOutAction {
	c.bus.SetMSG(true)
	c.bus.SetCD(true)
	c.bus.SetIO(false)

	buf := make([]byte, 1)
	if c.bus.ReceiveHandShake(buf) == 0 {
		return msgOutToBusFree
	}
	msg := buf[0]

	switch {
	case msg >= scsi.MsgIdentifyLow && msg <= scsi.MsgIdentifyHigh:
		c.identifiedLun = int(msg & 0x1f)
		return msgOutToCommand
	case msg == scsi.MsgExtendedMessage:
		return c.handleExtendedMessage()
	case msg == scsi.MsgAbort:
		return msgOutToBusFree
	case msg == scsi.MsgBusDeviceReset:
		c.Reset()
		return msgOutToBusFree
	default:
		c.block.Message = scsi.MsgMessageReject
		return msgOutToMsgInReject
	}
}

func (c *Controller) handleExtendedMessage() msgOutAction {
	lenBuf := make([]byte, 1)
	c.bus.ReceiveHandShake(lenBuf)
	n := int(lenBuf[0])
	body := make([]byte, n)
	c.bus.ReceiveHandShake(body)

	if n >= 3 && body[0] == scsi.ExtMsgSDTR {
		period, offset, ok := c.negotiateSDTR(body[1], body[2])
		if ok {
			c.pendingMsgIn = []byte{scsi.MsgExtendedMessage, 3, scsi.ExtMsgSDTR, period, offset}
			return msgOutToMsgInSDTR
		}
	}
	c.block.Message = scsi.MsgMessageReject
	return msgOutToMsgInReject
}

// runCommandPhase reads one byte, looks up the full CDB length from the
// opcode, reads the remainder. A length mismatch raises ABORTED_COMMAND.
func (c *Controller) runCommandPhase() (Response, error) {
	c.setPhase(scsi.Command)
	c.bus.SetMSG(false)
	c.bus.SetCD(true)
	c.bus.SetIO(false)

	opcodeBuf := make([]byte, 1)
	if c.bus.CommandHandShake(opcodeBuf) != 1 {
		return Response{}, scsi.AbortedCommand()
	}
	opcode := opcodeBuf[0]
	cdbLen := scsi.GetCommandByteCount(opcode)

	full := make([]byte, cdbLen)
	full[0] = opcode
	if cdbLen > 1 {
		n := c.bus.CommandHandShake(full[1:])
		if n != cdbLen-1 {
			return Response{}, scsi.AbortedCommand()
		}
	}

	c.block.Cmd = full
	c.block.Length = 0
	c.execstart = time.Now()

	return c.Execute(opcode, full)
}

// Execute resolves the effective LUN, checks reservation, and dispatches
// to the device, per spec.md §4.4.
func (c *Controller) Execute(opcode byte, cdb []byte) (Response, error) {
	metrics.CommandsDispatched.WithLabelValues(fmt.Sprintf("0x%02x", opcode)).Inc()

	lun := c.effectiveLun(cdb)
	dev := c.DeviceAt(lun)

	if dev == nil {
		return c.executeUnattached(opcode)
	}

	if opcode != scsi.RequestSense {
		dev.ClearSense()
	}

	if c.checkReservationConflict(dev, opcode, cdb) {
		return Response{}, scsi.ReservationConflict()
	}

	return dev.Dispatch(opcode, cdb, c.initiatorID)
}

func (c *Controller) effectiveLun(cdb []byte) int {
	if c.identifiedLun >= 0 {
		return c.identifiedLun
	}
	if len(cdb) > 1 {
		return int((cdb[1] >> 5) & 0x07)
	}
	return 0
}

func (c *Controller) executeUnattached(opcode byte) (Response, error) {
	lun0 := c.DeviceAt(0)
	switch opcode {
	case scsi.Inquiry:
		if lun0 == nil {
			return Response{}, scsi.Fault(scsi.SenseIllegalRequest, scsi.AscInvalidLun)
		}
		data := append([]byte(nil), lun0.InquiryInternal()...)
		if len(data) > 0 {
			data[0] = 0x7f
		}
		return Response{Status: scsi.StatusGood, Data: data}, nil
	case scsi.RequestSense:
		return Response{}, scsi.Fault(scsi.SenseIllegalRequest, scsi.AscInvalidLun)
	default:
		return Response{}, scsi.Fault(scsi.SenseIllegalRequest, scsi.AscInvalidLun)
	}
}

// checkReservationConflict implements the CheckReservation rule: a command
// from an initiator other than the reservation holder is rejected, except
// INQUIRY, REQUEST SENSE, RELEASE, and PREVENT/ALLOW REMOVAL with the
// prevent bit clear. The prevent-bit probe only reads cdb[4] when opcode is
// actually PREVENT/ALLOW REMOVAL (spec.md §9 open question).
func (c *Controller) checkReservationConflict(dev Device, opcode byte, cdb []byte) bool {
	holder, reserved := dev.ReservingInitiator()
	if !reserved || holder == c.initiatorID {
		return false
	}
	switch opcode {
	case scsi.Inquiry, scsi.RequestSense, scsi.Release:
		return false
	case scsi.PreventAllowRemoval:
		if len(cdb) > 4 && cdb[4]&0x01 == 0 {
			return false
		}
	}
	return true
}

func (c *Controller) stageResponse(resp Response) {
	c.block.Status = resp.Status
	if resp.Message != 0 {
		c.block.Message = resp.Message
	}
	if resp.Shutdown != ShutdownNone {
		c.RequestShutdown(resp.Shutdown)
	}
}

// runDataPhase drives DATA-IN or DATA-OUT to completion depending on what
// the Response carries.
func (c *Controller) runDataPhase(resp Response) {
	switch {
	case resp.Data != nil:
		c.runDataIn(resp.Data)
	case resp.XferIn != nil:
		c.runDataInBlocks(resp)
	case resp.XferOut != nil:
		c.runDataOutBlocks(resp)
	}
}

func (c *Controller) runDataIn(data []byte) {
	c.setPhase(scsi.DataIn)
	c.bus.SetMSG(false)
	c.bus.SetCD(false)
	c.bus.SetIO(true)

	c.block.AllocateBuffer(len(data))
	copy(c.block.Buffer, data)
	c.block.Offset = 0
	c.block.Length = len(data)
	c.block.Blocks = 1

	c.bus.SendHandShake(data, 0)
	metrics.BytesTransferred.WithLabelValues("in").Add(float64(len(data)))
	c.block.UpdateOffsetAndLength()
	c.block.Blocks = 0
}

func (c *Controller) runDataInBlocks(resp Response) {
	c.setPhase(scsi.DataIn)
	c.bus.SetMSG(false)
	c.bus.SetCD(false)
	c.bus.SetIO(true)

	c.block.Blocks = resp.Blocks
	for c.block.Blocks > 0 {
		chunk, err := resp.XferIn()
		if err != nil {
			c.block.Blocks = 0
			c.raiseFault(scsi.Fault(scsi.SenseMediumError, scsi.AscReadError))
			return
		}
		c.block.Offset = 0
		c.block.Length = len(chunk)
		c.bus.SendHandShake(chunk, 0)
		metrics.BytesTransferred.WithLabelValues("in").Add(float64(len(chunk)))
		c.block.UpdateOffsetAndLength()
		c.block.Blocks--
		c.block.Next++
	}
}

func (c *Controller) runDataOutBlocks(resp Response) {
	c.setPhase(scsi.DataOut)
	c.bus.SetMSG(false)
	c.bus.SetCD(false)
	c.bus.SetIO(false)

	c.block.Blocks = resp.Blocks
	chunkSize := resp.BlockSize
	if chunkSize <= 0 {
		chunkSize = len(c.block.Buffer)
	}
	for c.block.Blocks > 0 {
		chunk := make([]byte, chunkSize)
		n := c.bus.ReceiveHandShake(chunk)
		c.block.Offset = 0
		c.block.Length = n
		c.block.UpdateOffsetAndLength()
		metrics.BytesTransferred.WithLabelValues("out").Add(float64(n))
		if err := resp.XferOut(chunk[:n]); err != nil {
			c.block.Blocks = 0
			c.raiseFault(scsi.Fault(scsi.SenseMediumError, scsi.AscWriteError))
			return
		}
		c.block.Blocks--
		c.block.Next++
	}
}

func (c *Controller) runStatusPhase() {
	c.setPhase(scsi.Status)
	c.bus.SetMSG(false)
	c.bus.SetCD(true)
	c.bus.SetIO(true)

	c.bus.SendHandShake([]byte{c.block.Status}, 0)
	c.block.afterStatus()
}

func (c *Controller) runMsgInPhase() {
	c.setPhase(scsi.MsgIn)
	c.bus.SetMSG(true)
	c.bus.SetCD(true)
	c.bus.SetIO(true)

	if len(c.pendingMsgIn) > 0 {
		c.bus.SendHandShake(c.pendingMsgIn, 0)
		c.pendingMsgIn = nil
		return
	}
	c.bus.SendHandShake([]byte{c.block.Message}, 0)
}

// runBusFree returns the bus to BUS-FREE and honors any requested shutdown.
func (c *Controller) runBusFree() {
	c.setPhase(scsi.BusFree)
	c.bus.SetBSY(false)
	c.bus.SetSEL(false)
	c.bus.SetMSG(false)
	c.bus.SetCD(false)
	c.bus.SetIO(false)
	c.initiatorID = -1
	c.identifiedLun = -1

	if c.shutdown != ShutdownNone {
		if c.onShutdown != nil {
			c.onShutdown(c.shutdown)
		}
		c.shutdown = ShutdownNone
	}
}

// raiseFault implements Error: if the bus is RST, perform a full reset. If
// currently in STATUS or MSG-IN, short-circuit directly to BUS-FREE.
// Otherwise fall back to LUN 0 for sense reporting if the current LUN is
// absent, record (sense_key<<16)|ASC on the device, and enter STATUS.
func (c *Controller) raiseFault(f *scsi.ScsiFault) {
	if c.bus.GetRST() {
		c.Reset()
		return
	}
	if c.phase == scsi.Status || c.phase == scsi.MsgIn {
		c.runBusFree()
		return
	}

	status := f.Status
	if status == 0 {
		status = scsi.StatusCheckCondition
	}
	if status == scsi.StatusCheckCondition {
		metrics.CheckConditions.WithLabelValues(fmt.Sprintf("0x%02x", f.SenseKey)).Inc()
	}

	dev := c.DeviceAt(c.effectiveLun(c.block.Cmd))
	if dev == nil {
		dev = c.DeviceAt(0)
	}
	if dev != nil {
		dev.RecordSense(f.SenseKey, f.Asc)
	}

	c.block.Status = status
	c.block.Message = scsi.MsgCommandComplete
	c.setPhase(scsi.Status)
}

func (c *Controller) waitMinExecTime(start time.Time) {
	for time.Since(start) < MinExecTime {
	}
}

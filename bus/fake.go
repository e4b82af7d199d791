package bus

import "github.com/PiSCSI/piscsi-sub003/scsi"

// Fake is an in-memory Bus used by every other package's tests, grounded on
// the teacher's fakeSCSICmdHandler test-double pattern. It has no real
// REQ/ACK timing: handshakes complete immediately against queued command
// and data bytes, which is sufficient to exercise the controller's phase
// state machine without real hardware.
type Fake struct {
	bsy, sel, atn, ack, rst bool
	msg, cd, io, req        bool
	dat                     byte

	// CommandQueue is drained by CommandHandShake, one CDB per Select.
	CommandQueue [][]byte
	curCmd       []byte
	// DataIn is drained by SendHandShake (bytes the "initiator" reads).
	DataIn []byte
	// DataOut is filled by ReceiveHandShake (bytes the "initiator" writes).
	DataOut []byte
	// MsgOut is filled by ReceiveHandShake while MSG is asserted, e.g. to
	// feed IDENTIFY / EXTENDED MESSAGE bytes to the controller.
	MsgOut []byte

	// SelectedID, if SelectPending is true, is asserted on DAT during the
	// next Acquire to simulate an initiator's SELECTION phase.
	SelectedID    byte
	SelectPending bool
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Init(mode int) error { return nil }

func (f *Fake) Reset() {
	f.bsy, f.sel, f.atn, f.ack, f.rst = false, false, false, false, false
	f.msg, f.cd, f.io, f.req = false, false, false, false
	f.dat = 0
}

func (f *Fake) Cleanup() {}

func (f *Fake) GetBSY() bool   { return f.bsy }
func (f *Fake) SetBSY(v bool)  { f.bsy = v }
func (f *Fake) GetSEL() bool   { return f.sel }
func (f *Fake) SetSEL(v bool)  { f.sel = v }
func (f *Fake) GetATN() bool   { return f.atn }
func (f *Fake) SetATN(v bool)  { f.atn = v }
func (f *Fake) GetACK() bool   { return f.ack }
func (f *Fake) SetACK(v bool)  { f.ack = v }
func (f *Fake) GetRST() bool   { return f.rst }
func (f *Fake) SetRST(v bool)  { f.rst = v }
func (f *Fake) GetMSG() bool   { return f.msg }
func (f *Fake) SetMSG(v bool)  { f.msg = v }
func (f *Fake) GetCD() bool    { return f.cd }
func (f *Fake) SetCD(v bool)   { f.cd = v }
func (f *Fake) GetIO() bool    { return f.io }
func (f *Fake) SetIO(v bool)   { f.io = v }
func (f *Fake) GetREQ() bool   { return f.req }
func (f *Fake) SetREQ(v bool)  { f.req = v }
func (f *Fake) GetDAT() byte   { return f.dat }
func (f *Fake) SetDAT(v byte)  { f.dat = v }

func (f *Fake) Acquire() scsi.Signals {
	if f.SelectPending {
		f.sel = true
		f.dat = f.SelectedID
	}
	return scsi.Signals{
		BSY: f.bsy, SEL: f.sel, ATN: f.atn, ACK: f.ack, RST: f.rst,
		MSG: f.msg, CD: f.cd, IO: f.io, REQ: f.req,
	}
}

// Select queues a SELECTION event: the next Acquire reports SEL asserted
// with the given DAT byte (target id bit | initiator id bit, per spec.md's
// ExtractInitiatorId convention).
func (f *Fake) Select(dat byte) {
	f.SelectedID = dat
	f.SelectPending = true
}

// CommandHandShake serves buf from the head of the current CDB, pulling a
// new one off CommandQueue when none is in flight. Real hardware drives one
// byte then the remainder; the Fake serves however many bytes buf asks for.
func (f *Fake) CommandHandShake(buf []byte) int {
	f.SelectPending = false
	f.sel = false
	if f.curCmd == nil {
		if len(f.CommandQueue) == 0 {
			return 0
		}
		f.curCmd = f.CommandQueue[0]
		f.CommandQueue = f.CommandQueue[1:]
	}
	n := copy(buf, f.curCmd)
	f.curCmd = f.curCmd[n:]
	if len(f.curCmd) == 0 {
		f.curCmd = nil
	}
	return n
}

func (f *Fake) SendHandShake(data []byte, delayHint int) int {
	f.DataIn = append(f.DataIn, data...)
	return len(data)
}

func (f *Fake) ReceiveHandShake(buf []byte) int {
	if f.msg {
		n := copy(buf, f.MsgOut)
		f.MsgOut = f.MsgOut[n:]
		return n
	}
	n := copy(buf, f.DataOut)
	f.DataOut = f.DataOut[n:]
	return n
}

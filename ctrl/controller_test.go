package ctrl

import (
	"testing"

	"github.com/PiSCSI/piscsi-sub003/bus"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// stubDevice is a minimal ctrl.Device used only by this package's tests.
type stubDevice struct {
	lun            int
	dispatchStatus byte
	dispatchData   []byte
	dispatchErr    error
	reservedBy     int
	reserved       bool
	sense          uint32
	resetCount     int
}

func (d *stubDevice) LUN() int { return d.lun }

func (d *stubDevice) Dispatch(opcode byte, cdb []byte, initiatorID int) (Response, error) {
	if d.dispatchErr != nil {
		return Response{}, d.dispatchErr
	}
	if d.dispatchData != nil {
		return Response{Status: d.dispatchStatus, Data: d.dispatchData}, nil
	}
	return Response{Status: d.dispatchStatus}, nil
}

func (d *stubDevice) InquiryInternal() []byte {
	return []byte{0x00, 0x00, 0x02, 0x02}
}

func (d *stubDevice) ReservingInitiator() (int, bool) { return d.reservedBy, d.reserved }
func (d *stubDevice) Reset()                          { d.resetCount++ }
func (d *stubDevice) ClearSense()                     { d.sense = 0 }
func (d *stubDevice) RecordSense(sk byte, asc uint16) { d.sense = uint32(sk)<<16 | uint32(asc) }

func TestAddRemoveDevice(t *testing.T) {
	c := NewController(4, bus.NewFake())
	d := &stubDevice{lun: 0}
	if !c.AddDevice(d) {
		t.Fatalf("expected AddDevice to succeed")
	}
	if c.AddDevice(&stubDevice{lun: 0}) {
		t.Fatalf("expected duplicate LUN to fail")
	}
	if c.AddDevice(&stubDevice{lun: MaxLuns}) {
		t.Fatalf("expected out-of-range LUN to fail")
	}
	c.RemoveDevice(0)
	if c.DeviceAt(0) != nil {
		t.Fatalf("expected LUN 0 empty after remove")
	}
}

func TestResetVisitsEveryLun(t *testing.T) {
	c := NewController(4, bus.NewFake())
	a := &stubDevice{lun: 0}
	b := &stubDevice{lun: 1}
	c.AddDevice(a)
	c.AddDevice(b)
	c.Reset()
	if a.resetCount != 1 || b.resetCount != 1 {
		t.Fatalf("expected every attached LUN reset, got %d %d", a.resetCount, b.resetCount)
	}
	if c.Phase() != scsi.BusFree || c.Block().Status != 0 {
		t.Fatalf("expected BUS-FREE with status GOOD after reset")
	}
}

func TestExtractInitiatorId(t *testing.T) {
	var tests = []struct {
		dat    byte
		target byte
		want   int
	}{
		{dat: 0x90, target: 4, want: 7}, // bits 4 and 7 set
		{dat: 0x10, target: 4, want: -1},
		{dat: 0xf0, target: 4, want: -1}, // multiple other bits set
	}
	for i, tt := range tests {
		got := ExtractInitiatorId(tt.dat, tt.target)
		if got != tt.want {
			t.Fatalf("[%02d] dat=0x%02x target=%d: want %d, got %d", i, tt.dat, tt.target, tt.want, got)
		}
	}
}

func TestProcessSimpleCommand(t *testing.T) {
	f := bus.NewFake()
	c := NewController(4, f)
	dev := &stubDevice{lun: 0, dispatchStatus: scsi.StatusGood}
	c.AddDevice(dev)

	f.Select(0x90)
	f.CommandQueue = [][]byte{{scsi.TestUnitReady, 0, 0, 0, 0, 0}}

	if err := c.Process(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Phase() != scsi.BusFree {
		t.Fatalf("expected BUS-FREE at end of transaction, got %v", c.Phase())
	}
}

func TestProcessReservationConflict(t *testing.T) {
	f := bus.NewFake()
	c := NewController(4, f)
	dev := &stubDevice{lun: 0, reserved: true, reservedBy: 2}
	c.AddDevice(dev)

	f.Select(0x90) // initiator bit 7
	f.CommandQueue = [][]byte{{scsi.Write10, 0, 0, 0, 0, 0, 0, 0, 1, 0}}

	c.Process()
	if c.Block().Status != scsi.StatusReservationConflict {
		t.Fatalf("expected RESERVATION_CONFLICT status, got 0x%02x", c.Block().Status)
	}
}

func TestProcessNoSelectionIsNoop(t *testing.T) {
	c := NewController(4, bus.NewFake())
	if err := c.Process(); err != nil {
		t.Fatalf("expected nil error with no pending selection, got %v", err)
	}
	if c.Phase() != scsi.BusFree {
		t.Fatalf("expected phase unchanged at BUS-FREE")
	}
}

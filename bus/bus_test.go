package bus

import (
	"testing"

	"github.com/PiSCSI/piscsi-sub003/scsi"
)

func TestGetPhase(t *testing.T) {
	var tests = []struct {
		desc string
		s    scsi.Signals
		want scsi.Phase
	}{
		{desc: "bus free", s: scsi.Signals{}, want: scsi.BusFree},
		{desc: "selection", s: scsi.Signals{SEL: true}, want: scsi.Selection},
		{desc: "command", s: scsi.Signals{BSY: true, CD: true}, want: scsi.Command},
		{desc: "status", s: scsi.Signals{BSY: true, CD: true, IO: true}, want: scsi.Status},
		{desc: "datain", s: scsi.Signals{BSY: true, IO: true}, want: scsi.DataIn},
		{desc: "dataout", s: scsi.Signals{BSY: true}, want: scsi.DataOut},
		{desc: "msgout", s: scsi.Signals{BSY: true, MSG: true, CD: true}, want: scsi.MsgOut},
		{desc: "msgin", s: scsi.Signals{BSY: true, MSG: true, CD: true, IO: true}, want: scsi.MsgIn},
		{desc: "reserved", s: scsi.Signals{BSY: true, MSG: true}, want: scsi.Reserved},
	}

	for i, tt := range tests {
		got := scsi.GetPhase(tt.s)
		if got != tt.want {
			t.Fatalf("[%02d] test %q: want %v, got %v", i, tt.desc, tt.want, got)
		}
	}
}

func TestGetCommandByteCount(t *testing.T) {
	var tests = []struct {
		op   byte
		want int
	}{
		{scsi.TestUnitReady, 6},
		{scsi.Inquiry, 6},
		{scsi.Read10, 10},
		{scsi.ModeSense10, 10},
		{scsi.Read16, 16},
		{scsi.ReportLuns, 12},
	}
	for i, tt := range tests {
		if got := scsi.GetCommandByteCount(tt.op); got != tt.want {
			t.Fatalf("[%02d] opcode 0x%02x: want %d, got %d", i, tt.op, tt.want, got)
		}
	}
}

func TestFakeSelectAcquire(t *testing.T) {
	f := NewFake()
	f.Select(0x90) // target bit 4 | initiator bit 7
	s := f.Acquire()
	if !s.SEL {
		t.Fatalf("expected SEL asserted after Select()")
	}
	if f.GetDAT() != 0x90 {
		t.Fatalf("expected DAT 0x90, got 0x%02x", f.GetDAT())
	}
}

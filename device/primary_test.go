package device

import (
	"testing"

	"github.com/PiSCSI/piscsi-sub003/scsi"
)

func TestRequestSenseReportsRecordedCondition(t *testing.T) {
	p := NewPrimary(KindDisk, 0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"})
	p.SetReady(true)
	p.RecordSense(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)

	resp, _, err := p.requestSense(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Data[2]; got != scsi.SenseIllegalRequest {
		t.Fatalf("sense key byte: want 0x%02x, got 0x%02x", scsi.SenseIllegalRequest, got)
	}
	wantAsc := byte(scsi.AscInvalidFieldInCdb >> 8)
	wantAscq := byte(scsi.AscInvalidFieldInCdb)
	if resp.Data[12] != wantAsc || resp.Data[13] != wantAscq {
		t.Fatalf("asc/ascq: want 0x%02x/0x%02x, got 0x%02x/0x%02x", wantAsc, wantAscq, resp.Data[12], resp.Data[13])
	}
}

func TestInquiryRejectsEVPD(t *testing.T) {
	p := NewPrimary(KindDisk, 0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"})
	_, _, err := p.inquiry([]byte{scsi.Inquiry, 0x01, 0, 0, 0, 0})
	if err == nil {
		t.Fatalf("expected EVPD bit to be rejected")
	}
}

func TestTestUnitReadyReportsPowerOnReset(t *testing.T) {
	p := NewPrimary(KindDisk, 0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"})
	p.SetReady(true)
	p.Reset()

	_, _, err := p.testUnitReady()
	if err == nil {
		t.Fatalf("expected POWER_ON_OR_RESET after Reset")
	}
	fault := err.(*scsi.ScsiFault)
	if fault.SenseKey != scsi.SenseUnitAttention || fault.Asc != scsi.AscPowerOnOrReset {
		t.Fatalf("unexpected fault: %+v", fault)
	}

	// Second call clears the reset condition.
	if _, _, err := p.testUnitReady(); err != nil {
		t.Fatalf("expected reset condition cleared on second call, got %v", err)
	}
}

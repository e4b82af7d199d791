package device

import (
	"testing"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

func TestHostServicesStartStopUnit(t *testing.T) {
	tests := []struct {
		name    byte // cdb[4]
		want    ctrl.ShutdownMode
		illegal bool
	}{
		{name: 0x00, want: ctrl.ShutdownStopRascsi},
		{name: 0x02, want: ctrl.ShutdownStopPi},
		{name: 0x03, want: ctrl.ShutdownRestartPi},
		{name: 0x01, illegal: true},
	}
	for _, tt := range tests {
		h := NewHostServices(0, Identity{Vendor: "TEST", Product: "HOST", Revision: "1.0"})
		cdb := []byte{scsi.StartStopUnit, 0, 0, 0, tt.name, 0}
		resp, err := h.startStopUnit(cdb)
		if tt.illegal {
			if err == nil {
				t.Fatalf("cdb[4]=0x%02x: expected illegal request", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("cdb[4]=0x%02x: unexpected error: %v", tt.name, err)
		}
		if resp.Shutdown != tt.want {
			t.Fatalf("cdb[4]=0x%02x: want shutdown mode %v, got %v", tt.name, tt.want, resp.Shutdown)
		}
	}
}

package device

import (
	"os"
	"testing"

	"github.com/PiSCSI/piscsi-sub003/scsi"
)

func TestPrinterFlushWithNoSpoolIsAborted(t *testing.T) {
	p := NewPrinter(0, Identity{Vendor: "TEST", Product: "PRN", Revision: "1.0"}, "")
	_, err := p.flush()
	if err == nil {
		t.Fatalf("expected ABORTED_COMMAND when nothing was spooled")
	}
	fault, ok := err.(*scsi.ScsiFault)
	if !ok {
		t.Fatalf("expected *scsi.ScsiFault, got %T", err)
	}
	if fault.SenseKey != scsi.SenseAbortedCommand {
		t.Fatalf("want sense key 0x%02x, got 0x%02x", scsi.SenseAbortedCommand, fault.SenseKey)
	}
}

func TestPrinterFlushSubstitutesSpoolPath(t *testing.T) {
	out := t.TempDir() + "/observed"
	p := NewPrinter(0, Identity{Vendor: "TEST", Product: "PRN", Revision: "1.0"}, "cp %f "+out)

	cdb := []byte{scsi.PrinterPrint, 0, 0, 0, 5, 0}
	resp, err := p.print(cdb)
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if err := resp.XferOut([]byte("hello")); err != nil {
		t.Fatalf("XferOut: %v", err)
	}

	if _, err := p.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected flush's command to have written %s: %v", out, err)
	}
	if string(data) != "hello" {
		t.Fatalf("want spooled content %q, got %q", "hello", string(data))
	}
}

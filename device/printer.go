package device

import (
	"os"
	"os/exec"
	"strings"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// Printer is a processor-type LUN that spools PRINT data to a temp file and
// flushes it through an external command on SYNCHRONIZE BUFFER or STOP
// PRINT, per spec.md §4.9.
type Printer struct {
	*Primary

	cmd    string // shell command run on flush, "%f" replaced by the spool path; from manifest option
	spool  *os.File
	closed bool
}

// NewPrinter constructs a Printer LUN. cmd is the external command run on
// flush, with "%f" replaced by the spool file's path (e.g. "lpr %f"); empty
// means flush only discards the spool file and reports success.
func NewPrinter(lun int, id Identity, cmd string) *Printer {
	base := NewPrimary(KindPrinter, lun, id)
	base.SetReady(true)
	return &Printer{Primary: base, cmd: cmd}
}

func (p *Printer) Dispatch(opcode byte, cdb []byte, initiatorID int) (ctrl.Response, error) {
	if resp, handled, err := p.DispatchPrimary(opcode, cdb, initiatorID); handled {
		return resp, err
	}
	switch opcode {
	case scsi.PrinterPrint:
		return p.print(cdb)
	case scsi.PrinterSynchronizeBuffer, scsi.PrinterStopPrint:
		return p.flush()
	default:
		return p.unsupportedOpcode(opcode)
	}
}

func (p *Printer) print(cdb []byte) (ctrl.Response, error) {
	n := int(cdb[2])<<16 | int(cdb[3])<<8 | int(cdb[4])
	if n == 0 {
		return ctrl.Response{Status: scsi.StatusGood}, nil
	}
	if p.spool == nil {
		f, err := os.CreateTemp("", "rascsi-print-*")
		if err != nil {
			return ctrl.Response{}, scsi.Fault(scsi.SenseHardwareError, scsi.AscInternalTargetFailure)
		}
		p.spool = f
	}
	xfer := func(chunk []byte) error {
		_, err := p.spool.Write(chunk)
		return err
	}
	return ctrl.Response{Status: scsi.StatusGood, XferOut: xfer, Blocks: 1, BlockSize: n}, nil
}

// flush closes the spool file and runs cmd with "%f" substituted for the
// spool path, the external printer driver invocation spec.md §4.9
// describes. Nothing spooled is ABORTED_COMMAND, not a silent success.
func (p *Printer) flush() (ctrl.Response, error) {
	if p.spool == nil {
		return ctrl.Response{}, scsi.AbortedCommand()
	}
	path := p.spool.Name()
	p.spool.Close()
	p.spool = nil

	defer os.Remove(path)
	if p.cmd == "" {
		return ctrl.Response{Status: scsi.StatusGood}, nil
	}

	c := exec.Command("sh", "-c", strings.ReplaceAll(p.cmd, "%f", path))
	if err := c.Run(); err != nil {
		return ctrl.Response{}, scsi.Fault(scsi.SenseHardwareError, scsi.AscInternalTargetFailure)
	}
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

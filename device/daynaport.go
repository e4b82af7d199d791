package device

import (
	"encoding/binary"

	"github.com/vishvananda/netlink"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// DaynaPort is a processor-type LUN emulating the Apple DaynaPort SCSI/Link
// Ethernet adapter: raw frame READ/WRITE bypass the sector-at-a-time block
// loop entirely, per spec.md §4.9.
type DaynaPort struct {
	*Primary

	iface string // host network interface name from the manifest's interface option
	rx    [][]byte
	stats daynaportStats
}

type daynaportStats struct {
	framesSent uint32
	framesRecv uint32
}

// NewDaynaPort constructs a DaynaPort LUN bridged onto the named host
// interface (spec.md §6.3's interface/inet options).
func NewDaynaPort(lun int, id Identity, iface string) *DaynaPort {
	base := NewPrimary(KindDaynaPort, lun, id)
	base.SetReady(true)
	return &DaynaPort{Primary: base, iface: iface}
}

// InjectFrame feeds one received Ethernet frame into the read queue a
// DaynaPortReadFrame command will drain; called by whatever bridges the
// host interface's rx path into this core (outside this package's scope).
func (d *DaynaPort) InjectFrame(frame []byte) {
	d.rx = append(d.rx, frame)
	d.stats.framesRecv++
}

func (d *DaynaPort) Dispatch(opcode byte, cdb []byte, initiatorID int) (ctrl.Response, error) {
	if resp, handled, err := d.DispatchPrimary(opcode, cdb, initiatorID); handled {
		return resp, err
	}
	switch opcode {
	case scsi.DaynaPortReadFrame:
		return d.readFrame(cdb)
	case scsi.DaynaPortWriteFrame:
		return d.writeFrame(cdb)
	case scsi.DaynaPortRetrieveStats:
		return d.retrieveStats()
	case scsi.DaynaPortSetInterfaceMode, scsi.DaynaPortSetMulticastAddr:
		// Neither command is implemented: every sub-code is rejected with
		// INVALID_FIELD_IN_CDB, per spec.md §9's open-question decision.
		return ctrl.Response{}, scsi.IllegalRequest()
	case scsi.DaynaPortEnableInterface:
		return d.enableInterface()
	default:
		return d.unsupportedOpcode(opcode)
	}
}

// daynaportMaxFrame is the largest Ethernet frame WRITE(6) accepts, per
// spec.md §4.9's 1..1514-byte envelope.
const daynaportMaxFrame = 1514

// readFrame answers with a 2-byte length prefix + the oldest queued frame,
// or a zero-length frame when the queue is empty, the polling contract
// DaynaPort initiators use. cdb[5]==0xFF is an unrecognized data format and
// is rejected outright.
func (d *DaynaPort) readFrame(cdb []byte) (ctrl.Response, error) {
	if len(cdb) > 5 && cdb[5] == 0xff {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	var frame []byte
	if len(d.rx) > 0 {
		frame = d.rx[0]
		d.rx = d.rx[1:]
	}
	buf := make([]byte, 2+len(frame))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(frame)))
	copy(buf[2:], frame)
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, nil
}

// writeFrame accepts one raw frame as a single DATA-OUT block, bypassing
// block-size bookkeeping entirely since Ethernet frames aren't
// sector-aligned. cdb[3:5] carries the big-endian frame length, which must
// fall in the 1..1514-byte envelope spec.md §4.9 documents; cdb[5] must be
// 0x00 (raw) or 0x80 (padded), any other value is an unrecognized format.
func (d *DaynaPort) writeFrame(cdb []byte) (ctrl.Response, error) {
	if len(cdb) < 6 {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	format := cdb[5]
	if format != 0x00 && format != 0x80 {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	n := int(binary.BigEndian.Uint16(cdb[3:5]))
	if n < 1 || n > daynaportMaxFrame {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	xfer := func(chunk []byte) error {
		d.stats.framesSent++
		return nil
	}
	return ctrl.Response{Status: scsi.StatusGood, XferOut: xfer, Blocks: 1, BlockSize: n}, nil
}

func (d *DaynaPort) retrieveStats() (ctrl.Response, error) {
	buf := make([]byte, 18)
	binary.BigEndian.PutUint32(buf[0:4], d.stats.framesRecv)
	binary.BigEndian.PutUint32(buf[4:8], d.stats.framesSent)
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, nil
}

// enableInterface brings the bridged host interface up through netlink,
// the one point this core reaches outside the SCSI model into the host
// network stack. The CDB is not inspected: this command never takes the
// interface down.
func (d *DaynaPort) enableInterface() (ctrl.Response, error) {
	if d.iface == "" {
		return ctrl.Response{Status: scsi.StatusGood}, nil
	}
	link, err := netlink.LinkByName(d.iface)
	if err != nil {
		return ctrl.Response{}, scsi.Fault(scsi.SenseHardwareError, scsi.AscInternalTargetFailure)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return ctrl.Response{}, scsi.Fault(scsi.SenseHardwareError, scsi.AscInternalTargetFailure)
	}
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

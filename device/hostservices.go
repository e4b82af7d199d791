package device

import (
	"encoding/binary"
	"time"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// HostServices is a processor-type LUN with no backing medium: it answers a
// realtime-clock vendor page and repurposes START STOP UNIT's LOEJ/START
// bits to request a shutdown mode, per spec.md §4.9.
type HostServices struct {
	*Primary
	mp *ModePages
}

// NewHostServices constructs a HostServices LUN.
func NewHostServices(lun int, id Identity) *HostServices {
	base := NewPrimary(KindHostServices, lun, id)
	base.SetReady(true)
	h := &HostServices{Primary: base}
	h.mp = NewModePages(h.pages, nil)
	return h
}

func (h *HostServices) Dispatch(opcode byte, cdb []byte, initiatorID int) (ctrl.Response, error) {
	if resp, handled, err := h.DispatchPrimary(opcode, cdb, initiatorID); handled {
		return resp, err
	}
	if resp, handled, err := h.mp.DispatchModePages(opcode, cdb); handled {
		return resp, err
	}
	switch opcode {
	case scsi.StartStopUnit:
		return h.startStopUnit(cdb)
	default:
		return h.unsupportedOpcode(opcode)
	}
}

// startStopUnit repurposes the LOEJ/START bits (cdb[4] bits 1/0) to request
// a shutdown mode rather than an actual medium load/eject, per spec.md §4.9:
// LOEJ=0/START=0 -> stop this core's process; LOEJ=1/START=0 -> stop the
// Pi; LOEJ=1/START=1 -> restart the Pi; LOEJ=0/START=1 is illegal.
func (h *HostServices) startStopUnit(cdb []byte) (ctrl.Response, error) {
	if len(cdb) < 5 {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	start := cdb[4]&0x01 != 0
	loej := cdb[4]&0x02 != 0
	switch {
	case !loej && !start:
		return ctrl.Response{Status: scsi.StatusGood, Shutdown: ctrl.ShutdownStopRascsi}, nil
	case loej && !start:
		return ctrl.Response{Status: scsi.StatusGood, Shutdown: ctrl.ShutdownStopPi}, nil
	case loej && start:
		return ctrl.Response{Status: scsi.StatusGood, Shutdown: ctrl.ShutdownRestartPi}, nil
	default: // !loej && start
		return ctrl.Response{}, scsi.IllegalRequest()
	}
}

// pages reports only the realtime-clock vendor page 0x20, populated fresh
// on every MODE SENSE.
func (h *HostServices) pages(changeable bool) map[byte][]byte {
	if changeable {
		return map[byte][]byte{0x20: make([]byte, 10)}
	}
	return map[byte][]byte{0x20: h.realtimeClockPage()}
}

func (h *HostServices) realtimeClockPage() []byte {
	buf := make([]byte, 10)
	buf[0] = 0x20
	buf[1] = 0x08
	now := time.Now().UTC()
	binary.BigEndian.PutUint16(buf[2:4], uint16(now.Year()))
	buf[4] = byte(now.Month())
	buf[5] = byte(now.Day())
	buf[6] = byte(now.Hour())
	buf[7] = byte(now.Minute())
	buf[8] = byte(now.Second())
	return buf
}

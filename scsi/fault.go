package scsi

import "fmt"

// ScsiFault is the command-fault layer of the error taxonomy in spec.md §7:
// an initiator asked for something illegal or impossible. The controller's
// Execute is the single place these are caught and turned into sense data
// plus a status byte, replacing the scsi_exception unwinding the design
// notes ask to avoid.
type ScsiFault struct {
	SenseKey byte
	Asc      uint16
	Status   byte
}

func (f *ScsiFault) Error() string {
	return fmt.Sprintf("scsi fault: sense=0x%02x asc=0x%04x status=0x%02x", f.SenseKey, f.Asc, f.Status)
}

// StatusCode packs (sense_key<<16)|ASC, the 32-bit encoding spec.md §3 says a
// device records on REQUEST SENSE. Asc is already the packed (asc<<8)|ascq
// value the scsi package's constants carry, so it occupies the low 16 bits
// untouched.
func (f *ScsiFault) StatusCode() uint32 {
	return uint32(f.SenseKey)<<16 | uint32(f.Asc)
}

// Fault builds a ScsiFault with the default CHECK CONDITION status, the
// common case raised from device command handlers.
func Fault(senseKey byte, asc uint16) *ScsiFault {
	return &ScsiFault{SenseKey: senseKey, Asc: asc, Status: StatusCheckCondition}
}

// FaultStatus builds a ScsiFault with an explicit status byte, for the rarer
// cases (RESERVATION_CONFLICT, BUSY) that aren't CHECK CONDITION.
func FaultStatus(senseKey byte, asc uint16, status byte) *ScsiFault {
	return &ScsiFault{SenseKey: senseKey, Asc: asc, Status: status}
}

// Presets mirroring the common command faults by name, grounded on the
// teacher's IllegalRequest/MediumError/TargetFailure helpers.
func IllegalRequest() *ScsiFault {
	return Fault(SenseIllegalRequest, AscInvalidFieldInCdb)
}

func InvalidLun() *ScsiFault {
	return Fault(SenseIllegalRequest, AscInvalidLun)
}

func LbaOutOfRange() *ScsiFault {
	return Fault(SenseIllegalRequest, AscLbaOutOfRange)
}

func MediumNotPresent() *ScsiFault {
	return Fault(SenseNotReady, AscMediumNotPresent)
}

func ReservationConflict() *ScsiFault {
	return FaultStatus(SenseNoSense, AscNoAdditionalSenseInfo, StatusReservationConflict)
}

func AbortedCommand() *ScsiFault {
	return Fault(SenseAbortedCommand, AscNoAdditionalSenseInfo)
}

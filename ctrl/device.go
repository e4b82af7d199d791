package ctrl

import "github.com/PiSCSI/piscsi-sub003/scsi"

// Response is what a Device's Dispatch returns instead of mutating the
// controller's Block directly: design notes call the alternative (a device
// reaching back into "ctrl") a mutable-god-object antipattern.
//
// Exactly one of Data or XferIn should be set for a DATA-IN-bearing
// command; XferOut is set for DATA-OUT-bearing commands; a command with
// none of the three goes straight from COMMAND to STATUS.
type Response struct {
	Status  byte
	Message byte

	// Data is the fully assembled DATA-IN payload for commands that don't
	// need block-at-a-time bookkeeping (INQUIRY, REQUEST SENSE, MODE
	// SENSE, REPORT LUNS, READ CAPACITY, ...).
	Data []byte

	// XferIn, with Blocks > 0, fetches the next block-sized DATA-IN chunk
	// for multi-block READ(6/10/16); called once per remaining block.
	XferIn func() ([]byte, error)

	// XferOut, with Blocks > 0, consumes the next block-sized DATA-OUT
	// chunk for WRITE(6/10/16); called once per remaining block.
	XferOut func(chunk []byte) error

	// BlockSize is the chunk size XferIn/XferOut operate on.
	BlockSize int
	// Blocks is the remaining transfer-block count for XferIn/XferOut.
	Blocks int

	// Shutdown lets the host-services device repurpose START STOP UNIT to
	// request a shutdown mode; the controller honors it at the next
	// BUS-FREE transition (spec.md §4.9). ShutdownNone means no request.
	Shutdown ShutdownMode
}

// ok builds the common-case GOOD response with no data phase.
func ok() Response {
	return Response{Status: scsi.StatusGood}
}

// Device is the capability surface the controller dispatches to. Concrete
// device kinds (package device) implement it; the controller never imports
// package device, only this interface, so devices can return Responses
// without a back-reference into the controller's mutable state.
type Device interface {
	// LUN is this device's logical unit number.
	LUN() int

	// Dispatch executes one CDB already staged by the controller and
	// returns the Response to stage into the phase that follows COMMAND,
	// or an error (always a *scsi.ScsiFault in practice) that Execute
	// turns into sense data and a CHECK CONDITION / other status.
	Dispatch(opcode byte, cdb []byte, initiatorID int) (Response, error)

	// InquiryInternal answers a raw INQUIRY, used by Execute's "LUN not
	// attached" fallback path (spec.md §4.4 Execute).
	InquiryInternal() []byte

	// ReservingInitiator reports the initiator id currently holding this
	// device's reservation, and whether it is held at all.
	ReservingInitiator() (id int, reserved bool)

	// Reset restores the device to its post-power-on state.
	Reset()

	// ClearSense discards any pending sense condition. Execute calls this
	// before every Dispatch except REQUEST SENSE itself (spec.md §4.4).
	ClearSense()

	// RecordSense records (sense_key<<16)|ASC as this device's pending
	// status code, fetched by a subsequent REQUEST SENSE. Called by
	// Controller.Error when a command raises a fault.
	RecordSense(senseKey byte, asc uint16)
}

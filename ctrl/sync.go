package ctrl

// MaxSyncPeriod and MaxSyncOffset are the clamps spec.md §4.4 applies to an
// SDTR negotiation.
const (
	MaxSyncPeriod = 50
	MaxSyncOffset = 16
)

// syncState is the controller's synchronous-transfer negotiation substate,
// part of spec.md §3's Controller definition.
type syncState struct {
	enabled bool
	period  byte
	offset  byte
}

// EnableSync turns on synchronous-transfer negotiation for this controller.
// Disabled by default, matching this core's non-goal of not implementing
// synchronous transfer beyond acknowledging a minimal SDTR.
func (c *Controller) EnableSync() { c.sync.enabled = true }

// negotiateSDTR clamps a requested (period, offset) pair and records it, or
// reports that the negotiation should be rejected with MESSAGE REJECT.
func (c *Controller) negotiateSDTR(reqPeriod, reqOffset byte) (period, offset byte, ok bool) {
	if !c.sync.enabled {
		return 0, 0, false
	}
	period = reqPeriod
	if period > MaxSyncPeriod {
		period = MaxSyncPeriod
	}
	offset = reqOffset
	if offset > MaxSyncOffset {
		offset = MaxSyncOffset
	}
	c.sync.period = period
	c.sync.offset = offset
	return period, offset, true
}

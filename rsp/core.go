package rsp

// CoreState tracks one core's debug-visible state: whether it is still
// live, the resume action last applied to it, the last reason it
// stopped, and whether that stop has been reported to GDB yet.
type CoreState struct {
	live         bool
	resumeType   ResumeAction
	stopReason   ResumeRes
	stopReported bool
}

func newCoreState() CoreState {
	return CoreState{
		live:       true,
		resumeType: ResumeNone,
		// A core that has never been resumed reports TRAP with no
		// swbreak extra on its first '?', the same mapping a plain
		// single-step stop gets.
		stopReason:   ResumeResStepped,
		stopReported: true,
	}
}

func (c *CoreState) Live() bool                { return c.live }
func (c *CoreState) IsRunning() bool           { return c.resumeType != ResumeNone }
func (c *CoreState) HasUnreportedStop() bool   { return !c.stopReported }
func (c *CoreState) StopReason() ResumeRes     { return c.stopReason }
func (c *CoreState) ResumeType() ResumeAction  { return c.resumeType }
func (c *CoreState) ReportStopReason()         { c.stopReported = true }
func (c *CoreState) SetResumeType(a ResumeAction) { c.resumeType = a }

// SetStopReason records why a core stopped. A result of ResumeResNone
// means the core is still running (no pending stop).
func (c *CoreState) SetStopReason(res ResumeRes) {
	c.stopReason = res
	c.stopReported = res == ResumeResNone
}

func (c *CoreState) kill() { c.live = false }

// CoreManager owns per-core state and the PID<->core-index mapping.
// Core indices are zero-based; PIDs (as seen by GDB) are one-based, so
// PID = coreIndex + 1.
type CoreManager struct {
	cores     []CoreState
	liveCount int
}

// NewCoreManager allocates count cores, all live.
func NewCoreManager(count int) *CoreManager {
	cores := make([]CoreState, count)
	for i := range cores {
		cores[i] = newCoreState()
	}
	return &CoreManager{cores: cores, liveCount: count}
}

func (m *CoreManager) CoreCount() int     { return len(m.cores) }
func (m *CoreManager) LiveCoreCount() int { return m.liveCount }

// PIDToCore converts a GDB PID to a zero-based core index.
func PIDToCore(pid int) int { return pid - 1 }

// CoreToPID converts a zero-based core index to a GDB PID.
func CoreToPID(core int) int { return core + 1 }

// Core returns a pointer to the given core's state. It panics on an
// out-of-range index: the dispatcher only ever forms indices from
// validated PIDs, so an out-of-range index is an internal invariant
// violation, not a recoverable protocol error.
func (m *CoreManager) Core(idx int) *CoreState {
	if idx < 0 || idx >= len(m.cores) {
		panic("rsp: core index out of range")
	}
	return &m.cores[idx]
}

// KillCore marks a core not-live, returning false if it was already
// dead (a no-op in that case).
func (m *CoreManager) KillCore(idx int) bool {
	c := m.Core(idx)
	if !c.live {
		return false
	}
	c.kill()
	m.liveCount--
	return true
}

// Reset re-marks every core live and clears resume state, used by the
// 'R' restart command.
func (m *CoreManager) Reset() {
	for i := range m.cores {
		m.cores[i] = newCoreState()
	}
	m.liveCount = len(m.cores)
}

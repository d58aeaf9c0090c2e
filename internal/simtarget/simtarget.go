// Package simtarget provides a minimal in-memory Target implementation
// used by the rsp package's tests and by cmd/rspd's demo mode. It is
// not part of the RSP protocol engine itself (rsp.Target is
// deliberately a black-box interface); this is one concrete, swappable
// implementation of that interface.
package simtarget

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rspd/stub/rsp"
)

const (
	registerCount = 33 // 32 GPRs + PC
	registerSize  = 4
	pcIndex       = registerCount - 1
)

// Target is a simulated multi-core CPU: a shared byte-addressable
// memory and per-core register files, with resume outcomes driven by a
// scriptable queue (for tests). With nothing scripted (the demo CLI),
// Resume only advances the PC; no instructions are executed.
type Target struct {
	mu sync.Mutex

	mem  map[uint64]byte
	regs [][registerCount]uint64

	cycles uint64
	instrs uint64

	// resumeScript, when non-empty for a core, is consumed one entry per
	// Resume call; it lets tests force specific stop reasons.
	resumeScript [][]rsp.ResumeRes

	syscallNum  []uint64
	syscallArgs [][4]uint64
}

// New allocates a Target with coreCount cores and zeroed memory/registers.
func New(coreCount int) *Target {
	t := &Target{
		mem:          make(map[uint64]byte),
		regs:         make([][registerCount]uint64, coreCount),
		resumeScript: make([][]rsp.ResumeRes, coreCount),
		syscallNum:   make([]uint64, coreCount),
		syscallArgs:  make([][4]uint64, coreCount),
	}
	return t
}

// ScriptResume queues the ResumeRes values Resume will return, in
// order, for the given core; once exhausted, Resume returns
// ResumeResNone (still running) for a continue and ResumeResStepped
// for a step.
func (t *Target) ScriptResume(core int, results ...rsp.ResumeRes) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumeScript[core] = append(t.resumeScript[core], results...)
}

// SetSyscall arms the next SyscallArgs() response for core, used by
// tests that exercise the File-I/O path.
func (t *Target) SetSyscall(core int, num uint64, args [4]uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syscallNum[core] = num
	t.syscallArgs[core] = args
}

func (t *Target) RegisterCount() int { return registerCount }
func (t *Target) RegisterSize() int  { return registerSize }
func (t *Target) CoreCount() int     { return len(t.regs) }

func (t *Target) ReadRegister(core, index int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkReg(core, index); err != nil {
		return 0, err
	}
	return t.regs[core][index], nil
}

func (t *Target) WriteRegister(core, index int, val uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkReg(core, index); err != nil {
		return err
	}
	t.regs[core][index] = val & 0xffffffff
	return nil
}

func (t *Target) checkReg(core, index int) error {
	if core < 0 || core >= len(t.regs) {
		return errors.Errorf("simtarget: core %d out of range", core)
	}
	if index < 0 || index >= registerCount {
		return errors.Errorf("simtarget: register %d out of range", index)
	}
	return nil
}

func (t *Target) ReadMem(addr uint64, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range data {
		data[i] = t.mem[addr+uint64(i)]
	}
	return len(data), nil
}

func (t *Target) WriteMem(addr uint64, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, b := range data {
		t.mem[addr+uint64(i)] = b
	}
	return len(data), nil
}

// Resume pops the next scripted result for core, if any, counting
// cycles/instrs by the slice length either way. With no script queued
// a step reports ResumeResStepped, and a continue reports
// ResumeResNone, i.e. the slice elapsed with the core still running
// (the dispatcher will call Resume again next slice).
func (t *Target) Resume(core int, action rsp.ResumeAction, cycles int) (rsp.ResumeRes, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cycles += uint64(cycles)
	t.instrs += uint64(cycles)
	t.regs[core][pcIndex] += uint64(cycles) * registerSize

	if len(t.resumeScript[core]) == 0 {
		if action == rsp.ResumeStep {
			return rsp.ResumeResStepped, nil
		}
		return rsp.ResumeResNone, nil
	}
	res := t.resumeScript[core][0]
	t.resumeScript[core] = t.resumeScript[core][1:]

	if action == rsp.ResumeStep && res == rsp.ResumeResNone {
		res = rsp.ResumeResStepped
	}
	return res, nil
}

// HaltAll is a no-op here: this demo target has no running goroutine or
// child process to interrupt, so a break byte sent to rspd against it
// has no visible effect. A real Target must make the next Resume return
// ResumeResInterrupted promptly after this is called.
func (t *Target) HaltAll() error { return nil }

func (t *Target) Reset(mode rsp.ResetMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.regs {
		t.regs[i] = [registerCount]uint64{}
	}
	if mode == rsp.ResetCold {
		t.mem = make(map[uint64]byte)
	}
	t.cycles = 0
	t.instrs = 0
	return nil
}

func (t *Target) SyscallArgs(core int) (uint64, [4]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if core < 0 || core >= len(t.regs) {
		return 0, [4]uint64{}, errors.Errorf("simtarget: core %d out of range", core)
	}
	return t.syscallNum[core], t.syscallArgs[core], nil
}

func (t *Target) SetSyscallResult(core int, ret uint64, errno uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if core < 0 || core >= len(t.regs) {
		return errors.Errorf("simtarget: core %d out of range", core)
	}
	t.regs[core][0] = ret
	t.regs[core][1] = errno
	return nil
}

func (t *Target) CycleCount() uint64 { return t.cycles }
func (t *Target) InstrCount() uint64 { return t.instrs }

var _ rsp.Target = (*Target)(nil)

package rsp

import (
	"strconv"
	"strings"
	"time"
)

type vContAction struct {
	action ResumeAction
	sig    int
	scope  *PTID
}

// parseVCont parses the part of a vCont packet after the literal
// "vCont", e.g. ";c" or ";c:p1.1;s:p2.1".
func parseVCont(rest string) ([]vContAction, error) {
	rest = strings.TrimPrefix(rest, ";")
	var actions []vContAction
	for _, tok := range strings.Split(rest, ";") {
		if tok == "" {
			continue
		}
		actPart, scopePart, hasScope := strings.Cut(tok, ":")
		if actPart == "" {
			return nil, ErrMalformedPacket
		}

		var act vContAction
		switch actPart[0] {
		case 'c':
			act.action = ResumeContinue
		case 's':
			act.action = ResumeStep
		case 't':
			act.action = ResumeNone
		case 'C', 'S':
			if actPart[0] == 'C' {
				act.action = ResumeContinue
			} else {
				act.action = ResumeStep
			}
			if sig, err := strconv.ParseInt(actPart[1:], 16, 64); err == nil {
				act.sig = int(sig)
			}
		default:
			return nil, ErrMalformedPacket
		}

		if hasScope {
			p, err := ParsePTID(scopePart, true)
			if err != nil {
				return nil, err
			}
			act.scope = &p
		}
		actions = append(actions, act)
	}
	if len(actions) == 0 {
		return nil, ErrMalformedPacket
	}
	return actions, nil
}

func vContMatches(scope *PTID, pid int) bool {
	if scope == nil {
		return true
	}
	return scope.PID == -1 || scope.PID == 0 || scope.PID == pid
}

// cmdMultiLetter handles 'v' multi-letter verbs.
func (d *Dispatcher) cmdMultiLetter(arg []byte) ([]byte, error) {
	s := string(arg)
	switch {
	case s == "Cont?":
		return []byte("vCont;c;C;s;S;t"), nil
	case strings.HasPrefix(s, "Cont"):
		return nil, d.doVCont(s[len("Cont"):])
	case strings.HasPrefix(s, "Kill"):
		return d.cmdKill()
	case s == "MustReplyEmpty":
		return replyEmpty, nil
	case strings.HasPrefix(s, "Attach"):
		return d.cmdVAttach(strings.TrimPrefix(s[len("Attach"):], ";"))
	case strings.HasPrefix(s, "Run"):
		return d.cmdVRun()
	default:
		return replyEmpty, nil
	}
}

func (d *Dispatcher) cmdVAttach(pidHex string) ([]byte, error) {
	pid, err := strconv.ParseInt(pidHex, 16, 64)
	if err != nil {
		return replyE01, nil
	}
	core := PIDToCore(int(pid))
	if core < 0 || core >= d.cores.CoreCount() || !d.cores.Core(core).Live() {
		return replyE01, nil
	}
	d.currentPTID = PTID{PID: int(pid), TID: 1}
	cs := d.cores.Core(core)
	cs.ReportStopReason()
	return d.formatStopReply(core), nil
}

func (d *Dispatcher) cmdVRun() ([]byte, error) {
	if err := d.target.Reset(ResetWarm); err != nil {
		return replyE01, nil
	}
	d.cores.Reset()
	d.matches.ClearAll()
	d.currentPTID = DefaultPTID

	cs := d.cores.Core(0)
	cs.SetStopReason(ResumeResStepped)
	cs.ReportStopReason()
	return d.formatStopReply(0), nil
}

// legacyResume maps the legacy 'c'/'s' packets onto vCont semantics
// for the current thread.
func (d *Dispatcher) legacyResume(action ResumeAction, arg []byte) error {
	core := d.currentCore()
	if len(arg) > 0 {
		if addr, err := ParseHexUint64(string(arg)); err == nil {
			pcIndex := d.target.RegisterCount() - 1
			if err := d.target.WriteRegister(core, pcIndex, addr); err != nil {
				return d.codec.SendPacket(replyE01)
			}
		}
	}
	if !d.cores.Core(core).Live() {
		return d.replyNoMatchingThread()
	}
	d.cores.Core(core).SetResumeType(action)
	return d.runResumeLoop()
}

// doVCont applies a vCont packet's per-thread actions and runs the
// resume loop.
func (d *Dispatcher) doVCont(rest string) error {
	actions, err := parseVCont(rest)
	if err != nil {
		return d.codec.SendPacket(replyE01)
	}

	matchedAny := false
	for i := 0; i < d.cores.CoreCount(); i++ {
		cs := d.cores.Core(i)
		if !cs.Live() {
			continue
		}
		pid := CoreToPID(i)
		for _, act := range actions {
			if vContMatches(act.scope, pid) {
				cs.SetResumeType(act.action)
				matchedAny = true
				break
			}
		}
	}
	if !matchedAny {
		return d.replyNoMatchingThread()
	}

	return d.runResumeLoop()
}

// runResumeLoop is the core resume algorithm:
// repeatedly execute a bounded instruction slice on every running
// core, poll the transport for a break byte between slices, enforce
// the continue timeout, and stop when nothing is running, the exit
// flag is set, or (in AllStop) any core has an unreported stop.
func (d *Dispatcher) runResumeLoop() error {
	start := time.Now()

	for {
		anyRunning := false

		for i := 0; i < d.cores.CoreCount(); i++ {
			cs := d.cores.Core(i)
			if !cs.Live() || !cs.IsRunning() {
				continue
			}
			anyRunning = true

			action := cs.ResumeType()
			res, err := d.target.Resume(i, action, runSamplePeriod)
			if err != nil {
				d.log.WithError(err).Warn("rsp: target resume failed")
				cs.SetStopReason(ResumeResFailed)
				cs.SetResumeType(ResumeNone)
				continue
			}

			switch res {
			case ResumeResNone:
				// still running; revisit next slice
			case ResumeResSyscall:
				if err := d.handleSyscall(i); err != nil {
					return err
				}
				switch {
				case cs.HasUnreportedStop() && cs.StopReason() == ResumeResExited:
					// handleSyscall already recorded an exit(); leave
					// the core stopped rather than resuming it.
					cs.SetResumeType(ResumeNone)
					if d.cfg.KillCoreOnExit {
						d.cores.KillCore(i)
					}
				case d.pendingCtrlC:
					d.pendingCtrlC = false
					cs.SetStopReason(ResumeResInterrupted)
					cs.SetResumeType(ResumeNone)
				default:
					cs.SetResumeType(action)
				}
			case ResumeResExited:
				if _, known := d.lastExitCode[i]; !known {
					if _, args, err := d.target.SyscallArgs(i); err == nil {
						d.lastExitCode[i] = args[0]
					}
				}
				cs.SetStopReason(res)
				cs.SetResumeType(ResumeNone)
				if d.cfg.KillCoreOnExit {
					d.cores.KillCore(i)
				}
			default:
				cs.SetStopReason(res)
				cs.SetResumeType(ResumeNone)
			}
		}

		if brk, err := d.transport.PollBreak(); err == nil && brk {
			d.target.HaltAll()
		}

		if d.timeout > 0 && time.Since(start) > d.timeout {
			for i := 0; i < d.cores.CoreCount(); i++ {
				cs := d.cores.Core(i)
				if cs.Live() && cs.IsRunning() {
					cs.SetStopReason(ResumeResTimeout)
					cs.SetResumeType(ResumeNone)
				}
			}
		}

		if d.stopMode == NonStop && d.anyUnreportedStop() {
			if err := d.emitNonStopNotifications(); err != nil {
				return err
			}
		}

		if !anyRunning || d.exitFlag.Load() {
			break
		}
		if d.stopMode == AllStop && d.anyUnreportedStop() {
			break
		}
	}

	if d.stopMode == AllStop {
		if i, ok := d.firstUnreportedStop(); ok {
			cs := d.cores.Core(i)
			cs.ReportStopReason()
			d.currentPTID = PTID{PID: CoreToPID(i), TID: 1}
			if err := d.codec.SendPacket(d.formatStopReply(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) anyUnreportedStop() bool {
	for i := 0; i < d.cores.CoreCount(); i++ {
		if d.cores.Core(i).HasUnreportedStop() {
			return true
		}
	}
	return false
}

func (d *Dispatcher) firstUnreportedStop() (int, bool) {
	for i := 0; i < d.cores.CoreCount(); i++ {
		if d.cores.Core(i).HasUnreportedStop() {
			return i, true
		}
	}
	return 0, false
}

func (d *Dispatcher) emitNonStopNotifications() error {
	for i := 0; i < d.cores.CoreCount(); i++ {
		cs := d.cores.Core(i)
		if !cs.HasUnreportedStop() {
			continue
		}
		cs.ReportStopReason()
		notif := append([]byte("Stop:"), d.formatStopReply(i)...)
		if err := d.codec.SendNotification(notif); err != nil {
			return err
		}
	}
	return nil
}

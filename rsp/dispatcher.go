package rsp

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// KillBehaviour controls how the dispatcher reacts to a 'k' (kill) packet.
type KillBehaviour int

const (
	ResetOnKill KillBehaviour = iota
	ExitOnKill
)

// StopMode is GDB's operating mode: AllStop halts every core when any
// one stops; NonStop lets others keep running and delivers stops as
// asynchronous '%Stop' notifications.
type StopMode int

const (
	AllStop StopMode = iota
	NonStop
)

// runSamplePeriod is the instruction-count slice the resume loop asks
// the target to execute between transport polls.
const runSamplePeriod = 10000

// Config bundles the dispatcher's boundary-supplied settings: CLI
// parsing, model loading, and log setup all happen outside this
// package and hand the dispatcher a finished Config plus its
// Target/Transport.
type Config struct {
	KillBehaviour  KillBehaviour
	KillCoreOnExit bool
	Timeout        time.Duration
	Log            *logrus.Entry
}

// Dispatcher is the RSP protocol engine: it exclusively owns the
// reusable Packet, the CoreManager, and the MatchpointRegistry for its
// lifetime, and borrows Target/Transport.
type Dispatcher struct {
	target    Target
	transport Transport
	codec     *Codec
	pkt       *Packet
	cores     *CoreManager
	matches   *MatchpointRegistry
	cfg       Config
	log       *logrus.Entry

	exitFlag        atomic.Bool
	handlingSyscall atomic.Bool

	haveMultiprocess bool
	stopMode         StopMode
	currentPTID      PTID
	nextProcessToReport int
	timeout          time.Duration
	lastExitCode     map[int]uint64
	pendingCtrlC     bool
}

// New builds a Dispatcher around target/transport. cfg.Log may be nil,
// in which case a standard logrus logger is used.
func New(target Target, transport Transport, cfg Config) *Dispatcher {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	regBytes := target.RegisterCount() * target.RegisterSize()
	pkt := NewPacket(2*regBytes + 1)

	d := &Dispatcher{
		target:       target,
		transport:    transport,
		pkt:          pkt,
		codec:        NewCodec(transport, pkt),
		cores:        NewCoreManager(target.CoreCount()),
		matches:      NewMatchpointRegistry(),
		cfg:          cfg,
		log:          cfg.Log,
		currentPTID:  DefaultPTID,
		timeout:      cfg.Timeout,
		lastExitCode: make(map[int]uint64),
	}
	return d
}

// Serve runs the outer loop: read a packet, dispatch it, write a
// reply, until the transport closes or the exit flag is set. It
// returns nil on a clean detach/disconnect and a non-nil error on a
// transport failure.
func (d *Dispatcher) Serve() error {
	for !d.exitFlag.Load() {
		res, err := d.codec.ReadPacket()
		if err != nil {
			return err
		}
		switch res {
		case RecvDisconnected:
			return nil
		case RecvBreak:
			// A break seen outside an active resume cycle has nothing
			// to interrupt; GDB only sends it mid-continue.
			continue
		}

		reply, err := d.dispatch(append([]byte(nil), d.pkt.Bytes()...))
		if err != nil {
			d.log.WithError(err).Warn("rsp: request handling error")
			reply = replyE01
		}
		if reply == nil {
			continue // reply already sent directly (e.g. a resume cycle)
		}
		if err := d.codec.SendPacket(reply); err != nil {
			return err
		}
	}
	return nil
}

// dispatch decodes one payload's command letter and returns the reply
// to send, or nil if the handler already sent its own reply (used by
// vCont/resume, which may emit several packets).
func (d *Dispatcher) dispatch(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return replyEmpty, nil
	}

	d.log.WithField("cmd", string(payload)).Debug("rsp: dispatch")

	switch payload[0] {
	case '?':
		return d.cmdLastStop(), nil
	case 'g':
		return d.cmdReadAllRegs()
	case 'G':
		return d.cmdWriteAllRegs(payload[1:])
	case 'p':
		return d.cmdReadReg(payload[1:])
	case 'P':
		return d.cmdWriteReg(payload[1:])
	case 'm':
		return d.cmdReadMem(payload[1:])
	case 'M':
		return d.cmdWriteMem(payload[1:])
	case 'X':
		return d.cmdWriteMemBin(payload[1:])
	case 'Z':
		return d.cmdInsertMatchpoint(payload[1:])
	case 'z':
		return d.cmdRemoveMatchpoint(payload[1:])
	case 'H':
		return d.cmdSetThread(payload[1:])
	case 'T':
		return d.cmdThreadAlive(payload[1:])
	case 'q':
		return d.cmdQuery(payload[1:])
	case 'Q':
		return d.cmdSet(payload[1:])
	case 'v':
		return d.cmdMultiLetter(payload[1:])
	case 'c':
		return nil, d.legacyResume(ResumeContinue, payload[1:])
	case 's':
		return nil, d.legacyResume(ResumeStep, payload[1:])
	case 'k':
		return d.cmdKill()
	case 'D':
		return d.cmdDetach()
	case 'F':
		return d.cmdSyscallReply(payload[1:])
	case 'R':
		return d.cmdRestart()
	default:
		return replyEmpty, nil
	}
}

func (d *Dispatcher) currentCore() int {
	pid := d.currentPTID.PID
	if pid <= 0 {
		pid = DefaultPTID.PID
	}
	return PIDToCore(pid)
}

func (d *Dispatcher) cmdLastStop() []byte {
	core := d.currentCore()
	cs := d.cores.Core(core)
	cs.ReportStopReason()
	return d.formatStopReply(core)
}

func (d *Dispatcher) cmdReadAllRegs() ([]byte, error) {
	core := d.currentCore()
	n := d.target.RegisterCount()
	size := d.target.RegisterSize()
	out := make([]byte, 0, n*size*2)
	for i := 0; i < n; i++ {
		val, err := d.target.ReadRegister(core, i)
		if err != nil {
			return replyE01, nil
		}
		out = append(out, []byte(RegValToHex(val, size, true))...)
	}
	return out, nil
}

func (d *Dispatcher) cmdWriteAllRegs(arg []byte) ([]byte, error) {
	core := d.currentCore()
	n := d.target.RegisterCount()
	size := d.target.RegisterSize()
	hexStr := string(arg)
	want := n * size * 2
	if len(hexStr) < want {
		return replyE01, nil
	}
	for i := 0; i < n; i++ {
		chunk := hexStr[i*size*2 : (i+1)*size*2]
		val, err := HexToRegVal(chunk, true)
		if err != nil {
			return replyE01, nil
		}
		if err := d.target.WriteRegister(core, i, val); err != nil {
			return replyE01, nil
		}
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdReadReg(arg []byte) ([]byte, error) {
	idx, err := ParseHexUint64(string(arg))
	if err != nil || int(idx) >= d.target.RegisterCount() {
		return replyE01, nil
	}
	val, err := d.target.ReadRegister(d.currentCore(), int(idx))
	if err != nil {
		return replyE01, nil
	}
	return []byte(RegValToHex(val, d.target.RegisterSize(), true)), nil
}

func (d *Dispatcher) cmdWriteReg(arg []byte) ([]byte, error) {
	idxStr, valStr, ok := cutByte(arg, '=')
	if !ok {
		return replyE01, nil
	}
	idx, err := ParseHexUint64(idxStr)
	if err != nil || int(idx) >= d.target.RegisterCount() {
		return replyE01, nil
	}
	val, err := HexToRegVal(valStr, true)
	if err != nil {
		return replyE01, nil
	}
	if err := d.target.WriteRegister(d.currentCore(), int(idx), val); err != nil {
		return replyE01, nil
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdReadMem(arg []byte) ([]byte, error) {
	addrStr, lenStr, ok := cutByte(arg, ',')
	if !ok {
		return replyE01, nil
	}
	addr, err := ParseHexUint64(addrStr)
	if err != nil {
		return replyE01, nil
	}
	length, err := ParseHexUint64(lenStr)
	if err != nil {
		return replyE01, nil
	}
	buf := make([]byte, length)
	if _, err := d.target.ReadMem(addr, buf); err != nil {
		return replyE01, nil
	}
	return []byte(HexEncode(buf)), nil
}

func (d *Dispatcher) cmdWriteMem(arg []byte) ([]byte, error) {
	head, hexData, ok := cutByte(arg, ':')
	if !ok {
		return replyE01, nil
	}
	addrStr, lenStr, ok := cutByte([]byte(head), ',')
	if !ok {
		return replyE01, nil
	}
	addr, err := ParseHexUint64(addrStr)
	if err != nil {
		return replyE01, nil
	}
	length, err := ParseHexUint64(lenStr)
	if err != nil {
		return replyE01, nil
	}
	data, err := HexDecode(hexData)
	if err != nil || uint64(len(data)) != length {
		return replyE01, nil
	}
	if _, err := d.target.WriteMem(addr, data); err != nil {
		return replyE01, nil
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdWriteMemBin(arg []byte) ([]byte, error) {
	head, bin, ok := cutByte(arg, ':')
	if !ok {
		return replyE01, nil
	}
	addrStr, lenStr, ok := cutByte([]byte(head), ',')
	if !ok {
		return replyE01, nil
	}
	addr, err := ParseHexUint64(addrStr)
	if err != nil {
		return replyE01, nil
	}
	length, err := ParseHexUint64(lenStr)
	if err != nil {
		return replyE01, nil
	}
	if uint64(len(bin)) != length {
		return replyE01, nil
	}
	if _, err := d.target.WriteMem(addr, []byte(bin)); err != nil {
		return replyE01, nil
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdInsertMatchpoint(arg []byte) ([]byte, error) {
	kind, addr, size, err := parseMatchpointArgs(arg)
	if err != nil {
		return replyE01, nil
	}
	ok, err := d.matches.Insert(d.target, kind, addr, size)
	if err != nil || !ok {
		return replyE01, nil
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdRemoveMatchpoint(arg []byte) ([]byte, error) {
	kind, addr, _, err := parseMatchpointArgs(arg)
	if err != nil {
		return replyE01, nil
	}
	ok, err := d.matches.Remove(d.target, kind, addr)
	if err != nil {
		return replyE01, nil
	}
	if !ok {
		// Removing an absent matchpoint is a no-op; GDB may legitimately
		// resend a z packet it's unsure was received, so this still
		// replies OK rather than an error.
		return replyOK, nil
	}
	return replyOK, nil
}

func parseMatchpointArgs(arg []byte) (MatchType, uint64, int, error) {
	parts := splitByte(arg, ',')
	if len(parts) != 3 {
		return 0, 0, 0, ErrMalformedPacket
	}
	typeNum, err := ParseHexUint64(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	addr, err := ParseHexUint64(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}
	kindNum, err := ParseHexUint64(parts[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return MatchType(typeNum), addr, int(kindNum), nil
}

func (d *Dispatcher) cmdSetThread(arg []byte) ([]byte, error) {
	if len(arg) == 0 {
		return replyE01, nil
	}
	op := arg[0]
	ptid, err := ParsePTID(string(arg[1:]), d.haveMultiprocess)
	if err != nil {
		return replyE01, nil
	}
	if ptid.PID > d.cores.CoreCount() {
		return replyE01, nil
	}
	switch op {
	case 'g', 'c':
		d.currentPTID = ptid
		return replyOK, nil
	default:
		return replyE01, nil
	}
}

func (d *Dispatcher) cmdThreadAlive(arg []byte) ([]byte, error) {
	ptid, err := ParsePTID(string(arg), d.haveMultiprocess)
	if err != nil {
		return replyE01, nil
	}
	core := PIDToCore(ptid.PID)
	if core < 0 || core >= d.cores.CoreCount() || !d.cores.Core(core).Live() {
		return replyError(1), nil
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdKill() ([]byte, error) {
	switch d.cfg.KillBehaviour {
	case ExitOnKill:
		d.exitFlag.Store(true)
	case ResetOnKill:
		if err := d.target.Reset(ResetWarm); err != nil {
			return replyE01, nil
		}
		d.cores.Reset()
		d.matches.ClearAll()
	}
	return replyOK, nil
}

func (d *Dispatcher) cmdDetach() ([]byte, error) {
	d.exitFlag.Store(true)
	return replyOK, nil
}

func (d *Dispatcher) cmdRestart() ([]byte, error) {
	// The hex argument is ignored; restart always performs a warm reset.
	if err := d.target.Reset(ResetWarm); err != nil {
		return replyE01, nil
	}
	d.cores.Reset()
	d.matches.ClearAll()
	d.currentPTID = DefaultPTID
	return replyEmpty, nil
}

func (d *Dispatcher) formatStopReply(core int) []byte {
	cs := d.cores.Core(core)
	pid := CoreToPID(core)
	ptid := PTID{PID: pid, TID: 1}

	if cs.StopReason() == ResumeResExited {
		code := d.lastExitCode[core]
		return []byte(fmt.Sprintf("W%02x;process:%02x", code, pid))
	}

	sig, extra := stopSignalAndExtra(cs.StopReason())
	return []byte(fmt.Sprintf("T%02xthread:%s;core:%x;%s", int(sig), ptid.Render(d.haveMultiprocess), core, extra))
}

func stopSignalAndExtra(res ResumeRes) (TargetSignal, string) {
	switch res {
	case ResumeResInterrupted:
		return SignalInt, ""
	case ResumeResBreakpoint:
		return SignalTrap, "swbreak:;"
	case ResumeResStepped:
		return SignalTrap, ""
	case ResumeResTimeout:
		return SignalXCPU, ""
	default:
		return SignalUnknown, ""
	}
}

// cutByte splits on the first occurrence of sep, GDB-field style.
func cutByte(s []byte, sep byte) (string, string, bool) {
	for i, b := range s {
		if b == sep {
			return string(s[:i]), string(s[i+1:]), true
		}
	}
	return string(s), "", false
}

func splitByte(s []byte, sep byte) []string {
	var out []string
	start := 0
	for i, b := range s {
		if b == sep {
			out = append(out, string(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, string(s[start:]))
	return out
}

package rsp

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Syscall numbers the target ABI uses, following a RISC-V Linux
// syscall table convention. Unrecognized numbers fall back to a
// generic 4-argument "syscall" File-I/O request name.
const (
	sysExit      = 93
	sysExitGroup = 94
	sysRead      = 63
	sysWrite     = 64
	sysOpen      = 1024
	sysClose     = 57
	sysLseek     = 62
)

var syscallNames = map[uint64]string{
	sysExit:      "exit",
	sysExitGroup: "exit_group",
	sysRead:      "read",
	sysWrite:     "write",
	sysOpen:      "open",
	sysClose:     "close",
	sysLseek:     "lseek",
}

func syscallName(num uint64) string {
	if name, ok := syscallNames[num]; ok {
		return name
	}
	return "syscall"
}

func syscallArgCount(name string) int {
	switch name {
	case "close":
		return 1
	case "read", "write", "open", "lseek":
		return 3
	default:
		return 4
	}
}

// maxCStringLen bounds readCString's scan so a corrupt or malicious
// target can't make the dispatcher walk memory forever looking for a
// NUL it never wrote.
const maxCStringLen = 4096

// readCString scans target memory at addr one byte at a time until a
// NUL terminator, returning the string's length including that NUL.
// GDB's File-I/O "open" request carries its pathname argument as
// "pathptr/len" rather than a bare pointer, since the host has to know
// how many bytes to fetch from target memory before it can open
// anything.
func readCString(target Target, addr uint64) (int, error) {
	var b [1]byte
	for n := 1; ; n++ {
		if n > maxCStringLen {
			return 0, errors.Errorf("rsp: C string at 0x%x exceeds %d bytes", addr, maxCStringLen)
		}
		if _, err := target.ReadMem(addr+uint64(n-1), b[:]); err != nil {
			return 0, err
		}
		if b[0] == 0 {
			return n, nil
		}
	}
}

// handleSyscall implements the File-I/O request/reply exchange: it
// asserts no syscall is already in flight (a nested syscall is an
// internal invariant violation), translates the target's pending
// syscall into a GDB File-I/O "F" request, and blocks (this dispatcher
// is single-threaded) until the host replies.
// The exit/exit_group special case never talks to the host at all.
func (d *Dispatcher) handleSyscall(core int) error {
	if d.handlingSyscall.Load() {
		d.log.Fatal("rsp: nested syscall request (internal invariant violation)")
	}
	d.handlingSyscall.Store(true)
	defer d.handlingSyscall.Store(false)

	num, args, err := d.target.SyscallArgs(core)
	if err != nil {
		return err
	}
	name := syscallName(num)

	if name == "exit" || name == "exit_group" {
		d.lastExitCode[core] = args[0]
		d.cores.Core(core).SetStopReason(ResumeResExited)
		return nil
	}

	argc := syscallArgCount(name)
	parts := make([]string, 0, argc+1)
	parts = append(parts, name)
	if name == "open" {
		length, err := readCString(d.target, args[0])
		if err != nil {
			return err
		}
		parts = append(parts, fmt.Sprintf("%x/%x", args[0], length))
		for i := 1; i < argc; i++ {
			parts = append(parts, fmt.Sprintf("%x", args[i]))
		}
	} else {
		for i := 0; i < argc; i++ {
			parts = append(parts, fmt.Sprintf("%x", args[i]))
		}
	}
	req := "F" + strings.Join(parts, ",")

	if err := d.codec.SendPacket([]byte(req)); err != nil {
		return err
	}

	for {
		res, err := d.codec.ReadPacket()
		if err != nil {
			return err
		}
		switch res {
		case RecvDisconnected:
			return io.EOF
		case RecvBreak:
			continue
		}

		payload := d.pkt.Bytes()
		if len(payload) == 0 || payload[0] != 'F' {
			// Only an F-reply can legitimately arrive while a syscall
			// exchange is outstanding; anything else is a protocol
			// error from a confused peer.
			continue
		}

		ret, errno, ctrlC, err := parseSyscallReply(string(payload[1:]))
		if err != nil {
			return err
		}
		if err := d.target.SetSyscallResult(core, ret, errno); err != nil {
			return err
		}
		if ctrlC {
			d.pendingCtrlC = true
		}
		return nil
	}
}

// cmdSyscallReply handles an 'F' packet arriving via the normal
// dispatch loop. In correct operation every F-reply is consumed
// directly inside handleSyscall's own read loop; one reaching here
// means nothing is awaiting it.
func (d *Dispatcher) cmdSyscallReply(arg []byte) ([]byte, error) {
	return replyE01, nil
}

func parseSyscallReply(s string) (ret uint64, errno uint64, ctrlC bool, err error) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 || fields[0] == "" {
		return 0, 0, false, ErrMalformedPacket
	}

	retVal, err := strconv.ParseInt(fields[0], 16, 64)
	if err != nil {
		return 0, 0, false, err
	}
	ret = uint64(retVal)

	if len(fields) >= 2 && fields[1] != "" {
		e, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return 0, 0, false, err
		}
		errno = e
	}
	if len(fields) >= 3 && fields[2] == "C" {
		ctrlC = true
	}
	return ret, errno, ctrlC, nil
}

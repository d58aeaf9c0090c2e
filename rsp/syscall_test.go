package rsp

import (
	"fmt"
	"strings"
	"testing"
)

func TestSyscallNameFallback(t *testing.T) {
	if got := syscallName(sysWrite); got != "write" {
		t.Fatalf("got %q want write", got)
	}
	if got := syscallName(999999); got != "syscall" {
		t.Fatalf("got %q want syscall", got)
	}
}

func TestSyscallArgCount(t *testing.T) {
	cases := map[string]int{"close": 1, "write": 3, "open": 3, "syscall": 4}
	for name, want := range cases {
		if got := syscallArgCount(name); got != want {
			t.Fatalf("%s: got %d want %d", name, got, want)
		}
	}
}

func TestParseSyscallReply(t *testing.T) {
	ret, errno, ctrlC, err := parseSyscallReply("4,0")
	if err != nil {
		t.Fatal(err)
	}
	if ret != 4 || errno != 0 || ctrlC {
		t.Fatalf("got ret=%d errno=%d ctrlC=%v", ret, errno, ctrlC)
	}

	ret, errno, ctrlC, err = parseSyscallReply("zz,5,C")
	if err == nil {
		t.Fatal("expected error on unparseable hex value")
	}
	_ = ret
	_ = errno
	_ = ctrlC
}

func TestHandleSyscallExitStopsCoreWithoutHostRoundTrip(t *testing.T) {
	d, target, tr := newTestDispatcher(1, "")
	target.syscallNum[0] = sysExit
	target.syscallArgs[0] = [4]uint64{7, 0, 0, 0}

	if err := d.handleSyscall(0); err != nil {
		t.Fatal(err)
	}
	if tr.out.Len() != 0 {
		t.Fatalf("expected no host round trip for exit, got %q", tr.out.String())
	}
	if d.cores.Core(0).StopReason() != ResumeResExited {
		t.Fatal("expected core marked exited")
	}
	if d.lastExitCode[0] != 7 {
		t.Fatalf("got exit code %d want 7", d.lastExitCode[0])
	}
}

func TestHandleSyscallWriteRoundTrip(t *testing.T) {
	// the dispatcher's Fwrite request expects an ack, then a host reply "Fa,0".
	d, target, tr := newTestDispatcher(1, "+"+wireOf(t, "Fa,0"))
	target.syscallNum[0] = sysWrite
	target.syscallArgs[0] = [4]uint64{1, 0x2000, 10, 0}

	if err := d.handleSyscall(0); err != nil {
		t.Fatal(err)
	}

	sent := tr.out.String()
	if !strings.Contains(sent, "write") {
		t.Fatalf("expected a Fwrite request, got %q", sent)
	}
	if target.syscallRet[0] != 0xa || target.syscallErrno[0] != 0 {
		t.Fatalf("got ret=%x errno=%x", target.syscallRet[0], target.syscallErrno[0])
	}
}

func TestHandleSyscallOpenUsesPathPtrLen(t *testing.T) {
	d, target, tr := newTestDispatcher(1, "+"+wireOf(t, "F3,0"))
	target.syscallNum[0] = sysOpen
	target.syscallArgs[0] = [4]uint64{0x4000, 0x241, 0x1b6, 0}

	path := "/tmp/target.bin"
	for i, b := range []byte(path) {
		target.mem[0x4000+uint64(i)] = b
	}
	target.mem[0x4000+uint64(len(path))] = 0

	if err := d.handleSyscall(0); err != nil {
		t.Fatal(err)
	}

	sent := tr.out.String()
	want := fmt.Sprintf("open,4000/%x", len(path)+1)
	if !strings.Contains(sent, want) {
		t.Fatalf("got %q, want it to contain %q", sent, want)
	}
	if target.syscallRet[0] != 3 || target.syscallErrno[0] != 0 {
		t.Fatalf("got ret=%x errno=%x", target.syscallRet[0], target.syscallErrno[0])
	}
}

func TestReadCStringStopsAtNUL(t *testing.T) {
	target := newFakeTarget(1)
	for i, b := range []byte("hi") {
		target.mem[0x100+uint64(i)] = b
	}
	target.mem[0x102] = 0

	n, err := readCString(target, 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("got %d want 3", n)
	}
}

func TestReadCStringBoundsUnterminatedScan(t *testing.T) {
	target := newFakeTarget(1)
	for i := 0; i < maxCStringLen+1; i++ {
		target.mem[0x200+uint64(i)] = 'a'
	}

	if _, err := readCString(target, 0x200); err == nil {
		t.Fatal("expected an error for an unterminated string")
	}
}

func TestHandleSyscallCtrlCReply(t *testing.T) {
	d, target, _ := newTestDispatcher(1, "+"+wireOf(t, "F0,0,C"))
	target.syscallNum[0] = sysRead
	target.syscallArgs[0] = [4]uint64{0, 0x3000, 4, 0}

	if err := d.handleSyscall(0); err != nil {
		t.Fatal(err)
	}
	if !d.pendingCtrlC {
		t.Fatal("expected pendingCtrlC set from a C-flagged reply")
	}
}

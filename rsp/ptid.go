package rsp

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PTID is GDB's process/thread identifier pair. Each field is either -1
// ("all"), 0 ("any"), or a positive integer identifying one core/thread.
// This server maps one core to one PID and always reports a single
// thread per core (TID 1).
type PTID struct {
	PID int
	TID int
}

// DefaultPTID is the PTID GDB expects before it has picked a thread:
// the first core, its only thread.
var DefaultPTID = PTID{PID: 1, TID: 1}

// AllPTID matches every process/thread.
var AllPTID = PTID{PID: -1, TID: -1}

// ParsePTID parses a GDB thread-id string. With multiprocess support the
// wire form is "pPID.TID" or "pPID" (TID defaults to -1, "all threads of
// PID"); without it, the string is a bare TID and PID is implied to be
// DefaultPTID.PID. PID/TID of "-1" means "all", "0" means "any".
func ParsePTID(s string, multiprocess bool) (PTID, error) {
	if !strings.HasPrefix(s, "p") {
		tid, err := parsePTIDField(s)
		if err != nil {
			return PTID{}, err
		}
		return PTID{PID: DefaultPTID.PID, TID: tid}, nil
	}

	rest := s[1:]
	pidStr, tidStr, hasDot := strings.Cut(rest, ".")

	pid, err := parsePTIDField(pidStr)
	if err != nil {
		return PTID{}, err
	}

	tid := -1
	if hasDot {
		tid, err = parsePTIDField(tidStr)
		if err != nil {
			return PTID{}, err
		}
	}

	return PTID{PID: pid, TID: tid}, nil
}

func parsePTIDField(s string) (int, error) {
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "rsp: invalid ptid field %q", s)
	}
	if v < -1 {
		return 0, errors.Errorf("rsp: ptid field %q out of range", s)
	}
	return int(v), nil
}

// String renders the PTID in its multiprocess form, "pPID.TID"; use
// Render for the bare-TID form.
func (p PTID) String() string {
	return p.render(true)
}

// Render renders the PTID, omitting the "pPID." prefix when
// multiprocess is false (for clients that never advertised support).
func (p PTID) Render(multiprocess bool) string {
	return p.render(multiprocess)
}

func (p PTID) render(multiprocess bool) string {
	if !multiprocess {
		return ptidFieldString(p.TID)
	}
	return "p" + ptidFieldString(p.PID) + "." + ptidFieldString(p.TID)
}

func ptidFieldString(v int) string {
	if v < 0 {
		return "-1"
	}
	return strconv.FormatInt(int64(v), 16)
}

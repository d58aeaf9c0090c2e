package rsp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// monitorHelp lists the verbs handleMonitor understands, echoed by the
// "help" verb itself.
const monitorHelp = "monitor commands: help, reset [cold|warm], exit, set <param> <value>, show <param>, timeout <seconds>, cyclecount, instrcount"

// handleMonitor decodes a qRcmd payload (hex-encoded ASCII) and runs
// the requested "monitor" verb, streaming any text output as O-prefixed
// hex packets terminated by a final "OK" or "E01" packet. It returns a
// non-nil error only on a transport failure; monitor-level problems are
// reported to GDB via the final E01 packet, not a Go error.
func (d *Dispatcher) handleMonitor(hexCmd string) error {
	cmd, err := HexToAscii(hexCmd)
	if err != nil {
		return d.sendMonitorResult(false)
	}

	fields := strings.Fields(strings.TrimSpace(cmd))
	if len(fields) == 0 {
		return d.sendMonitorResult(false)
	}

	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "help":
		if err := d.sendMonitorText(monitorHelp); err != nil {
			return err
		}
		return d.sendMonitorResult(true)

	case "reset":
		mode := ResetWarm
		if len(args) > 0 && args[0] == "cold" {
			mode = ResetCold
		}
		if err := d.target.Reset(mode); err != nil {
			return d.sendMonitorResult(false)
		}
		d.cores.Reset()
		d.matches.ClearAll()
		return d.sendMonitorResult(true)

	case "exit":
		d.exitFlag.Store(true)
		return d.sendMonitorResult(true)

	case "set":
		return d.monitorSet(args)

	case "show":
		return d.monitorShow(args)

	case "timeout":
		if len(args) != 1 {
			return d.sendMonitorResult(false)
		}
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs < 0 {
			return d.sendMonitorResult(false)
		}
		d.timeout = time.Duration(secs) * time.Second
		return d.sendMonitorResult(true)

	case "cyclecount":
		if err := d.sendMonitorText(fmt.Sprintf("%d", d.target.CycleCount())); err != nil {
			return err
		}
		return d.sendMonitorResult(true)

	case "instrcount":
		if err := d.sendMonitorText(fmt.Sprintf("%d", d.target.InstrCount())); err != nil {
			return err
		}
		return d.sendMonitorResult(true)

	default:
		return d.sendMonitorResult(false)
	}
}

func (d *Dispatcher) monitorSet(args []string) error {
	if len(args) != 2 {
		return d.sendMonitorResult(false)
	}
	switch args[0] {
	case "kill-core-on-exit":
		switch args[1] {
		case "true", "1", "on":
			d.cfg.KillCoreOnExit = true
		case "false", "0", "off":
			d.cfg.KillCoreOnExit = false
		default:
			return d.sendMonitorResult(false)
		}
		return d.sendMonitorResult(true)
	case "trace":
		switch args[1] {
		case "true", "1", "on":
			d.log.Logger.SetLevel(logrus.DebugLevel)
		case "false", "0", "off":
			d.log.Logger.SetLevel(logrus.InfoLevel)
		default:
			return d.sendMonitorResult(false)
		}
		return d.sendMonitorResult(true)
	default:
		return d.sendMonitorResult(false)
	}
}

func (d *Dispatcher) monitorShow(args []string) error {
	if len(args) != 1 {
		return d.sendMonitorResult(false)
	}
	var text string
	switch args[0] {
	case "kill-core-on-exit":
		text = fmt.Sprintf("%v", d.cfg.KillCoreOnExit)
	case "timeout":
		text = d.timeout.String()
	default:
		return d.sendMonitorResult(false)
	}
	if err := d.sendMonitorText(text); err != nil {
		return err
	}
	return d.sendMonitorResult(true)
}

// sendMonitorText streams one line of qRcmd output as an O-prefixed
// hex packet.
func (d *Dispatcher) sendMonitorText(s string) error {
	pkt := NewPacket(d.pkt.Cap())
	pkt.SetRcmdString(s + "\n")
	return d.codec.SendPacket(pkt.Bytes())
}

// sendMonitorResult sends the final "OK" or "E01" that terminates a
// qRcmd exchange.
func (d *Dispatcher) sendMonitorResult(ok bool) error {
	if ok {
		return d.codec.SendPacket(replyOK)
	}
	return d.codec.SendPacket(replyE01)
}

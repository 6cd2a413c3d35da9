package rsp

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tinyupdi/updidbg/internal/ocd"
)

// monitor implements the `qRcmd` text commands GDB's `monitor` front-end
// sends, decoded from hex ASCII. Replies are themselves hex-encoded ASCII,
// rendered in GDB's console.
func (s *Server) monitor(cmd string) (reply string, handled bool) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "reset":
		if err := s.dbg.Reset(); err != nil {
			return hexReply(fmt.Sprintf("reset failed: %v\n", err)), true
		}
		return hexReply("reset\n"), true

	case "inttrap":
		return s.toggleTrap(fields, ocd.TrapINT, "inttrap")
	case "jmptrap":
		return s.toggleTrap(fields, ocd.TrapJMP, "jmptrap")
	case "unk1":
		return s.toggleTrap(fields, ocd.TrapUnknown1, "unk1")
	case "unk2":
		return s.toggleTrap(fields, ocd.TrapUnknown2, "unk2")

	case "step":
		// Legacy single-step: arm STEP and resume without waiting for the
		// halt, unlike the `s` packet's Step() which polls and restores.
		if err := s.dbg.EnableTraps(ocd.TrapStep); err != nil {
			return hexReply(fmt.Sprintf("step failed: %v\n", err)), true
		}
		if err := s.dbg.Run(); err != nil {
			return hexReply(fmt.Sprintf("step failed: %v\n", err)), true
		}
		return hexReply("step\n"), true

	case "regs":
		diag, err := s.dbg.Dump()
		if err != nil {
			return hexReply(fmt.Sprintf("regs failed: %v\n", err)), true
		}
		return hexReply(diag.Text()), true
	}
	return "", false
}

func (s *Server) toggleTrap(fields []string, trap ocd.Traps, name string) (string, bool) {
	if len(fields) < 2 {
		return hexReply(name + ": missing on/off\n"), true
	}
	var err error
	switch fields[1] {
	case "on":
		err = s.dbg.EnableTraps(trap)
	case "off":
		err = s.dbg.DisableTraps(trap)
	default:
		return hexReply(name + ": expected on/off\n"), true
	}
	if err != nil {
		return hexReply(fmt.Sprintf("%s: %v\n", name, err)), true
	}
	return hexReply(fmt.Sprintf("%s %s\n", name, fields[1])), true
}

func hexReply(s string) string {
	return hex.EncodeToString([]byte(s))
}

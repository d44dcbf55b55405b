// Package remote is the robot's wireless command link. A background
// supervisor accepts one peer at a time over RFCOMM (as a serial device) or
// TCP, pumps inbound tokens into a single-slot cell and re-listens after a
// disconnect. The control loop only ever polls.
package remote

import (
	"fmt"
	"unicode"

	"github.com/HansolSon1113/MakerProject/internal/sensors"
)

// Command is an inbound remote command. None means "no command".
type Command int

const (
	None Command = iota
	PowerOff
	PowerOn
	QueryLoadStatus
)

func (c Command) String() string {
	switch c {
	case None:
		return "none"
	case PowerOff:
		return "power-off"
	case PowerOn:
		return "power-on"
	case QueryLoadStatus:
		return "query-load"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Token returns the wire token for c, or 0 for None.
func (c Command) Token() byte {
	switch c {
	case PowerOff:
		return '0'
	case PowerOn:
		return '1'
	case QueryLoadStatus:
		return '2'
	}
	return 0
}

// ParseCommand accepts a wire token ("0", "1", "2") or a command name.
func ParseCommand(s string) (Command, error) {
	switch s {
	case "0", "power-off", "off":
		return PowerOff, nil
	case "1", "power-on", "on":
		return PowerOn, nil
	case "2", "query-load", "query":
		return QueryLoadStatus, nil
	}
	return None, fmt.Errorf("unknown remote command %q", s)
}

// Decode extracts a command from one inbound chunk. Peers send single
// character tokens, sometimes with line endings or noise around them; the
// last recognised token in the chunk wins and anything else is ignored.
func Decode(data []byte) Command {
	cmd := None
	for _, r := range string(data) {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '0':
			cmd = PowerOff
		case '1':
			cmd = PowerOn
		case '2':
			cmd = QueryLoadStatus
		}
	}
	return cmd
}

// Outbound status bytes.
const (
	AckHasRoom byte = 3
	AckFull    byte = 4
)

// AckForLoad reports AckFull when load is a valid reading inside
// (0, nearlyFullCm) and AckHasRoom otherwise, including when the ranger
// failed.
func AckForLoad(load sensors.Distance, nearlyFullCm float64) byte {
	if load.Within(nearlyFullCm) {
		return AckFull
	}
	return AckHasRoom
}

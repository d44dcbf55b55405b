// Package nav holds the direction vocabulary shared by the vision scorer, the
// decision engine and the drive base.
package nav

import (
	"fmt"
	"strings"
)

// Direction is a drive or vision direction.
//
// None means "no confident vision signal" and is only produced by the scorer;
// Stop is a commanded halt. The drive base treats both as halt.
type Direction int

const (
	None Direction = iota
	Left
	Center
	Right
	Stop
)

// Zones lists the scoring zones left to right. The order is the tie-break
// order: on equal scores the earlier zone wins.
var Zones = [3]Direction{Left, Center, Right}

func (d Direction) String() string {
	switch d {
	case None:
		return "None"
	case Left:
		return "Left"
	case Center:
		return "Center"
	case Right:
		return "Right"
	case Stop:
		return "Stop"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Moving reports whether the direction commands wheel motion.
func (d Direction) Moving() bool {
	return d == Left || d == Center || d == Right
}

// ParseDirection accepts the direction names (case-insensitive) plus
// "forward" as an alias for Center.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "left":
		return Left, nil
	case "center", "forward":
		return Center, nil
	case "right":
		return Right, nil
	case "stop":
		return Stop, nil
	}
	return None, fmt.Errorf("unknown direction %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ZoneScores holds one confidence in [0,1] per zone.
type ZoneScores struct {
	Left   float64 `json:"left"`
	Center float64 `json:"center"`
	Right  float64 `json:"right"`
}

// Slice returns the scores in zone order.
func (z ZoneScores) Slice() []float64 {
	return []float64{z.Left, z.Center, z.Right}
}

// Get returns the score for a zone direction, or 0 for non-zone directions.
func (z ZoneScores) Get(d Direction) float64 {
	switch d {
	case Left:
		return z.Left
	case Center:
		return z.Center
	case Right:
		return z.Right
	}
	return 0
}

// Set stores the score for a zone direction; other directions are ignored.
func (z *ZoneScores) Set(d Direction, v float64) {
	switch d {
	case Left:
		z.Left = v
	case Center:
		z.Center = v
	case Right:
		z.Right = v
	}
}

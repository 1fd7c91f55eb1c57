package gamemap

import "fmt"

// Position is a map coordinate. X/Y address the horizontal plane,
// Z is the floor index (0 = top, 7 = ground level, 15 = deepest).
type Position struct {
	X uint16
	Y uint16
	Z uint8
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

package component

// Axis names one of the three world axes. AxisNone means no axis was detected.
type Axis uint8

const (
	AxisNone Axis = iota
	AxisX
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "none"
	}
}

// Index returns the vector component index for the axis, or -1 for AxisNone.
func (a Axis) Index() int {
	switch a {
	case AxisX:
		return 0
	case AxisY:
		return 1
	case AxisZ:
		return 2
	default:
		return -1
	}
}

// MergeState is the per-block fusion token. A block moves from MergeIdle to
// MergeCommitted once and is never chosen as a partner again.
type MergeState uint8

const (
	MergeIdle MergeState = iota
	MergeCommitted
)

func (s MergeState) String() string {
	if s == MergeCommitted {
		return "committed"
	}
	return "idle"
}

// Block marks an entity as a mergeable cuboid.
type Block struct {
	State     MergeState
	MergeAxis Axis
}

var BlockComponent = NewComponent[Block]()

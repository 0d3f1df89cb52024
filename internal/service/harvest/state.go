package harvest

// State 一次运行所处的阶段
type State int32

const (
	Idle State = iota
	Harvesting
	Visiting
	Extracting
	Assembling
	Publishing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Harvesting:
		return "harvesting"
	case Visiting:
		return "visiting"
	case Extracting:
		return "extracting"
	case Assembling:
		return "assembling"
	case Publishing:
		return "publishing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal Done 与 Aborted 之后不再有状态变化
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}

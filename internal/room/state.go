package room

// ConnectionState is the single authoritative state of a local session.
type ConnectionState int

const (
	Start ConnectionState = iota
	Creating
	Joining
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Start:
		return "start"
	case Creating:
		return "creating"
	case Joining:
		return "joining"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// transitions lists the legal successor states. Connected is terminal.
var transitions = map[ConnectionState][]ConnectionState{
	Start:     {Creating, Joining},
	Creating:  {Connected},
	Joining:   {Connected},
	Connected: nil,
}

func canTransition(from, to ConnectionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

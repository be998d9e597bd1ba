package board

// Op is the kind of mutation currently in flight for a task.
type Op int

const (
	OpNone Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "none"
	}
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// inFlight tracks per-task mutations so a busy row never blocks another row.
type inFlight map[int64]Op

func (f inFlight) begin(id int64, op Op) bool {
	if f[id] != OpNone {
		return false
	}
	f[id] = op
	return true
}

func (f inFlight) end(id int64) {
	delete(f, id)
}

func (f inFlight) copy() map[int64]Op {
	out := make(map[int64]Op, len(f))
	for id, op := range f {
		out[id] = op
	}
	return out
}

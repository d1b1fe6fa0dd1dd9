package span

// State is the lifecycle position of an Attempt.
//
//	Created -> Tagged -> Completed|Errored -> Finished
type State int32

const (
	StateCreated State = iota
	StateTagged
	StateCompleted
	StateErrored
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateTagged:
		return "tagged"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

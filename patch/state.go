package patch

// State is the install state of one integration.
type State int32

const (
	StateUnpatched State = iota
	StatePatching
	StatePatched
)

func (s State) String() string {
	switch s {
	case StateUnpatched:
		return "unpatched"
	case StatePatching:
		return "patching"
	case StatePatched:
		return "patched"
	default:
		return "unknown"
	}
}

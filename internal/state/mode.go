package state

import "fmt"

type ModeKind int

const (
	Viewing ModeKind = iota
	Creating
	Editing
)

func (k ModeKind) String() string {
	switch k {
	case Viewing:
		return "viewing"
	case Creating:
		return "creating"
	case Editing:
		return "editing"
	default:
		return "unknown"
	}
}

// Mode is what the UI is currently showing. TaskID is only set while Editing.
type Mode struct {
	Kind   ModeKind
	TaskID string
}

func (m Mode) String() string {
	if m.Kind == Editing {
		return fmt.Sprintf("editing(%s)", m.TaskID)
	}
	return m.Kind.String()
}

package model

// StatusPending is the status the server assigns to every new task.
const StatusPending = "Pending"

// Task is the server's representation of a unit of work. ID is empty until
// the server has accepted the task.
type Task struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	TimeEstimate int    `json:"timeEstimate,omitempty"` // hours, 0 when unset
	DueDate      string `json:"dueDate,omitempty"`      // YYYY-MM-DD
	IsComplete   bool   `json:"isComplete"`
}

// Draft is the body of a create request. The server fills id, status and
// isComplete.
type Draft struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	TimeEstimate int    `json:"timeEstimate,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
}

// Patch carries the user-editable fields of an existing task. Every field is
// written, so an empty DueDate or zero TimeEstimate clears the value.
type Patch struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	TimeEstimate int    `json:"timeEstimate,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
}

// Apply returns a copy of t with the patch fields written over it.
func (p Patch) Apply(t Task) Task {
	t.Name = p.Name
	t.Description = p.Description
	t.TimeEstimate = p.TimeEstimate
	t.DueDate = p.DueDate
	return t
}

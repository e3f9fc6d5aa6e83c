package state

import "github.com/BuzzLyutic/gotask/internal/model"

// taskList keeps one entry per id in display order.
type taskList struct {
	order []string
	byID  map[string]model.Task
}

func newTaskList() taskList {
	return taskList{byID: make(map[string]model.Task)}
}

// replace swaps the whole collection. A repeated id keeps its first position
// and its last value.
func (l *taskList) replace(tasks []model.Task) {
	l.order = make([]string, 0, len(tasks))
	l.byID = make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, ok := l.byID[t.ID]; !ok {
			l.order = append(l.order, t.ID)
		}
		l.byID[t.ID] = t
	}
}

// upsert replaces the entry with the same id in place, or appends it.
func (l *taskList) upsert(t model.Task) {
	if _, ok := l.byID[t.ID]; !ok {
		l.order = append(l.order, t.ID)
	}
	l.byID[t.ID] = t
}

func (l *taskList) remove(id string) {
	if _, ok := l.byID[id]; !ok {
		return
	}
	delete(l.byID, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *taskList) get(id string) (model.Task, bool) {
	t, ok := l.byID[id]
	return t, ok
}

func (l *taskList) all() []model.Task {
	out := make([]model.Task, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

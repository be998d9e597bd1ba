package board

import (
	"sort"

	"github.com/fastygo/taskboard/domain"
)

// TaskList keeps tasks keyed by id and exposes them ordered by creation time.
// Adding an id that is already present is a no-op, so rows arriving from both
// the insert response and the realtime channel collapse into one entry.
type TaskList struct {
	byID    map[int64]domain.Task
	ordered []int64
}

func NewTaskList() *TaskList {
	return &TaskList{byID: make(map[int64]domain.Task)}
}

// Replace swaps the whole content. Duplicate ids in rows keep the last occurrence.
func (l *TaskList) Replace(rows []domain.Task) {
	l.byID = make(map[int64]domain.Task, len(rows))
	for _, row := range rows {
		l.byID[row.ID] = row
	}
	l.resort()
}

// Add inserts task unless its id is already present and reports whether it was added.
func (l *TaskList) Add(task domain.Task) bool {
	if _, ok := l.byID[task.ID]; ok {
		return false
	}
	l.byID[task.ID] = task
	l.resort()
	return true
}

// Patch applies p to the task with id and reports whether it was present.
func (l *TaskList) Patch(id int64, p domain.TaskPatch) bool {
	task, ok := l.byID[id]
	if !ok {
		return false
	}
	p.Apply(&task)
	l.byID[id] = task
	return true
}

// Remove drops the task with id and reports whether it was present.
func (l *TaskList) Remove(id int64) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	l.resort()
	return true
}

func (l *TaskList) Get(id int64) (domain.Task, bool) {
	task, ok := l.byID[id]
	return task, ok
}

func (l *TaskList) Contains(id int64) bool {
	_, ok := l.byID[id]
	return ok
}

func (l *TaskList) Len() int {
	return len(l.byID)
}

// Snapshot returns the tasks ascending by creation time.
func (l *TaskList) Snapshot() []domain.Task {
	out := make([]domain.Task, 0, len(l.ordered))
	for _, id := range l.ordered {
		out = append(out, l.byID[id])
	}
	return out
}

func (l *TaskList) resort() {
	ids := make([]int64, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return l.byID[ids[i]].Before(l.byID[ids[j]])
	})
	l.ordered = ids
}

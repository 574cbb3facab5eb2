package pipeline

import (
	"fmt"
	"strings"
)

// TaskID names a task within one descriptor.
type TaskID string

// TaskState is the lifecycle of one task in a run.
type TaskState int

const (
	StatePending TaskState = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Task is one stage of a descriptor.
type Task struct {
	ID             TaskID
	Role           Role
	Description    string
	ExpectedOutput string
	DependsOn      []TaskID
}

// Descriptor is a validated task DAG with a fixed execution order.
type Descriptor struct {
	name  string
	tasks []Task
	order []int
}

// NewDescriptor validates tasks and computes a topological order. Ties are
// broken by declaration order. Duplicate IDs, unknown dependencies and
// cycles are rejected.
func NewDescriptor(name string, tasks ...Task) (Descriptor, error) {
	if len(tasks) == 0 {
		return Descriptor{}, fmt.Errorf("descriptor %s: no tasks", name)
	}

	pos := make(map[TaskID]int, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return Descriptor{}, fmt.Errorf("descriptor %s: task %d has no id", name, i)
		}
		if !t.Role.valid() {
			return Descriptor{}, fmt.Errorf("descriptor %s: task %s has unknown role %d", name, t.ID, int(t.Role))
		}
		if _, dup := pos[t.ID]; dup {
			return Descriptor{}, fmt.Errorf("descriptor %s: duplicate task %s", name, t.ID)
		}
		pos[t.ID] = i
	}

	indegree := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i, t := range tasks {
		for _, dep := range t.DependsOn {
			j, ok := pos[dep]
			if !ok {
				return Descriptor{}, fmt.Errorf("descriptor %s: task %s depends on unknown task %s", name, t.ID, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]int, 0, len(tasks))
	done := make([]bool, len(tasks))
	for len(order) < len(tasks) {
		next := -1
		for i := range tasks {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return Descriptor{}, fmt.Errorf("descriptor %s: dependency cycle among %s", name, pending(tasks, done))
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}

	return Descriptor{name: name, tasks: append([]Task(nil), tasks...), order: order}, nil
}

// MustDescriptor is NewDescriptor that panics on an invalid graph.
func MustDescriptor(name string, tasks ...Task) Descriptor {
	d, err := NewDescriptor(name, tasks...)
	if err != nil {
		panic(err)
	}
	return d
}

// Name identifies the descriptor in logs and metrics.
func (d Descriptor) Name() string { return d.name }

// Order returns the tasks in execution order.
func (d Descriptor) Order() []Task {
	out := make([]Task, len(d.order))
	for i, idx := range d.order {
		out[i] = d.tasks[idx]
	}
	return out
}

func pending(tasks []Task, done []bool) string {
	var ids []string
	for i, t := range tasks {
		if !done[i] {
			ids = append(ids, string(t.ID))
		}
	}
	return strings.Join(ids, ", ")
}

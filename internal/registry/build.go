package registry

import (
	"os"
	"time"
)

// NodeSpec is the minimal shape a scheduler needs to expose per node to
// populate a registry Entry, decoupling this package from
// internal/scheduler's own node type.
type NodeSpec struct {
	Name        string
	Priority    uint32
	RateHz      float64
	Publishers  []TopicRef
	Subscribers []TopicRef
}

// BuildEntry assembles a registry Entry for the current process.
func BuildEntry(schedulerName string, nodes []NodeSpec) Entry {
	wd, _ := os.Getwd()
	entryNodes := make([]Node, len(nodes))
	for i, n := range nodes {
		entryNodes[i] = Node{
			Name:        n.Name,
			Priority:    n.Priority,
			RateHz:      n.RateHz,
			Publishers:  n.Publishers,
			Subscribers: n.Subscribers,
		}
	}
	return Entry{
		PID:           uint32(os.Getpid()),
		SchedulerName: schedulerName,
		WorkingDir:    wd,
		StartedAt:     time.Now().UTC(),
		Nodes:         entryNodes,
	}
}

package jobqueue

import (
	"time"
)

// Descriptor describes one job. Only VRT changes over the job's lifetime,
// and only through SelectAndConsume.
type Descriptor struct {
	Priority uint
	// VRT is the remaining virtual runtime in whole time units.
	VRT        uint
	EnqueuedAt time.Time
	Name       string
}

// NewDescriptor stamps a descriptor with the current monotonic clock reading.
func NewDescriptor(name string, priority, vrt uint) Descriptor {
	return Descriptor{
		Priority:   priority,
		VRT:        vrt,
		EnqueuedAt: time.Now(),
		Name:       name,
	}
}

// compare orders descriptors so that the job to run next is the maximum:
// higher priority first, then smaller VRT, then older timestamp.
// It returns 0 only for order-equal descriptors; Name is not part of the key.
func compare(a, b Descriptor) int {
	switch {
	case a.Priority < b.Priority:
		return -1
	case a.Priority > b.Priority:
		return 1
	case a.VRT > b.VRT:
		return -1
	case a.VRT < b.VRT:
		return 1
	case a.EnqueuedAt.After(b.EnqueuedAt):
		return -1
	case a.EnqueuedAt.Before(b.EnqueuedAt):
		return 1
	}
	return 0
}

// Less reports whether a is strictly less eligible than b.
func Less(a, b Descriptor) bool { return compare(a, b) < 0 }

// OrderEqual reports whether a and b tie on every ordering criterion.
// Two such descriptors cannot be queued at the same time.
func OrderEqual(a, b Descriptor) bool { return compare(a, b) == 0 }

// Result describes one round of SelectAndConsume.
//
// VRT is the work remaining after this slice when the job was re-queued,
// and the unchanged value when the job finished this round. Granted is the
// number of time units the caller should execute: min(N, VRT before slicing).
type Result struct {
	Name       string
	Priority   uint
	VRT        uint
	EnqueuedAt time.Time
	Finished   bool
	Granted    uint
}

// RemoveStatus is the outcome of RemoveByName.
type RemoveStatus int

const (
	Removed RemoveStatus = iota
	RemoveNotFound
	RemoveEmpty
)

func (s RemoveStatus) String() string {
	switch s {
	case Removed:
		return "removed"
	case RemoveNotFound:
		return "not found"
	case RemoveEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

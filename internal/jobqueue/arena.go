package jobqueue

// handle addresses a node in the arena. Handles stay valid until released.
type handle int32

const nilHandle handle = -1

// node links are non-owning; parent is only a back-reference for rotations.
type node struct {
	job    Descriptor
	left   handle
	right  handle
	parent handle
}

// arena stores tree nodes contiguously and recycles released slots.
type arena struct {
	nodes []node
	free  []handle
}

func (a *arena) alloc(job Descriptor, parent handle) handle {
	n := node{job: job, left: nilHandle, right: nilHandle, parent: parent}
	if k := len(a.free); k > 0 {
		h := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[h] = n
		return h
	}
	a.nodes = append(a.nodes, n)
	return handle(len(a.nodes) - 1)
}

func (a *arena) release(h handle) {
	a.nodes[h] = node{left: nilHandle, right: nilHandle, parent: nilHandle}
	a.free = append(a.free, h)
}

// at returns a pointer into the arena. It must not be held across alloc.
func (a *arena) at(h handle) *node { return &a.nodes[h] }

func (a *arena) reset() {
	a.nodes = a.nodes[:0]
	a.free = a.free[:0]
}

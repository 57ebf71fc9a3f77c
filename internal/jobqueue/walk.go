package jobqueue

import (
	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/emirpasic/gods/stacks/arraystack"
)

// findByName runs a breadth-first search from the root, enqueueing the right
// child before the left one, and returns the first node whose job has name.
func (t *tree) findByName(name string) handle {
	if t.root == nilHandle {
		return nilHandle
	}
	q := linkedlistqueue.New()
	q.Enqueue(t.root)
	for !q.Empty() {
		v, _ := q.Dequeue()
		h := v.(handle)
		n := t.at(h)
		if n.job.Name == name {
			return h
		}
		if n.right != nilHandle {
			q.Enqueue(n.right)
		}
		if n.left != nilHandle {
			q.Enqueue(n.left)
		}
	}
	return nilHandle
}

type frame struct {
	h     handle
	depth int
}

// descend visits nodes in reverse key order (maximum first) with their depth.
// Iterative so that degenerate, list-shaped trees cannot exhaust the stack.
func (t *tree) descend(visit func(h handle, depth int)) {
	st := arraystack.New()
	cur, depth := t.root, 0
	for cur != nilHandle || !st.Empty() {
		for cur != nilHandle {
			st.Push(frame{h: cur, depth: depth})
			cur = t.at(cur).right
			depth++
		}
		v, _ := st.Pop()
		f := v.(frame)
		visit(f.h, f.depth)
		cur = t.at(f.h).left
		depth = f.depth + 1
	}
}

// clear releases every node in post-order using an explicit stack and
// returns how many nodes were released.
func (t *tree) clear() int {
	released := 0
	st := arraystack.New()
	cur, last := t.root, nilHandle
	for cur != nilHandle || !st.Empty() {
		if cur != nilHandle {
			st.Push(cur)
			cur = t.at(cur).left
			continue
		}
		v, _ := st.Peek()
		top := v.(handle)
		if r := t.at(top).right; r != nilHandle && r != last {
			cur = r
			continue
		}
		st.Pop()
		last = top
		t.release(top)
		released++
	}
	t.root = nilHandle
	t.size = 0
	t.reset()
	return released
}

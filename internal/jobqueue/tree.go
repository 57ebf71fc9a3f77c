package jobqueue

// tree is a bottom-up splay tree keyed by compare. It is not synchronized;
// Queue serializes access.
type tree struct {
	arena
	root handle
	size int
}

func newTree() tree {
	return tree{root: nilHandle}
}

// replaceChild points p's link to old at repl instead, re-rooting when p is nil.
func (t *tree) replaceChild(p, old, repl handle) {
	if p == nilHandle {
		t.root = repl
		return
	}
	pn := t.at(p)
	if pn.left == old {
		pn.left = repl
	} else {
		pn.right = repl
	}
}

func (t *tree) rotateLeft(x handle) {
	xn := t.at(x)
	y := xn.right
	if y == nilHandle {
		return
	}
	yn := t.at(y)

	xn.right = yn.left
	if yn.left != nilHandle {
		t.at(yn.left).parent = x
	}
	yn.parent = xn.parent
	t.replaceChild(xn.parent, x, y)
	yn.left = x
	xn.parent = y
}

func (t *tree) rotateRight(x handle) {
	xn := t.at(x)
	y := xn.left
	if y == nilHandle {
		return
	}
	yn := t.at(y)

	xn.left = yn.right
	if yn.right != nilHandle {
		t.at(yn.right).parent = x
	}
	yn.parent = xn.parent
	t.replaceChild(xn.parent, x, y)
	yn.right = x
	xn.parent = y
}

// splay rotates x up until it has no parent.
func (t *tree) splay(x handle) {
	if x == nilHandle {
		return
	}
	for {
		p := t.at(x).parent
		if p == nilHandle {
			return
		}
		g := t.at(p).parent
		isLeft := t.at(p).left == x

		switch {
		case g == nilHandle:
			// zig
			if isLeft {
				t.rotateRight(p)
			} else {
				t.rotateLeft(p)
			}
		case isLeft == (t.at(g).left == p):
			// zig-zig: grandparent first, then parent.
			if isLeft {
				t.rotateRight(g)
				t.rotateRight(p)
			} else {
				t.rotateLeft(g)
				t.rotateLeft(p)
			}
		default:
			// zig-zag
			if isLeft {
				t.rotateRight(p)
				t.rotateLeft(g)
			} else {
				t.rotateLeft(p)
				t.rotateRight(g)
			}
		}
	}
}

func (t *tree) subtreeMax(h handle) handle {
	if h == nilHandle {
		return nilHandle
	}
	for t.at(h).right != nilHandle {
		h = t.at(h).right
	}
	return h
}

func (t *tree) subtreeMin(h handle) handle {
	if h == nilHandle {
		return nilHandle
	}
	for t.at(h).left != nilHandle {
		h = t.at(h).left
	}
	return h
}

// insert places job and splays it to the root. On an order-equal collision it
// returns the existing node and false, leaving the tree untouched.
func (t *tree) insert(job Descriptor) (handle, bool) {
	if t.root == nilHandle {
		t.root = t.alloc(job, nilHandle)
		t.size++
		return t.root, true
	}

	cur, parent := t.root, nilHandle
	c := 0
	for cur != nilHandle {
		parent = cur
		c = compare(job, t.at(cur).job)
		switch {
		case c < 0:
			cur = t.at(cur).left
		case c > 0:
			cur = t.at(cur).right
		default:
			return cur, false
		}
	}

	n := t.alloc(job, parent)
	if c < 0 {
		t.at(parent).left = n
	} else {
		t.at(parent).right = n
	}
	t.size++
	t.splay(n)
	return n, true
}

// remove deletes x and returns its descriptor. The two subtrees are joined
// by splaying the maximum of the left subtree and hanging the right subtree
// off it.
func (t *tree) remove(x handle) Descriptor {
	t.splay(x)

	xn := t.at(x)
	job := xn.job
	l, r := xn.left, xn.right
	if l != nilHandle {
		t.at(l).parent = nilHandle
	}
	if r != nilHandle {
		t.at(r).parent = nilHandle
	}
	t.release(x)
	t.size--

	if l == nilHandle {
		t.root = r
		return job
	}

	t.root = l
	m := t.subtreeMax(l)
	t.splay(m)
	t.at(m).right = r
	if r != nilHandle {
		t.at(r).parent = m
	}
	t.root = m
	return job
}

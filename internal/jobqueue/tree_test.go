package jobqueue

import (
	"testing"
	"time"
)

func buildTree(t *testing.T, prios ...uint) (*tree, map[uint]handle) {
	t.Helper()
	tr := newTree()
	hs := map[uint]handle{}
	now := time.Now()
	for _, p := range prios {
		h, ok := tr.insert(Descriptor{Priority: p, VRT: 1, EnqueuedAt: now})
		if !ok {
			t.Fatalf("insert p=%d rejected", p)
		}
		hs[p] = h
	}
	return &tr, hs
}

func prio(tr *tree, h handle) uint {
	if h == nilHandle {
		return 0
	}
	return tr.at(h).job.Priority
}

func TestInsertSplaysToRoot(t *testing.T) {
	t.Parallel()
	tr, hs := buildTree(t, 5, 2, 8, 3)
	if tr.root != hs[3] {
		t.Fatalf("root = p%d, want p3", prio(tr, tr.root))
	}
	if tr.size != 4 {
		t.Fatalf("size = %d, want 4", tr.size)
	}
}

func TestRotationsUpdateParents(t *testing.T) {
	t.Parallel()
	// Ascending inserts: root 3, left 2, left-left 1.
	tr, hs := buildTree(t, 1, 2, 3)
	tr.rotateRight(hs[3])
	if tr.root != hs[2] {
		t.Fatalf("root = p%d, want p2", prio(tr, tr.root))
	}
	n := tr.at(hs[2])
	if n.left != hs[1] || n.right != hs[3] {
		t.Fatalf("children = p%d/p%d, want p1/p3", prio(tr, n.left), prio(tr, n.right))
	}
	if tr.at(hs[1]).parent != hs[2] || tr.at(hs[3]).parent != hs[2] {
		t.Fatal("parent links not updated")
	}

	tr.rotateLeft(hs[2])
	if tr.root != hs[3] || tr.at(hs[3]).left != hs[2] || tr.at(hs[2]).parent != hs[3] {
		t.Fatal("rotateLeft did not restore p3 as root")
	}

	// No right child: no-op.
	before := *tr.at(hs[3])
	tr.rotateLeft(hs[3])
	if *tr.at(hs[3]) != before || tr.root != hs[3] {
		t.Fatal("rotateLeft without right child changed the tree")
	}
}

func TestRemoveJoinsViaLeftMax(t *testing.T) {
	t.Parallel()
	tr, hs := buildTree(t, 1, 3, 5, 2, 4)
	tr.remove(hs[3])
	// The predecessor (p2) becomes the new root with p4's subtree on its right.
	if tr.root != hs[2] {
		t.Fatalf("root = p%d, want p2", prio(tr, tr.root))
	}
	if tr.at(hs[2]).right == nilHandle {
		t.Fatal("right subtree not attached to new root")
	}
	if tr.subtreeMax(tr.root) != hs[5] || tr.subtreeMin(tr.root) != hs[1] {
		t.Fatal("min/max wrong after remove")
	}
	if tr.size != 4 {
		t.Fatalf("size = %d, want 4", tr.size)
	}
}

func TestArenaRecyclesHandles(t *testing.T) {
	t.Parallel()
	tr, hs := buildTree(t, 1, 2)
	tr.remove(hs[1])
	h, _ := tr.insert(Descriptor{Priority: 9, VRT: 1, EnqueuedAt: time.Now()})
	if h != hs[1] {
		t.Fatalf("handle = %d, want recycled %d", h, hs[1])
	}
	if len(tr.nodes) != 2 {
		t.Fatalf("arena grew to %d nodes", len(tr.nodes))
	}
}

func TestSubtreeMinMaxEmpty(t *testing.T) {
	t.Parallel()
	tr := newTree()
	if tr.subtreeMax(tr.root) != nilHandle || tr.subtreeMin(tr.root) != nilHandle {
		t.Fatal("expected nil handle on empty subtree")
	}
}

package btree

import "unsafe"

// maxDepth bounds the on-stack ancestor path. B=6 means a node holds at
// least 5 entries/6 children when non-root, so depth grows no faster than
// log_6 of the key count; 32 levels covers far more entries than any
// chunk-backed tree here will ever hold.
const maxDepth = 32

// pathEntry records one step of a descent: the node visited and the index
// of the child (or, at the bottom, the slot) taken from it. Recording this
// on the way down is what lets insert/remove walk back up without parent
// pointers, mirroring the on-stack reference path spec.md §9 asks for in
// place of the original's absent Node::parent.
type pathEntry[K any, V any] struct {
	n   *node[K, V]
	idx int
}

// path is the stack of ancestors from the root down to (but not including)
// the leaf reached by a descent.
type path[K any, V any] struct {
	entries [maxDepth]pathEntry[K, V]
	len     int
}

func (p *path[K, V]) push(n *node[K, V], idx int) {
	if p.len == maxDepth {
		panic("btree: ancestor path exceeded maxDepth; tree is unexpectedly deep")
	}
	p.entries[p.len] = pathEntry[K, V]{n: n, idx: idx}
	p.len++
}

func (p *path[K, V]) pop() (pathEntry[K, V], bool) {
	if p.len == 0 {
		return pathEntry[K, V]{}, false
	}
	p.len--
	return p.entries[p.len], true
}

// search returns the insertion index of key within a sorted key slice of
// length n: the index of key if present (found=true), or the index of the
// first key greater than it otherwise.
func search[K any, V any](t *BTree[K, V], keys []K, n uint8, key K) (idx int, found bool) {
	lo, hi := 0, int(n)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.less(keys[mid], key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < int(n) && t.eq(keys[lo], key) {
		return lo, true
	}
	return lo, false
}

// location pinpoints where a key lives (or would be inserted): either a
// slot in a leaf, or — since this is a classical B-tree where splits
// promote an entry out of its leaf for good — a slot in an internal node.
type location[K any, V any] struct {
	isLeaf  bool
	lf      *leaf[K, V]
	n       *node[K, V]
	idx     int
	found   bool
}

// descend walks from the root down, recording the ancestor path taken,
// until it finds key or reaches the leaf where key would belong. Unlike a
// B+-tree, a match at an internal node ends the search right there: this
// tree's internal entries are real promoted data, not routing copies.
func (t *BTree[K, V]) descend(key K) (loc location[K, V], p path[K, V]) {
	if t.rootIsLeaf {
		lf := (*leaf[K, V])(t.root)
		idx, found := search(t, lf.keys[:], lf.len, key)
		return location[K, V]{isLeaf: true, lf: lf, idx: idx, found: found}, p
	}

	n := (*node[K, V])(t.root)
	for {
		i, exact := search(t, n.keys[:], n.len, key)
		if exact {
			return location[K, V]{isLeaf: false, n: n, idx: i, found: true}, p
		}
		p.push(n, i)

		if n.leafChildren {
			lf := n.childLeaf(i)
			li, lfound := search(t, lf.keys[:], lf.len, key)
			return location[K, V]{isLeaf: true, lf: lf, idx: li, found: lfound}, p
		}
		n = n.childNode(i)
	}
}

// descendRightmost walks all the way to the rightmost leaf entry reachable
// from child, recording the path taken. Used to find a removed internal
// entry's in-order predecessor.
func (t *BTree[K, V]) descendRightmost(child unsafe.Pointer, childIsLeaf bool) (lf *leaf[K, V], idx int, p path[K, V]) {
	if childIsLeaf {
		lf = (*leaf[K, V])(child)
		return lf, int(lf.len) - 1, p
	}

	n := (*node[K, V])(child)
	for {
		last := int(n.len)
		p.push(n, last)
		if n.leafChildren {
			lf = n.childLeaf(last)
			return lf, int(lf.len) - 1, p
		}
		n = n.childNode(last)
	}
}

// descendLeftmost walks all the way to the leftmost leaf entry reachable
// from child, recording the path taken. Used by Entry.Next to resume
// in-order traversal inside the subtree to an internal entry's right.
func (t *BTree[K, V]) descendLeftmost(child unsafe.Pointer, childIsLeaf bool) (lf *leaf[K, V], p path[K, V]) {
	if childIsLeaf {
		return (*leaf[K, V])(child), p
	}

	n := (*node[K, V])(child)
	for {
		p.push(n, 0)
		if n.leafChildren {
			return n.childLeaf(0), p
		}
		n = n.childNode(0)
	}
}

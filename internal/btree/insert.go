package btree

import "unsafe"

// Insert stores value under key, returning the previous value if key was
// already present. Splits propagate bottom-up along the path recorded by
// descend; spec.md §8's worked split scenario (a full 11-entry leaf plus
// the new entry -> 6/1-promoted/5) is exactly splitLeafInsert below.
func (t *BTree[K, V]) Insert(key K, value V) (old V, hadOld bool) {
	loc, p := t.descend(key)

	if loc.found {
		if loc.isLeaf {
			old = loc.lf.values[loc.idx]
			loc.lf.values[loc.idx] = value
		} else {
			old = loc.n.values[loc.idx]
			loc.n.values[loc.idx] = value
		}
		return old, true
	}

	// descend only returns found=false for a leaf location: an internal
	// match always ends the search there.
	lf, idx := loc.lf, loc.idx

	if lf.len < maxEntries {
		shiftInsertLeaf(lf, idx, key, value)
		t.length++
		var zero V
		return zero, false
	}

	promotedKey, promotedValue, right := t.splitLeafInsert(lf, idx, key, value)
	t.length++
	t.propagateSplit(p, promotedKey, promotedValue, unsafe.Pointer(lf), unsafe.Pointer(right), true)

	var zero V
	return zero, false
}

// shiftInsertLeaf inserts (key, value) at idx into a leaf known to have
// room (len < maxEntries).
func shiftInsertLeaf[K any, V any](lf *leaf[K, V], idx int, key K, value V) {
	for i := int(lf.len); i > idx; i-- {
		lf.keys[i] = lf.keys[i-1]
		lf.values[i] = lf.values[i-1]
	}
	lf.keys[idx] = key
	lf.values[idx] = value
	lf.len++
}

// splitLeafInsert handles inserting into a full leaf: it combines the
// existing maxEntries entries with the new one in a maxEntries+1-sized
// scratch buffer (too large for the fixed leaf array), splits the result
// into a left half (kept in lf), a promoted middle entry, and a right half
// (a freshly allocated leaf).
func (t *BTree[K, V]) splitLeafInsert(lf *leaf[K, V], idx int, key K, value V) (promotedKey K, promotedValue V, right *leaf[K, V]) {
	var keys [maxEntries + 1]K
	var values [maxEntries + 1]V

	for i, j := 0, 0; i < maxEntries; i, j = i+1, j+1 {
		if i == idx {
			keys[j] = key
			values[j] = value
			j++
		}
		keys[j] = lf.keys[i]
		values[j] = lf.values[i]
	}
	if idx == maxEntries {
		keys[maxEntries] = key
		values[maxEntries] = value
	}

	const mid = minEntries + 1 // 6

	right, ok := t.leafAlloc.Malloc()
	if !ok {
		panic("btree: leaf allocator exhausted during split")
	}
	*right = leaf[K, V]{}

	for i := 0; i < mid; i++ {
		lf.keys[i] = keys[i]
		lf.values[i] = values[i]
	}
	lf.len = mid

	for i := 0; i < maxEntries-mid; i++ {
		right.keys[i] = keys[mid+1+i]
		right.values[i] = values[mid+1+i]
	}
	right.len = uint8(maxEntries - mid)

	return keys[mid], values[mid], right
}

// shiftInsertNode inserts key/value and the right-hand child produced by a
// split at position idx into a node known to have room.
func shiftInsertNode[K any, V any](n *node[K, V], idx int, key K, value V, rightChild unsafe.Pointer) {
	for i := int(n.len); i > idx; i-- {
		n.keys[i] = n.keys[i-1]
		n.values[i] = n.values[i-1]
	}
	for i := int(n.len) + 1; i > idx+1; i-- {
		n.children[i] = n.children[i-1]
	}
	n.keys[idx] = key
	n.values[idx] = value
	n.children[idx+1] = rightChild
	n.len++
}

// splitNodeInsert is shiftInsertNode's counterpart for a full internal
// node: combine into a maxEntries+1/maxChildren+1 scratch buffer, then
// split into a left half (kept in n), a promoted entry, and a right half
// (a freshly allocated node with the same leafChildren tag as n).
func (t *BTree[K, V]) splitNodeInsert(n *node[K, V], idx int, key K, value V, rightChild unsafe.Pointer) (promotedKey K, promotedValue V, right *node[K, V]) {
	var keys [maxEntries + 1]K
	var values [maxEntries + 1]V
	var children [maxChildren + 1]unsafe.Pointer

	for i, j := 0, 0; i < maxEntries; i, j = i+1, j+1 {
		if i == idx {
			keys[j] = key
			values[j] = value
			j++
		}
		keys[j] = n.keys[i]
		values[j] = n.values[i]
	}
	if idx == maxEntries {
		keys[maxEntries] = key
		values[maxEntries] = value
	}

	for i, j := 0, 0; i < maxChildren; i, j = i+1, j+1 {
		if i == idx+1 {
			children[j] = rightChild
			j++
		}
		children[j] = n.children[i]
	}
	if idx+1 == maxChildren {
		children[maxChildren] = rightChild
	}

	const mid = minEntries + 1 // 6

	right, ok := t.nodeAlloc.Malloc()
	if !ok {
		panic("btree: node allocator exhausted during split")
	}
	*right = node[K, V]{leafChildren: n.leafChildren, metadata: newMetadata(n.leafChildren)}

	for i := 0; i < mid; i++ {
		n.keys[i] = keys[i]
		n.values[i] = values[i]
	}
	for i := 0; i < mid+1; i++ {
		n.children[i] = children[i]
	}
	n.len = mid

	rn := maxEntries - mid
	for i := 0; i < rn; i++ {
		right.keys[i] = keys[mid+1+i]
		right.values[i] = values[mid+1+i]
	}
	for i := 0; i < rn+1; i++ {
		right.children[i] = children[mid+1+i]
	}
	right.len = uint8(rn)

	return keys[mid], values[mid], right
}

// propagateSplit walks the recorded ancestor path from the bottom up,
// inserting the promoted (key, value, rightChild) from a child split into
// each ancestor in turn, splitting that ancestor too if it's full, until
// an ancestor has room or the path is exhausted (in which case a new root
// is grown, increasing the tree's depth).
func (t *BTree[K, V]) propagateSplit(p path[K, V], key K, value V, leftChild, rightChild unsafe.Pointer, childWasLeaf bool) {
	entry, ok := p.pop()
	if !ok {
		root, allocOK := t.nodeAlloc.Malloc()
		if !allocOK {
			panic("btree: node allocator exhausted growing a new root")
		}
		*root = node[K, V]{leafChildren: childWasLeaf, metadata: newMetadata(childWasLeaf)}
		root.keys[0] = key
		root.values[0] = value
		root.children[0] = leftChild
		root.children[1] = rightChild
		root.len = 1

		t.root = unsafe.Pointer(root)
		t.rootIsLeaf = false
		t.depth++
		return
	}

	n := entry.n
	idx := entry.idx

	if n.len < maxEntries {
		shiftInsertNode(n, idx, key, value, rightChild)
		return
	}

	promotedKey, promotedValue, right := t.splitNodeInsert(n, idx, key, value, rightChild)
	t.propagateSplit(p, promotedKey, promotedValue, unsafe.Pointer(n), unsafe.Pointer(right), false)
}

package btree

// Remove deletes key, if present, and returns its value.
func (t *BTree[K, V]) Remove(key K) (old V, found bool) {
	loc, p := t.descend(key)
	if !loc.found {
		var zero V
		return zero, false
	}

	if loc.isLeaf {
		old = loc.lf.values[loc.idx]
		shiftRemoveLeaf(loc.lf, loc.idx)
		t.length--
		t.fixupAfterLeafRemoval(loc.lf, p)
		return old, true
	}

	// Internal match: swap in the in-order predecessor (the rightmost
	// entry of the left child subtree), then delete that predecessor from
	// the leaf it actually lives in.
	n, idx := loc.n, loc.idx
	old = n.values[idx]

	predLeaf, predIdx, predPath := t.descendRightmost(n.children[idx], n.leafChildren)
	n.keys[idx] = predLeaf.keys[predIdx]
	n.values[idx] = predLeaf.values[predIdx]

	fullPath := p
	fullPath.push(n, idx)
	for i := 0; i < predPath.len; i++ {
		fullPath.push(predPath.entries[i].n, predPath.entries[i].idx)
	}

	shiftRemoveLeaf(predLeaf, predIdx)
	t.length--
	t.fixupAfterLeafRemoval(predLeaf, fullPath)

	return old, true
}

func shiftRemoveLeaf[K any, V any](lf *leaf[K, V], idx int) {
	for i := idx; i < int(lf.len)-1; i++ {
		lf.keys[i] = lf.keys[i+1]
		lf.values[i] = lf.values[i+1]
	}
	lf.len--
}

func shiftRemoveNode[K any, V any](n *node[K, V], idx int) {
	for i := idx; i < int(n.len)-1; i++ {
		n.keys[i] = n.keys[i+1]
		n.values[i] = n.values[i+1]
	}
	for i := idx + 1; i < int(n.len); i++ {
		n.children[i] = n.children[i+1]
	}
	n.len--
}

// fixupAfterLeafRemoval restores the minEntries invariant for lf (if
// violated) by borrowing from a sibling through the parent, or merging
// with one, walking further up p if a merge underflows an ancestor.
func (t *BTree[K, V]) fixupAfterLeafRemoval(lf *leaf[K, V], p path[K, V]) {
	if lf.len >= minEntries {
		return
	}
	entry, ok := p.pop()
	if !ok {
		// lf is the root; a leaf root has no minimum occupancy.
		return
	}
	n, childIdx := entry.n, entry.idx

	if childIdx > 0 {
		left := n.childLeaf(childIdx - 1)
		if left.len > minEntries {
			borrowLeafFromLeft(n, childIdx, left, lf)
			return
		}
	}
	if childIdx < int(n.len) {
		right := n.childLeaf(childIdx + 1)
		if right.len > minEntries {
			borrowLeafFromRight(n, childIdx, lf, right)
			return
		}
	}

	if childIdx < int(n.len) {
		right := n.childLeaf(childIdx + 1)
		mergeLeaves(lf, n, childIdx, right)
		t.leafAlloc.Free(right)
	} else {
		left := n.childLeaf(childIdx - 1)
		mergeLeaves(left, n, childIdx-1, lf)
		t.leafAlloc.Free(lf)
	}

	t.fixupAfterNodeUnderflow(n, p)
}

// borrowLeafFromLeft rotates the parent separator at childIdx-1 down into
// lf's front and left's last entry up into the parent.
func borrowLeafFromLeft[K any, V any](n *node[K, V], childIdx int, left, lf *leaf[K, V]) {
	for i := int(lf.len); i > 0; i-- {
		lf.keys[i] = lf.keys[i-1]
		lf.values[i] = lf.values[i-1]
	}
	lf.keys[0] = n.keys[childIdx-1]
	lf.values[0] = n.values[childIdx-1]
	lf.len++

	last := left.len - 1
	n.keys[childIdx-1] = left.keys[last]
	n.values[childIdx-1] = left.values[last]
	left.len--
}

// borrowLeafFromRight rotates the parent separator at childIdx down into
// lf's end and right's first entry up into the parent.
func borrowLeafFromRight[K any, V any](n *node[K, V], childIdx int, lf, right *leaf[K, V]) {
	lf.keys[lf.len] = n.keys[childIdx]
	lf.values[lf.len] = n.values[childIdx]
	lf.len++

	n.keys[childIdx] = right.keys[0]
	n.values[childIdx] = right.values[0]

	for i := 0; i < int(right.len)-1; i++ {
		right.keys[i] = right.keys[i+1]
		right.values[i] = right.values[i+1]
	}
	right.len--
}

// mergeLeaves folds the separator at n.keys[sepIdx] and right's entries
// into left, then removes the separator (and right's child slot) from n.
func mergeLeaves[K any, V any](left *leaf[K, V], n *node[K, V], sepIdx int, right *leaf[K, V]) {
	left.keys[left.len] = n.keys[sepIdx]
	left.values[left.len] = n.values[sepIdx]
	left.len++

	for i := 0; i < int(right.len); i++ {
		left.keys[left.len] = right.keys[i]
		left.values[left.len] = right.values[i]
		left.len++
	}
	shiftRemoveNode(n, sepIdx)
}

// fixupAfterNodeUnderflow is fixupAfterLeafRemoval's counterpart one level
// up: n itself lost an entry (from a child merge) and may now be below
// minEntries.
func (t *BTree[K, V]) fixupAfterNodeUnderflow(n *node[K, V], p path[K, V]) {
	if n == (*node[K, V])(t.root) {
		if n.len == 0 {
			// n had exactly one child left; that child becomes the root.
			t.root = n.children[0]
			t.rootIsLeaf = n.leafChildren
			t.depth--
			t.nodeAlloc.Free(n)
		}
		return
	}
	if n.len >= minEntries {
		return
	}

	entry, ok := p.pop()
	if !ok {
		return
	}
	parent, childIdx := entry.n, entry.idx

	if childIdx > 0 {
		left := parent.childNode(childIdx - 1)
		if left.len > minEntries {
			borrowNodeFromLeft(parent, childIdx, left, n)
			return
		}
	}
	if childIdx < int(parent.len) {
		right := parent.childNode(childIdx + 1)
		if right.len > minEntries {
			borrowNodeFromRight(parent, childIdx, n, right)
			return
		}
	}

	if childIdx < int(parent.len) {
		right := parent.childNode(childIdx + 1)
		mergeNodes(n, parent, childIdx, right)
		t.nodeAlloc.Free(right)
	} else {
		left := parent.childNode(childIdx - 1)
		mergeNodes(left, parent, childIdx-1, n)
		t.nodeAlloc.Free(n)
	}

	t.fixupAfterNodeUnderflow(parent, p)
}

func borrowNodeFromLeft[K any, V any](parent *node[K, V], childIdx int, left, n *node[K, V]) {
	for i := int(n.len); i > 0; i-- {
		n.keys[i] = n.keys[i-1]
		n.values[i] = n.values[i-1]
	}
	for i := int(n.len) + 1; i > 0; i-- {
		n.children[i] = n.children[i-1]
	}
	n.keys[0] = parent.keys[childIdx-1]
	n.values[0] = parent.values[childIdx-1]
	n.children[0] = left.children[left.len]
	n.len++

	last := left.len - 1
	parent.keys[childIdx-1] = left.keys[last]
	parent.values[childIdx-1] = left.values[last]
	left.len--
}

func borrowNodeFromRight[K any, V any](parent *node[K, V], childIdx int, n, right *node[K, V]) {
	n.keys[n.len] = parent.keys[childIdx]
	n.values[n.len] = parent.values[childIdx]
	n.children[n.len+1] = right.children[0]
	n.len++

	parent.keys[childIdx] = right.keys[0]
	parent.values[childIdx] = right.values[0]

	for i := 0; i < int(right.len)-1; i++ {
		right.keys[i] = right.keys[i+1]
		right.values[i] = right.values[i+1]
	}
	for i := 0; i < int(right.len); i++ {
		right.children[i] = right.children[i+1]
	}
	right.len--
}

func mergeNodes[K any, V any](left *node[K, V], parent *node[K, V], sepIdx int, right *node[K, V]) {
	left.keys[left.len] = parent.keys[sepIdx]
	left.values[left.len] = parent.values[sepIdx]
	left.children[left.len+1] = right.children[0]
	left.len++

	for i := 0; i < int(right.len); i++ {
		left.keys[left.len] = right.keys[i]
		left.values[left.len] = right.values[i]
		left.children[left.len+1] = right.children[i+1]
		left.len++
	}
	shiftRemoveNode(parent, sepIdx)
}

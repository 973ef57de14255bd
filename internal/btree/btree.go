// Package btree implements the order-6 B-tree from spec.md §4.4: an
// ordered (key, value) map whose internal nodes and leaves live in two
// slab allocators owned by the tree, with no parent pointers — descent
// records an on-stack ancestor path instead (spec.md §9), and splits/merges
// propagate by walking that path back up.
//
// It is grounded on mem/btree.rs's struct layout (a tagged Children union,
// node/leaf arrays sized to 2B-1 entries) and on mem/vma.rs's use of
// get_entry(...).next()/.prev() for the ordered cursor; mem/btree.rs itself
// only stubs out the struct shapes, so the split/borrow/merge algorithm
// here is built directly from spec.md §4.4 and the worked scenarios in
// §8.
package btree

import (
	"unsafe"

	"ashkernel/internal/bitfield"
	"ashkernel/internal/slab"
)

// Order parameters, spec.md §3/§4.4.
const (
	B           = 6
	minEntries  = B - 1   // 5, every non-root node/leaf holds at least this many
	maxEntries  = 2*B - 1 // 11
	minChildren = B       // 6
	maxChildren = 2 * B   // 12
)

// leaf holds up to maxEntries (key, value) pairs and nothing else.
type leaf[K any, V any] struct {
	keys   [maxEntries]K
	values [maxEntries]V
	len    uint8
}

// node holds up to maxEntries (key, value) pairs plus len+1 children. All
// children of a node are the same kind (every child a node, or every child
// a leaf); leafChildren records which, set once at creation and never
// changed afterward (splitting a leaf always yields two leaves, splitting
// a node always yields two nodes). metadata is the bitfield-packed
// encoding of that same fact, kept for parity with the original's
// bitflags!-tagged NodeMetadata — leafChildren is the fast-path copy
// actually consulted on every descent.
type node[K any, V any] struct {
	keys         [maxEntries]K
	values       [maxEntries]V
	len          uint8
	metadata     uint32
	leafChildren bool
	children     [maxChildren]unsafe.Pointer
}

// nodeMetadata mirrors mem/btree.rs's bitflags!-tagged NodeMetadata: one
// tag bit recording whether a node's children are leaves. Packed once per
// node, at creation, via internal/bitfield rather than on every descent —
// leafChildren is the plain bool callers actually branch on.
type nodeMetadata struct {
	LeafChildren bool `bitfield:",1"`
}

// newMetadata packs leafChildren into the bitfield-encoded form stored
// alongside the fast-path bool.
func newMetadata(leafChildren bool) uint32 {
	packed, err := bitfield.Pack(nodeMetadata{LeafChildren: leafChildren}, &bitfield.Config{NumBits: 32})
	if err != nil {
		panic(err)
	}
	return uint32(packed)
}

func (n *node[K, V]) childNode(i int) *node[K, V] {
	return (*node[K, V])(n.children[i])
}

func (n *node[K, V]) childLeaf(i int) *leaf[K, V] {
	return (*leaf[K, V])(n.children[i])
}

func (n *node[K, V]) setChildNode(i int, c *node[K, V]) {
	n.children[i] = unsafe.Pointer(c)
}

func (n *node[K, V]) setChildLeaf(i int, c *leaf[K, V]) {
	n.children[i] = unsafe.Pointer(c)
}

// BTree is an ordered map with order-6 B-tree structure. Its zero value is
// not usable; construct one with New.
type BTree[K any, V any] struct {
	less func(a, b K) bool

	nodeAlloc *slab.Allocator[node[K, V]]
	leafAlloc *slab.Allocator[leaf[K, V]]

	root       unsafe.Pointer // *node[K,V] or *leaf[K,V]
	rootIsLeaf bool

	length int
	depth  int
}

// New splits chunk between the internal-node and leaf slab allocators in
// proportion size_of(node) : (B-1)*size_of(leaf), the ratio a full tree
// needs (spec.md §4.4), and returns an empty tree with a single empty root
// leaf. less must define a strict total order over K.
func New[K any, V any](chunk []byte, less func(a, b K) bool) *BTree[K, V] {
	t := &BTree[K, V]{less: less}

	var zn node[K, V]
	var zl leaf[K, V]
	nodeSize := int(unsafe.Sizeof(zn))
	leafSize := int(unsafe.Sizeof(zl))
	nodeShare := splitChunk(len(chunk), nodeSize, (B-1)*leafSize)

	t.nodeAlloc = slab.New[node[K, V]](chunk[:nodeShare])
	t.leafAlloc = slab.New[leaf[K, V]](chunk[nodeShare:])

	root, ok := t.leafAlloc.Malloc()
	if !ok {
		panic("btree: initial chunk too small to allocate a root leaf")
	}
	*root = leaf[K, V]{}
	t.root = unsafe.Pointer(root)
	t.rootIsLeaf = true
	t.depth = 1

	return t
}

// splitChunk divides total bytes between a and b proportionally to their
// weights, keeping the division simple and deterministic.
func splitChunk(total, weightA, weightB int) int {
	if weightA+weightB == 0 {
		return total / 2
	}
	share := total * weightA / (weightA + weightB)
	if share < 1 {
		share = 1
	}
	if share > total-1 {
		share = total - 1
	}
	return share
}

// AddChunk routes an additional chunk to whichever underlying allocator
// needs it, splitting it again if both do.
func (t *BTree[K, V]) AddChunk(chunk []byte) {
	nodeNeeds := t.nodeAlloc.NeedsNewChunk()
	leafNeeds := t.leafAlloc.NeedsNewChunk()

	switch {
	case nodeNeeds && !leafNeeds:
		t.nodeAlloc.AddChunk(chunk)
	case leafNeeds && !nodeNeeds:
		t.leafAlloc.AddChunk(chunk)
	default:
		var zn node[K, V]
		var zl leaf[K, V]
		nodeShare := splitChunk(len(chunk), int(unsafe.Sizeof(zn)), (B-1)*int(unsafe.Sizeof(zl)))
		t.nodeAlloc.AddChunk(chunk[:nodeShare])
		t.leafAlloc.AddChunk(chunk[nodeShare:])
	}
}

// NeedsNewChunk reports whether either backing slab allocator is low.
func (t *BTree[K, V]) NeedsNewChunk() bool {
	return t.nodeAlloc.NeedsNewChunk() || t.leafAlloc.NeedsNewChunk()
}

// Len returns the number of (key, value) pairs stored in the tree.
func (t *BTree[K, V]) Len() int {
	return t.length
}

// Depth returns the number of levels from the root to the leaves,
// inclusive (a tree with only a root leaf has depth 1).
func (t *BTree[K, V]) Depth() int {
	return t.depth
}

func (t *BTree[K, V]) eq(a, b K) bool {
	return !t.less(a, b) && !t.less(b, a)
}

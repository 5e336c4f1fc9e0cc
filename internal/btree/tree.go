package btree

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/tuannm99/minisql/internal/heap"
)

const (
	// MinDegree is the smallest legal minimum degree (a 2-3-4 tree).
	MinDegree = 2
	// DefaultDegree gives nodes of 31..63 entries.
	DefaultDegree = 32
)

// Pair is one (key, row) association used to bulk-load a tree.
type Pair[K any] struct {
	Key K
	ID  heap.RowID
}

// Tree is an in-memory B-Tree mapping each distinct key to an ordered set of
// row identifiers. Keys are ordered by cmp; two keys are the same key iff cmp
// returns 0.
//
// Every node except the root holds between degree-1 and 2*degree-1 entries.
// Insert splits full nodes on the way down; Remove borrows from or merges with
// a sibling before descending into a node with only degree-1 entries, so a
// single top-down pass is enough for both.
type Tree[K any] struct {
	root   *node[K]
	cmp    func(a, b K) int
	degree int
	size   int // distinct keys
	log    *slog.Logger
}

// New creates an empty tree. A degree below MinDegree is raised to MinDegree.
func New[K any](degree int, cmp func(a, b K) int) *Tree[K] {
	if degree < MinDegree {
		degree = MinDegree
	}
	return &Tree[K]{
		root:   &node[K]{},
		cmp:    cmp,
		degree: degree,
		log:    slog.Default(),
	}
}

// SetLogger routes the tree's debug output to l. A nil l keeps the current logger.
func (t *Tree[K]) SetLogger(l *slog.Logger) {
	if l != nil {
		t.log = l
	}
}

func (t *Tree[K]) maxEntries() int { return 2*t.degree - 1 }

// Len returns the number of distinct keys.
func (t *Tree[K]) Len() int { return t.size }

func (t *Tree[K]) Degree() int { return t.degree }

// Height returns the number of levels; an empty tree has height 1.
func (t *Tree[K]) Height() int {
	h := 1
	for n := t.root; !n.leaf(); n = n.children[0] {
		h++
	}
	return h
}

// Insert adds id to key's set, creating the key if it is absent.
func (t *Tree[K]) Insert(key K, id heap.RowID) {
	if len(t.root.entries) == t.maxEntries() {
		old := t.root
		t.root = &node[K]{children: []*node[K]{old}}
		t.splitChild(t.root, 0)
	}

	n := t.root
	for {
		i, found := n.search(key, t.cmp)
		if found {
			n.entries[i].addID(id)
			return
		}
		if n.leaf() {
			n.insertEntryAt(i, &entry[K]{key: key, ids: []heap.RowID{id}})
			t.size++
			return
		}
		if len(n.children[i].entries) == t.maxEntries() {
			t.splitChild(n, i)
			switch c := t.cmp(key, n.entries[i].key); {
			case c == 0:
				n.entries[i].addID(id)
				return
			case c > 0:
				i++
			}
		}
		n = n.children[i]
	}
}

// splitChild splits the full child n.children[i] around its median entry,
// which moves up into n.
func (t *Tree[K]) splitChild(n *node[K], i int) {
	d := t.degree
	y := n.children[i]
	mid := y.entries[d-1]

	z := &node[K]{entries: slices.Clone(y.entries[d:])}
	clear(y.entries[d-1:])
	y.entries = y.entries[:d-1]

	if !y.leaf() {
		z.children = slices.Clone(y.children[d:])
		clear(y.children[d:])
		y.children = y.children[:d]
	}

	n.insertEntryAt(i, mid)
	n.insertChildAt(i+1, z)

	t.log.Debug("btree.splitChild", "pos", i, "left", len(y.entries), "right", len(z.entries))
}

// Remove deletes id from key's set and drops the key once its set is empty.
// It reports whether id was present; removing an absent key or id is a no-op.
func (t *Tree[K]) Remove(key K, id heap.RowID) bool {
	e := t.find(key)
	if e == nil || !e.removeID(id) {
		return false
	}
	if len(e.ids) > 0 {
		return true
	}

	t.deleteKey(key)
	t.size--
	if len(t.root.entries) == 0 && !t.root.leaf() {
		t.root = t.root.children[0]
	}
	return true
}

// Update moves id from oldKey to newKey.
func (t *Tree[K]) Update(oldKey, newKey K, id heap.RowID) {
	t.Remove(oldKey, id)
	t.Insert(newKey, id)
}

// Rebuild clears the tree and loads pairs into it.
func (t *Tree[K]) Rebuild(pairs []Pair[K]) {
	t.root = &node[K]{}
	t.size = 0
	for _, p := range pairs {
		t.Insert(p.Key, p.ID)
	}
}

// Get returns a copy of the row identifiers stored under key.
func (t *Tree[K]) Get(key K) []heap.RowID {
	e := t.find(key)
	if e == nil {
		return nil
	}
	return slices.Clone(e.ids)
}

func (t *Tree[K]) Has(key K) bool { return t.find(key) != nil }

func (t *Tree[K]) find(key K) *entry[K] {
	n := t.root
	for {
		i, found := n.search(key, t.cmp)
		if found {
			return n.entries[i]
		}
		if n.leaf() {
			return nil
		}
		n = n.children[i]
	}
}

// deleteKey removes the entry for key. The caller guarantees it exists.
func (t *Tree[K]) deleteKey(key K) {
	d := t.degree
	n := t.root
	for {
		i, found := n.search(key, t.cmp)
		if n.leaf() {
			if found {
				n.removeEntryAt(i)
			}
			return
		}

		if found {
			left, right := n.children[i], n.children[i+1]
			switch {
			case len(left.entries) >= d:
				pred := maxEntry(left)
				n.entries[i] = pred
				n, key = left, pred.key
			case len(right.entries) >= d:
				succ := minEntry(right)
				n.entries[i] = succ
				n, key = right, succ.key
			default:
				t.merge(n, i)
				n = left
			}
			continue
		}

		if len(n.children[i].entries) < d {
			i = t.fill(n, i)
		}
		n = n.children[i]
	}
}

// fill makes sure n.children[i] has at least degree entries and returns the
// position of the child that now covers the same key range.
func (t *Tree[K]) fill(n *node[K], i int) int {
	d := t.degree
	last := len(n.children) - 1
	switch {
	case i > 0 && len(n.children[i-1].entries) >= d:
		t.borrowFromLeft(n, i)
		return i
	case i < last && len(n.children[i+1].entries) >= d:
		t.borrowFromRight(n, i)
		return i
	case i < last:
		t.merge(n, i)
		return i
	default:
		t.merge(n, i-1)
		return i - 1
	}
}

func (t *Tree[K]) borrowFromLeft(n *node[K], i int) {
	c, l := n.children[i], n.children[i-1]
	c.insertEntryAt(0, n.entries[i-1])
	n.entries[i-1] = l.removeEntryAt(len(l.entries) - 1)
	if !l.leaf() {
		c.insertChildAt(0, l.removeChildAt(len(l.children)-1))
	}
}

func (t *Tree[K]) borrowFromRight(n *node[K], i int) {
	c, r := n.children[i], n.children[i+1]
	c.entries = append(c.entries, n.entries[i])
	n.entries[i] = r.removeEntryAt(0)
	if !r.leaf() {
		c.children = append(c.children, r.removeChildAt(0))
	}
}

// merge folds n.children[i+1] and the separator n.entries[i] into n.children[i].
func (t *Tree[K]) merge(n *node[K], i int) {
	left, right := n.children[i], n.children[i+1]
	sep := n.removeEntryAt(i)
	n.removeChildAt(i + 1)

	left.entries = append(left.entries, sep)
	left.entries = append(left.entries, right.entries...)
	left.children = append(left.children, right.children...)

	t.log.Debug("btree.merge", "pos", i, "entries", len(left.entries))
}

func maxEntry[K any](n *node[K]) *entry[K] {
	for !n.leaf() {
		n = n.children[len(n.children)-1]
	}
	return n.entries[len(n.entries)-1]
}

func minEntry[K any](n *node[K]) *entry[K] {
	for !n.leaf() {
		n = n.children[0]
	}
	return n.entries[0]
}

// Ascend calls fn for every key in ascending order until fn returns false.
func (t *Tree[K]) Ascend(fn func(key K, ids []heap.RowID) bool) {
	t.ascend(t.root, fn)
}

func (t *Tree[K]) ascend(n *node[K], fn func(key K, ids []heap.RowID) bool) bool {
	for i, e := range n.entries {
		if !n.leaf() && !t.ascend(n.children[i], fn) {
			return false
		}
		if !fn(e.key, slices.Clone(e.ids)) {
			return false
		}
	}
	if !n.leaf() {
		return t.ascend(n.children[len(n.entries)], fn)
	}
	return true
}

// AscendRange calls fn for every key in [lo, hi] in ascending order until fn
// returns false.
func (t *Tree[K]) AscendRange(lo, hi K, fn func(key K, ids []heap.RowID) bool) {
	if t.cmp(lo, hi) > 0 {
		return
	}
	t.ascendRange(t.root, lo, hi, fn)
}

func (t *Tree[K]) ascendRange(n *node[K], lo, hi K, fn func(key K, ids []heap.RowID) bool) bool {
	i, _ := n.search(lo, t.cmp)
	for ; i < len(n.entries); i++ {
		if !n.leaf() && !t.ascendRange(n.children[i], lo, hi, fn) {
			return false
		}
		e := n.entries[i]
		if t.cmp(e.key, hi) > 0 {
			return false
		}
		if !fn(e.key, slices.Clone(e.ids)) {
			return false
		}
	}
	if !n.leaf() {
		return t.ascendRange(n.children[len(n.entries)], lo, hi, fn)
	}
	return true
}

// DebugDump renders the tree one node per line, indented by depth.
func (t *Tree[K]) DebugDump() string {
	var b strings.Builder
	t.root.debugDump(&b, 0)
	return b.String()
}

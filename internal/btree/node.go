package btree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tuannm99/minisql/internal/heap"
)

// entry is one distinct key with its posting list. ids is kept sorted and
// never empty while the entry is in the tree.
type entry[K any] struct {
	key K
	ids []heap.RowID
}

func (e *entry[K]) addID(id heap.RowID) {
	i := sort.Search(len(e.ids), func(i int) bool { return e.ids[i] >= id })
	if i < len(e.ids) && e.ids[i] == id {
		return
	}
	e.ids = append(e.ids, 0)
	copy(e.ids[i+1:], e.ids[i:])
	e.ids[i] = id
}

func (e *entry[K]) removeID(id heap.RowID) bool {
	i := sort.Search(len(e.ids), func(i int) bool { return e.ids[i] >= id })
	if i >= len(e.ids) || e.ids[i] != id {
		return false
	}
	e.ids = append(e.ids[:i], e.ids[i+1:]...)
	return true
}

// node holds between degree-1 and 2*degree-1 entries (the root may hold fewer).
// Internal nodes have len(entries)+1 children.
type node[K any] struct {
	entries  []*entry[K]
	children []*node[K]
}

func (n *node[K]) leaf() bool { return len(n.children) == 0 }

// search returns the first position whose key is >= key and whether it is equal.
func (n *node[K]) search(key K, cmp func(a, b K) int) (int, bool) {
	i := sort.Search(len(n.entries), func(i int) bool {
		return cmp(n.entries[i].key, key) >= 0
	})
	return i, i < len(n.entries) && cmp(n.entries[i].key, key) == 0
}

func (n *node[K]) insertEntryAt(i int, e *entry[K]) {
	n.entries = append(n.entries, nil)
	copy(n.entries[i+1:], n.entries[i:])
	n.entries[i] = e
}

func (n *node[K]) removeEntryAt(i int) *entry[K] {
	e := n.entries[i]
	copy(n.entries[i:], n.entries[i+1:])
	n.entries[len(n.entries)-1] = nil
	n.entries = n.entries[:len(n.entries)-1]
	return e
}

func (n *node[K]) insertChildAt(i int, c *node[K]) {
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
}

func (n *node[K]) removeChildAt(i int) *node[K] {
	c := n.children[i]
	copy(n.children[i:], n.children[i+1:])
	n.children[len(n.children)-1] = nil
	n.children = n.children[:len(n.children)-1]
	return c
}

func (n *node[K]) debugDump(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("[")
	for i, e := range n.entries {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(b, "%v%v", e.key, e.ids)
	}
	b.WriteString("]\n")
	for _, c := range n.children {
		c.debugDump(b, depth+1)
	}
}

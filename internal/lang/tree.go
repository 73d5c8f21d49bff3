package lang

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

const rootIndex = 0

type weightedChar struct {
	char   string
	weight float64
	hits   float64
}

// node is one trie entry. Parent and children are indices into Tree.nodes.
type node struct {
	seq      string
	chars    []weightedChar
	weight   float64
	parent   int
	children []int

	hits         float64
	weightedHits float64
}

// Tree is a prefix tree over typing sequences. Its structure is frozen after
// construction; only hit counters change. A Tree is not safe for concurrent
// use.
type Tree struct {
	nodes     []node
	leaves    []int
	bySeq     map[string]int
	threshold int
}

// NodeView is a read-only description of one non-root node.
type NodeView struct {
	Seq       string
	ParentSeq string
	Chars     []string
	Leaf      bool
}

// NewTree builds a tree from a forward map of character to entry. Weights
// are relative and normalized so their mean is 1. Construction fails with
// ErrInsufficientLeaves when the root has fewer than threshold children.
//
// An avoided sequence conflicts only with its own ancestors and descendants,
// all of which sit below a single root child. Any avoid set smaller than the
// root's fan-out therefore leaves at least one branch untouched.
func NewTree(forward map[string]Entry, threshold int) (*Tree, error) {
	type item struct {
		char  string
		entry Entry
	}
	items := make([]item, 0, len(forward))
	total := 0.0
	for char, entry := range forward {
		if char == "" || entry.Seq == "" || !(entry.Weight > 0) {
			return nil, fmt.Errorf("%w: char=%q seq=%q weight=%v", ErrInvalidEntry, char, entry.Seq, entry.Weight)
		}
		items = append(items, item{char: char, entry: entry})
		total += entry.Weight
	}

	// Shortest sequences first: a new node can then only hang below an
	// existing node, never split an existing branch.
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].entry.Seq, items[j].entry.Seq
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		if a != b {
			return a < b
		}
		return items[i].char < items[j].char
	})

	t := &Tree{
		nodes:     []node{{parent: -1}},
		bySeq:     make(map[string]int, len(items)),
		threshold: threshold,
	}
	mean := 1.0
	if len(items) > 0 {
		mean = total / float64(len(items))
	}
	for _, it := range items {
		idx, ok := t.bySeq[it.entry.Seq]
		if !ok {
			idx = t.insert(it.entry.Seq)
		}
		n := &t.nodes[idx]
		w := it.entry.Weight / mean
		n.chars = append(n.chars, weightedChar{char: it.char, weight: w})
		n.weight += w
	}

	for idx := range t.nodes {
		if idx != rootIndex && len(t.nodes[idx].children) == 0 {
			t.leaves = append(t.leaves, idx)
		}
	}
	if branches := t.BranchCount(); branches < threshold {
		return nil, fmt.Errorf("%w: have %d root branches over %d leaves, need %d", ErrInsufficientLeaves, branches, len(t.leaves), threshold)
	}
	return t, nil
}

func (t *Tree) insert(seq string) int {
	parent := rootIndex
	for {
		next := -1
		for _, child := range t.nodes[parent].children {
			if strings.HasPrefix(seq, t.nodes[child].seq) {
				next = child
				break
			}
		}
		if next < 0 {
			break
		}
		parent = next
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{seq: seq, parent: parent})
	t.nodes[parent].children = append(t.nodes[parent].children, idx)
	t.bySeq[seq] = idx
	return idx
}

// Reset zeroes every hit counter. A non-nil rng seeds each counter with an
// offset in [0, 1) so early picks do not always follow sequence order.
func (t *Tree) Reset(rng *rand.Rand) {
	for idx := range t.nodes {
		n := &t.nodes[idx]
		n.hits, n.weightedHits = 0, 0
		if rng != nil && idx != rootIndex {
			offset := rng.Float64()
			n.hits = offset
			n.weightedHits = offset / n.weight
		}
		for c := range n.chars {
			n.chars[c].hits = 0
			if rng != nil {
				n.chars[c].hits = rng.Float64()
			}
		}
	}
}

// Threshold reports the branch count the tree was validated against.
func (t *Tree) Threshold() int {
	return t.threshold
}

// LeafCount reports the number of leaf sequences.
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// BranchCount reports the number of root children. It bounds the avoid set
// size for which a conflict-free pick is guaranteed.
func (t *Tree) BranchCount() int {
	return len(t.nodes[rootIndex].children)
}

// Leaves returns every leaf sequence in construction order.
func (t *Tree) Leaves() []string {
	out := make([]string, len(t.leaves))
	for i, idx := range t.leaves {
		out[i] = t.nodes[idx].seq
	}
	return out
}

// Nodes describes every non-root node in construction order.
func (t *Tree) Nodes() []NodeView {
	out := make([]NodeView, 0, len(t.nodes)-1)
	for idx := 1; idx < len(t.nodes); idx++ {
		n := t.nodes[idx]
		chars := make([]string, len(n.chars))
		for i, c := range n.chars {
			chars[i] = c.char
		}
		out = append(out, NodeView{
			Seq:       n.seq,
			ParentSeq: t.nodes[n.parent].seq,
			Chars:     chars,
			Leaf:      len(n.children) == 0,
		})
	}
	return out
}

// Chars returns the homophones sharing seq.
func (t *Tree) Chars(seq string) ([]string, bool) {
	idx, ok := t.bySeq[seq]
	if !ok {
		return nil, false
	}
	chars := make([]string, len(t.nodes[idx].chars))
	for i, c := range t.nodes[idx].chars {
		chars[i] = c.char
	}
	return chars, true
}

package lang

import (
	"fmt"
	"sort"
	"strings"
)

// SelectNonConflicting picks a pair whose sequence is neither a prefix of nor
// prefixed by any sequence in avoid, favouring the least used sequences
// under scheme, and records the pick. Empty strings in avoid are ignored.
//
// It panics when no candidate exists. That cannot happen when every avoided
// sequence is a node of t and the avoid set is smaller than BranchCount,
// which NewTree holds at or above the threshold.
func (t *Tree) SelectNonConflicting(avoid []string, scheme Scheme) Pair {
	exact := make(map[string]struct{}, len(avoid))
	for _, s := range avoid {
		if s != "" {
			exact[s] = struct{}{}
		}
	}

	order := make([]int, len(t.leaves))
	copy(order, t.leaves)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := t.leafMetric(order[i], scheme), t.leafMetric(order[j], scheme)
		if a != b {
			return a < b
		}
		return t.nodes[order[i]].seq < t.nodes[order[j]].seq
	})

	for _, leaf := range order {
		safe := t.safeChain(leaf, exact)
		if len(safe) == 0 {
			continue
		}
		best := safe[0]
		bestMetric := t.personalMetric(best, scheme)
		for _, idx := range safe[1:] {
			if m := t.personalMetric(idx, scheme); m < bestMetric {
				best, bestMetric = idx, m
			}
		}
		return t.hit(best)
	}

	panic(fmt.Sprintf("lang: no conflict-free sequence for %d avoided sequences (%d branches, threshold %d)", len(exact), t.BranchCount(), t.threshold))
}

// safeChain returns the part of leaf's ancestor chain (leaf first, root
// excluded) that does not conflict with avoid. A conflict at some node also
// condemns everything above it, and a node that is avoided or extends an
// avoided sequence condemns the whole chain.
func (t *Tree) safeChain(leaf int, avoid map[string]struct{}) []int {
	chain := make([]int, 0, 4)
	for idx := leaf; idx != rootIndex; idx = t.nodes[idx].parent {
		chain = append(chain, idx)
	}
	for i, idx := range chain {
		seq := t.nodes[idx].seq
		if _, hit := avoid[seq]; hit {
			return nil
		}
		truncate := false
		for s := range avoid {
			if len(s) < len(seq) && strings.HasPrefix(seq, s) {
				return nil
			}
			if len(s) > len(seq) && strings.HasPrefix(s, seq) {
				truncate = true
			}
		}
		if truncate {
			return chain[:i]
		}
	}
	return chain
}

func (t *Tree) leafMetric(idx int, scheme Scheme) float64 {
	n := &t.nodes[idx]
	switch scheme {
	case ByChar:
		sum := 0.0
		for _, c := range n.chars {
			sum += c.hits
		}
		return sum
	case ByWeight:
		return n.weightedHits
	default:
		return n.hits
	}
}

// personalMetric strips the hits a node inherited from picks of its
// ancestors.
func (t *Tree) personalMetric(idx int, scheme Scheme) float64 {
	n := &t.nodes[idx]
	p := &t.nodes[n.parent]
	if scheme == ByWeight {
		return n.weightedHits - p.weightedHits
	}
	return n.hits - p.hits
}

func (t *Tree) hit(idx int) Pair {
	n := &t.nodes[idx]
	pick := 0
	for c := 1; c < len(n.chars); c++ {
		if n.chars[c].hits/n.chars[c].weight < n.chars[pick].hits/n.chars[pick].weight {
			pick = c
		}
	}
	n.chars[pick].hits++

	inc, winc := 1.0, 1/n.weight
	stack := []int{idx}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t.nodes[cur].hits += inc
		t.nodes[cur].weightedHits += winc
		stack = append(stack, t.nodes[cur].children...)
	}
	return Pair{Char: n.chars[pick].char, Seq: n.seq}
}

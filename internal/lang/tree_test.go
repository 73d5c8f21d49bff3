package lang

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func alphabet(n int) map[string]Entry {
	forward := make(map[string]Entry, n)
	for i := 0; i < n; i++ {
		s := string(rune('a' + i))
		forward[strings.ToUpper(s)] = Entry{Seq: s, Weight: 1}
	}
	return forward
}

// kana is a small Hepburn-style map with shared prefixes and homophones.
func kana() map[string]Entry {
	return map[string]Entry{
		"ん": {Seq: "n", Weight: 1},
		"な": {Seq: "na", Weight: 1},
		"に": {Seq: "ni", Weight: 1},
		"ぬ": {Seq: "nu", Weight: 1},
		"し": {Seq: "shi", Weight: 1},
		"じ": {Seq: "ji", Weight: 2},
		"ぢ": {Seq: "ji", Weight: 1},
		"あ": {Seq: "a", Weight: 1},
		"い": {Seq: "i", Weight: 1},
		"う": {Seq: "u", Weight: 1},
		"か": {Seq: "ka", Weight: 1},
		"き": {Seq: "ki", Weight: 1},
		"つ": {Seq: "tsu", Weight: 1},
		"ち": {Seq: "chi", Weight: 1},
	}
}

func TestNewTreeStructureInvariants(t *testing.T) {
	tree, err := NewTree(kana(), 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}

	seen := make(map[string]bool)
	for _, n := range tree.Nodes() {
		if n.Seq == "" {
			t.Fatalf("non-root node with empty sequence")
		}
		if seen[n.Seq] {
			t.Fatalf("sequence %q appears on two nodes", n.Seq)
		}
		seen[n.Seq] = true
		if len(n.Seq) <= len(n.ParentSeq) || !strings.HasPrefix(n.Seq, n.ParentSeq) {
			t.Fatalf("node %q does not strictly extend parent %q", n.Seq, n.ParentSeq)
		}
		if len(n.Chars) == 0 {
			t.Fatalf("node %q holds no characters", n.Seq)
		}
	}

	chars, ok := tree.Chars("ji")
	if !ok || len(chars) != 2 {
		t.Fatalf("expected two homophones on ji, got %v", chars)
	}
	for _, n := range tree.Nodes() {
		if n.Seq == "na" && n.ParentSeq != "n" {
			t.Fatalf("expected na to hang below n, got parent %q", n.ParentSeq)
		}
		if n.Seq == "n" && n.Leaf {
			t.Fatalf("expected n to be an inner node")
		}
	}
	if got, want := tree.LeafCount(), 12; got != want {
		t.Fatalf("expected %d leaves, got %d", want, got)
	}
}

func TestNewTreeRejectsInsufficientLeaves(t *testing.T) {
	if _, err := NewTree(alphabet(24), AmbiguityThreshold(2)); !errors.Is(err, ErrInsufficientLeaves) {
		t.Fatalf("expected ErrInsufficientLeaves, got %v", err)
	}
	if _, err := NewTree(alphabet(25), AmbiguityThreshold(2)); err != nil {
		t.Fatalf("expected 25 leaves to satisfy radius 2, got %v", err)
	}
	// kana has 12 leaves but only 10 root branches.
	if _, err := NewTree(kana(), 11); !errors.Is(err, ErrInsufficientLeaves) {
		t.Fatalf("expected 10 branches to fail threshold 11, got %v", err)
	}
	if tree, err := NewTree(kana(), 10); err != nil || tree.BranchCount() != 10 {
		t.Fatalf("expected 10 branches to satisfy threshold 10, got %v", err)
	}
}

// nested hangs 25 leaves below the single inner node x.
func nested() map[string]Entry {
	forward := map[string]Entry{"X": {Seq: "x", Weight: 1}}
	for i := 0; i < 25; i++ {
		s := "x" + string(rune('a'+i))
		forward[strings.ToUpper(s)] = Entry{Seq: s, Weight: 1}
	}
	return forward
}

func TestNewTreeRejectsLeavesBehindOneBranch(t *testing.T) {
	forward := nested()
	if _, err := NewTree(forward, AmbiguityThreshold(2)); !errors.Is(err, ErrInsufficientLeaves) {
		t.Fatalf("expected 25 leaves below one inner node to fail radius 2, got %v", err)
	}

	// Adding sibling branches makes every small avoid set survivable, even
	// one that names the inner node itself.
	for _, r := range "abcdefghijklmnopqrstuvwy" {
		s := string(r)
		forward[strings.ToUpper(s)] = Entry{Seq: s, Weight: 1}
	}
	tree, err := NewTree(forward, AmbiguityThreshold(2))
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}
	if got := tree.BranchCount(); got != 25 {
		t.Fatalf("expected 25 branches, got %d", got)
	}
	pair := tree.SelectNonConflicting([]string{"x"}, ByWeight)
	assertNoConflict(t, pair.Seq, []string{"x"})
}

func TestSelectNonConflictingAvoidsInnerNodes(t *testing.T) {
	threshold := AmbiguityThreshold(2)
	forward := alphabet(25)
	for k, v := range nested() {
		forward[k] = v
	}
	forward["AB"] = Entry{Seq: "ab", Weight: 2}
	forward["ABC"] = Entry{Seq: "abc", Weight: 1}

	for _, scheme := range []Scheme{BySeq, ByChar, ByWeight} {
		tree, err := NewTree(forward, threshold)
		if err != nil {
			t.Fatalf("NewTree returned error: %v", err)
		}
		var seqs []string
		for _, n := range tree.Nodes() {
			seqs = append(seqs, n.Seq)
		}
		rng := rand.New(rand.NewSource(11))
		for round := 0; round < 500; round++ {
			size := rng.Intn(threshold)
			avoid := make([]string, 0, size)
			for _, idx := range rng.Perm(len(seqs))[:size] {
				avoid = append(avoid, seqs[idx])
			}
			pair := tree.SelectNonConflicting(avoid, scheme)
			assertNoConflict(t, pair.Seq, avoid)
		}
	}
}

func TestNewTreeRejectsInvalidEntries(t *testing.T) {
	tests := []map[string]Entry{
		{"a": {Seq: "", Weight: 1}},
		{"": {Seq: "a", Weight: 1}},
		{"a": {Seq: "a", Weight: 0}},
		{"a": {Seq: "a", Weight: -2}},
	}
	for _, forward := range tests {
		if _, err := NewTree(forward, 0); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("expected ErrInvalidEntry for %v, got %v", forward, err)
		}
	}
}

func TestSelectNonConflictingAvoidsPrefixes(t *testing.T) {
	tree, err := NewTree(kana(), 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}

	avoid := []string{"na", "ka", "ji", "a"}
	for i := 0; i < 50; i++ {
		pair := tree.SelectNonConflicting(avoid, BySeq)
		assertNoConflict(t, pair.Seq, avoid)
		if pair.Seq == "n" {
			t.Fatalf("n is a prefix of avoided na and must never be picked")
		}
	}
}

func TestSelectNonConflictingRandomAvoidSets(t *testing.T) {
	threshold := AmbiguityThreshold(2)
	forward := alphabet(26)
	// Two-letter extensions create inner nodes the chains must respect.
	forward["AB"] = Entry{Seq: "ab", Weight: 1}
	forward["AC"] = Entry{Seq: "ac", Weight: 3}
	forward["ZQ"] = Entry{Seq: "zq", Weight: 1}

	for _, scheme := range []Scheme{BySeq, ByChar, ByWeight} {
		tree, err := NewTree(forward, threshold)
		if err != nil {
			t.Fatalf("NewTree returned error: %v", err)
		}
		tree.Reset(rand.New(rand.NewSource(7)))
		rng := rand.New(rand.NewSource(42))
		leaves := tree.Leaves()
		for round := 0; round < 500; round++ {
			size := rng.Intn(threshold)
			avoid := make([]string, 0, size)
			for _, idx := range rng.Perm(len(leaves))[:size] {
				avoid = append(avoid, leaves[idx])
			}
			pair := tree.SelectNonConflicting(avoid, scheme)
			assertNoConflict(t, pair.Seq, avoid)
		}
	}
}

func TestSelectNonConflictingPanicsWithoutCandidate(t *testing.T) {
	tree, err := NewTree(alphabet(3), 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when every leaf is avoided")
		}
	}()
	tree.SelectNonConflicting([]string{"a", "b", "c"}, BySeq)
}

func TestSelectByWeightFollowsWeights(t *testing.T) {
	tree, err := NewTree(map[string]Entry{
		"A": {Seq: "a", Weight: 1},
		"B": {Seq: "b", Weight: 2},
	}, 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}

	counts := map[string]int{}
	for i := 0; i < 3000; i++ {
		counts[tree.SelectNonConflicting(nil, ByWeight).Char]++
	}
	ratio := float64(counts["B"]) / float64(counts["A"])
	if ratio < 1.95 || ratio > 2.05 {
		t.Fatalf("expected B:A close to 2, got %d:%d (%.3f)", counts["B"], counts["A"], ratio)
	}
}

func TestSelectBySeqIsUniform(t *testing.T) {
	tree, err := NewTree(map[string]Entry{
		"A": {Seq: "a", Weight: 1},
		"B": {Seq: "b", Weight: 5},
	}, 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}
	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		counts[tree.SelectNonConflicting(nil, BySeq).Char]++
	}
	if counts["A"] != 50 || counts["B"] != 50 {
		t.Fatalf("expected even split by sequence, got %v", counts)
	}
}

func TestHomophonesBalanceByWeight(t *testing.T) {
	tree, err := NewTree(map[string]Entry{
		"じ": {Seq: "ji", Weight: 3},
		"ぢ": {Seq: "ji", Weight: 1},
	}, 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}
	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		pair := tree.SelectNonConflicting(nil, BySeq)
		if pair.Seq != "ji" {
			t.Fatalf("unexpected sequence %q", pair.Seq)
		}
		counts[pair.Char]++
	}
	if counts["じ"] != 300 || counts["ぢ"] != 100 {
		t.Fatalf("expected 3:1 homophone split, got %v", counts)
	}
}

func TestSelectPrefersUnusedInnerNode(t *testing.T) {
	tree, err := NewTree(map[string]Entry{
		"ん": {Seq: "n", Weight: 1},
		"な": {Seq: "na", Weight: 1},
	}, 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}
	first := tree.SelectNonConflicting(nil, BySeq)
	second := tree.SelectNonConflicting(nil, BySeq)
	if first.Seq == second.Seq {
		t.Fatalf("expected both n and na to be used, got %q twice", first.Seq)
	}
	// An avoided child truncates the chain to nothing, so n is unusable.
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic: n prefixes avoided na and na is avoided")
		}
	}()
	tree.SelectNonConflicting([]string{"na"}, BySeq)
}

func TestResetClearsCounters(t *testing.T) {
	tree, err := NewTree(alphabet(4), 0)
	if err != nil {
		t.Fatalf("NewTree returned error: %v", err)
	}
	for i := 0; i < 3; i++ {
		tree.SelectNonConflicting(nil, BySeq)
	}
	tree.Reset(nil)
	// After a zero reset, picks restart from the lexicographically first leaf.
	if got := tree.SelectNonConflicting(nil, BySeq); got.Seq != "a" {
		t.Fatalf("expected reset tree to start at a, got %q", got.Seq)
	}
}

func TestParseScheme(t *testing.T) {
	if s, err := ParseScheme(""); err != nil || s != ByWeight {
		t.Fatalf("expected empty scheme to default to weight, got %q %v", s, err)
	}
	if _, err := ParseScheme("bogus"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}

func assertNoConflict(t *testing.T, seq string, avoid []string) {
	t.Helper()
	for _, s := range avoid {
		if s == seq || strings.HasPrefix(seq, s) || strings.HasPrefix(s, seq) {
			t.Fatalf("sequence %q conflicts with avoided %q (avoid=%v)", seq, s, avoid)
		}
	}
}

package openingbook

import (
	"strings"
)

// Book is an immutable list of known opening lines from the start position,
// each a space-joined sequence of move tokens.
type Book struct {
	lines []string
}

// Picker chooses an index in [0, n).
type Picker interface {
	Intn(n int) int
}

// Result is a book hit.
type Result struct {
	Move         string
	Alternatives []string
}

// New normalises whitespace and drops blank lines.
func New(lines []string) *Book {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if norm := strings.Join(strings.Fields(l), " "); norm != "" {
			out = append(out, norm)
		}
	}
	return &Book{lines: out}
}

// Empty returns a book with no lines.
func Empty() *Book { return &Book{} }

func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.lines)
}

// Lines returns a copy of the stored lines.
func (b *Book) Lines() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.lines...)
}

// Candidates lists the distinct continuations of history in book order.
// A line continues history when it starts with the history text, its leading
// tokens equal the history tokens, and it has at least one more token.
func (b *Book) Candidates(history string) []string {
	if b == nil {
		return nil
	}
	played := strings.Fields(history)
	prefix := strings.Join(played, " ")
	n := len(played)

	seen := make(map[string]struct{})
	var out []string
	for _, line := range b.lines {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) <= n || !sameTokens(tokens[:n], played) {
			continue
		}
		next := tokens[n]
		if _, dup := seen[next]; dup {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	return out
}

// Lookup picks one continuation of history uniformly at random.
func (b *Book) Lookup(history string, pick Picker) (Result, bool) {
	cands := b.Candidates(history)
	if len(cands) == 0 {
		return Result{}, false
	}
	idx := 0
	if pick != nil && len(cands) > 1 {
		idx = pick.Intn(len(cands))
	}
	alts := make([]string, 0, len(cands)-1)
	for i, c := range cands {
		if i != idx {
			alts = append(alts, c)
		}
	}
	return Result{Move: cands[idx], Alternatives: alts}, true
}

func sameTokens(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package verifier

import (
	"strings"

	"github.com/google/btree"
)

// btreeDegree matches the default used elsewhere for small in-memory trees.
const btreeDegree = 16

// registry is the ordered map from lock key to record.
//
// A B-tree keeps lookup logarithmic and iteration in key order, which the
// destroy-time predecessor purge relies on. The caller (the verifier)
// serializes all access under its registry lock.
type registry struct {
	tree *btree.BTreeG[*record]
}

func newRegistry() *registry {
	return &registry{
		tree: btree.NewG(btreeDegree, func(a, b *record) bool {
			return a.key < b.key
		}),
	}
}

// find returns the record for key, or nil.
func (g *registry) find(key uintptr) *record {
	r, ok := g.tree.Get(&record{key: key})
	if !ok {
		return nil
	}
	return r
}

// findOrInsert returns the record for key, creating it with the given
// properties if absent. Reports whether a record was created.
func (g *registry) findOrInsert(key uintptr, kind Kind, recursive bool) (*record, bool) {
	if r := g.find(key); r != nil {
		return r, false
	}
	r := &record{key: key, kind: kind, recursive: recursive}
	g.tree.ReplaceOrInsert(r)
	return r, true
}

// remove deletes the record for key. The caller has already verified the
// record has no holders.
func (g *registry) remove(key uintptr) {
	g.tree.Delete(&record{key: key})
}

// ascend visits every record in key order until fn returns false.
func (g *registry) ascend(fn func(*record) bool) {
	g.tree.Ascend(fn)
}

// size returns the number of registered locks.
func (g *registry) size() int {
	return g.tree.Len()
}

// dump renders every record, one per line, for diagnostics and tests.
func (g *registry) dump() string {
	var b strings.Builder
	b.WriteString("registry: {\n")
	g.tree.Ascend(func(r *record) bool {
		b.WriteString("  ")
		b.WriteString(r.String())
		b.WriteString("\n")
		return true
	})
	b.WriteString("}")
	return b.String()
}

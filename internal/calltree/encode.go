package calltree

import "strings"

// Encode renders the tree in pre-order, one line per node:
//
//	[name, hash, start#end]: (child1, hash1), (child2, hash2)
//	|  [child1, hash1, start#end]: ...
//
// Indentation is cosmetic; Decode relies on the child lists only.
func Encode(t *Tree) string {
	var b strings.Builder
	t.root.render(&b, 0, t.root.hashes())
	return b.String()
}

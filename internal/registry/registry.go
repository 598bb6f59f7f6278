package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/getsentry/calltree/internal/calltree"
)

// ContextID identifies one execution context, such as a worker goroutine.
// Callers assign it; the registry never derives it from the runtime.
type ContextID struct {
	Label string
	ID    int64
}

// TreeName is the name given to the root of the context's tree.
func (c ContextID) TreeName() string {
	return fmt.Sprintf("%s %d", c.Label, c.ID)
}

// Registry maps each execution context to its call tree. Entries live until
// Clear is called.
type Registry struct {
	mu    sync.Mutex
	trees map[ContextID]*calltree.Tree
}

func New() *Registry {
	return &Registry{
		trees: make(map[ContextID]*calltree.Tree),
	}
}

// InstanceFor returns the tree of ctx, creating it on first use. Concurrent
// first calls for the same context all get the same tree.
func (r *Registry) InstanceFor(ctx ContextID) *calltree.Tree {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trees[ctx]; ok {
		return t
	}
	t := calltree.NewTree(ctx.TreeName())
	r.trees[ctx] = t
	log.Debug().Str("tree", t.Name()).Msg("registry: created call tree")
	return t
}

// All returns a snapshot of the registered trees, sorted by name.
func (r *Registry) All() []*calltree.Tree {
	r.mu.Lock()
	trees := make([]*calltree.Tree, 0, len(r.trees))
	for _, t := range r.trees {
		trees = append(trees, t)
	}
	r.mu.Unlock()

	sort.Slice(trees, func(i, j int) bool {
		return trees[i].Name() < trees[j].Name()
	})
	return trees
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trees)
}

// Clear drops every entry. It must not run while contexts are profiling.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees = make(map[ContextID]*calltree.Tree)
}

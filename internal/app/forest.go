package app

import (
	"fmt"
	"slices"
)

// forest is an id-keyed arena of parent links. Navigation is by id lookup only.
type forest struct {
	parent   map[string]string
	children map[string][]string
}

// newForest indexes items by the id and parent id returned from key.
// Children lists keep the input order.
func newForest[T any](items []T, key func(T) (id, parentID string)) *forest {
	f := &forest{
		parent:   make(map[string]string, len(items)),
		children: make(map[string][]string, len(items)),
	}
	for _, item := range items {
		id, parentID := key(item)
		f.parent[id] = parentID
		if parentID != "" {
			f.children[parentID] = append(f.children[parentID], id)
		}
	}
	return f
}

func (f *forest) has(id string) bool {
	_, ok := f.parent[id]
	return ok
}

func (f *forest) size() int {
	return len(f.parent)
}

// ancestors returns the chain above id, nearest first. The walk is bounded by
// the arena size; running past it means a stored cycle.
func (f *forest) ancestors(id string) ([]string, error) {
	out := []string{}
	cur := f.parent[id]
	for cur != "" {
		if len(out) > f.size() {
			return nil, fmt.Errorf("%w: parent chain of %q does not terminate", ErrGraphCorruption, id)
		}
		out = append(out, cur)
		next, ok := f.parent[cur]
		if !ok {
			break
		}
		cur = next
	}
	return out, nil
}

// wouldCycle reports whether placing id under parentID makes id its own ancestor.
func (f *forest) wouldCycle(id, parentID string) (bool, error) {
	if parentID == "" {
		return false, nil
	}
	if parentID == id {
		return true, nil
	}
	chain, err := f.ancestors(parentID)
	if err != nil {
		return false, err
	}
	return slices.Contains(chain, id), nil
}

// depth returns the level of id, counting roots as 1.
func (f *forest) depth(id string) (int, error) {
	chain, err := f.ancestors(id)
	if err != nil {
		return 0, err
	}
	return len(chain) + 1, nil
}

// height returns the number of levels in the subtree rooted at id, 1 for a leaf.
func (f *forest) height(id string) (int, error) {
	order, err := f.postOrder(id)
	if err != nil {
		return 0, err
	}
	base, err := f.depth(id)
	if err != nil {
		return 0, err
	}
	highest := 1
	for _, node := range order {
		d, err := f.depth(node)
		if err != nil {
			return 0, err
		}
		highest = max(highest, d-base+1)
	}
	return highest, nil
}

// postOrder lists the subtree rooted at id depth-first with children before
// their parent, ending with id itself.
func (f *forest) postOrder(id string) ([]string, error) {
	out := make([]string, 0, 1)
	seen := map[string]struct{}{}
	var visit func(node string) error
	visit = func(node string) error {
		if _, ok := seen[node]; ok {
			return fmt.Errorf("%w: %q reached twice below %q", ErrGraphCorruption, node, id)
		}
		seen[node] = struct{}{}
		for _, child := range f.children[node] {
			if err := visit(child); err != nil {
				return err
			}
		}
		out = append(out, node)
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return out, nil
}

// hasChildren reports whether any node lists id as its parent.
func (f *forest) hasChildren(id string) bool {
	return len(f.children[id]) > 0
}

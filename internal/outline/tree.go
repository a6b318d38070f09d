// Package outline turns a flat heading sequence into a tree.
package outline

import "column-indexer/internal/model"

// Node is a heading with its nested sub-headings.
type Node struct {
	ID       string  `json:"id" yaml:"id"`
	Title    string  `json:"title" yaml:"title"`
	Level    int     `json:"level" yaml:"level"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Forest is the list of top-level nodes in document order.
type Forest []*Node

// Build nests each heading under the nearest preceding heading with a
// strictly lower level. Level gaps are tolerated (h1 then h3 makes the h3 a
// child of the h1) and a heading never fails to place.
func Build(headings []model.HeadingRecord) Forest {
	root := &Node{Level: 0}
	stack := []*Node{root}
	for _, h := range headings {
		n := &Node{ID: h.ID, Title: h.Title, Level: h.Level}
		for len(stack) > 1 && stack[len(stack)-1].Level >= n.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, n)
		stack = append(stack, n)
	}
	return Forest(root.Children)
}

// Walk visits nodes in render order (pre-order), passing the depth starting
// at 0. Returning false from fn skips that node's children.
func (f Forest) Walk(fn func(n *Node, depth int) bool) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(f, 0)
}

// Flatten returns every node in render order.
func (f Forest) Flatten() []*Node {
	var out []*Node
	f.Walk(func(n *Node, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Find returns the first node with the given id.
func (f Forest) Find(id string) *Node {
	var found *Node
	f.Walk(func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Path returns the ids from the top-level ancestor down to id inclusive, or
// nil if id is not in the forest.
func (f Forest) Path(id string) []string {
	var path []string
	var search func(nodes []*Node) bool
	search = func(nodes []*Node) bool {
		for _, n := range nodes {
			path = append(path, n.ID)
			if n.ID == id || search(n.Children) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !search(f) {
		return nil
	}
	return path
}

// Len counts all nodes.
func (f Forest) Len() int {
	n := 0
	f.Walk(func(*Node, int) bool {
		n++
		return true
	})
	return n
}

// Package elementtree holds the cached accessibility snapshot of the
// device UI and answers point queries against it locally.
package elementtree

import (
	"time"

	"github.com/mobile-next/siminspect/geometry"
)

// Node frames are in device logical points.
type Node struct {
	ID            string        `json:"id" yaml:"id"`
	Type          string        `json:"type" yaml:"type"`
	Label         *string       `json:"label,omitempty" yaml:"label,omitempty"`
	Identifier    *string       `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Value         *string       `json:"value,omitempty" yaml:"value,omitempty"`
	Frame         geometry.Rect `json:"frame" yaml:"frame"`
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	Traits        []string      `json:"traits" yaml:"traits"`
	CustomActions []string      `json:"customActions" yaml:"customActions"`
	Children      []*Node       `json:"children,omitempty" yaml:"children,omitempty"`
}

// DisplayLabel is the text shown next to a highlighted element.
func (n *Node) DisplayLabel() string {
	if n.Label != nil && *n.Label != "" {
		return *n.Label
	}
	if n.Identifier != nil && *n.Identifier != "" {
		return *n.Identifier
	}
	return n.Type
}

// Tree is one fetch worth of nodes. It is never modified after NewTree;
// a refresh builds a new Tree.
type Tree struct {
	Roots      []*Node       `json:"roots" yaml:"roots"`
	DeviceSize geometry.Size `json:"deviceSize" yaml:"deviceSize"`
	FetchedAt  time.Time     `json:"fetchedAt" yaml:"fetchedAt"`
}

// NewTree derives the device logical size from the first root's frame.
func NewTree(roots []*Node, fetchedAt time.Time) *Tree {
	t := &Tree{Roots: roots, FetchedAt: fetchedAt}
	if len(roots) > 0 {
		t.DeviceSize = roots[0].Frame.Size()
	}
	return t
}

// Walk visits nodes depth-first; returning false from fn skips the
// node's children.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	if t == nil {
		return
	}
	for _, root := range t.Roots {
		walk(root, 0, fn)
	}
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.Children {
		walk(child, depth+1, fn)
	}
}

func (t *Tree) Count() int {
	count := 0
	t.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

func (t *Tree) Find(id string) *Node {
	var found *Node
	t.Walk(func(n *Node, _ int) bool {
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

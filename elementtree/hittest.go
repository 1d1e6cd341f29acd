package elementtree

import "github.com/mobile-next/siminspect/geometry"

// HitTest returns the deepest node under p, trying roots in fetch order.
// A point inside a root but outside all of its children hits the root.
func (t *Tree) HitTest(p geometry.Point) *Node {
	if t == nil {
		return nil
	}
	for _, root := range t.Roots {
		if hit := HitTest(root, p); hit != nil {
			return hit
		}
	}
	return nil
}

// HitTest searches n's subtree. A child is only considered when its
// parent contains p.
func HitTest(n *Node, p geometry.Point) *Node {
	if n == nil || !n.Frame.Contains(p) {
		return nil
	}
	for _, child := range n.Children {
		if hit := HitTest(child, p); hit != nil {
			return hit
		}
	}
	return n
}

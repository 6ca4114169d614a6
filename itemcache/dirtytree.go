package itemcache

import "github.com/driftfs/itemcache/key"

// itemTree is the augmented red-black tree backing the item map (§4.3).
// Parent pointers live directly on cell, per the design notes' "index-based
// arena of items where each node stores its parent's handle" — here the
// handle is simply the cell's own pointer, and the cache is the tree's
// sole owner, so there is no dangling-pointer ownership ambiguity.
//
// Augmentation maintenance has two parts, per §4.3. insert and erase run
// fixAugmentUpward from the point of structural change before rebalancing
// (erase also from the node moved into the erased node's place), and
// markDirty and clearDirty run it from the toggled node's parent; it
// recomputes and walks toward the root, stopping the moment a node's
// aggregate stops changing. rotateLeft/rotateRight then recompute both
// pivots themselves, child first then parent, since a rotation changes a
// pivot's children out from under it; a rotation that starts from correct
// aggregates therefore leaves them correct.
type itemTree struct {
	root *cell
	size int
}

func isRed(c *cell) bool { return c != nil && c.red }

// hasDirtyBelow reports whether the subtree rooted at c contains any
// SELF-dirty node. A node's own dirty field already aggregates this for
// its subtree, so checking "dirty != 0" on a child is exactly
// node_dirty_bit's question of the original source.
func hasDirtyBelow(c *cell) bool { return c != nil && c.dirty != 0 }

func recomputeSelf(c *cell) {
	d := c.dirty & dirtySelf
	if hasDirtyBelow(c.left) {
		d |= dirtyLeft
	}
	if hasDirtyBelow(c.right) {
		d |= dirtyRight
	}
	c.dirty = d
}

// fixAugmentUpward recomputes c's aggregate and walks toward the root,
// stopping as soon as a recompute leaves a node's dirty field unchanged.
func fixAugmentUpward(c *cell) {
	for c != nil {
		old := c.dirty
		recomputeSelf(c)
		if c.dirty == old {
			return
		}
		c = c.parent
	}
}

// rotateLeft re-links x and its right child y, then recomputes both pivots'
// augmentation from their (now current) children, x before y since y's
// aggregate depends on x's. Without this, a pivot can carry stale dirty
// bits that are off the changed node's root-path and so never get visited
// by a subsequent fixAugmentUpward walk.
func (t *itemTree) rotateLeft(x *cell) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
	recomputeSelf(x)
	recomputeSelf(y)
}

// rotateRight is rotateLeft's mirror image; see its comment.
func (t *itemTree) rotateRight(x *cell) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
	recomputeSelf(x)
	recomputeSelf(y)
}

// find returns the cell with key k, or nil.
func (t *itemTree) find(k key.Key) *cell {
	c := t.root
	for c != nil {
		cmp := key.Compare(k, c.key)
		switch {
		case cmp == 0:
			return c
		case cmp < 0:
			c = c.left
		default:
			c = c.right
		}
	}
	return nil
}

// walk performs a single descent for k and returns the exact match (or
// nil) along with its predecessor and successor cells, so lookup/next/prev
// share one traversal as §4.1 requires.
func (t *itemTree) walk(k key.Key) (found, pred, succ *cell) {
	c := t.root
	for c != nil {
		cmp := key.Compare(k, c.key)
		switch {
		case cmp == 0:
			found = c
			pred = t.predecessor(c)
			succ = t.successor(c)
			return
		case cmp < 0:
			succ = c
			c = c.left
		default:
			pred = c
			c = c.right
		}
	}
	return
}

// firstGreater returns the smallest cell with key strictly greater than k,
// or nil. Used by Next to find the next candidate item without requiring
// an exact match at k.
func (t *itemTree) firstGreater(k key.Key) *cell {
	c := t.root
	var best *cell
	for c != nil {
		if key.Compare(c.key, k) > 0 {
			best = c
			c = c.left
		} else {
			c = c.right
		}
	}
	return best
}

// lastLess returns the largest cell with key strictly less than k, or nil.
// Used by Prev, symmetric to firstGreater.
func (t *itemTree) lastLess(k key.Key) *cell {
	c := t.root
	var best *cell
	for c != nil {
		if key.Compare(c.key, k) < 0 {
			best = c
			c = c.right
		} else {
			c = c.left
		}
	}
	return best
}

func treeMin(c *cell) *cell {
	for c.left != nil {
		c = c.left
	}
	return c
}

func treeMax(c *cell) *cell {
	for c.right != nil {
		c = c.right
	}
	return c
}

// successor returns the next cell in key order after c, or nil.
func (t *itemTree) successor(c *cell) *cell {
	if c.right != nil {
		return treeMin(c.right)
	}
	p := c.parent
	for p != nil && c == p.right {
		c = p
		p = p.parent
	}
	return p
}

// predecessor returns the previous cell in key order before c, or nil.
func (t *itemTree) predecessor(c *cell) *cell {
	if c.left != nil {
		return treeMax(c.left)
	}
	p := c.parent
	for p != nil && c == p.left {
		c = p
		p = p.parent
	}
	return p
}

// insert links a freshly allocated, unlinked cell into the tree by key.
// The caller is responsible for c.dirty already reflecting its SELF state;
// insert will not overwrite an existing key (callers must check via find
// first, since cache-populate and logical-overwrite semantics differ).
func (t *itemTree) insert(c *cell) {
	var parent *cell
	cur := t.root
	goLeft := false
	for cur != nil {
		parent = cur
		if key.Compare(c.key, cur.key) < 0 {
			cur = cur.left
			goLeft = true
		} else {
			cur = cur.right
			goLeft = false
		}
	}
	c.parent = parent
	c.left, c.right = nil, nil
	c.red = true
	if parent == nil {
		t.root = c
	} else if goLeft {
		parent.left = c
	} else {
		parent.right = c
	}
	t.size++
	fixAugmentUpward(c.parent)
	t.insertFixup(c)
}

func (t *itemTree) insertFixup(z *cell) {
	for isRed(z.parent) {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if isRed(y) {
				z.parent.red = false
				y.red = false
				z.parent.parent.red = true
				z = z.parent.parent
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.red = false
			z.parent.parent.red = true
			t.rotateRight(z.parent.parent)
		} else {
			y := z.parent.parent.left
			if isRed(y) {
				z.parent.red = false
				y.red = false
				z.parent.parent.red = true
				z = z.parent.parent
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.red = false
			z.parent.parent.red = true
			t.rotateLeft(z.parent.parent)
		}
	}
	t.root.red = false
}

// transplant replaces the subtree rooted at u with the subtree rooted at
// v (v may be nil), per CLRS. It does not touch u's own children.
func (t *itemTree) transplant(u, v *cell) {
	if u.parent == nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

// erase removes z from the tree. z must already have had its SELF-dirty
// bit cleared by the caller (clear_item_dirty / unlink semantics) before
// calling erase, since erase only fixes structural augmentation, not z's
// own dirty accounting.
func (t *itemTree) erase(z *cell) {
	t.size--
	var y, x *cell
	var xParent *cell
	yOriginalRed := z.red

	if z.left == nil {
		x = z.right
		xParent = z.parent
		t.transplant(z, z.right)
	} else if z.right == nil {
		x = z.left
		xParent = z.parent
		t.transplant(z, z.left)
	} else {
		y = treeMin(z.right)
		yOriginalRed = y.red
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.red = z.red
	}

	z.left, z.right, z.parent = nil, nil, nil

	fixAugmentUpward(xParent)
	if y != nil {
		fixAugmentUpward(y)
	}
	if !yOriginalRed {
		t.eraseFixup(x, xParent)
	}
}

func (t *itemTree) eraseFixup(x, parent *cell) {
	for x != t.root && !isRed(x) {
		if parent == nil {
			break
		}
		if x == parent.left {
			w := parent.right
			if isRed(w) {
				w.red = false
				parent.red = true
				t.rotateLeft(parent)
				w = parent.right
			}
			if !isRed(w.left) && !isRed(w.right) {
				w.red = true
				x = parent
				parent = x.parent
				continue
			}
			if !isRed(w.right) {
				w.left.red = false
				w.red = true
				t.rotateRight(w)
				w = parent.right
			}
			w.red = parent.red
			parent.red = false
			w.right.red = false
			t.rotateLeft(parent)
			x = t.root
			break
		}
		w := parent.left
		if isRed(w) {
			w.red = false
			parent.red = true
			t.rotateRight(parent)
			w = parent.left
		}
		if !isRed(w.left) && !isRed(w.right) {
			w.red = true
			x = parent
			parent = x.parent
			continue
		}
		if !isRed(w.left) {
			w.right.red = false
			w.red = true
			t.rotateLeft(w)
			w = parent.left
		}
		w.red = parent.red
		parent.red = false
		w.left.red = false
		t.rotateRight(parent)
		x = t.root
		break
	}
	if x != nil {
		x.red = false
	}
}

// firstDirty descends from the root preferring LEFT-dirty subtrees, then
// SELF, then RIGHT, returning the smallest-key SELF-dirty item (§4.3).
func (t *itemTree) firstDirty() *cell {
	c := t.root
	for c != nil {
		if c.dirty&dirtyLeft != 0 {
			c = c.left
			continue
		}
		if c.dirty&dirtySelf != 0 {
			return c
		}
		if c.dirty&dirtyRight != 0 {
			c = c.right
			continue
		}
		return nil
	}
	return nil
}

// nextDirty returns the next SELF-dirty item after c in key order, or nil.
func (t *itemTree) nextDirty(c *cell) *cell {
	if c.dirty&dirtyRight != 0 {
		n := c.right
		for {
			if n.dirty&dirtyLeft != 0 {
				n = n.left
				continue
			}
			if n.dirty&dirtySelf != 0 {
				return n
			}
			n = n.right
		}
	}
	for c.parent != nil && c == c.parent.right {
		c = c.parent
	}
	p := c.parent
	for p != nil {
		if p.dirty&dirtySelf != 0 {
			return p
		}
		if p.dirty&dirtyRight != 0 {
			n := p.right
			for {
				if n.dirty&dirtyLeft != 0 {
					n = n.left
					continue
				}
				if n.dirty&dirtySelf != 0 {
					return n
				}
				n = n.right
			}
		}
		for p.parent != nil && p == p.parent.right {
			p = p.parent
		}
		p = p.parent
	}
	return nil
}

// markDirty sets SELF on c and propagates from its parent (§4.3's "when
// SELF is toggled, propagation starts at the parent").
func markDirty(c *cell) {
	c.dirty |= dirtySelf
	fixAugmentUpward(c.parent)
}

// clearDirty clears SELF on c and propagates from its parent.
func clearDirty(c *cell) {
	c.dirty &^= dirtySelf
	fixAugmentUpward(c.parent)
}

// inorder calls fn for every item cell in ascending key order. Used by
// destroy (post-order would also do, but in-order keeps the traversal
// symmetric with the rest of the package) and by tests checking P3/P4.
func (t *itemTree) inorder(fn func(c *cell)) {
	var walk func(c *cell)
	walk = func(c *cell) {
		if c == nil {
			return
		}
		walk(c.left)
		fn(c)
		walk(c.right)
	}
	walk(t.root)
}

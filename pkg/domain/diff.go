package domain

// Diff calculates the patches that turn oldTree into newTree, matching nodes
// by ID. If oldTree is nil, or the change cannot be expressed with appends,
// removals and renames (reordering, reparenting, a new root), it returns a
// single MapReplaced. Identical trees yield nil.
func Diff(oldTree, newTree *Node) []Patch {
	if oldTree == nil && newTree == nil {
		return nil
	}
	if oldTree == nil || newTree == nil {
		return []Patch{MapReplaced(newTree)}
	}

	oldIdx, err := NewTree(oldTree.Clone())
	if err != nil {
		return []Patch{MapReplaced(newTree)}
	}
	newIdx, err := NewTree(newTree.Clone())
	if err != nil {
		return []Patch{MapReplaced(newTree)}
	}
	if oldIdx.Root().ID != newIdx.Root().ID {
		return []Patch{MapReplaced(newTree)}
	}

	var patches []Patch

	// 1. Removals (topmost removed node only; its subtree goes with it)
	for _, id := range oldIdx.Subtree(oldIdx.Root().ID) {
		if newIdx.Has(id) {
			continue
		}
		parentID, _ := oldIdx.Parent(id)
		if newIdx.Has(parentID) {
			patches = append(patches, NodeRemoved(id))
		}
	}

	// 2. Renames, and order/parent checks for surviving nodes
	for _, id := range newIdx.Subtree(newIdx.Root().ID) {
		newNode, _ := newIdx.Get(id)
		oldNode, existed := oldIdx.Get(id)
		if !existed {
			continue
		}

		oldParent, _ := oldIdx.Parent(id)
		newParent, _ := newIdx.Parent(id)
		if oldParent != newParent {
			return []Patch{MapReplaced(newTree)}
		}
		if !appendOnly(oldNode, newNode, newIdx, oldIdx) {
			return []Patch{MapReplaced(newTree)}
		}

		if p, changed := diffNode(oldNode, newNode); changed {
			patches = append(patches, p)
		}
	}

	// 3. Additions in pre-order so parents precede children
	for _, id := range newIdx.Subtree(newIdx.Root().ID) {
		if oldIdx.Has(id) {
			continue
		}
		n, _ := newIdx.Get(id)
		parentID, _ := newIdx.Parent(id)
		patches = append(patches, NodeAdded(id, parentID, n.Name))

		// NodeAdded carries no note; follow up with a rename when needed
		if note, ok := n.Note(); ok {
			patches = append(patches, NodeRenamed(id, n.Name, &note))
		}
	}

	if len(patches) == 0 {
		return nil
	}
	return patches
}

func diffNode(oldNode, newNode *Node) (Patch, bool) {
	oldNote, oldHas := oldNode.Note()
	newNote, newHas := newNode.Note()

	if oldNode.Name == newNode.Name && oldNote == newNote && oldHas == newHas {
		return Patch{}, false
	}
	var note *string
	if newHas || oldHas {
		note = &newNote
	}
	return NodeRenamed(newNode.ID, newNode.Name, note), true
}

// appendOnly reports whether the children of newNode are the surviving
// children of oldNode in their original order followed by new nodes.
func appendOnly(oldNode, newNode *Node, newIdx, oldIdx *Tree) bool {
	var survivors []string
	for _, c := range oldNode.Children {
		if newIdx.Has(c.ID) {
			survivors = append(survivors, c.ID)
		}
	}

	i := 0
	for _, c := range newNode.Children {
		if oldIdx.Has(c.ID) {
			if i >= len(survivors) || survivors[i] != c.ID {
				return false
			}
			i++
			continue
		}
		// a new child before a surviving one changes relative order
		if i < len(survivors) {
			return false
		}
	}
	return i == len(survivors)
}

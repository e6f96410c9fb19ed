/*
Package arbor is a layout and synchronization engine for collaborative mind maps.

A mind map is a labeled tree of ideas. Arbor projects the tree into a node and
edge graph with deterministic positions, lets a user edit that graph, and keeps
the tree, the graph and every remote peer consistent while patches arrive out
of order, twice, or for nodes that no longer exist.

# Concept

The canonical state is a tree (domain.Node). Layout turns it into a graph
(domain.Graph) whose visual nodes refer back to tree nodes by ID only. Local
edits go through the Engine, which mutates both sides and returns the
domain.Patch to broadcast. Remote patches are merged with Engine.Apply:

  - NodeRenamed is last-writer-wins and ignored when the node is gone.
  - NodeAdded for an unknown parent is buffered for one retry pass.
  - NodeRemoved removes the whole subtree and every edge touching it.
  - EdgeAdded is ignored unless both endpoints exist.
  - MapReplaced discards everything and lays the new tree out again.

An Engine is single-writer. A Runner owns one Engine and one ports.Channel and
serializes inbound envelopes and local commands on a single goroutine.

# Usage

	eng := arbor.New(arbor.WithOrigin("client-1"))
	if err := eng.Load(tree); err != nil {
		log.Fatal(err)
	}

	patch, err := eng.Rename(ctx, "node-id", "New label", nil)
	if errors.Is(err, domain.ErrStaleReference) {
		// The node was removed by a peer; drop the edit.
	}

	// Broadcast patch, and on the receiving side:
	res, err := peer.Apply(ctx, patch)
*/
package arbor

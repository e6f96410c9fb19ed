/*
Package domain contains the core data model of the Arbor mind map engine.

It defines the canonical tree, the visual graph projected from it and the
patches exchanged between peers. This package is kept pure and free of I/O,
following Hexagonal Architecture principles.

# Key Entities

  - Node: One idea of the canonical tree (name, attributes, ordered children).
  - Tree: The id-keyed index over a Node hierarchy; the only way visual nodes
    resolve their source.
  - Graph: Positioned VisualNodes and VisualEdges the user manipulates.
  - Patch: The unit of synchronization (renamed, added, removed, edge, replace).
  - Envelope: A sync channel message (map_updated, update_map, error...).
*/
package domain

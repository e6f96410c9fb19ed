/*
Package ports defines the driven ports (interfaces) of the Arbor engine.

These interfaces decouple the merge logic from transports, storage backends and
the map generator, so the same engine runs in a browser-facing relay, a CLI or a
test harness.

# Key Interfaces

  - Channel: Duplex transport of wire envelopes between one client and the relay.
  - MapStore: Persists canonical trees by map ID.
  - Broker: Fans envelopes out to every other participant of a map.
  - Generator: Turns free text into an initial tree.
  - DistributedLocker: Serializes per-map writes across relay replicas.
*/
package ports

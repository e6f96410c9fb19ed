// Package relay is the server side of the sync protocol: it owns the
// canonical copy of each map and fans patches out to the other participants.
package relay

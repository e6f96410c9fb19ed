/*
Package session serializes access to stored mind maps.

The relay is stateless between requests: every patch loads the canonical tree,
merges into it and saves it back. Manager makes that cycle atomic per map,
combining in-process mutexes with an optional distributed lock so several
relay replicas can share one store.
*/
package session

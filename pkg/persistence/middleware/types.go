package middleware

import "github.com/aretw0/arbor/pkg/ports"

// Middleware allows wrapping a MapStore to add behavior.
type Middleware func(ports.MapStore) ports.MapStore

// Chain applies middlewares so the first one listed is the outermost.
func Chain(store ports.MapStore, mws ...Middleware) ports.MapStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

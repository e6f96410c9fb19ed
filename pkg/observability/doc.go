/*
Package observability turns engine and relay activity into Prometheus metrics
and structured log records.

Both are delivered through domain.LifecycleHooks, so any engine or relay
accepts them with WithLifecycleHooks. Use ChainHooks to install several.
*/
package observability

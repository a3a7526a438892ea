// Package observability builds the structured logger used across the
// comparison core and collects in-process per-provider statistics from
// settled results.
package observability

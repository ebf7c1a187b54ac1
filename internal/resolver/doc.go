// Package resolver maps experiment names to experiment ids.
//
// The first Resolve for a name in a run creates the experiment row if it
// does not exist yet and caches its id. Later calls answer from the cache
// without touching storage. Concurrent first calls for the same name share
// one storage round trip, and the (name, run_date) uniqueness constraint
// keeps separate processes from creating a second row.
package resolver

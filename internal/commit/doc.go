// Package commit turns single-channel measurements into stored rows.
//
// Engine.Commit validates a measurement against the registry, resolves the
// experiment id, and appends exactly one row. Validation failures never
// reach storage and nothing is buffered or retried. Pool runs commits on a
// fixed set of workers fed by a bounded queue, for callers that receive
// readings from a subscription callback and must not block on storage.
package commit

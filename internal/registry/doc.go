// Package registry maps measurement kinds to their storage tables.
//
// The registry is the single source of truth for the column contract of each
// kind: whether the table carries a calibration reference, whether the value
// is a scalar or a fixed-length vector, and whether units are mandatory.
// The store derives its DDL and its INSERT/SELECT column lists from it.
//
// Two table layouts are known:
//   - experiment: experiment_id, date, reactor, [calibration], value, units
//   - node:       node_id, date, reactor, model, channel, value
//
// Only the experiment layout can be registered. The node layout survives as
// a description of older schema drafts so that CUE registry files written
// against them fail loudly instead of silently producing orphan rows.
//
// A Registry is immutable once built and safe for concurrent use.
package registry

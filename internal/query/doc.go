// Package query reads committed measurements back.
//
// Latest and History address one (experiment, reactor, kind) series.
// ExperimentData returns every kind of one experiment, optionally limited
// to a trailing time window. All reads are plain queries with no caching.
package query

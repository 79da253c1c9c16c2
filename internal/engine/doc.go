// Package engine consolidates colour substitutions into a single palette
// state. It derives the colour table from a base sprite, derives one palette
// map per comparison sprite, merges previously exported documents, and keeps
// colour identifiers stable across every merge.
//
// The engine performs no I/O and is not safe for concurrent mutation: callers
// apply one operation at a time, in input order.
package engine

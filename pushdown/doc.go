// Package pushdown reconciles filters pushed by several consumers of one
// physical scan into a single remote query.
//
// A planning cycle is: zero or more Accumulator.Propose calls, then one
// Synthesizer.Synthesize call. Every proposal with at least one expressible
// filter adds a FilterSet and marks the cycle as having filters. Synthesis
// ORs all sets accumulated so far (AND within a set) and ends the cycle.
//
// The remote query is therefore a superset of what any single consumer
// asked for, and Propose hands every filter back so that each consumer
// re-applies its own.
package pushdown

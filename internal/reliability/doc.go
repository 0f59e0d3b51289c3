// Package reliability turns sampled charger status pings into reliability
// figures.
//
// A computation runs per charger and is split in four pure steps:
//
//	Normalize        order, dedupe and clip the pings to the query window
//	BuildIntervals   contiguous state intervals, stale pings become UNKNOWN
//	ClassifyEpisodes merge FAULTED/OFFLINE intervals into outage episodes
//	SessionOverlap   charging time lost to those episodes
//
// Aggregate pools the per-charger results of a scope into a Report. Nothing
// here performs I/O or keeps state between calls; Params and Window are
// passed explicitly to every step.
package reliability

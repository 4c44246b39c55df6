package tree

import "sync/atomic"

// Stats holds per-instance counters. They replace process-wide debug
// counters and are safe to read while the tree is mutated.
type Stats struct {
	nodesCreated   atomic.Int64
	nodesPruned    atomic.Int64
	lostNodeRaces  atomic.Int64
	payloadRetries atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	NodesCreated   int64
	NodesPruned    int64
	LostNodeRaces  int64
	PayloadRetries int64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		NodesCreated:   s.nodesCreated.Load(),
		NodesPruned:    s.nodesPruned.Load(),
		LostNodeRaces:  s.lostNodeRaces.Load(),
		PayloadRetries: s.payloadRetries.Load(),
	}
}

// LiveNodes is the number of non-root nodes currently linked.
func (s StatsSnapshot) LiveNodes() int64 {
	return s.NodesCreated - s.NodesPruned
}

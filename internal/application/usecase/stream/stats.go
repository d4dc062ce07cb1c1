package stream

import "sync/atomic"

// Stats 会话计数器的快照
type Stats struct {
	Batches       uint64 `json:"batches"`
	Tokens        uint64 `json:"tokens"`
	Discarded     uint64 `json:"discarded"`
	Changes       uint64 `json:"changes"`
	Subscriptions uint64 `json:"subscriptions"`
	Reconnects    uint64 `json:"reconnects"`
}

type counters struct {
	batches       atomic.Uint64
	tokens        atomic.Uint64
	discarded     atomic.Uint64
	changes       atomic.Uint64
	subscriptions atomic.Uint64
	reconnects    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Batches:       c.batches.Load(),
		Tokens:        c.tokens.Load(),
		Discarded:     c.discarded.Load(),
		Changes:       c.changes.Load(),
		Subscriptions: c.subscriptions.Load(),
		Reconnects:    c.reconnects.Load(),
	}
}

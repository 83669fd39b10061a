package snowflake

import (
	"errors"
	"sync"
	"time"
)

// Snowflake-style id layout: 41 bits of milliseconds since epoch, 10 bits of
// node id, 12 bits of per-millisecond sequence. Ids are positive and sort by
// creation time, which is what conversation ordering relies on.
const (
	nodeBits        = 10
	seqBits         = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	seqMask         = -1 ^ (-1 << seqBits)
	timeShift       = nodeBits + seqBits
	nodeShift       = seqBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

type Generator struct {
	mu   sync.Mutex
	last int64
	node int64
	seq  int64
}

// New returns a generator for the given node id. Node ids must be unique per
// running relay instance.
func New(node int64) (*Generator, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("snowflake: node id must be between 0 and 1023")
	}
	return &Generator{node: node}, nil
}

// NextID returns a new unique id. Safe for concurrent use.
func (g *Generator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.last {
		// Clock went backwards; hold the line until it catches up.
		now = g.last
	}

	if now == g.last {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.last = now

	return ((now - epoch) << timeShift) | (g.node << nodeShift) | g.seq
}

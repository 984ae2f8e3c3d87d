package relay

import (
	"strconv"
	"time"
)

// IDGenerator issues task ids shaped like a millisecond Unix timestamp
// ("1700000000000"). When the clock has not moved past the previous id the
// previous id plus one is used instead, so ids are strictly increasing and
// unique for the life of the process.
//
// IDGenerator is not safe for concurrent use; the hub calls it from its
// dispatch loop only.
type IDGenerator struct {
	now  func() time.Time
	last int64
}

// NewIDGenerator returns a generator reading the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a fresh id.
func (g *IDGenerator) Next() string {
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10)
}

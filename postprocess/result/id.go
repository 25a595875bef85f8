package result

import "sync/atomic"

// IDGenerator hands out prediction IDs starting at 1, safe for concurrent
// use by the batches of one adapter
type IDGenerator struct {
	last atomic.Int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next ID
func (g *IDGenerator) Next() int64 {
	return g.last.Add(1)
}

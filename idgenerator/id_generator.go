package idgenerator

import "sync/atomic"

// IdGenerator hands out connection ids in a concurrency-safe manner. Ids are
// strictly increasing and never zero, so zero can mean "no id". The counter
// wraps past the maximum back to 1.
type IdGenerator struct {
	id atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Id() returns
// startValue+1 (or 1 when that would be zero).
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next id. It is safe for concurrent use by multiple
// goroutines.
//
// Returns:
//   - The next non-zero uint64 id
func (g *IdGenerator) Id() uint64 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}

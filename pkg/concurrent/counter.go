// Package concurrent holds small lock-free primitives, used by the
// coordinator where a plain mutex would be overkill for a single running
// total (transfer counts, committed/aborted tallies).
package concurrent

import (
	"sync/atomic"
)

// Counter is a lock-free counter using atomic operations. The zero value is
// ready to use.
type Counter struct {
	value uint64
}

// Inc increments the counter by 1 and returns the new value.
func (c *Counter) Inc() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

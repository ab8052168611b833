// Package zxid gives the client's tracked transaction id a type of its
// own: the epoch/counter split used for logging reconnects, and a
// Tracker that enforces the monotonic-update invariant from §3 without
// the session machine having to remember the comparison itself.
//
// The zxid is a 64-bit number the server assigns; this client never
// mints one. The high 32 bits are the leader epoch, the low 32 the
// per-epoch counter.
// https://zookeeper.apache.org/doc/r3.4.13/zookeeperInternals.html#sc_guaranteesPropertiesDefinitions
package zxid

import "sync/atomic"

// ZXID is a server-assigned transaction id.
type ZXID int64

// Epoch returns the high 32 bits: which leader term produced this zxid.
func (z ZXID) Epoch() int32 {
	return int32(z >> 32)
}

// Counter returns the low 32 bits: the per-epoch sequence number.
func (z ZXID) Counter() int32 {
	const mask ZXID = 0xFFFFFFFF
	return int32(z & mask)
}

// Tracker holds the session's lastZxid under atomic access, so readers
// outside the session machine's own goroutine can take a snapshot
// without a mutex (§5: "mutated only by the Session Machine's internal
// thread; readers take an atomic snapshot").
type Tracker struct {
	v int64
}

// Observe applies the monotonic-update rule: it stores zxid only if
// zxid is strictly greater than the current value, and reports whether
// it did.
func (t *Tracker) Observe(zxid int64) bool {
	for {
		cur := atomic.LoadInt64(&t.v)
		if zxid <= cur {
			return false
		}
		if atomic.CompareAndSwapInt64(&t.v, cur, zxid) {
			return true
		}
	}
}

// Load returns the current lastZxid.
func (t *Tracker) Load() int64 {
	return atomic.LoadInt64(&t.v)
}

// Reset zeroes the tracker, used when a session expires and its
// identity fields are wiped per §4.6.
func (t *Tracker) Reset() {
	atomic.StoreInt64(&t.v, 0)
}

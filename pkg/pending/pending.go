// Package pending implements the Pending Request Table (§4.4): the map
// from in-flight XID to the waiter that resolves when the matching
// response arrives, or fails on timeout or session teardown.
package pending

import (
	"sync"
	"time"

	"github.com/arborist-zk/zk/pkg/zkerr"
)

// Response is handed to a registered entry's sink on completion.
type Response struct {
	Zxid int64
	Err  int32
	Body []byte
}

// Entry is one in-flight request. Sink receives exactly one of a
// successful Response or an error.
type Entry struct {
	Xid     int32
	Opcode  int32
	Deadline time.Time
	sink    chan result
}

type result struct {
	resp Response
	err  error
}

// Table serializes all access to the XID->Entry map, per §5's shared
// resource rules.
type Table struct {
	mu      sync.Mutex
	entries map[int32]*Entry
}

// New returns an empty pending request table.
func New() *Table {
	return &Table{entries: make(map[int32]*Entry)}
}

// Register adds a new pending entry for xid. It returns the entry and a
// response channel and an error channel; exactly one of the two receives
// the entry's outcome, once. XIDs are assigned
// monotonically by the caller, so a duplicate registration should never
// happen in practice; if it does, the prior entry is silently replaced
// and its own channel will never receive an outcome.
func (t *Table) Register(xid int32, opcode int32, deadline time.Time) (*Entry, <-chan Response, <-chan error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &Entry{
		Xid:      xid,
		Opcode:   opcode,
		Deadline: deadline,
		sink:     make(chan result, 1),
	}
	t.entries[xid] = e

	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)
	go func() {
		r := <-e.sink
		if r.err != nil {
			errCh <- r.err
		} else {
			respCh <- r.resp
		}
	}()
	return e, respCh, errCh
}

// Complete routes a response to the entry registered under xid. It
// reports ok=false if no such entry exists (an "unknown message" per
// §4.4, routed to the session machine by the caller).
func (t *Table) Complete(xid int32, resp Response) bool {
	t.mu.Lock()
	e, ok := t.entries[xid]
	if ok {
		delete(t.entries, xid)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.sink <- result{resp: resp}
	return true
}

// Fail fails one pending entry by XID, reporting whether it existed.
func (t *Table) Fail(xid int32, err error) bool {
	t.mu.Lock()
	e, ok := t.entries[xid]
	if ok {
		delete(t.entries, xid)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.sink <- result{err: err}
	return true
}

// FailAll fails every pending entry with err and empties the table.
// Used on connection loss and session teardown.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int32]*Entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.sink <- result{err: err}
	}
	return len(entries)
}

// ExpireDue fails every entry whose deadline has passed with a local
// operation-timeout error, returning how many were expired. Only
// meaningful if callers registered entries with a non-zero deadline;
// the session machine does not use per-request deadlines by default
// (§9's open question — left explicit rather than implicit) but the
// hook exists for callers that opt into one.
func (t *Table) ExpireDue(now time.Time) int {
	t.mu.Lock()
	var due []*Entry
	for xid, e := range t.entries {
		if !e.Deadline.IsZero() && now.After(e.Deadline) {
			due = append(due, e)
			delete(t.entries, xid)
		}
	}
	t.mu.Unlock()

	for _, e := range due {
		e.sink <- result{err: &zkerr.Error{Kind: zkerr.KindSystemError, Code: zkerr.CodeOperationTimeout, Reason: "operation timed out"}}
	}
	return len(due)
}

// Len reports the number of requests currently in flight.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

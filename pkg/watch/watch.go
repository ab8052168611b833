// Package watch implements the Watch Registry (§4.5): the mapping from
// client path to the set of one-shot watchers registered against it,
// split by watch kind, plus the off-I/O-path delivery queue that keeps a
// slow watcher from stalling protocol processing.
package watch

import (
	"sync"

	"github.com/arborist-zk/zk/pkg/proto"
)

// Kind identifies which of the three watch sets a registration belongs
// to.
type Kind int

const (
	KindData Kind = iota
	KindExist
	KindChild
)

// Event is what a Watcher receives: either a (type, state, path) change
// notification, or a session-level state change delivered as EventNone.
type Event struct {
	Type  proto.EventType
	State proto.KeeperState
	Path  string
}

// Watcher is the callback capability §3 and §4.5 describe. A watcher
// registered under a (kind, path) key fires at most once — materializing
// a matching event removes it from the registry before delivery.
type Watcher interface {
	OnEvent(Event)
}

// WatcherFunc adapts a plain function to the Watcher interface, the way
// callers typically want to register one-off closures.
type WatcherFunc func(Event)

func (f WatcherFunc) OnEvent(e Event) { f(e) }

type pathSet map[string]map[Watcher]struct{}

func (s pathSet) add(path string, w Watcher) {
	set, ok := s[path]
	if !ok {
		set = make(map[Watcher]struct{})
		s[path] = set
	}
	set[w] = struct{}{}
}

// take removes and returns every watcher registered at path, the
// atomic "remove on materialize" step the one-shot contract requires.
func (s pathSet) take(path string) []Watcher {
	set, ok := s[path]
	if !ok {
		return nil
	}
	delete(s, path)
	out := make([]Watcher, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

func (s pathSet) paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Registry holds the three per-kind path->watcher-set mappings and the
// single default watcher slot. All operations are serialized by mu per
// §5.
type Registry struct {
	mu   sync.Mutex
	data pathSet
	exist pathSet
	child pathSet

	defaultWatcher Watcher

	deliverOnce sync.Once
	queue       chan delivery
}

type delivery struct {
	w Watcher
	e Event
}

// New returns an empty registry. defaultWatcher may be nil; if so,
// session-level (EventNone) notifications are simply dropped.
func New(defaultWatcher Watcher) *Registry {
	r := &Registry{
		data:           make(pathSet),
		exist:          make(pathSet),
		child:          make(pathSet),
		defaultWatcher: defaultWatcher,
		queue:          make(chan delivery, 256),
	}
	go r.deliveryLoop()
	return r
}

// deliveryLoop runs off the I/O path: one worker drains the queue and
// invokes OnEvent, so a slow watcher backs up the queue rather than the
// reader goroutine. Events are delivered in the order they were queued,
// matching the order they were received from the server.
func (r *Registry) deliveryLoop() {
	for d := range r.queue {
		d.w.OnEvent(d.e)
	}
}

func (r *Registry) enqueue(w Watcher, e Event) {
	if w == nil {
		return
	}
	r.queue <- delivery{w: w, e: e}
}

func (r *Registry) RegisterDataWatcher(w Watcher, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.add(path, w)
}

func (r *Registry) RegisterExistWatcher(w Watcher, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exist.add(path, w)
}

func (r *Registry) RegisterChildWatcher(w Watcher, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.child.add(path, w)
}

// Materialize computes the set of watchers to fire for an incoming
// WatchedEvent per the table in §4.5, removes them from the registry,
// and enqueues delivery. It returns the number of watchers fired, for
// logging/testing.
func (r *Registry) Materialize(e Event) int {
	r.mu.Lock()
	var fired []Watcher
	switch e.Type {
	case proto.EventNodeCreated, proto.EventNodeDataChanged:
		fired = append(fired, r.data.take(e.Path)...)
		fired = append(fired, r.exist.take(e.Path)...)
	case proto.EventNodeDeleted:
		fired = append(fired, r.data.take(e.Path)...)
		fired = append(fired, r.exist.take(e.Path)...)
		fired = append(fired, r.child.take(e.Path)...)
	case proto.EventNodeChildrenChanged:
		fired = append(fired, r.child.take(e.Path)...)
	case proto.EventNone:
		if r.defaultWatcher != nil {
			fired = append(fired, r.defaultWatcher)
		}
	}
	r.mu.Unlock()

	for _, w := range fired {
		r.enqueue(w, e)
	}
	return len(fired)
}

// Snapshot returns the three path lists, for re-arming watches with a
// SetWatches frame after reconnect.
func (r *Registry) Snapshot() (dataPaths, existPaths, childPaths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.paths(), r.exist.paths(), r.child.paths()
}

// FailAll synthesizes a None event with the given state and fires it to
// every registered watcher, including the default watcher. If state is
// terminal (Expired or AuthFailed) the registry is cleared, since no
// reconnect will ever re-arm these watches.
func (r *Registry) FailAll(state proto.KeeperState) {
	r.mu.Lock()
	all := map[Watcher]struct{}{}
	collect := func(s pathSet) {
		for _, set := range s {
			for w := range set {
				all[w] = struct{}{}
			}
		}
	}
	collect(r.data)
	collect(r.exist)
	collect(r.child)
	if r.defaultWatcher != nil {
		all[r.defaultWatcher] = struct{}{}
	}
	terminal := state == proto.StateExpired || state == proto.StateAuthFailed
	if terminal {
		r.data = make(pathSet)
		r.exist = make(pathSet)
		r.child = make(pathSet)
	}
	r.mu.Unlock()

	e := Event{Type: proto.EventNone, State: state}
	for w := range all {
		r.enqueue(w, e)
	}
}

package session

import (
	"sync"
	"sync/atomic"

	"github.com/arborist-zk/zk/pkg/proto"
)

// phase is the Session Machine's internal lifecycle state (§4.6's state
// diagram: Disconnected -> Connecting -> SyncConnected -> Disconnected*,
// plus terminal Expired/AuthFailed/Closed). It is distinct from
// proto.KeeperState, which is the narrower externally-published
// connection condition watchers observe.
type phase int32

const (
	phaseDisconnected phase = iota
	phaseConnecting
	phaseSyncConnected
	phaseExpired
	phaseAuthFailed
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseDisconnected:
		return "disconnected"
	case phaseConnecting:
		return "connecting"
	case phaseSyncConnected:
		return "syncConnected"
	case phaseExpired:
		return "expired"
	case phaseAuthFailed:
		return "authFailed"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// keeperState maps the internal phase onto the published KeeperState.
// Closed has no KeeperState equivalent; callers observe it by the
// session simply stopping, not via a watcher event.
func (p phase) keeperState() proto.KeeperState {
	switch p {
	case phaseDisconnected, phaseConnecting:
		return proto.StateDisconnected
	case phaseSyncConnected:
		return proto.StateSyncConnected
	case phaseExpired:
		return proto.StateExpired
	case phaseAuthFailed:
		return proto.StateAuthFailed
	default:
		return proto.StateUnknown
	}
}

func (m *Machine) getPhase() phase {
	return phase(atomic.LoadInt32((*int32)(&m.phase)))
}

func (m *Machine) setPhase(p phase) {
	atomic.StoreInt32((*int32)(&m.phase), int32(p))
	m.notifyMu.Lock()
	close(m.notifyCh)
	m.notifyCh = make(chan struct{})
	m.notifyMu.Unlock()
}

// notifyChan returns the channel that closes the next time setPhase
// runs, letting a caller parked in awaitReady wake up and re-check.
func (m *Machine) notifyChan() chan struct{} {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	return m.notifyCh
}

func (m *Machine) isTerminal() bool {
	switch m.getPhase() {
	case phaseExpired, phaseAuthFailed, phaseClosed:
		return true
	default:
		return false
	}
}

// stateHub fans KeeperState transitions out to every subscriber: the additional
// state-subscription surface from SPEC_FULL §4.6, generalizing the
// single default-watcher slot spec.md already describes.
type stateHub struct {
	mu   sync.Mutex
	subs map[chan proto.KeeperState]struct{}
}

func newStateHub() *stateHub {
	return &stateHub{subs: make(map[chan proto.KeeperState]struct{})}
}

// Subscribe returns a channel of future KeeperState transitions. The
// caller should keep draining it; Unsubscribe stops delivery.
func (h *stateHub) Subscribe() chan proto.KeeperState {
	ch := make(chan proto.KeeperState, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *stateHub) Unsubscribe(ch chan proto.KeeperState) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *stateHub) Publish(s proto.KeeperState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- s:
		default:
			// Slow subscriber: drop rather than block the session
			// machine's own goroutine delivering this transition.
		}
	}
}

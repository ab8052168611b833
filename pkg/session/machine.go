// Package session implements the Session Machine (§4.6): the top-level
// state machine that turns an endpoint list into a durable logical
// session, dispatches requests and responses over one frame transport
// at a time, heartbeats, and reconnects transparently.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arborist-zk/zk/pkg/pending"
	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/transport"
	"github.com/arborist-zk/zk/pkg/watch"
	"github.com/arborist-zk/zk/pkg/zxid"
	"go.uber.org/zap"
)

// dialFunc is overridden in tests to avoid real sockets.
type dialFunc func(addr string, timeout time.Duration, log *zap.Logger) (transport.Transport, error)

func defaultDial(addr string, timeout time.Duration, log *zap.Logger) (transport.Transport, error) {
	return transport.Dial(addr, timeout, log)
}

// generation is everything that belongs to one Frame Transport's
// lifetime: once it closes, a brand new generation is created by the
// next successful handshake. ready closes once auth and watch replay
// have been sent on this generation's transport, gating Do() so a
// request parked in awaitReady can never overtake replay (§4.6
// scenario 6).
type generation struct {
	transport transport.Transport
	ready     chan struct{}
}

// Machine is the Session Machine. Construct with New, then Start it;
// CloseSession, or cancelling the context passed to Start, tears it down.
type Machine struct {
	cfg Config
	dial dialFunc

	// Identity fields, mutated only by the machine's own goroutine (the
	// connect loop / reader), read elsewhere via snapshot methods (§5).
	mu                sync.Mutex
	protocolVersion   int32
	sessionID         int64
	sessionPassword   []byte
	negotiatedTimeout int32

	lastZxid zxid.Tracker
	phase    phase

	notifyMu sync.Mutex
	notifyCh chan struct{}

	endpoints []string
	epIdx     int32

	xidCounter int32

	pending *pending.Table
	watches *watch.Registry
	states  *stateHub

	authMu sync.Mutex
	auths  []proto.AuthRequest

	gen atomic.Pointer[generation]

	closeOnce sync.Once
	closeCh   chan struct{}

	log *zap.Logger
}

// New constructs a Machine from cfg but does not start connecting;
// call Start for that.
func New(cfg Config) (*Machine, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("session: no servers configured")
	}
	cfg = cfg.normalize()
	m := &Machine{
		cfg:       cfg,
		dial:      defaultDial,
		endpoints: append([]string(nil), cfg.Servers...),
		pending:   pending.New(),
		states:    newStateHub(),
		closeCh:   make(chan struct{}),
		notifyCh:  make(chan struct{}),
		log:       cfg.Logger,
	}
	m.watches = watch.New(cfg.DefaultWatcher)
	return m, nil
}

// Chroot returns the session's configured chroot prefix.
func (m *Machine) Chroot() string { return m.cfg.Chroot }

// Watches exposes the Watch Registry so the public API surface can
// perform conditional registration after decoding a response.
func (m *Machine) Watches() *watch.Registry { return m.watches }

// SubscribeState returns a channel of future KeeperState transitions.
func (m *Machine) SubscribeState() chan proto.KeeperState { return m.states.Subscribe() }

// UnsubscribeState stops delivery to a channel returned by SubscribeState.
func (m *Machine) UnsubscribeState(ch chan proto.KeeperState) { m.states.Unsubscribe(ch) }

// State returns the currently published KeeperState.
func (m *Machine) State() proto.KeeperState { return m.getPhase().keeperState() }

// LastZxid returns the most recently observed transaction id.
func (m *Machine) LastZxid() int64 { return m.lastZxid.Load() }

// SessionID returns the server-assigned session identifier, 0 before
// the first successful handshake.
func (m *Machine) SessionID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Machine) snapshotIdentity() (protocolVersion int32, sessionID int64, passwd []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.protocolVersion, m.sessionID, m.sessionPassword
}

func (m *Machine) setIdentity(resp proto.ConnectResponse) {
	m.mu.Lock()
	m.protocolVersion = resp.ProtocolVersion
	m.sessionID = resp.SessionID
	m.sessionPassword = resp.Passwd
	m.negotiatedTimeout = resp.TimeoutMs
	m.mu.Unlock()
}

func (m *Machine) negotiatedTimeoutDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.negotiatedTimeout <= 0 {
		return m.cfg.SessionTimeout
	}
	return time.Duration(m.negotiatedTimeout) * time.Millisecond
}

// wipeIdentity zeroes the fields §4.6 requires reset on expiry.
func (m *Machine) wipeIdentity() {
	m.mu.Lock()
	m.protocolVersion = 0
	m.sessionID = 0
	m.sessionPassword = nil
	m.negotiatedTimeout = 0
	m.mu.Unlock()
	m.lastZxid.Reset()
}

func (m *Machine) nextXid() int32 {
	return atomic.AddInt32(&m.xidCounter, 1)
}

// nextEndpoint rotates round-robin through the configured endpoints.
func (m *Machine) nextEndpoint() string {
	i := atomic.AddInt32(&m.epIdx, 1) - 1
	return m.endpoints[int(i)%len(m.endpoints)]
}

// Start launches the connect loop in the background. It returns
// immediately; use SubscribeState or block on a request to observe
// when the session actually becomes SyncConnected.
func (m *Machine) Start(ctx context.Context) {
	m.setPhase(phaseConnecting)
	go m.run(ctx)
}

// currentGeneration returns the active connection generation, or nil if
// none exists yet.
func (m *Machine) currentGeneration() *generation {
	return m.gen.Load()
}

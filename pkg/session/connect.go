package session

import (
	"context"
	"time"

	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/transport"
	"github.com/arborist-zk/zk/pkg/zkerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// run is the connect loop: pick an endpoint, hand off to the reader
// once connected, and on disconnection either reconnect or stop if the
// session has reached a terminal phase.
func (m *Machine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.teardown(zkerr.ErrClosed)
			return
		case <-m.closeCh:
			return
		default:
		}

		if m.isTerminal() {
			return
		}

		m.setPhase(phaseConnecting)
		ep := m.nextEndpoint()
		tr, resp, err := m.connectAndHandshake(ctx, ep)
		if err != nil {
			if m.isTerminal() {
				return
			}
			m.setPhase(phaseDisconnected)
			m.log.Warn("connect attempt failed", zap.String("endpoint", ep), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-m.closeCh:
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		m.runGeneration(ctx, tr, resp)
	}
}

// connectAndHandshake dials ep and performs the ConnectRequest/
// ConnectResponse exchange described in §4.6. It does not mutate any
// machine state beyond what setIdentity/declareExpired do explicitly.
func (m *Machine) connectAndHandshake(ctx context.Context, ep string) (transport.Transport, proto.ConnectResponse, error) {
	attemptID := uuid.New()
	log := m.log.With(zap.String("attempt", attemptID.String()), zap.String("endpoint", ep))

	tr, err := m.dial(ep, m.cfg.DialTimeout, log)
	if err != nil {
		return nil, proto.ConnectResponse{}, err
	}

	protocolVersion, sessionID, passwd := m.snapshotIdentity()
	req := proto.ConnectRequest{
		ProtocolVersion: protocolVersion,
		LastZxidSeen:    m.lastZxid.Load(),
		TimeoutMs:       int32(m.cfg.SessionTimeout / time.Millisecond),
		SessionID:       sessionID,
		Passwd:          passwd,
	}
	if err := tr.Send(proto.EncodeConnectRequest(req)); err != nil {
		tr.Close(err)
		return nil, proto.ConnectResponse{}, err
	}

	select {
	case body, ok := <-tr.Frames():
		if !ok {
			err := tr.Err()
			if err == nil {
				err = zkerr.ErrConnectionLost
			}
			return nil, proto.ConnectResponse{}, err
		}
		resp, err := proto.DecodeConnectResponse(body)
		if err != nil {
			tr.Close(err)
			return nil, proto.ConnectResponse{}, err
		}
		log.Debug("connect response", zap.Int64("sessionId", resp.SessionID), zap.Int32("negotiatedTimeoutMs", resp.TimeoutMs))
		return tr, resp, nil
	case <-ctx.Done():
		tr.Close(ctx.Err())
		return nil, proto.ConnectResponse{}, ctx.Err()
	case <-m.closeCh:
		tr.Close(zkerr.ErrClosed)
		return nil, proto.ConnectResponse{}, zkerr.ErrClosed
	case <-time.After(m.cfg.DialTimeout):
		tr.Close(zkerr.ErrConnectionLost)
		return nil, proto.ConnectResponse{}, zkerr.ErrConnectionLost
	}
}

// runGeneration handles one successful handshake's lifetime: apply the
// negotiated identity (or declare expiry), publish state, replay auth
// and watches, then block as the reader until the transport closes.
func (m *Machine) runGeneration(ctx context.Context, tr transport.Transport, resp proto.ConnectResponse) {
	if resp.TimeoutMs <= 0 {
		m.declareExpired(tr)
		return
	}

	m.setIdentity(resp)
	gen := &generation{transport: tr, ready: make(chan struct{})}
	m.gen.Store(gen)
	m.setPhase(phaseSyncConnected)
	m.states.Publish(proto.StateSyncConnected)
	m.log.Info("session established",
		zap.Int64("sessionId", resp.SessionID),
		zap.Int32("negotiatedTimeoutMs", resp.TimeoutMs))

	m.replayAuth(tr)
	m.replayWatches(tr)
	close(gen.ready)

	_ = tr.SetDeadline(time.Now().Add(m.negotiatedTimeoutDuration()))
	go m.heartbeatLoop(ctx, gen)

	m.readDispatch(gen)

	// Transport closed. If still SyncConnected (not already pushed to a
	// terminal phase by the dispatcher), this was an ordinary connection
	// loss: fail pending, go Disconnected, and let run() reconnect.
	if m.getPhase() == phaseSyncConnected {
		m.setPhase(phaseDisconnected)
		m.states.Publish(proto.StateDisconnected)
		n := m.pending.FailAll(zkerr.ErrConnectionLost)
		m.log.Warn("transport closed while connected", zap.Int("failedRequests", n), zap.Error(tr.Err()))
	}
}

// replayAuth resends every stored AddAuth credential, one frame per
// entry, each with XID=-4 (§4.6 scenario 6).
func (m *Machine) replayAuth(tr transport.Transport) {
	m.authMu.Lock()
	auths := append([]proto.AuthRequest(nil), m.auths...)
	m.authMu.Unlock()

	for _, a := range auths {
		frame := proto.EncodeRequest(proto.XidAuth, proto.OpAuth, a)
		if err := tr.Send(frame); err != nil {
			m.log.Warn("auth replay failed", zap.String("scheme", a.Scheme), zap.Error(err))
			return
		}
	}
}

// replayWatches sends a single SetWatches frame (XID=-8) containing
// every currently-registered path, if any are registered (§4.6
// scenario 5).
func (m *Machine) replayWatches(tr transport.Transport) {
	dataPaths, existPaths, childPaths := m.watches.Snapshot()
	if len(dataPaths) == 0 && len(existPaths) == 0 && len(childPaths) == 0 {
		return
	}
	req := proto.SetWatchesRequest{
		RelativeZxid: m.lastZxid.Load(),
		DataPaths:    dataPaths,
		ExistPaths:   existPaths,
		ChildPaths:   childPaths,
	}
	frame := proto.EncodeRequest(proto.XidSetWatches, proto.OpSetWatches, req)
	if err := tr.Send(frame); err != nil {
		m.log.Warn("watch rearm failed", zap.Error(err))
	}
}

// declareExpired implements §4.6's non-positive-negotiated-timeout path:
// zero identity, transition to Expired, fail everything pending, and
// stop — the session is dead, never reconnected automatically.
func (m *Machine) declareExpired(tr transport.Transport) {
	m.wipeIdentity()
	m.setPhase(phaseExpired)
	m.states.Publish(proto.StateExpired)
	m.watches.FailAll(proto.StateExpired)
	m.pending.FailAll(zkerr.ErrSessionExpired)
	m.log.Warn("session expired")
	if tr != nil {
		tr.Close(zkerr.ErrSessionExpired)
	}
}

func (m *Machine) teardown(cause error) {
	m.closeOnce.Do(func() {
		close(m.closeCh)
	})
	if p := m.getPhase(); p != phaseExpired && p != phaseAuthFailed {
		m.setPhase(phaseClosed)
	}
	m.pending.FailAll(cause)
	if gen := m.gen.Load(); gen != nil {
		gen.transport.Close(cause)
	}
}

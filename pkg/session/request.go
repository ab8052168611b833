package session

import (
	"context"
	"time"

	"github.com/arborist-zk/zk/pkg/pending"
	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/zkerr"
)

// Do is the request send path (§4.6): obtain a fresh XID, register a
// pending entry, write the frame, and block until the matching response
// arrives, the connection is lost, the session expires, or ctx is
// cancelled. It's the single chokepoint every public API method funnels
// through.
func (m *Machine) Do(ctx context.Context, opcode proto.OpCode, body proto.Encodable) (pending.Response, error) {
	gen, err := m.awaitReady(ctx)
	if err != nil {
		return pending.Response{}, err
	}

	xid := m.nextXid()
	_, respCh, errCh := m.pending.Register(xid, int32(opcode), time.Time{})

	frame := proto.EncodeRequest(xid, opcode, body)
	if err := gen.transport.Send(frame); err != nil {
		m.pending.Fail(xid, zkerr.ErrConnectionLost)
		return pending.Response{}, zkerr.ErrConnectionLost
	}

	select {
	case r := <-respCh:
		return r, nil
	case err := <-errCh:
		return pending.Response{}, err
	case <-ctx.Done():
		m.pending.Fail(xid, ctx.Err())
		return pending.Response{}, ctx.Err()
	case <-m.closeCh:
		return pending.Response{}, zkerr.ErrClosed
	}
}

// awaitReady resolves the generation a request should be sent on.
// Per §4.7: requests issued while Disconnected fail immediately with
// ConnectionLost; requests issued mid-handshake (Connecting) wait for
// that handshake to finish one way or another.
func (m *Machine) awaitReady(ctx context.Context) (*generation, error) {
	for {
		switch m.getPhase() {
		case phaseSyncConnected:
			if gen := m.gen.Load(); gen != nil {
				select {
				case <-gen.ready:
					return gen, nil
				default:
					// Auth/watch replay for this generation hasn't been
					// sent yet; wait for it or for a phase change, rather
					// than letting this request overtake replay.
					select {
					case <-gen.ready:
						return gen, nil
					case <-m.notifyChan():
						continue
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-m.closeCh:
						return nil, zkerr.ErrClosed
					}
				}
			}
			// Phase and generation pointer are updated in that order by
			// runGeneration; losing this race means a transition is
			// imminent, so fall through to wait for it.
		case phaseConnecting:
			// wait below
		case phaseExpired:
			return nil, zkerr.ErrSessionExpired
		case phaseAuthFailed:
			return nil, zkerr.ErrAuthFailed
		case phaseClosed:
			return nil, zkerr.ErrClosed
		default: // phaseDisconnected
			return nil, zkerr.ErrConnectionLost
		}

		ch := m.notifyChan()
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.closeCh:
			return nil, zkerr.ErrClosed
		}
	}
}

// AddAuth appends scheme/cred to the session's auth list and, if
// currently connected, sends an Auth frame (XID=-4) immediately. The
// credential is replayed again on every future reconnect (§4.6).
func (m *Machine) AddAuth(scheme string, cred []byte) error {
	m.authMu.Lock()
	m.auths = append(m.auths, proto.AuthRequest{Scheme: scheme, Cred: cred})
	m.authMu.Unlock()

	gen := m.gen.Load()
	if gen == nil || m.getPhase() != phaseSyncConnected {
		return nil
	}
	frame := proto.EncodeRequest(proto.XidAuth, proto.OpAuth, proto.AuthRequest{Scheme: scheme, Cred: cred})
	return gen.transport.Send(frame)
}

// CloseSession sends one CloseSession frame, then transitions to Closed
// and tears down the transport (§4.6). Safe to call more than once.
func (m *Machine) CloseSession() error {
	gen := m.gen.Load()
	if gen != nil && m.getPhase() == phaseSyncConnected {
		xid := m.nextXid()
		frame := proto.EncodeRequest(xid, proto.OpCloseSession, proto.CloseRequest{})
		_ = gen.transport.Send(frame)
	}
	m.teardown(zkerr.ErrClosed)
	return nil
}

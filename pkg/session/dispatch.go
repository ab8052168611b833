package session

import (
	"context"
	"time"

	"github.com/arborist-zk/zk/pkg/pending"
	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/watch"
	"github.com/arborist-zk/zk/pkg/zkerr"
	"github.com/arborist-zk/zk/pkg/zkpath"
	"go.uber.org/zap"
)

// readDispatch is the response read path (§4.6): for each inbound
// frame, decode the header, update lastZxid, and route by XID. It
// blocks until the transport's frame channel closes, making the
// goroutine that calls it the session's single I/O reader stream.
func (m *Machine) readDispatch(gen *generation) {
	deadline := m.negotiatedTimeoutDuration()
	for body := range gen.transport.Frames() {
		_ = gen.transport.SetDeadline(time.Now().Add(deadline))

		hdr, rest, err := proto.DecodeResponseHeader(body)
		if err != nil {
			m.log.Warn("failed to decode response header", zap.Error(err))
			continue
		}
		if hdr.Zxid > 0 {
			m.lastZxid.Observe(hdr.Zxid)
		}

		switch hdr.Xid {
		case proto.XidWatcherEvent:
			m.dispatchWatcherEvent(rest)
		case proto.XidPing:
			// Liveness only; SetDeadline above already covers it.
		case proto.XidAuth:
			m.dispatchAuthResponse(gen, hdr)
		case proto.XidSetWatches:
			if hdr.Err != 0 {
				m.log.Warn("setWatches replay rejected", zap.Int32("err", hdr.Err))
			}
		default:
			resp := pending.Response{Zxid: hdr.Zxid, Err: hdr.Err, Body: append([]byte(nil), rest...)}
			if !m.pending.Complete(hdr.Xid, resp) {
				m.log.Warn("response for unknown xid", zap.Int32("xid", hdr.Xid))
			}
		}
	}
}

func (m *Machine) dispatchWatcherEvent(body []byte) {
	var we proto.WatcherEvent
	if err := we.Decode(proto.NewDecoder(body)); err != nil {
		m.log.Warn("failed to decode watcher event", zap.Error(err))
		return
	}
	path := zkpath.RemoveChroot(m.cfg.Chroot, we.Path)
	n := m.watches.Materialize(watch.Event{
		Type:  proto.EventType(we.Type),
		State: proto.KeeperState(we.State),
		Path:  path,
	})
	m.log.Debug("watcher event",
		zap.String("type", proto.EventType(we.Type).String()),
		zap.String("path", path),
		zap.Int("firedWatchers", n))
}

// dispatchAuthResponse implements §4.6: AUTH_FAILED terminates the
// session; any other code for an auth response is ignored.
func (m *Machine) dispatchAuthResponse(gen *generation, hdr proto.ResponseHeader) {
	if hdr.Err != int32(zkerr.CodeAuthFailed) {
		return
	}
	m.setPhase(phaseAuthFailed)
	m.states.Publish(proto.StateAuthFailed)
	m.watches.FailAll(proto.StateAuthFailed)
	m.pending.FailAll(zkerr.ErrAuthFailed)
	m.log.Warn("authentication failed; closing session")
	gen.transport.Close(zkerr.ErrAuthFailed)
}

// heartbeatLoop is the writer/timer stream: it sends a ping frame every
// PingInterval, but only while SyncConnected, per the resolution of
// §9's open question recorded in DESIGN.md (the teacher's original pings unconditionally;
// this client gates on state to avoid pinging a socket mid-teardown).
func (m *Machine) heartbeatLoop(ctx context.Context, gen *generation) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closeCh:
			return
		case <-gen.transport.Closed():
			return
		case <-ticker.C:
			if m.getPhase() != phaseSyncConnected {
				continue
			}
			frame := proto.EncodeRequest(proto.XidPing, proto.OpPing, proto.PingRequest{})
			if err := gen.transport.Send(frame); err != nil {
				m.log.Debug("ping send failed", zap.Error(err))
				return
			}
		}
	}
}

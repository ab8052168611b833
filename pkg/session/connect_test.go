package session

import (
	"context"
	"testing"
	"time"

	"github.com/arborist-zk/zk/pkg/pending"
	"github.com/arborist-zk/zk/pkg/proto"
	mock_transport "github.com/arborist-zk/zk/pkg/transport/mocks"
	"github.com/arborist-zk/zk/pkg/watch"
	"github.com/arborist-zk/zk/pkg/zkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// frameBody strips the 4-byte length prefix EncodeFrame adds, returning
// the raw body a test can decode field by field.
func frameBody(t *testing.T, frame []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), proto.LengthPrefixSize)
	return frame[proto.LengthPrefixSize:]
}

// decodeRequestHeader reads {xid, opcode} off the front of a request
// frame body, mirroring RequestHeader.Encode.
func decodeRequestHeader(t *testing.T, body []byte) (int32, proto.OpCode, []byte) {
	t.Helper()
	d := proto.NewDecoder(body)
	xid, err := d.ReadInt32()
	require.NoError(t, err)
	opcode, err := d.ReadInt32()
	require.NoError(t, err)
	return xid, proto.OpCode(opcode), body[8:]
}

func decodeSetWatches(t *testing.T, body []byte) proto.SetWatchesRequest {
	t.Helper()
	d := proto.NewDecoder(body)
	relZxid, err := d.ReadInt64()
	require.NoError(t, err)
	readPaths := func() []string {
		n, err := d.ReadInt32()
		require.NoError(t, err)
		out := make([]string, 0, n)
		for i := int32(0); i < n; i++ {
			s, err := d.ReadString()
			require.NoError(t, err)
			out = append(out, s)
		}
		return out
	}
	return proto.SetWatchesRequest{
		RelativeZxid: relZxid,
		DataPaths:    readPaths(),
		ExistPaths:   readPaths(),
		ChildPaths:   readPaths(),
	}
}

func decodeAuth(t *testing.T, body []byte) proto.AuthRequest {
	t.Helper()
	d := proto.NewDecoder(body)
	authType, err := d.ReadInt32()
	require.NoError(t, err)
	scheme, err := d.ReadString()
	require.NoError(t, err)
	cred, err := d.ReadBytes()
	require.NoError(t, err)
	return proto.AuthRequest{Type: authType, Scheme: scheme, Cred: cred}
}

type capturedWatcher struct {
	events chan watch.Event
}

func newCapturedWatcher() *capturedWatcher {
	return &capturedWatcher{events: make(chan watch.Event, 4)}
}

func (w *capturedWatcher) OnEvent(e watch.Event) { w.events <- e }

// TestRunGeneration_ReplaysWatchesOnReconnect covers §4.6 scenario 5: a
// watch registered before a disconnect is re-armed with a single
// SetWatches frame carrying the last observed zxid and the registered
// paths once the next generation comes up.
func TestRunGeneration_ReplaysWatchesOnReconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mock_transport.NewMockTransport(ctrl)

	m := newTestMachine(t)
	m.lastZxid.Observe(42)
	w := newCapturedWatcher()
	m.watches.RegisterDataWatcher(w, "/a")
	m.watches.RegisterChildWatcher(w, "/b")

	var setWatchesFrame []byte
	mt.EXPECT().Send(gomock.Any()).DoAndReturn(func(frame []byte) error {
		setWatchesFrame = frame
		return nil
	})
	frames := make(chan []byte)
	mt.EXPECT().Frames().Return((<-chan []byte)(frames)).AnyTimes()
	mt.EXPECT().SetDeadline(gomock.Any()).Return(nil).AnyTimes()
	closedCh := make(chan struct{})
	mt.EXPECT().Closed().Return((<-chan struct{})(closedCh)).AnyTimes()
	mt.EXPECT().Err().Return(nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.runGeneration(ctx, mt, proto.ConnectResponse{SessionID: 7, TimeoutMs: 10000})
	}()

	close(frames) // let readDispatch return once replay has been observed
	<-done
	close(closedCh)

	require.NotNil(t, setWatchesFrame)
	_, opcode, body := decodeRequestHeader(t, frameBody(t, setWatchesFrame))
	assert.Equal(t, proto.OpSetWatches, opcode)

	got := decodeSetWatches(t, body)
	assert.Equal(t, int64(42), got.RelativeZxid)
	assert.ElementsMatch(t, []string{"/a"}, got.DataPaths)
	assert.ElementsMatch(t, []string{"/b"}, got.ChildPaths)
	assert.Empty(t, got.ExistPaths)
}

// TestRunGeneration_ReplaysAuthBeforeLettingRequestsThrough covers §4.6
// scenario 6: every stored AddAuth credential is resent on the new
// generation, and a request parked waiting for the reconnect cannot be
// sent ahead of that replay.
func TestRunGeneration_ReplaysAuthBeforeLettingRequestsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mock_transport.NewMockTransport(ctrl)

	m := newTestMachine(t)
	m.setPhase(phaseConnecting)
	require.NoError(t, m.AddAuth("digest", []byte("user:pass")))

	var order []string
	mt.EXPECT().Send(gomock.Any()).DoAndReturn(func(frame []byte) error {
		xid, _, body := decodeRequestHeader(t, frameBody(t, frame))
		if xid == proto.XidAuth {
			order = append(order, "auth")
			a := decodeAuth(t, body)
			assert.Equal(t, "digest", a.Scheme)
		} else {
			order = append(order, "request")
		}
		return nil
	}).AnyTimes()
	frames := make(chan []byte)
	mt.EXPECT().Frames().Return((<-chan []byte)(frames)).AnyTimes()
	mt.EXPECT().SetDeadline(gomock.Any()).Return(nil).AnyTimes()
	closedCh := make(chan struct{})
	mt.EXPECT().Closed().Return((<-chan struct{})(closedCh)).AnyTimes()
	mt.EXPECT().Err().Return(nil).AnyTimes()

	// Park a user request before the generation exists, so it wakes on
	// the same setPhase(SyncConnected) call that makes replay eligible.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reqDone := make(chan struct{})
	go func() {
		defer close(reqDone)
		_, err := m.Do(ctx, proto.OpExists, proto.ExistsRequest{Path: "/a"})
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond) // let it park in awaitReady

	genDone := make(chan struct{})
	go func() {
		defer close(genDone)
		m.runGeneration(ctx, mt, proto.ConnectResponse{SessionID: 9, TimeoutMs: 10000})
	}()

	require.Eventually(t, func() bool { return m.pending.Len() == 1 }, time.Second, time.Millisecond)
	m.pending.Complete(1, pending.Response{})
	<-reqDone

	close(frames)
	<-genDone
	close(closedCh)

	require.NotEmpty(t, order)
	assert.Equal(t, "auth", order[0])
	assert.Contains(t, order, "request")
}

// TestRunGeneration_NonPositiveTimeoutExpiresSession covers §4.6
// scenario 4: a ConnectResponse with a non-positive negotiated timeout
// declares the session expired, wipes identity, and fails everything
// pending rather than attempting to reconnect.
func TestRunGeneration_NonPositiveTimeoutExpiresSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mock_transport.NewMockTransport(ctrl)
	mt.EXPECT().Close(gomock.Any()).Return(nil)

	m := newTestMachine(t)
	m.setIdentity(proto.ConnectResponse{SessionID: 55, Passwd: []byte("secret"), TimeoutMs: 10000})

	w := newCapturedWatcher()
	m.watches.RegisterDataWatcher(w, "/a")

	_, respCh, errCh := m.pending.Register(1, int32(proto.OpGetData), time.Time{})

	m.runGeneration(context.Background(), mt, proto.ConnectResponse{TimeoutMs: 0})

	assert.Equal(t, phaseExpired, m.getPhase())
	assert.Equal(t, proto.StateExpired, m.State())
	assert.Equal(t, int64(0), m.SessionID())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, zkerr.ErrSessionExpired)
	case <-respCh:
		t.Fatal("expected pending request to fail, not succeed")
	case <-time.After(time.Second):
		t.Fatal("pending request was never failed")
	}

	dataPaths, existPaths, childPaths := m.watches.Snapshot()
	assert.Empty(t, dataPaths)
	assert.Empty(t, existPaths)
	assert.Empty(t, childPaths)
}

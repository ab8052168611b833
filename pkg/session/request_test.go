package session

import (
	"context"
	"testing"
	"time"

	"github.com/arborist-zk/zk/pkg/pending"
	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/transport"
	mock_transport "github.com/arborist-zk/zk/pkg/transport/mocks"
	"github.com/arborist-zk/zk/pkg/zkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(Config{Servers: []string{"127.0.0.1:0"}})
	require.NoError(t, err)
	return m
}

// readyGeneration builds a generation whose replay gate is already
// closed, for tests that drive Do() directly against a transport
// without going through runGeneration's handshake/replay sequence.
func readyGeneration(tr transport.Transport) *generation {
	ready := make(chan struct{})
	close(ready)
	return &generation{transport: tr, ready: ready}
}

func TestMachine_DoSendsFrameAndResolvesOnResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mock_transport.NewMockTransport(ctrl)
	mt.EXPECT().Send(gomock.Any()).Return(nil)

	m := newTestMachine(t)
	m.gen.Store(readyGeneration(mt))
	m.setPhase(phaseSyncConnected)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := m.Do(context.Background(), proto.OpGetData, proto.GetDataRequest{Path: "/a"})
		require.NoError(t, err)
		assert.Equal(t, int64(5), r.Zxid)
		assert.Equal(t, []byte("payload"), r.Body)
	}()

	require.Eventually(t, func() bool { return m.pending.Len() == 1 }, time.Second, time.Millisecond)
	ok := m.pending.Complete(1, pending.Response{Zxid: 5, Body: []byte("payload")})
	require.True(t, ok)

	<-done
}

func TestMachine_AwaitReadyFailsImmediatelyWhenDisconnected(t *testing.T) {
	m := newTestMachine(t)
	m.setPhase(phaseDisconnected)

	_, err := m.Do(context.Background(), proto.OpGetData, proto.GetDataRequest{Path: "/a"})
	assert.ErrorIs(t, err, zkerr.ErrConnectionLost)
}

func TestMachine_AwaitReadyFailsWithSessionExpired(t *testing.T) {
	m := newTestMachine(t)
	m.setPhase(phaseExpired)

	_, err := m.Do(context.Background(), proto.OpGetData, proto.GetDataRequest{Path: "/a"})
	assert.ErrorIs(t, err, zkerr.ErrSessionExpired)
}

func TestMachine_AwaitReadyWaitsThroughConnectingThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mock_transport.NewMockTransport(ctrl)
	mt.EXPECT().Send(gomock.Any()).Return(nil)

	m := newTestMachine(t)
	m.setPhase(phaseConnecting)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.Do(context.Background(), proto.OpExists, proto.ExistsRequest{Path: "/a"})
		require.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond) // give Do a chance to park in awaitReady
	m.gen.Store(readyGeneration(mt))
	m.setPhase(phaseSyncConnected)

	require.Eventually(t, func() bool { return m.pending.Len() == 1 }, time.Second, time.Millisecond)
	m.pending.Complete(1, pending.Response{})

	<-done
}

func TestMachine_CloseSessionTearsDownPendingRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mock_transport.NewMockTransport(ctrl)
	mt.EXPECT().Send(gomock.Any()).Return(nil).AnyTimes()
	mt.EXPECT().Close(gomock.Any()).Return(nil)

	m := newTestMachine(t)
	m.gen.Store(readyGeneration(mt))
	m.setPhase(phaseSyncConnected)
	_, _, errCh := m.pending.Register(1, int32(proto.OpGetData), time.Time{})

	err := m.CloseSession()
	require.NoError(t, err)
	assert.True(t, m.isTerminal())
	assert.Equal(t, 0, m.pending.Len())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, zkerr.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending request was never failed")
	}
}

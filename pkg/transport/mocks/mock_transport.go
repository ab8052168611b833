// Written by hand in the shape MockGen emits.
// Source: github.com/arborist-zk/zk/pkg/transport (interfaces: Transport)

// Package mock_transport is a GoMock package, hand-maintained
// here in lieu of running mockgen, mirroring the shape mockgen produces
// for the Transport interface so session tests can drive a fake frame
// stream deterministically.
package mock_transport

import (
	"reflect"
	"time"

	"go.uber.org/mock/gomock"
)

// MockTransport is a mock of the Transport interface.
type MockTransport struct {
	ctrl     *gomock.Controller
	recorder *MockTransportMockRecorder
}

// MockTransportMockRecorder is the mock recorder for MockTransport.
type MockTransportMockRecorder struct {
	mock *MockTransport
}

// NewMockTransport creates a new mock instance.
func NewMockTransport(ctrl *gomock.Controller) *MockTransport {
	mock := &MockTransport{ctrl: ctrl}
	mock.recorder = &MockTransportMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockTransport) EXPECT() *MockTransportMockRecorder {
	return m.recorder
}

// Send mocks base method.
func (m *MockTransport) Send(frame []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Send", frame)
	ret0, _ := ret[0].(error)
	return ret0
}

// Send indicates an expected call of Send.
func (mr *MockTransportMockRecorder) Send(frame interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Send", reflect.TypeOf((*MockTransport)(nil).Send), frame)
}

// Frames mocks base method.
func (m *MockTransport) Frames() <-chan []byte {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Frames")
	ret0, _ := ret[0].(<-chan []byte)
	return ret0
}

// Frames indicates an expected call of Frames.
func (mr *MockTransportMockRecorder) Frames() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Frames", reflect.TypeOf((*MockTransport)(nil).Frames))
}

// Closed mocks base method.
func (m *MockTransport) Closed() <-chan struct{} {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Closed")
	ret0, _ := ret[0].(<-chan struct{})
	return ret0
}

// Closed indicates an expected call of Closed.
func (mr *MockTransportMockRecorder) Closed() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Closed", reflect.TypeOf((*MockTransport)(nil).Closed))
}

// Err mocks base method.
func (m *MockTransport) Err() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Err")
	ret0, _ := ret[0].(error)
	return ret0
}

// Err indicates an expected call of Err.
func (mr *MockTransportMockRecorder) Err() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Err", reflect.TypeOf((*MockTransport)(nil).Err))
}

// SetDeadline mocks base method.
func (m *MockTransport) SetDeadline(t time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetDeadline", t)
	ret0, _ := ret[0].(error)
	return ret0
}

// SetDeadline indicates an expected call of SetDeadline.
func (mr *MockTransportMockRecorder) SetDeadline(t interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetDeadline", reflect.TypeOf((*MockTransport)(nil).SetDeadline), t)
}

// Close mocks base method.
func (m *MockTransport) Close(reason error) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close", reason)
	ret0, _ := ret[0].(error)
	return ret0
}

// Close indicates an expected call of Close.
func (mr *MockTransportMockRecorder) Close(reason interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockTransport)(nil).Close), reason)
}

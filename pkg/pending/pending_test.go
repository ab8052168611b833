package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_CompleteDeliversResponse(t *testing.T) {
	tab := New()
	_, respCh, errCh := tab.Register(1, 4, time.Time{})

	ok := tab.Complete(1, Response{Zxid: 9, Err: 0, Body: []byte("hi")})
	require.True(t, ok)

	select {
	case r := <-respCh:
		assert.Equal(t, int64(9), r.Zxid)
		assert.Equal(t, []byte("hi"), r.Body)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestTable_CompleteUnknownXidReturnsFalse(t *testing.T) {
	tab := New()
	assert.False(t, tab.Complete(99, Response{}))
}

func TestTable_FailDeliversError(t *testing.T) {
	tab := New()
	_, respCh, errCh := tab.Register(1, 4, time.Time{})

	boom := assert.AnError
	ok := tab.Fail(1, boom)
	require.True(t, ok)

	select {
	case <-respCh:
		t.Fatal("expected error, got response")
	case err := <-errCh:
		assert.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestTable_FailAllEmptiesTable(t *testing.T) {
	tab := New()
	_, _, errCh1 := tab.Register(1, 4, time.Time{})
	_, _, errCh2 := tab.Register(2, 4, time.Time{})

	n := tab.FailAll(assert.AnError)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, tab.Len())

	assert.Equal(t, assert.AnError, <-errCh1)
	assert.Equal(t, assert.AnError, <-errCh2)
}

func TestTable_ExpireDueOnlyExpiresPastDeadline(t *testing.T) {
	tab := New()
	now := time.Now()
	_, _, expiredErrCh := tab.Register(1, 4, now.Add(-time.Second))
	_, _, liveErrCh := tab.Register(2, 4, now.Add(time.Hour))

	n := tab.ExpireDue(now)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, tab.Len())

	select {
	case err := <-expiredErrCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected the past-deadline entry to be failed")
	}

	select {
	case <-liveErrCh:
		t.Fatal("live entry should not have been expired")
	default:
	}
}

func TestTable_RegisterDuplicateXidOverwritesPriorEntry(t *testing.T) {
	tab := New()
	_, _, firstErrCh := tab.Register(1, 4, time.Time{})
	_, respCh2, _ := tab.Register(1, 4, time.Time{})

	ok := tab.Complete(1, Response{Body: []byte("second")})
	require.True(t, ok)

	select {
	case r := <-respCh2:
		assert.Equal(t, []byte("second"), r.Body)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	select {
	case <-firstErrCh:
		t.Fatal("the overwritten entry's channel should never fire")
	default:
	}
}

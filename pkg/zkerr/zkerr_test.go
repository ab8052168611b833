package zkerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     Code
		wantKind Kind
		wantNil  bool
	}{
		{name: "ok", code: CodeOK, wantNil: true},
		{name: "no node", code: CodeNoNode, wantKind: KindNoNode},
		{name: "bad version", code: CodeBadVersion, wantKind: KindBadVersion},
		{name: "session expired", code: CodeSessionExpired, wantKind: KindSessionExpired},
		{name: "connection loss buckets as system error", code: CodeConnectionLoss, wantKind: KindSystemError},
		{name: "unknown code", code: Code(-9999), wantKind: KindUnknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := FromCode(test.code, "/a")
			if test.wantNil {
				assert.NoError(t, err)
				return
			}
			var ze *Error
			assert.ErrorAs(t, err, &ze)
			assert.Equal(t, test.wantKind, ze.Kind)
			assert.Equal(t, "/a", ze.Path)
		})
	}
}

func TestError_Is(t *testing.T) {
	err := ErrSessionExpired.WithPath("/zoo")
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.False(t, errors.Is(err, ErrAuthFailed))
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := &Error{Kind: KindLocal, Cause: cause}
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsSessionFatal(t *testing.T) {
	assert.True(t, IsSessionFatal(ErrSessionExpired))
	assert.True(t, IsSessionFatal(ErrAuthFailed))
	assert.False(t, IsSessionFatal(ErrConnectionLost))
	assert.False(t, IsSessionFatal(fmt.Errorf("not a zkerr")))
}

package zkpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		sequential    bool
		errorExpected bool
	}{
		{name: "empty string", path: "", errorExpected: true},
		{name: "not starting at root", path: "node/other/one", errorExpected: true},
		{name: "trailing slash, non-sequential", path: "/a/b/", errorExpected: true},
		{name: "trailing slash, sequential", path: "/a/b/", sequential: true, errorExpected: false},
		{name: "root", path: "/", errorExpected: false},
		{name: "no parents", path: "/x", errorExpected: false},
		{name: "multiple parents", path: "/x/y/z", errorExpected: false},
		{name: "empty segment between separators", path: "//y/z", errorExpected: true},
		{name: "dot segment", path: "/a/./b", errorExpected: true},
		{name: "dotdot segment", path: "/a/../b", errorExpected: true},
		{name: "null byte", path: "/a\x00b", errorExpected: true},
		{name: "control character", path: "/a\x01b", errorExpected: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(test.path, test.sequential)
			if test.errorExpected {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChrootRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		chroot string
		client string
		server string
	}{
		{name: "no chroot", chroot: "", client: "/a/b", server: "/a/b"},
		{name: "simple chroot", chroot: "/app", client: "/a/b", server: "/app/a/b"},
		{name: "chroot to root", chroot: "/app", client: "/", server: "/app"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := PrependChroot(test.chroot, test.client)
			assert.Equal(t, test.server, got)
			assert.Equal(t, test.client, RemoveChroot(test.chroot, got))
		})
	}
}

func TestRemoveChrootIsIdempotentOnUnprefixedPath(t *testing.T) {
	assert.Equal(t, "/other", RemoveChroot("/app", "/other"))
}

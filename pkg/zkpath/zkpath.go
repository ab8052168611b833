// Package zkpath validates client-visible paths and translates between
// the client's view of the namespace and the server's, by prepending or
// stripping a per-session chroot prefix (§4.2).
package zkpath

import (
	"strings"

	"github.com/arborist-zk/zk/pkg/zkerr"
)

// Validate checks p against the rules in §4.2. sequential allows the
// path to end with a trailing slash, since the server appends the
// sequence suffix after it.
func Validate(p string, sequential bool) error {
	if len(p) == 0 {
		return zkerr.ErrInvalidPath.WithPath(p)
	}
	if p[0] != '/' {
		return zkerr.ErrInvalidPath.WithPath(p)
	}
	if len(p) == 1 {
		// "/" is always legal.
		return nil
	}
	if strings.HasSuffix(p, "/") && !sequential {
		return zkerr.ErrInvalidPath.WithPath(p)
	}

	trimmed := p
	if sequential {
		trimmed = strings.TrimSuffix(p, "/")
	}

	var prevChar rune
	segment := strings.Builder{}
	for _, r := range trimmed {
		if r == 0 {
			return zkerr.ErrInvalidPath.WithPath(p)
		}
		if (r >= 0x0001 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F) {
			return zkerr.ErrInvalidPath.WithPath(p)
		}
		if isNoncharacter(r) {
			return zkerr.ErrInvalidPath.WithPath(p)
		}
		if r == '/' {
			if prevChar == '/' {
				return zkerr.ErrInvalidPath.WithPath(p)
			}
			if segment.String() == "." || segment.String() == ".." {
				return zkerr.ErrInvalidPath.WithPath(p)
			}
			segment.Reset()
			prevChar = r
			continue
		}
		segment.WriteRune(r)
		prevChar = r
	}
	if segment.String() == "." || segment.String() == ".." {
		return zkerr.ErrInvalidPath.WithPath(p)
	}
	return nil
}

// isNoncharacter reports whether r is one of the Unicode noncharacters
// reserved by the standard (the 32 code points U+FDD0..U+FDEF plus the
// last two code points of each plane).
func isNoncharacter(r rune) bool {
	if r >= 0xFDD0 && r <= 0xFDEF {
		return true
	}
	if r&0xFFFE == 0xFFFE {
		return true
	}
	return false
}

// PrependChroot yields clientPath unchanged if chroot is empty. Otherwise
// it yields chroot+clientPath, canonicalized to have no trailing slash
// unless the result is the root.
func PrependChroot(chroot, clientPath string) string {
	if chroot == "" {
		return clientPath
	}
	joined := chroot + clientPath
	joined = strings.TrimSuffix(joined, "/")
	if joined == "" {
		return "/"
	}
	return joined
}

// RemoveChroot is PrependChroot's inverse. It is idempotent: if
// serverPath does not carry the chroot prefix, it is returned unchanged.
func RemoveChroot(chroot, serverPath string) string {
	if chroot == "" {
		return serverPath
	}
	if !strings.HasPrefix(serverPath, chroot) {
		return serverPath
	}
	rest := serverPath[len(chroot):]
	if rest == "" {
		return "/"
	}
	return rest
}

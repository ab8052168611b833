package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/arborist-zk/zk/pkg/watch"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds how long one endpoint connect attempt can
// take before the connect loop moves on to the next endpoint.
const DefaultDialTimeout = 5 * time.Second

// PingInterval is the heartbeat cadence while SyncConnected (§4.6).
const PingInterval = 3 * time.Second

// Config assembles the Configuration surface described in §6: a
// connection string's parsed endpoints, the requested session timeout,
// an optional chroot, and an optional default watcher.
type Config struct {
	// Servers is the ordered Endpoint List (§3), already split from the
	// comma-separated connection string.
	Servers []string
	// SessionTimeout is the duration requested of the server; the server
	// may negotiate a different value, stored as NegotiatedTimeout.
	SessionTimeout time.Duration
	// DialTimeout bounds a single endpoint's connect attempt.
	DialTimeout time.Duration
	// Chroot virtualizes the namespace root for this session, if set.
	Chroot string
	// DefaultWatcher receives session-level (EventNone) notifications.
	DefaultWatcher watch.Watcher
	// Logger receives structured logs for every state transition,
	// reconnect, and decode failure. If nil, a no-op logger is used.
	Logger *zap.Logger
}

// ParseServers splits a comma-separated "host:port,host:port" string
// into the Endpoint List, validating that every entry has a host and
// port.
func ParseServers(connectString string) ([]string, error) {
	parts := strings.Split(connectString, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, ":") {
			return nil, fmt.Errorf("session: endpoint %q missing port", p)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("session: no endpoints in connection string")
	}
	return out, nil
}

func (c Config) normalize() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Package zk is the Public API Surface (§4.6's "Public API behavior",
// §2.7): the synchronous-looking client methods that validate a path,
// prepend chroot, submit through the Session Machine's send path, and
// decode the response — registering watches only when the outcome says
// they should be.
package zk

import (
	"context"
	"time"

	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/session"
	"github.com/arborist-zk/zk/pkg/watch"
	"github.com/arborist-zk/zk/pkg/zkpath"
	"go.uber.org/zap"
)

// Client is the handle application code holds. It owns exactly one
// Session Machine.
type Client struct {
	m *session.Machine
}

// Option configures a Client at Connect time.
type Option func(*session.Config)

// WithChroot virtualizes the namespace root for every path this client
// sees.
func WithChroot(chroot string) Option {
	return func(c *session.Config) { c.Chroot = chroot }
}

// WithDefaultWatcher registers the session-level watcher that receives
// KeeperState (EventNone) notifications.
func WithDefaultWatcher(w watch.Watcher) Option {
	return func(c *session.Config) { c.DefaultWatcher = w }
}

// WithLogger attaches a structured logger; every component logs through
// it. If not supplied, logs are discarded.
func WithLogger(log *zap.Logger) Option {
	return func(c *session.Config) { c.Logger = log }
}

// WithDialTimeout bounds a single endpoint connect attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *session.Config) { c.DialTimeout = d }
}

// Connect parses connectString (comma-separated host:port entries),
// constructs the Session Machine, and starts its connect loop in the
// background. It returns as soon as the machine is constructed — it
// does not block for the first handshake to finish; the first request
// issued will wait out that handshake itself.
func Connect(ctx context.Context, connectString string, sessionTimeout time.Duration, opts ...Option) (*Client, error) {
	servers, err := session.ParseServers(connectString)
	if err != nil {
		return nil, err
	}
	cfg := session.Config{
		Servers:        servers,
		SessionTimeout: sessionTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	m.Start(ctx)
	return &Client{m: m}, nil
}

// State returns the session's current KeeperState.
func (c *Client) State() proto.KeeperState { return c.m.State() }

// SessionID returns the server-assigned session id, 0 before the first
// successful handshake.
func (c *Client) SessionID() int64 { return c.m.SessionID() }

// SubscribeState returns a channel of future KeeperState transitions.
func (c *Client) SubscribeState() chan proto.KeeperState { return c.m.SubscribeState() }

// UnsubscribeState stops delivery to a channel from SubscribeState.
func (c *Client) UnsubscribeState(ch chan proto.KeeperState) { c.m.UnsubscribeState(ch) }

// Close sends CloseSession and tears down the underlying connection.
func (c *Client) Close() error { return c.m.CloseSession() }

// AddAuth adds a (scheme, credential) pair to the session's auth list
// and sends it to the server immediately if connected.
func (c *Client) AddAuth(scheme string, cred []byte) error {
	return c.m.AddAuth(scheme, cred)
}

func (c *Client) serverPath(clientPath string) string {
	return zkpath.PrependChroot(c.m.Chroot(), clientPath)
}

func (c *Client) clientPath(serverPath string) string {
	return zkpath.RemoveChroot(c.m.Chroot(), serverPath)
}

// preparePath validates clientPath, prepends chroot, and returns the server
// path plus any validation error. sequential controls whether a
// trailing slash is legal (Create with a sequential CreateMode).
func (c *Client) preparePath(clientPath string, sequential bool) (string, error) {
	if err := zkpath.Validate(clientPath, sequential); err != nil {
		return "", err
	}
	return c.serverPath(clientPath), nil
}

package zk

import (
	"context"

	"github.com/arborist-zk/zk/pkg/proto"
	"github.com/arborist-zk/zk/pkg/watch"
	"github.com/arborist-zk/zk/pkg/zkerr"
)

// errFromResponse translates a response's error code into a typed
// error, carrying the original client path per §7's "user-visible
// behavior" requirement.
func errFromResponse(code int32, clientPath string) error {
	return zkerr.FromCode(zkerr.Code(code), clientPath)
}

// Create creates a znode at path, storing data in it, and returns the
// name (server-assigned, chroot-stripped) of the new znode. acl may be
// nil to fall back to proto.OpenACLUnsafe.
func (c *Client) Create(ctx context.Context, path string, data []byte, acl []proto.ACL, mode proto.CreateMode) (string, error) {
	serverPath, err := c.preparePath(path, mode.IsSequential())
	if err != nil {
		return "", err
	}
	if acl == nil {
		acl = proto.OpenACLUnsafe
	}
	req := proto.CreateRequest{Path: serverPath, Data: data, ACL: acl, Flags: int32(mode)}
	resp, err := c.m.Do(ctx, proto.OpCreate, req)
	if err != nil {
		return "", err
	}
	if resp.Err != 0 {
		return "", errFromResponse(resp.Err, path)
	}
	var out proto.CreateResponse
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return "", &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode CreateResponse", Cause: err}
	}
	return c.clientPath(out.Path), nil
}

// Delete deletes the znode at path if it is at the expected version.
// version -1 skips the version check.
func (c *Client) Delete(ctx context.Context, path string, version int32) error {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return err
	}
	req := proto.DeleteRequest{Path: serverPath, Version: version}
	resp, err := c.m.Do(ctx, proto.OpDelete, req)
	if err != nil {
		return err
	}
	if resp.Err != 0 {
		return errFromResponse(resp.Err, path)
	}
	return nil
}

// Exists reports whether a znode exists at path and returns its Stat if
// so. Watch registration is conditional on outcome (§4.6): on success
// the data-watcher set gets w; on NoNode the exist-watcher set gets w;
// any other error registers nothing.
func (c *Client) Exists(ctx context.Context, path string, w watch.Watcher) (bool, *proto.Stat, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return false, nil, err
	}
	req := proto.ExistsRequest{Path: serverPath, Watch: w != nil}
	resp, err := c.m.Do(ctx, proto.OpExists, req)
	if err != nil {
		return false, nil, err
	}

	if resp.Err == 0 {
		var out proto.ExistsResponse
		if derr := out.Decode(proto.NewDecoder(resp.Body)); derr != nil {
			return false, nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode ExistsResponse", Cause: derr}
		}
		if w != nil {
			c.m.Watches().RegisterDataWatcher(w, path)
		}
		return true, &out.Stat, nil
	}
	if zkerr.Code(resp.Err) == zkerr.CodeNoNode {
		if w != nil {
			c.m.Watches().RegisterExistWatcher(w, path)
		}
		return false, nil, nil
	}
	return false, nil, errFromResponse(resp.Err, path)
}

// GetData returns a znode's data and Stat. On success, if w is non-nil
// it is registered as a data-watcher; on error, nothing is registered
// (ZooKeeper does not set a watch on a missing node for GetData, unlike
// Exists).
func (c *Client) GetData(ctx context.Context, path string, w watch.Watcher) ([]byte, *proto.Stat, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return nil, nil, err
	}
	req := proto.GetDataRequest{Path: serverPath, Watch: w != nil}
	resp, err := c.m.Do(ctx, proto.OpGetData, req)
	if err != nil {
		return nil, nil, err
	}
	if resp.Err != 0 {
		return nil, nil, errFromResponse(resp.Err, path)
	}
	var out proto.GetDataResponse
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return nil, nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode GetDataResponse", Cause: err}
	}
	if w != nil {
		c.m.Watches().RegisterDataWatcher(w, path)
	}
	return out.Data, &out.Stat, nil
}

// SetData writes data to path if version matches (-1 skips the check),
// returning the resulting Stat.
func (c *Client) SetData(ctx context.Context, path string, data []byte, version int32) (*proto.Stat, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return nil, err
	}
	req := proto.SetDataRequest{Path: serverPath, Data: data, Version: version}
	resp, err := c.m.Do(ctx, proto.OpSetData, req)
	if err != nil {
		return nil, err
	}
	if resp.Err != 0 {
		return nil, errFromResponse(resp.Err, path)
	}
	var out proto.SetDataResponse
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode SetDataResponse", Cause: err}
	}
	return &out.Stat, nil
}

// GetACL returns a znode's ACL list and Stat.
func (c *Client) GetACL(ctx context.Context, path string) ([]proto.ACL, *proto.Stat, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return nil, nil, err
	}
	req := proto.GetACLRequest{Path: serverPath}
	resp, err := c.m.Do(ctx, proto.OpGetACL, req)
	if err != nil {
		return nil, nil, err
	}
	if resp.Err != 0 {
		return nil, nil, errFromResponse(resp.Err, path)
	}
	var out proto.GetACLResponse
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return nil, nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode GetACLResponse", Cause: err}
	}
	return out.ACL, &out.Stat, nil
}

// SetACL replaces a znode's ACL list if version matches, returning the
// resulting Stat.
func (c *Client) SetACL(ctx context.Context, path string, acl []proto.ACL, version int32) (*proto.Stat, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return nil, err
	}
	req := proto.SetACLRequest{Path: serverPath, ACL: acl, Version: version}
	resp, err := c.m.Do(ctx, proto.OpSetACL, req)
	if err != nil {
		return nil, err
	}
	if resp.Err != 0 {
		return nil, errFromResponse(resp.Err, path)
	}
	var out proto.SetACLResponse
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode SetACLResponse", Cause: err}
	}
	return &out.Stat, nil
}

// GetChildren returns the names of path's children. On success, if w
// is non-nil it is registered as a child-watcher.
func (c *Client) GetChildren(ctx context.Context, path string, w watch.Watcher) ([]string, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return nil, err
	}
	req := proto.GetChildrenRequest{Path: serverPath, Watch: w != nil}
	resp, err := c.m.Do(ctx, proto.OpGetChildren, req)
	if err != nil {
		return nil, err
	}
	if resp.Err != 0 {
		return nil, errFromResponse(resp.Err, path)
	}
	var out proto.GetChildrenResponse
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode GetChildrenResponse", Cause: err}
	}
	if w != nil {
		c.m.Watches().RegisterChildWatcher(w, path)
	}
	return out.Children, nil
}

// GetChildren2 is GetChildren plus the parent's Stat in the same round
// trip.
func (c *Client) GetChildren2(ctx context.Context, path string, w watch.Watcher) ([]string, *proto.Stat, error) {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return nil, nil, err
	}
	req := proto.GetChildren2Request{Path: serverPath, Watch: w != nil}
	resp, err := c.m.Do(ctx, proto.OpGetChildren2, req)
	if err != nil {
		return nil, nil, err
	}
	if resp.Err != 0 {
		return nil, nil, errFromResponse(resp.Err, path)
	}
	var out proto.GetChildren2Response
	if err := out.Decode(proto.NewDecoder(resp.Body)); err != nil {
		return nil, nil, &zkerr.Error{Kind: zkerr.KindLocal, Path: path, Reason: "decode GetChildren2Response", Cause: err}
	}
	if w != nil {
		c.m.Watches().RegisterChildWatcher(w, path)
	}
	return out.Children, &out.Stat, nil
}

// Sync waits for all updates pending at the start of the operation to
// propagate to the server this client is connected to (SPEC_FULL
// addition: OpSync was a reserved opcode with no operation using it).
func (c *Client) Sync(ctx context.Context, path string) error {
	serverPath, err := c.preparePath(path, false)
	if err != nil {
		return err
	}
	req := proto.SyncRequest{Path: serverPath}
	resp, err := c.m.Do(ctx, proto.OpSync, req)
	if err != nil {
		return err
	}
	if resp.Err != 0 {
		return errFromResponse(resp.Err, path)
	}
	return nil
}

package proto

// Encodable is implemented by every record that can be serialized into a
// request or response body.
type Encodable interface {
	Encode(e *Encoder)
}

// Decodable is implemented by every record that can be deserialized out
// of a response body.
type Decodable interface {
	Decode(d *Decoder) error
}

func writeStrings(e *Encoder, ss []string) {
	e.WriteInt32(int32(len(ss)))
	for _, s := range ss {
		e.WriteString(s)
	}
}

func readStrings(d *Decoder) ([]string, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeACLs(e *Encoder, acls []ACL) {
	e.WriteInt32(int32(len(acls)))
	for _, a := range acls {
		a.Encode(e)
	}
}

func readACLs(d *Decoder) ([]ACL, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	out := make([]ACL, 0, n)
	for i := int32(0); i < n; i++ {
		var a ACL
		if err := a.Decode(d); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ACL is an access-control entry of (permissions, scheme, id).
type ACL struct {
	Perms  int32
	Scheme string
	Id     string
}

// Permission bits for ACL.Perms.
const (
	PermRead   int32 = 1 << 0
	PermWrite  int32 = 1 << 1
	PermCreate int32 = 1 << 2
	PermDelete int32 = 1 << 3
	PermAdmin  int32 = 1 << 4
	PermAll    int32 = 0x1f
)

// OpenACLUnsafe is the conventional "world:anyone" all-permissions ACL.
var OpenACLUnsafe = []ACL{{Perms: PermAll, Scheme: "world", Id: "anyone"}}

func (a ACL) Encode(e *Encoder) {
	e.WriteInt32(a.Perms)
	e.WriteString(a.Scheme)
	e.WriteString(a.Id)
}

func (a *ACL) Decode(d *Decoder) error {
	var err error
	if a.Perms, err = d.ReadInt32(); err != nil {
		return err
	}
	if a.Scheme, err = d.ReadString(); err != nil {
		return err
	}
	if a.Id, err = d.ReadString(); err != nil {
		return err
	}
	return nil
}

// Stat is a znode's version and timing metadata.
type Stat struct {
	Czxid          int64
	Mzxid          int64
	Ctime          int64
	Mtime          int64
	Version        int32
	Cversion       int32
	Aversion       int32
	EphemeralOwner int64
	DataLength     int32
	NumChildren    int32
	Pzxid          int64
}

func (s Stat) Encode(e *Encoder) {
	e.WriteInt64(s.Czxid)
	e.WriteInt64(s.Mzxid)
	e.WriteInt64(s.Ctime)
	e.WriteInt64(s.Mtime)
	e.WriteInt32(s.Version)
	e.WriteInt32(s.Cversion)
	e.WriteInt32(s.Aversion)
	e.WriteInt64(s.EphemeralOwner)
	e.WriteInt32(s.DataLength)
	e.WriteInt32(s.NumChildren)
	e.WriteInt64(s.Pzxid)
}

func (s *Stat) Decode(d *Decoder) error {
	var err error
	if s.Czxid, err = d.ReadInt64(); err != nil {
		return err
	}
	if s.Mzxid, err = d.ReadInt64(); err != nil {
		return err
	}
	if s.Ctime, err = d.ReadInt64(); err != nil {
		return err
	}
	if s.Mtime, err = d.ReadInt64(); err != nil {
		return err
	}
	if s.Version, err = d.ReadInt32(); err != nil {
		return err
	}
	if s.Cversion, err = d.ReadInt32(); err != nil {
		return err
	}
	if s.Aversion, err = d.ReadInt32(); err != nil {
		return err
	}
	if s.EphemeralOwner, err = d.ReadInt64(); err != nil {
		return err
	}
	if s.DataLength, err = d.ReadInt32(); err != nil {
		return err
	}
	if s.NumChildren, err = d.ReadInt32(); err != nil {
		return err
	}
	if s.Pzxid, err = d.ReadInt64(); err != nil {
		return err
	}
	return nil
}

// RequestHeader prefixes every request frame except ConnectRequest.
type RequestHeader struct {
	Xid    int32
	Opcode OpCode
}

func (h RequestHeader) Encode(e *Encoder) {
	e.WriteInt32(h.Xid)
	e.WriteInt32(int32(h.Opcode))
}

// ResponseHeader prefixes every response frame except ConnectResponse.
type ResponseHeader struct {
	Xid  int32
	Zxid int64
	Err  int32
}

func (h *ResponseHeader) Decode(d *Decoder) error {
	var err error
	if h.Xid, err = d.ReadInt32(); err != nil {
		return err
	}
	if h.Zxid, err = d.ReadInt64(); err != nil {
		return err
	}
	if h.Err, err = d.ReadInt32(); err != nil {
		return err
	}
	return nil
}

// ConnectRequest omits xid/opcode; it's the one frame sent before a
// session identity exists at all.
type ConnectRequest struct {
	ProtocolVersion int32
	LastZxidSeen    int64
	TimeoutMs       int32
	SessionID       int64
	Passwd          []byte
}

func (r ConnectRequest) Encode(e *Encoder) {
	e.WriteInt32(r.ProtocolVersion)
	e.WriteInt64(r.LastZxidSeen)
	e.WriteInt32(r.TimeoutMs)
	e.WriteInt64(r.SessionID)
	e.WriteBytes(r.Passwd)
}

// ConnectResponse omits xid/err.
type ConnectResponse struct {
	ProtocolVersion int32
	TimeoutMs       int32
	SessionID       int64
	Passwd          []byte
}

func (r *ConnectResponse) Decode(d *Decoder) error {
	var err error
	if r.ProtocolVersion, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.TimeoutMs, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.SessionID, err = d.ReadInt64(); err != nil {
		return err
	}
	if r.Passwd, err = d.ReadBytes(); err != nil {
		return err
	}
	return nil
}

type CreateRequest struct {
	Path  string
	Data  []byte
	ACL   []ACL
	Flags int32
}

func (r CreateRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteBytes(r.Data)
	writeACLs(e, r.ACL)
	e.WriteInt32(r.Flags)
}

type CreateResponse struct {
	Path string
}

func (r *CreateResponse) Decode(d *Decoder) error {
	var err error
	r.Path, err = d.ReadString()
	return err
}

type DeleteRequest struct {
	Path    string
	Version int32
}

func (r DeleteRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteInt32(r.Version)
}

// DeleteResponse has no body.
type DeleteResponse struct{}

func (r *DeleteResponse) Decode(d *Decoder) error { return nil }

type ExistsRequest struct {
	Path  string
	Watch bool
}

func (r ExistsRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteBool(r.Watch)
}

type ExistsResponse struct {
	Stat Stat
}

func (r *ExistsResponse) Decode(d *Decoder) error {
	return r.Stat.Decode(d)
}

type GetDataRequest struct {
	Path  string
	Watch bool
}

func (r GetDataRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteBool(r.Watch)
}

type GetDataResponse struct {
	Data []byte
	Stat Stat
}

func (r *GetDataResponse) Decode(d *Decoder) error {
	var err error
	if r.Data, err = d.ReadBytes(); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

type SetDataRequest struct {
	Path    string
	Data    []byte
	Version int32
}

func (r SetDataRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteBytes(r.Data)
	e.WriteInt32(r.Version)
}

type SetDataResponse struct {
	Stat Stat
}

func (r *SetDataResponse) Decode(d *Decoder) error {
	return r.Stat.Decode(d)
}

type GetACLRequest struct {
	Path string
}

func (r GetACLRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
}

type GetACLResponse struct {
	ACL  []ACL
	Stat Stat
}

func (r *GetACLResponse) Decode(d *Decoder) error {
	var err error
	if r.ACL, err = readACLs(d); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

type SetACLRequest struct {
	Path    string
	ACL     []ACL
	Version int32
}

func (r SetACLRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	writeACLs(e, r.ACL)
	e.WriteInt32(r.Version)
}

type SetACLResponse struct {
	Stat Stat
}

func (r *SetACLResponse) Decode(d *Decoder) error {
	return r.Stat.Decode(d)
}

type GetChildrenRequest struct {
	Path  string
	Watch bool
}

func (r GetChildrenRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteBool(r.Watch)
}

type GetChildrenResponse struct {
	Children []string
}

func (r *GetChildrenResponse) Decode(d *Decoder) error {
	var err error
	r.Children, err = readStrings(d)
	return err
}

// GetChildren2Request has the same layout as GetChildrenRequest; it's a
// distinct type so callers can't accidentally send one opcode and decode
// the other response shape.
type GetChildren2Request GetChildrenRequest

func (r GetChildren2Request) Encode(e *Encoder) {
	e.WriteString(r.Path)
	e.WriteBool(r.Watch)
}

type GetChildren2Response struct {
	Children []string
	Stat     Stat
}

func (r *GetChildren2Response) Decode(d *Decoder) error {
	var err error
	if r.Children, err = readStrings(d); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

type SetWatchesRequest struct {
	RelativeZxid int64
	DataPaths    []string
	ExistPaths   []string
	ChildPaths   []string
}

func (r SetWatchesRequest) Encode(e *Encoder) {
	e.WriteInt64(r.RelativeZxid)
	writeStrings(e, r.DataPaths)
	writeStrings(e, r.ExistPaths)
	writeStrings(e, r.ChildPaths)
}

// SetWatchesResponse has no body.
type SetWatchesResponse struct{}

func (r *SetWatchesResponse) Decode(d *Decoder) error { return nil }

type AuthRequest struct {
	Type   int32
	Scheme string
	Cred   []byte
}

func (r AuthRequest) Encode(e *Encoder) {
	e.WriteInt32(r.Type)
	e.WriteString(r.Scheme)
	e.WriteBytes(r.Cred)
}

// AuthResponse has no body; only ResponseHeader.Err matters.
type AuthResponse struct{}

func (r *AuthResponse) Decode(d *Decoder) error { return nil }

type WatcherEvent struct {
	Type  int32
	State int32
	Path  string
}

func (r WatcherEvent) Encode(e *Encoder) {
	e.WriteInt32(r.Type)
	e.WriteInt32(r.State)
	e.WriteString(r.Path)
}

func (r *WatcherEvent) Decode(d *Decoder) error {
	var err error
	if r.Type, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.State, err = d.ReadInt32(); err != nil {
		return err
	}
	r.Path, err = d.ReadString()
	return err
}

// SyncRequest/SyncResponse are a SPEC_FULL addition: OpSync was already a
// reserved opcode with no operation using it.
type SyncRequest struct {
	Path string
}

func (r SyncRequest) Encode(e *Encoder) {
	e.WriteString(r.Path)
}

type SyncResponse struct {
	Path string
}

func (r *SyncResponse) Decode(d *Decoder) error {
	var err error
	r.Path, err = d.ReadString()
	return err
}

// PingRequest and CloseRequest carry no body, only a RequestHeader.
type PingRequest struct{}

func (PingRequest) Encode(e *Encoder) {}

type CloseRequest struct{}

func (CloseRequest) Encode(e *Encoder) {}

type CloseResponse struct{}

func (r *CloseResponse) Decode(d *Decoder) error { return nil }

package proto

import "encoding/binary"

// LengthPrefixSize is the width of the frame length prefix. The prefix
// itself is never counted in its own value.
const LengthPrefixSize = 4

// EncodeFrame serializes a 4-byte length prefix followed by body into a
// single buffer ready to hand to a transport's Send.
func EncodeFrame(body []byte) []byte {
	out := make([]byte, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[LengthPrefixSize:], body)
	return out
}

// EncodeRequest builds a full request frame: length prefix, then
// {xid, opcode}, then the body's own fields, for any opcode that uses
// the standard RequestHeader. Connect requests bypass this since they
// carry no xid/opcode.
func EncodeRequest(xid int32, opcode OpCode, body Encodable) []byte {
	e := NewEncoder()
	RequestHeader{Xid: xid, Opcode: opcode}.Encode(e)
	if body != nil {
		body.Encode(e)
	}
	return EncodeFrame(e.Bytes())
}

// EncodeConnectRequest builds the one frame that omits xid/opcode.
func EncodeConnectRequest(req ConnectRequest) []byte {
	e := NewEncoder()
	req.Encode(e)
	return EncodeFrame(e.Bytes())
}

// DecodeResponseHeader reads the {xid, zxid, err} triple that prefixes
// every response frame body except ConnectResponse, returning the
// remaining bytes still owned by the caller for decoding the response
// body proper.
func DecodeResponseHeader(body []byte) (ResponseHeader, []byte, error) {
	d := NewDecoder(body)
	var h ResponseHeader
	if err := h.Decode(d); err != nil {
		return ResponseHeader{}, nil, err
	}
	return h, body[d.off:], nil
}

// DecodeConnectResponse decodes the one response frame body that omits
// xid/err.
func DecodeConnectResponse(body []byte) (ConnectResponse, error) {
	d := NewDecoder(body)
	var r ConnectResponse
	err := r.Decode(d)
	return r, err
}

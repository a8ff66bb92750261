// Package wire implements the RICS wire protocol: a small family of
// protobuf-encoded envelopes, each preceded on the stream by its own varint
// byte length (see wire.go for the framing primitives).
//
// Field numbers below are the wire contract and must never be renumbered.
// The structs are hand-written instead of generated by protoc (there is no
// protoc invocation in this build), but the bytes they produce and consume
// are ordinary protobuf wire-format bytes: a real protoc-generated decoder
// in another language reads them without modification.
package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// DataType distinguishes CAN-bus frames from opaque byte streams.
type DataType int32

const (
	DataTypeCAN    DataType = 0
	DataTypeStream DataType = 1
)

// Query enumerates the zero-argument control operations a Request can carry.
type Query int32

const (
	QueryNull                   Query = 0
	QueryListSink               Query = 1
	QueryWhoAmI                 Query = 2
	QuerySetFlagCANBroadcast    Query = 3
	QueryClearFlagCANBroadcast  Query = 4
	QueryDaemonQuit             Query = 5
)

// Connection is the first and only handshake envelope on a new socket.
type Connection struct {
	ConnectAsNode bool
}

// Route is a directed from->to edge between two node ids.
type Route struct {
	From int32
	To   int32
}

// Data carries one application packet, CAN or STREAM.
type Data struct {
	Type   DataType
	ID     int32
	Source int32

	Target    int32
	HasTarget bool

	Payload []byte
}

// Request is the tagged union clients send to the server. Exactly one of
// the HasX fields is expected to be set; an absent field number on the wire
// leaves the corresponding HasX false and the value field zero.
type Request struct {
	HasSetName bool
	SetName    string

	HasQuery bool
	Query    Query

	HasData bool
	Data    Data

	HasAddRoute bool
	AddRoute    Route

	HasDelRoute bool
	DelRoute    Route

	HasCanDropChance bool
	CanDropChance    float32
}

// ResponseID is one entry of a LIST_SINK reply.
type ResponseID struct {
	ID   int32
	Name string
}

// ResponseIDList is the full LIST_SINK reply payload.
type ResponseIDList struct {
	IDs []ResponseID
}

// Response is the tagged union the server sends back.
type Response struct {
	HasNode bool
	Node    int32

	HasIDList bool
	IDList    ResponseIDList

	HasData bool
	Data    Data
}

// Field numbers, grouped by message, matching SPEC_FULL.md §3.
const (
	fieldConnectionConnectAsNode = 1

	fieldRequestSetName       = 1
	fieldRequestQuery         = 2
	fieldRequestData          = 3
	fieldRequestAddRoute      = 4
	fieldRequestDelRoute      = 5
	fieldRequestCanDropChance = 6

	fieldResponseNode   = 1
	fieldResponseIDList = 2
	fieldResponseData   = 3

	fieldResponseIDID   = 1
	fieldResponseIDName = 2

	fieldResponseIDListIDs = 1

	fieldDataType    = 1
	fieldDataID      = 2
	fieldDataSource  = 3
	fieldDataTarget  = 4
	fieldDataPayload = 5

	fieldRouteFrom = 1
	fieldRouteTo   = 2
)

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendFloat32(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendMessage(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

// appendInt32Always and appendFloat32Always write their field unconditionally,
// even when the value is the type's zero value. appendInt32/appendFloat32
// above treat zero as "same as absent", which is only safe for fields that
// carry no other presence signal. Request and Response fields already guard
// every call behind their own HasX flag, so a zero value set on purpose (node
// id 0, can_drop_chance reset to 0.0) must still reach the wire.
func appendInt32Always(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendFloat32Always(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendStringAlways(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// Marshal encodes the Connection handshake envelope.
func (c *Connection) Marshal() ([]byte, error) {
	var b []byte
	b = appendBool(b, fieldConnectionConnectAsNode, c.ConnectAsNode)
	return b, nil
}

// Unmarshal decodes a Connection handshake envelope.
func (c *Connection) Unmarshal(data []byte) error {
	*c = Connection{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldConnectionConnectAsNode:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			c.ConnectAsNode = v != 0
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

func (r *Route) marshalInto(b []byte) []byte {
	b = appendInt32(b, fieldRouteFrom, r.From)
	b = appendInt32(b, fieldRouteTo, r.To)
	return b
}

func (r *Route) Unmarshal(data []byte) error {
	*r = Route{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldRouteFrom:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			r.From = int32(v)
			return n, nil
		case fieldRouteTo:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			r.To = int32(v)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

func (d *Data) marshalInto(b []byte) []byte {
	b = appendInt32(b, fieldDataType, int32(d.Type))
	b = appendInt32(b, fieldDataID, d.ID)
	b = appendInt32(b, fieldDataSource, d.Source)
	if d.HasTarget {
		b = appendInt32Always(b, fieldDataTarget, d.Target)
	}
	b = appendBytes(b, fieldDataPayload, d.Payload)
	return b
}

// Marshal encodes a standalone Data message (used by the client library when
// building CAN/STREAM packets before wrapping them in a Request).
func (d *Data) Marshal() ([]byte, error) {
	return d.marshalInto(nil), nil
}

func (d *Data) Unmarshal(data []byte) error {
	*d = Data{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldDataType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			d.Type = DataType(v)
			return n, nil
		case fieldDataID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			d.ID = int32(v)
			return n, nil
		case fieldDataSource:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			d.Source = int32(v)
			return n, nil
		case fieldDataTarget:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			d.Target = int32(v)
			d.HasTarget = true
			return n, nil
		case fieldDataPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			d.Payload = append([]byte(nil), v...)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

// Marshal encodes the Request tagged union.
func (r *Request) Marshal() ([]byte, error) {
	var b []byte
	if r.HasSetName {
		b = appendStringAlways(b, fieldRequestSetName, r.SetName)
	}
	if r.HasQuery {
		b = appendInt32Always(b, fieldRequestQuery, int32(r.Query))
	}
	if r.HasData {
		b = appendMessage(b, fieldRequestData, r.Data.marshalInto(nil))
	}
	if r.HasAddRoute {
		b = appendMessage(b, fieldRequestAddRoute, r.AddRoute.marshalInto(nil))
	}
	if r.HasDelRoute {
		b = appendMessage(b, fieldRequestDelRoute, r.DelRoute.marshalInto(nil))
	}
	if r.HasCanDropChance {
		b = appendFloat32Always(b, fieldRequestCanDropChance, r.CanDropChance)
	}
	return b, nil
}

// Unmarshal decodes a Request tagged union.
func (r *Request) Unmarshal(data []byte) error {
	*r = Request{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldRequestSetName:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			r.HasSetName = true
			r.SetName = v
			return n, nil
		case fieldRequestQuery:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			r.HasQuery = true
			r.Query = Query(v)
			return n, nil
		case fieldRequestData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if err := r.Data.Unmarshal(v); err != nil {
				return 0, err
			}
			r.HasData = true
			return n, nil
		case fieldRequestAddRoute:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if err := r.AddRoute.Unmarshal(v); err != nil {
				return 0, err
			}
			r.HasAddRoute = true
			return n, nil
		case fieldRequestDelRoute:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if err := r.DelRoute.Unmarshal(v); err != nil {
				return 0, err
			}
			r.HasDelRoute = true
			return n, nil
		case fieldRequestCanDropChance:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			r.HasCanDropChance = true
			r.CanDropChance = math.Float32frombits(v)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

func (l *ResponseIDList) marshalInto(b []byte) []byte {
	for _, id := range l.IDs {
		var entry []byte
		entry = appendInt32(entry, fieldResponseIDID, id.ID)
		entry = appendString(entry, fieldResponseIDName, id.Name)
		b = appendMessage(b, fieldResponseIDListIDs, entry)
	}
	return b
}

func (l *ResponseIDList) Unmarshal(data []byte) error {
	*l = ResponseIDList{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldResponseIDListIDs:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			var id ResponseID
			if err := unmarshalResponseID(v, &id); err != nil {
				return 0, err
			}
			l.IDs = append(l.IDs, id)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

func unmarshalResponseID(data []byte, id *ResponseID) error {
	*id = ResponseID{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldResponseIDID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			id.ID = int32(v)
			return n, nil
		case fieldResponseIDName:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			id.Name = v
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

// Marshal encodes the Response tagged union.
func (r *Response) Marshal() ([]byte, error) {
	var b []byte
	if r.HasNode {
		b = appendInt32Always(b, fieldResponseNode, r.Node)
	}
	if r.HasIDList {
		b = appendMessage(b, fieldResponseIDList, r.IDList.marshalInto(nil))
	}
	if r.HasData {
		b = appendMessage(b, fieldResponseData, r.Data.marshalInto(nil))
	}
	return b, nil
}

// Unmarshal decodes a Response tagged union.
func (r *Response) Unmarshal(data []byte) error {
	*r = Response{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldResponseNode:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			r.HasNode = true
			r.Node = int32(v)
			return n, nil
		case fieldResponseIDList:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if err := r.IDList.Unmarshal(v); err != nil {
				return 0, err
			}
			r.HasIDList = true
			return n, nil
		case fieldResponseData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if err := r.Data.Unmarshal(v); err != nil {
				return 0, err
			}
			r.HasData = true
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

// skipField consumes and discards one unrecognized field, per the protobuf
// "unknown fields are ignored" convention.
func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

// walkFields iterates the tag/value pairs of a protobuf message, invoking fn
// with the remaining bytes positioned at the start of the field's value.
// fn returns the number of bytes it consumed from that value (matching
// protowire's Consume* convention) or an error.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		consumed, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		data = data[consumed:]
	}
	return nil
}

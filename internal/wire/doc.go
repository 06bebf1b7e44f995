// Package wire provides the store-native value model for docmap documents.
//
// A record travels through three representations: the class-instance form
// (entity.Entity), the plain form (JSON-friendly maps) and the wire form
// defined here. Wire documents are what storage backends persist and return.
//
// WIRE VALUES:
//
// A Document is a map[string]any whose values are restricted to:
//
//	nil, string, float64, int64, bool, time.Time,
//	ObjectID, Binary, []any, Document (map[string]any)
//
// ObjectID is the store-native 12-byte identifier. Binary carries a subtype
// so that UUIDs (SubtypeUUID) and opaque buffers (SubtypeGeneric) can be told
// apart on the wire.
//
// PERSISTENCE:
//
// Marshal and Unmarshal encode documents as extended JSON so that the
// special value types survive a round-trip through a JSON column:
//
//	ObjectID   {"$oid": "5be340cb2ffb5e901a9b62e4"}
//	Binary     {"$binary": {"base64": "...", "subType": "04"}}
//	time.Time  {"$date": "2018-10-13T12:17:35.000000000Z"}
//
// Object keys are written in sorted order, so equal documents always encode
// to identical bytes.
//
// IDENTITY:
//
// CanonicalKey maps a scalar wire value to a deterministic string. The
// identity map and the join planner use it to compare primary keys without
// caring whether a number arrived as int64 or float64. Strings are NFC
// normalised first.
package wire

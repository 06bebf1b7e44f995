package wire

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// Document is a record in wire form.
type Document = map[string]any

// IDField is the store-native identifier field every persisted document carries.
const IDField = "_id"

// ErrInvalidObjectID is returned when parsing a malformed ObjectID.
var ErrInvalidObjectID = errors.New("invalid ObjectID")

// ObjectID is a 12-byte store-native identifier:
// 4 bytes big-endian unix seconds, 5 bytes process-random, 3 bytes counter.
type ObjectID [12]byte

var processUnique = readProcessUnique()

var objectIDCounter atomic.Uint32

func readProcessUnique() [5]byte {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Errorf("wire: cannot read process random: %w", err))
	}
	return b
}

func init() {
	var b [4]byte
	if _, err := rand.Read(b[:]); err == nil {
		objectIDCounter.Store(binary.BigEndian.Uint32(b[:]))
	}
}

// NewObjectID generates a new ObjectID for the current time.
func NewObjectID() ObjectID {
	return NewObjectIDFromTime(time.Now())
}

// NewObjectIDFromTime generates a new ObjectID with the given timestamp.
func NewObjectIDFromTime(t time.Time) ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:9], processUnique[:])
	n := objectIDCounter.Add(1)
	id[9] = byte(n >> 16)
	id[10] = byte(n >> 8)
	id[11] = byte(n)
	return id
}

// ParseObjectID parses a 24-character hex string.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("%w: %q", ErrInvalidObjectID, s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("%w: %q", ErrInvalidObjectID, s)
	}
	return id, nil
}

// IsValidObjectID reports whether s is a well-formed ObjectID hex string.
func IsValidObjectID(s string) bool {
	_, err := ParseObjectID(s)
	return err == nil
}

// Hex returns the 24-character hex encoding.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ObjectID) String() string {
	return fmt.Sprintf("ObjectID(%q)", id.Hex())
}

// Timestamp returns the creation time encoded in the identifier.
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// IsZero reports whether the identifier is all zero bytes.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// Binary subtypes.
const (
	SubtypeGeneric byte = 0x00
	SubtypeUUID    byte = 0x04
)

// Binary is an opaque byte payload with a subtype tag.
type Binary struct {
	Subtype byte
	Data    []byte
}

// Len returns the payload length.
func (b Binary) Len() int {
	return len(b.Data)
}

// Equal reports whether two binaries carry the same subtype and bytes.
func (b Binary) Equal(o Binary) bool {
	return b.Subtype == o.Subtype && slices.Equal(b.Data, o.Data)
}

// Clone returns a shallow copy of the document with nested documents and
// arrays copied as well. Leaf values are shared.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Clone(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// Project returns a copy of doc holding only the given top-level fields.
// Dotted fields select their first segment. An empty field list returns doc.
func Project(doc Document, fields []string) Document {
	if len(fields) == 0 {
		return doc
	}
	out := make(Document, len(fields))
	for _, f := range fields {
		if i := strings.IndexByte(f, '.'); i >= 0 {
			f = f[:i]
		}
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// SortedKeys returns the document keys in lexical order.
func SortedKeys(doc Document) []string {
	return slices.Sorted(maps.Keys(doc))
}

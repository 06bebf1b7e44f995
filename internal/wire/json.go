package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the fixed-width layout used for $date values. Fixed width
// keeps lexical order equal to chronological order inside SQL engines.
const DateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Marshal encodes a document as extended JSON with sorted keys.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalValue encodes a single wire value as extended JSON.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return writeString(buf, val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("unsupported float value: %v", val)
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		return writeValue(buf, float64(val))
	case time.Time:
		buf.WriteString(`{"$date":`)
		if err := writeString(buf, val.UTC().Format(DateLayout)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case ObjectID:
		buf.WriteString(`{"$oid":"`)
		buf.WriteString(val.Hex())
		buf.WriteString(`"}`)
	case Binary:
		buf.WriteString(`{"$binary":{"base64":"`)
		buf.WriteString(base64.StdEncoding.EncodeToString(val.Data))
		buf.WriteString(`","subType":"`)
		buf.WriteString(fmt.Sprintf("%02x", val.Subtype))
		buf.WriteString(`"}}`)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range SortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, val[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported wire type: %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// Unmarshal decodes extended JSON into a document.
func Unmarshal(data []byte) (Document, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return doc, nil
}

// UnmarshalValue decodes a single extended JSON value.
func UnmarshalValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromJSON(raw)
}

func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		return numberValue(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			conv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		if len(val) == 1 {
			if special, ok, err := specialValue(val); ok || err != nil {
				return special, err
			}
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			conv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

func numberValue(n json.Number) (any, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %s: %w", s, err)
	}
	return f, nil
}

func specialValue(m map[string]any) (any, bool, error) {
	if raw, ok := m["$oid"]; ok {
		s, isString := raw.(string)
		if !isString {
			return nil, true, fmt.Errorf("$oid must be a string")
		}
		id, err := ParseObjectID(s)
		return id, true, err
	}
	if raw, ok := m["$date"]; ok {
		s, isString := raw.(string)
		if !isString {
			return nil, true, fmt.Errorf("$date must be a string")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, true, fmt.Errorf("invalid $date %q: %w", s, err)
		}
		return t.UTC(), true, nil
	}
	if raw, ok := m["$binary"]; ok {
		inner, isMap := raw.(map[string]any)
		if !isMap {
			return nil, true, fmt.Errorf("$binary must be an object")
		}
		b64, _ := inner["base64"].(string)
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, true, fmt.Errorf("invalid $binary payload: %w", err)
		}
		sub, _ := inner["subType"].(string)
		subtype, err := strconv.ParseUint(sub, 16, 8)
		if err != nil {
			return nil, true, fmt.Errorf("invalid $binary subType %q", sub)
		}
		return Binary{Subtype: byte(subtype), Data: data}, true, nil
	}
	return nil, false, nil
}

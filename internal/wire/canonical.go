package wire

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CanonicalKey returns a deterministic, type-tagged string for a scalar wire
// value. Integral float64 values and int64 values produce the same key.
//
// Strings are NFC normalised, so visually identical keys compare equal.
// Arrays, documents and nil have no canonical key.
func CanonicalKey(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("null has no canonical key")
	case string:
		return "s:" + norm.NFC.String(val), nil
	case bool:
		return "b:" + strconv.FormatBool(val), nil
	case int:
		return "n:" + strconv.FormatInt(int64(val), 10), nil
	case int32:
		return "n:" + strconv.FormatInt(int64(val), 10), nil
	case int64:
		return "n:" + strconv.FormatInt(val, 10), nil
	case float32:
		return CanonicalKey(float64(val))
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<63 {
			return "n:" + strconv.FormatInt(int64(val), 10), nil
		}
		return "n:" + strconv.FormatFloat(val, 'g', -1, 64), nil
	case time.Time:
		return "t:" + val.UTC().Format(DateLayout), nil
	case ObjectID:
		return "o:" + val.Hex(), nil
	case Binary:
		return fmt.Sprintf("x:%02x:%s", val.Subtype, hex.EncodeToString(val.Data)), nil
	default:
		return "", fmt.Errorf("unsupported type for canonical key: %T", v)
	}
}

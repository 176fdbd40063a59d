package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint returns a stable hex digest of v. The value is first reduced
// to a canonical form — JSON with all object keys sorted recursively — so
// map iteration order and struct field order never change the digest.
// Strings hash over their raw bytes.
func Fingerprint(v any) (string, error) {
	var canonical string
	switch s := v.(type) {
	case string:
		canonical = s
	case []byte:
		canonical = string(s)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("job: fingerprint marshal: %w", err)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return "", fmt.Errorf("job: fingerprint decode: %w", err)
		}
		var b strings.Builder
		writeCanonical(&b, decoded)
		canonical = b.String()
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// writeCanonical serializes decoded JSON with sorted object keys.
func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(t))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case nil:
		b.WriteString("null")
	}
}

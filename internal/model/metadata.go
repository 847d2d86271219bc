package model

import (
    "database/sql/driver"
    "encoding/json"
    "fmt"
)

// Metadata is an opaque JSON object attached by geocoding workers. Only its
// encoded size and nesting depth are checked; keys and values are free-form.
type Metadata map[string]any

const (
    MaxMetadataBytes = 16 << 10
    MaxMetadataDepth = 5
)

// Validate enforces the size and depth bounds.
func (m Metadata) Validate() error {
    if m == nil { return nil }
    b, err := json.Marshal(map[string]any(m))
    if err != nil { return Invalid("metadata", "must be JSON-serializable: %v", err) }
    if len(b) > MaxMetadataBytes {
        return Invalid("metadata", "encoded size %d exceeds %d bytes", len(b), MaxMetadataBytes)
    }
    if d := depth(map[string]any(m)); d > MaxMetadataDepth {
        return Invalid("metadata", "nesting depth %d exceeds %d", d, MaxMetadataDepth)
    }
    return nil
}

func depth(v any) int {
    switch x := v.(type) {
    case map[string]any:
        max := 0
        for _, e := range x {
            if d := depth(e); d > max { max = d }
        }
        return max + 1
    case []any:
        max := 0
        for _, e := range x {
            if d := depth(e); d > max { max = d }
        }
        return max + 1
    default:
        return 0
    }
}

// MergeMetadata returns a new object with src keys shallow-merged over dst.
func MergeMetadata(dst, src Metadata) Metadata {
    if len(dst) == 0 && len(src) == 0 { return dst }
    out := make(Metadata, len(dst)+len(src))
    for k, v := range dst { out[k] = v }
    for k, v := range src { out[k] = v }
    return out
}

// Value stores metadata as a JSON document.
func (m Metadata) Value() (driver.Value, error) {
    if m == nil { return nil, nil }
    b, err := json.Marshal(map[string]any(m))
    if err != nil { return nil, err }
    return string(b), nil
}

func (m *Metadata) Scan(src any) error {
    var b []byte
    switch v := src.(type) {
    case nil:
        *m = nil
        return nil
    case []byte:
        b = v
    case string:
        b = []byte(v)
    default:
        return fmt.Errorf("metadata: unsupported scan type %T", src)
    }
    if len(b) == 0 || string(b) == "null" {
        *m = nil
        return nil
    }
    var out map[string]any
    if err := json.Unmarshal(b, &out); err != nil { return fmt.Errorf("metadata: %w", err) }
    *m = out
    return nil
}

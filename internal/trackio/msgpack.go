package trackio

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-msgpack/codec"

	"github.com/dreamlake-ai/dreamlake-go/internal/model"
)

// msgpackHandle decodes raw strings back into Go strings rather than
// []byte, so a string field reads back exactly as it was appended.
var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	return h
}()

// EncodeRow serializes a single point as a row record: a flat map
// with `_ts` and the point's user fields.
func EncodeRow(point model.DataPoint) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, msgpackHandle)
	if err := enc.Encode(map[string]interface{}(point)); err != nil {
		return nil, fmt.Errorf("trackio: encode row: %w", err)
	}
	return out, nil
}

// EncodeColumnar serializes N>=2 points as one columnar block: every
// field key observed across the batch becomes a same-length array,
// with JSON-null (nil) filling rows that didn't supply that field.
// The `_ts` column is always present. Column order is deterministic
// (sorted) so byte-identical batches serialize identically.
func EncodeColumnar(points []model.DataPoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("trackio: columnar encoding requires at least 2 points, got %d", len(points))
	}

	keySet := map[string]struct{}{model.TSKey: {}}
	for _, p := range points {
		for k := range p {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	block := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		column := make([]interface{}, len(points))
		for i, p := range points {
			if v, ok := p[k]; ok {
				column[i] = v
			} else {
				column[i] = nil
			}
		}
		block[k] = column
	}

	var out []byte
	enc := codec.NewEncoderBytes(&out, msgpackHandle)
	if err := enc.Encode(block); err != nil {
		return nil, fmt.Errorf("trackio: encode columnar block: %w", err)
	}
	return out, nil
}

// DecodeRecord decodes one frame payload into one-or-more logical
// points, detecting row vs. columnar shape the way the specification
// requires: if every value is a slice (and `_ts` decodes to a slice),
// it's a columnar block of N points; otherwise it's a single row.
func DecodeRecord(payload []byte) ([]model.DataPoint, error) {
	var raw map[string]interface{}
	dec := codec.NewDecoderBytes(payload, msgpackHandle)
	if err := dec.Decode(&raw); err != nil {
		return nil, &ErrCorrupt{Reason: fmt.Sprintf("msgpack decode: %v", err)}
	}

	tsVal, hasTS := raw[model.TSKey]
	if !hasTS {
		return nil, &ErrCorrupt{Reason: "record missing _ts key"}
	}

	if tsColumn, ok := asSlice(tsVal); ok {
		n := len(tsColumn)
		points := make([]model.DataPoint, n)
		for i := 0; i < n; i++ {
			points[i] = make(model.DataPoint, len(raw))
		}
		for key, val := range raw {
			column, ok := asSlice(val)
			if !ok || len(column) != n {
				return nil, &ErrCorrupt{Reason: fmt.Sprintf("columnar column %q has inconsistent length", key)}
			}
			for i, v := range column {
				points[i][key] = normalizeNumber(v)
			}
		}
		return points, nil
	}

	point := make(model.DataPoint, len(raw))
	for k, v := range raw {
		point[k] = normalizeNumber(v)
	}
	return []model.DataPoint{point}, nil
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// normalizeNumber coerces msgpack's decoded integer types to float64
// for `_ts` and any other numeric field, so callers comparing
// timestamps never trip over int64-vs-float64 type mismatches.
func normalizeNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return v
	}
}

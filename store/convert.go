package store

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Converter turns entries into records and back.
type Converter struct {
	registry *Registry
	now      func() time.Time
}

// NewConverter creates a Converter that stamps records with the wall clock.
func NewConverter(registry *Registry) *Converter {
	return &Converter{registry: registry, now: time.Now}
}

// ToRecord builds the persisted form of e.
func (c *Converter) ToRecord(e Entry) (Record, error) {
	key := e.Key()
	sk, err := EncodeKey(key)
	if err != nil {
		return Record{}, err
	}

	payload, err := e.Marshal()
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s: %w", key, err)
	}

	rec := Record{
		Key:     sk,
		Fields:  normalizeFields(e.SearchableFields()),
		Index:   normalizeIndex(e.IndexValues()),
		Changed: c.now().UTC(),
		Payload: payload,
	}
	if spec, ok := c.registry.Lookup(key.Type()); ok && spec.SortField != "" {
		rec.Sort = SortValue(rec.Fields[spec.SortField])
	}
	return rec, nil
}

// FromRecord materializes the entry stored in rec under key.
// It fails with ErrUnresolvedType when the type cannot be instantiated and
// with ErrDecodeFailure when the payload cannot be read.
func (c *Converter) FromRecord(key EntryKey, rec Record) (Entry, error) {
	e, ok := c.registry.Instantiate(key.Type(), key.ID())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedType, key.Type())
	}
	if err := e.Unmarshal(rec.Payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, key, err)
	}
	e.UpdateKey(key)
	return e, nil
}

// decode resolves a record's key and entry in one step.
func (c *Converter) decode(rec Record) (Entry, error) {
	key, ok := c.registry.DecodeKey(rec.Key)
	if !ok {
		return nil, fmt.Errorf("%w: kind %q", ErrUnresolvedType, rec.Key.Kind)
	}
	return c.FromRecord(key, rec)
}

// normalizeFields maps scalars onto the small set of types a store round
// trip preserves, so records compare equal before and after persistence.
func normalizeFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		out[name] = normalizeScalar(v)
	}
	return out
}

func normalizeScalar(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// normalizeUint keeps values beyond the int64 range as float64 rather than
// letting them wrap negative.
func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// normalizeFloat folds integral floats into int64, matching how numbers
// are read back from the store.
func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func normalizeIndex(index map[string][]string) map[string][]string {
	if len(index) == 0 {
		return nil
	}
	out := make(map[string][]string, len(index))
	for path, values := range index {
		if len(values) == 0 {
			continue
		}
		v := slices.Clone(values)
		slices.Sort(v)
		out[path] = slices.Compact(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SortValue renders a normalized scalar so that lexical order matches the
// natural order of the value. Integers and floats share one numeric encoding;
// strings sort case-insensitively.
func SortValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		// The exact value breaks ties between integers that round to the
		// same float64.
		return orderedFloat(float64(x)) + fmt.Sprintf("%016x", uint64(x)^(1<<63))
	case float64:
		return orderedFloat(x)
	default:
		return strings.ToLower(fmt.Sprint(x))
	}
}

// orderedFloat encodes f as fixed-width hex whose lexical order is numeric
// order: the sign bit is flipped for positives and all bits for negatives.
func orderedFloat(f float64) string {
	b := math.Float64bits(f)
	if b>>63 == 1 {
		b = ^b
	} else {
		b |= 1 << 63
	}
	return fmt.Sprintf("%016x", b)
}

// FieldString renders a normalized scalar for display and aggregation.
func FieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

package state

import "encoding/json"

// ToJSONBytes serializes a collection's ToJSON() projection as canonical
// JSON, following spec §4.1's to_json() operation.
func ToJSONBytes(c Collection) ([]byte, error) {
	return json.Marshal(c.ToJSON())
}

// FromJSON builds a detached Value from a decoded JSON value (the
// result of encoding/json.Unmarshal into `any`), following spec §4.1's
// from_json() operation. Objects become a Map, arrays a List, and a
// scalar root becomes the matching scalar Value.
func FromJSON(raw any) (Value, error) {
	return fromJSON(raw)
}

func fromJSON(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Nil, nil
	case bool:
		return BoolValue(v), nil
	case string:
		return StringValue(v), nil
	case float64:
		if v == float64(int64(v)) {
			return IntValue(int64(v)), nil
		}
		return FloatValue(v), nil
	case int64:
		return IntValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case map[string]any:
		m := NewMap()
		for k, raw := range v {
			cv, err := fromJSON(raw)
			if err != nil {
				return Nil, err
			}
			m.Assign(StringKey(k), cv, nil)
		}
		return MapValue(m), nil
	case []any:
		l := NewList()
		for _, raw := range v {
			cv, err := fromJSON(raw)
			if err != nil {
				return Nil, err
			}
			l.Append(cv, nil)
		}
		return ListValue(l), nil
	default:
		return Nil, nil
	}
}

// FromJSONBytes parses JSON bytes and builds the equivalent tree Value.
func FromJSONBytes(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Nil, err
	}
	return fromJSON(raw)
}

// ValueToJSONBytes serializes a single Value (leaf or collection) as
// canonical JSON, for transports that address individual tree nodes
// rather than the whole root (e.g. the mirroring client's outgoing
// transactions).
func ValueToJSONBytes(v Value) ([]byte, error) {
	return json.Marshal(valueToJSON(v))
}

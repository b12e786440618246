package cachepb

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNoValue is returned for a Value with no kind set
var ErrNoValue = errors.New("value is not set")

// ValueFromJSON converts a JSON document to a structpb.Value. Numbers
// become doubles.
func ValueFromJSON(raw json.RawMessage) (*structpb.Value, error) {
	v := &structpb.Value{}
	if err := protojson.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValueToJSON converts a structpb.Value back to a JSON document
func ValueToJSON(v *structpb.Value) (json.RawMessage, error) {
	if v == nil || v.GetKind() == nil {
		return nil, ErrNoValue
	}
	data, err := protojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// IntField reads an integral number field of s. Missing fields read as 0.
func IntField(s *structpb.Struct, name string) (int64, bool) {
	f, ok := s.GetFields()[name]
	if !ok {
		return 0, true
	}
	n, isNum := f.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != float64(int64(n.NumberValue)) {
		return 0, false
	}
	return int64(n.NumberValue), true
}

// EntryToValue encodes a snapshot entry as {value, time, alive}
func EntryToValue(value json.RawMessage, time, alive int64) (*structpb.Value, error) {
	v, err := ValueFromJSON(value)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		FieldValue: v,
		FieldTime:  structpb.NewNumberValue(float64(time)),
		FieldAlive: structpb.NewNumberValue(float64(alive)),
	}}), nil
}

// EntryFromValue decodes an entry built by EntryToValue
func EntryFromValue(v *structpb.Value) (value json.RawMessage, time, alive int64, err error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, 0, 0, errors.New("entry must be an object")
	}

	value, err = ValueToJSON(s.GetFields()[FieldValue])
	if err != nil {
		return nil, 0, 0, err
	}

	var ok bool
	if time, ok = IntField(s, FieldTime); !ok {
		return nil, 0, 0, fmt.Errorf("%s must be an integer", FieldTime)
	}
	if alive, ok = IntField(s, FieldAlive); !ok {
		return nil, 0, 0, fmt.Errorf("%s must be an integer", FieldAlive)
	}
	return value, time, alive, nil
}

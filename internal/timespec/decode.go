package timespec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var jsonNull = []byte("null")

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case valueNumber:
		return json.Marshal(v.num)
	case valueText:
		return json.Marshal(v.text)
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON accepts a number, a string or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		*v = Value{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Ref(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("expected number or string, got %s", b)
		}
		*v = Num(f)
		return nil
	}
}

type boundaryJSON struct {
	At           Value `json:"at"`
	Starting     Value `json:"starting"`
	After        Value `json:"after"`
	Before       Value `json:"before"`
	Interpolated Value `json:"interpolated"`
	Between      Value `json:"between"`
	And          Value `json:"and"`
}

func (b Boundary) MarshalJSON() ([]byte, error) {
	if b.Abs != nil {
		return json.Marshal(*b.Abs)
	}
	return json.Marshal(boundaryJSON{
		At: b.At, Starting: b.Starting, After: b.After, Before: b.Before,
		Interpolated: b.Interpolated, Between: b.Between, And: b.And,
	})
}

// UnmarshalJSON accepts a plain timestamp or a declarative object. Unknown
// keys are rejected.
func (b *Boundary) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*b = Boundary{}
		return nil
	}
	if data[0] != '{' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("boundary must be a number or an object, got %s", data)
		}
		*b = Absolute(roundMillis(f))
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var aux boundaryJSON
	if err := dec.Decode(&aux); err != nil {
		return fmt.Errorf("boundary: %w", err)
	}
	*b = Boundary{
		At: aux.At, Starting: aux.Starting, After: aux.After, Before: aux.Before,
		Interpolated: aux.Interpolated, Between: aux.Between, And: aux.And,
	}
	return nil
}

func (s Sync) MarshalJSON() ([]byte, error) { return json.Marshal(s.Value()) }

// UnmarshalJSON accepts true, false or a positive number of milliseconds.
func (s *Sync) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, jsonNull):
		*s = Sync{}
	case bytes.Equal(b, []byte("true")):
		*s = SyncInterval()
	case bytes.Equal(b, []byte("false")):
		*s = SyncOff()
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("sync must be a boolean or milliseconds, got %s", b)
		}
		*s = SyncEvery(roundMillis(f))
	}
	return nil
}

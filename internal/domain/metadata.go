package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// MetadataVersion is the schema version written by this build.
const MetadataVersion = 1

type MetaKind string

const (
	MetaString MetaKind = "string"
	MetaNumber MetaKind = "number"
	MetaBool   MetaKind = "bool"
)

// MetaValue is one of string, number or bool. Nested values are rejected.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) MetaValue  { return MetaValue{Kind: MetaString, Str: s} }
func NumberValue(n float64) MetaValue { return MetaValue{Kind: MetaNumber, Num: n} }
func BoolValue(b bool) MetaValue      { return MetaValue{Kind: MetaBool, Bool: b} }

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaString:
		return json.Marshal(v.Str)
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaBool:
		return json.Marshal(v.Bool)
	}
	return nil, fmt.Errorf("metadata: unknown value kind %q", v.Kind)
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("metadata: value must be string, number or bool, got %T", raw)
	}
	return nil
}

// Metadata is a versioned flat key-value map attached to requests and payments.
type Metadata struct {
	Version int                  `json:"version"`
	Values  map[string]MetaValue `json:"values"`
}

func NewMetadata() Metadata {
	return Metadata{Version: MetadataVersion, Values: map[string]MetaValue{}}
}

func (m Metadata) Get(key string) (MetaValue, bool) {
	v, ok := m.Values[key]
	return v, ok
}

// With returns a copy of m with key set.
func (m Metadata) With(key string, v MetaValue) Metadata {
	out := Metadata{Version: m.Version, Values: make(map[string]MetaValue, len(m.Values)+1)}
	if out.Version == 0 {
		out.Version = MetadataVersion
	}
	for k, existing := range m.Values {
		out.Values[k] = existing
	}
	out.Values[key] = v
	return out
}

// Value stores metadata as JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m.Values == nil {
		m = NewMetadata()
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = NewMetadata()
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("metadata: type assertion to []byte failed")
	}
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	if m.Values == nil {
		m.Values = map[string]MetaValue{}
	}
	return nil
}

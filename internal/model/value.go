package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBoolean
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a scalar read from the server. The zero Value is null.
type Value struct {
	kind     Kind
	integer  int64
	float    float64
	text     string
	boolean  bool
	typeName string
}

func IntegerValue(v int64, typeName string) Value {
	return Value{kind: KindInteger, integer: v, typeName: typeName}
}

func FloatValue(v float64, typeName string) Value {
	return Value{kind: KindFloat, float: v, typeName: typeName}
}

func TextValue(v string) Value {
	return Value{kind: KindText, text: v, typeName: "String"}
}

func BooleanValue(v bool) Value {
	return Value{kind: KindBoolean, boolean: v, typeName: "Boolean"}
}

// UnknownValue keeps the raw text of a value that has no scalar mapping.
func UnknownValue(raw, typeName string) Value {
	return Value{kind: KindUnknown, text: raw, typeName: typeName}
}

// NewValue classifies a dynamically typed value decoded by the protocol client.
func NewValue(v any) Value {
	switch val := v.(type) {
	case nil:
		return Value{}
	case bool:
		return BooleanValue(val)
	case int8:
		return IntegerValue(int64(val), "SByte")
	case uint8:
		return IntegerValue(int64(val), "Byte")
	case int16:
		return IntegerValue(int64(val), "Int16")
	case uint16:
		return IntegerValue(int64(val), "UInt16")
	case int32:
		return IntegerValue(int64(val), "Int32")
	case uint32:
		return IntegerValue(int64(val), "UInt32")
	case int64:
		return IntegerValue(val, "Int64")
	case int:
		return IntegerValue(int64(val), "Int64")
	case uint64:
		if val > 1<<63-1 {
			return UnknownValue(strconv.FormatUint(val, 10), "UInt64")
		}
		return IntegerValue(int64(val), "UInt64")
	case float32:
		return FloatValue(float64(val), "Float")
	case float64:
		return FloatValue(val, "Double")
	case string:
		return TextValue(val)
	case time.Time:
		return Value{kind: KindText, text: val.UTC().Format(time.RFC3339Nano), typeName: "DateTime"}
	case fmt.Stringer:
		return UnknownValue(val.String(), typeNameOf(v))
	default:
		return UnknownValue(fmt.Sprintf("%v", v), typeNameOf(v))
	}
}

func typeNameOf(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		if name := t.Elem().Name(); name != "" {
			return name + "[]"
		}
	}
	return t.Kind().String()
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Int() (int64, bool) { return v.integer, v.kind == KindInteger }

func (v Value) Float() (float64, bool) { return v.float, v.kind == KindFloat }

func (v Value) Bool() (bool, bool) { return v.boolean, v.kind == KindBoolean }

// TypeName is the best-effort name of the runtime type, "Unknown" for null.
func (v Value) TypeName() string {
	if v.kind == KindNull || v.typeName == "" {
		return "Unknown"
	}
	return v.typeName
}

// String renders the value as stored in the value column.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindFloat:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	default:
		return v.text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Type string `json:"type"`
		Text string `json:"text"`
	}{
		Kind: v.kind.String(),
		Type: v.TypeName(),
		Text: v.String(),
	})
}

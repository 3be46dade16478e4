package gguf

// valueType is the type tag of a GGUF metadata value in the binary format.
type valueType uint32

const (
	valueTypeUint8   valueType = 0
	valueTypeInt8    valueType = 1
	valueTypeUint16  valueType = 2
	valueTypeInt16   valueType = 3
	valueTypeUint32  valueType = 4
	valueTypeInt32   valueType = 5
	valueTypeFloat32 valueType = 6
	valueTypeBool    valueType = 7
	valueTypeString  valueType = 8
	valueTypeArray   valueType = 9
	valueTypeUint64  valueType = 10
	valueTypeInt64   valueType = 11
	valueTypeFloat64 valueType = 12
)

// KeyValue is a metadata key-value pair from a GGUF file.
type KeyValue struct {
	Key string
	Value
}

// Value wraps a GGUF metadata value with typed accessors.
// Accessors return zero values when the underlying type doesn't match.
type Value struct {
	data any
}

// Raw returns the underlying value without type conversion.
func (v Value) Raw() any {
	return v.data
}

// String returns the value as a string, or "" if it is not a string.
func (v Value) String() string {
	s, _ := v.data.(string)
	return s
}

// Strings returns the value as a string slice, or nil if it is not one.
func (v Value) Strings() []string {
	s, _ := v.data.([]string)
	return s
}

// Bool returns the value as a bool, or false if it is not a bool.
func (v Value) Bool() bool {
	b, _ := v.data.(bool)
	return b
}

// Int returns the value as an int64. Works for any signed or unsigned integer type.
// Returns 0 if the value is not an integer.
func (v Value) Int() int64 {
	switch n := v.data.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

// Floats returns the value as a float64 slice, or nil if it is not a float array.
func (v Value) Floats() []float64 {
	switch s := v.data.(type) {
	case []float64:
		return s
	case []float32:
		return convertSlice[float32, float64](s)
	default:
		return nil
	}
}

// Ints returns the value as an int64 slice, or nil if it is not an integer array.
func (v Value) Ints() []int64 {
	switch s := v.data.(type) {
	case []int64:
		return s
	case []int32:
		return convertSlice[int32, int64](s)
	case []int16:
		return convertSlice[int16, int64](s)
	case []int8:
		return convertSlice[int8, int64](s)
	case []uint64:
		return convertSlice[uint64, int64](s)
	case []uint32:
		return convertSlice[uint32, int64](s)
	case []uint16:
		return convertSlice[uint16, int64](s)
	case []uint8:
		return convertSlice[uint8, int64](s)
	default:
		return nil
	}
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func convertSlice[From, To number](s []From) []To {
	out := make([]To, len(s))
	for i, n := range s {
		out[i] = To(n)
	}
	return out
}

// Package gguf reads the tokenizer stored in the metadata of GGUF model files (the llama.cpp
// format) and builds an hftokenizer.Tokenizer from it.
//
// Only the header and the metadata key-value pairs are read: tensor infos and tensor data are
// never touched.
package gguf

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	ggufMagic           = "GGUF"
	minSupportedVersion = 2

	// maxStringLen is a sanity limit for a single string.
	maxStringLen = 1 << 20
)

// File holds the metadata of a GGUF file. Create one with Open or Parse.
type File struct {
	// Version is the GGUF format version (2 or 3).
	Version uint32
	// TensorCount is the number of tensors declared in the header.
	TensorCount uint64
	// KeyValues holds all metadata key-value pairs from the file header, in file order.
	KeyValues []KeyValue

	kvByKey map[string]*KeyValue
}

// Open reads the metadata of the GGUF file in filePath.
func Open(filePath string) (*File, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "gguf: failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	file, err := Parse(bufio.NewReader(f))
	if err != nil {
		return nil, errors.WithMessagef(err, "gguf file %q", filePath)
	}
	return file, nil
}

// Parse reads the GGUF header and metadata from r. Reading stops at the end of the metadata.
func Parse(r io.Reader) (*File, error) {
	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "gguf: read magic")
	}
	if string(magic[:]) != ggufMagic {
		return nil, errors.Errorf("gguf: invalid magic %q, expected %q", magic[:], ggufMagic)
	}

	file := &File{}
	if err := binary.Read(r, binary.LittleEndian, &file.Version); err != nil {
		return nil, errors.Wrap(err, "gguf: read version")
	}
	if file.Version < minSupportedVersion {
		return nil, errors.Errorf("gguf: unsupported version %d (minimum %d)", file.Version, minSupportedVersion)
	}

	var kvCount uint64
	if err := binary.Read(r, binary.LittleEndian, &file.TensorCount); err != nil {
		return nil, errors.Wrap(err, "gguf: read tensor count")
	}
	if err := binary.Read(r, binary.LittleEndian, &kvCount); err != nil {
		return nil, errors.Wrap(err, "gguf: read kv count")
	}

	for range kvCount {
		kv, err := readKeyValue(r)
		if err != nil {
			return nil, errors.WithMessagef(err, "gguf: read kv pair %d/%d", len(file.KeyValues), kvCount)
		}
		file.KeyValues = append(file.KeyValues, kv)
	}

	file.kvByKey = make(map[string]*KeyValue, len(file.KeyValues))
	for i := range file.KeyValues {
		file.kvByKey[file.KeyValues[i].Key] = &file.KeyValues[i]
	}
	return file, nil
}

// GetKeyValue looks up a metadata key-value pair by its key.
func (f *File) GetKeyValue(key string) (KeyValue, bool) {
	kv, ok := f.kvByKey[key]
	if !ok {
		return KeyValue{}, false
	}
	return *kv, true
}

// Architecture returns the model architecture string (e.g., "llama", "gemma"),
// or "" if the metadata key "general.architecture" is not present.
func (f *File) Architecture() string {
	kv, _ := f.GetKeyValue("general.architecture")
	return kv.String()
}

// readString reads a GGUF string: uint64 length prefix followed by that many bytes.
func readString(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", errors.Wrap(err, "read string length")
	}
	if length > maxStringLen {
		return "", errors.Errorf("string length %d exceeds %d bytes limit", length, maxStringLen)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "read string data")
	}
	return string(buf), nil
}

func readKeyValue(r io.Reader) (KeyValue, error) {
	key, err := readString(r)
	if err != nil {
		return KeyValue{}, errors.WithMessage(err, "read key")
	}
	var typeTag uint32
	if err := binary.Read(r, binary.LittleEndian, &typeTag); err != nil {
		return KeyValue{}, errors.Wrapf(err, "read value type for %q", key)
	}
	val, err := readValue(r, valueType(typeTag))
	if err != nil {
		return KeyValue{}, errors.WithMessagef(err, "read value for %q (type %d)", key, typeTag)
	}
	return KeyValue{Key: key, Value: val}, nil
}

// readScalar reads one little-endian fixed size value.
func readScalar[T any](r io.Reader) (Value, error) {
	var v T
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return Value{}, errors.WithStack(err)
	}
	return Value{data: v}, nil
}

func readValue(r io.Reader, vtype valueType) (Value, error) {
	switch vtype {
	case valueTypeUint8:
		return readScalar[uint8](r)
	case valueTypeInt8:
		return readScalar[int8](r)
	case valueTypeUint16:
		return readScalar[uint16](r)
	case valueTypeInt16:
		return readScalar[int16](r)
	case valueTypeUint32:
		return readScalar[uint32](r)
	case valueTypeInt32:
		return readScalar[int32](r)
	case valueTypeFloat32:
		return readScalar[float32](r)
	case valueTypeUint64:
		return readScalar[uint64](r)
	case valueTypeInt64:
		return readScalar[int64](r)
	case valueTypeFloat64:
		return readScalar[float64](r)
	case valueTypeBool:
		v, err := readScalar[uint8](r)
		if err != nil {
			return Value{}, err
		}
		return Value{data: v.data.(uint8) != 0}, nil
	case valueTypeString:
		s, err := readString(r)
		return Value{data: s}, err
	case valueTypeArray:
		return readArray(r)
	default:
		return Value{}, errors.Errorf("unknown value type %d", vtype)
	}
}

// readArray reads a GGUF typed array: uint32 element type, uint64 count, then elements.
func readArray(r io.Reader) (Value, error) {
	var elemType uint32
	if err := binary.Read(r, binary.LittleEndian, &elemType); err != nil {
		return Value{}, errors.Wrap(err, "read array element type")
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return Value{}, errors.Wrap(err, "read array count")
	}

	switch valueType(elemType) {
	case valueTypeUint8:
		return readArrayOf[uint8](r, count)
	case valueTypeInt8:
		return readArrayOf[int8](r, count)
	case valueTypeUint16:
		return readArrayOf[uint16](r, count)
	case valueTypeInt16:
		return readArrayOf[int16](r, count)
	case valueTypeUint32:
		return readArrayOf[uint32](r, count)
	case valueTypeInt32:
		return readArrayOf[int32](r, count)
	case valueTypeFloat32:
		return readArrayOf[float32](r, count)
	case valueTypeUint64:
		return readArrayOf[uint64](r, count)
	case valueTypeInt64:
		return readArrayOf[int64](r, count)
	case valueTypeFloat64:
		return readArrayOf[float64](r, count)
	case valueTypeBool:
		raw, err := readArrayOf[uint8](r, count)
		if err != nil {
			return Value{}, err
		}
		bytes := raw.data.([]uint8)
		vals := make([]bool, len(bytes))
		for i, b := range bytes {
			vals[i] = b != 0
		}
		return Value{data: vals}, nil
	case valueTypeString:
		vals := make([]string, 0, min(count, 1<<16))
		for i := range count {
			s, err := readString(r)
			if err != nil {
				return Value{}, errors.WithMessagef(err, "read string array element %d", i)
			}
			vals = append(vals, s)
		}
		return Value{data: vals}, nil
	default:
		return Value{}, errors.Errorf("unsupported array element type %d", elemType)
	}
}

// readArrayOf reads a numeric array. Elements are appended as read, so a corrupted count fails
// on the end of the input rather than on a huge allocation.
func readArrayOf[T any](r io.Reader, count uint64) (Value, error) {
	vals := make([]T, 0, min(count, 1<<16))
	for i := range count {
		var v T
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Value{}, errors.Wrapf(err, "read array element %d", i)
		}
		vals = append(vals, v)
	}
	return Value{data: vals}, nil
}

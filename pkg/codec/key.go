package codec

import (
	"encoding/binary"
	"fmt"
)

// encodeOrderedKey renders a comparable, ordered key to bytes for the
// BinaryContract framing. Supported kinds are string and the built-in
// integer types; any other key type (floats included) returns
// ErrSerialization.
func encodeOrderedKey(key any) ([]byte, error) {
	switch v := key.(type) {
	case string:
		return []byte(v), nil
	case int:
		return encodeInt64(int64(v)), nil
	case int8:
		return []byte{byte(v)}, nil
	case int16:
		return encodeUint16(uint16(v)), nil
	case int32:
		return encodeUint32(uint32(v)), nil
	case int64:
		return encodeInt64(v), nil
	case uint:
		return encodeInt64(int64(v)), nil
	case uint8:
		return []byte{v}, nil
	case uint16:
		return encodeUint16(v), nil
	case uint32:
		return encodeUint32(v), nil
	case uint64:
		return encodeInt64(int64(v)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T for BinaryContract framing", ErrSerialization, key)
	}
}

func encodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// decodeOrderedKey is the inverse of encodeOrderedKey, using the zero value
// of K as a type witness for which shape to decode into.
func decodeOrderedKey[K any](data []byte) (K, error) {
	var zero K
	switch any(zero).(type) {
	case string:
		return any(string(data)).(K), nil
	case int:
		if len(data) != 8 {
			return zero, fmt.Errorf("%w: bad int key length %d", ErrDeserialization, len(data))
		}
		return any(int(int64(binary.LittleEndian.Uint64(data)))).(K), nil
	case int8:
		if len(data) != 1 {
			return zero, fmt.Errorf("%w: bad int8 key length %d", ErrDeserialization, len(data))
		}
		return any(int8(data[0])).(K), nil
	case int16:
		if len(data) != 2 {
			return zero, fmt.Errorf("%w: bad int16 key length %d", ErrDeserialization, len(data))
		}
		return any(int16(binary.LittleEndian.Uint16(data))).(K), nil
	case int32:
		if len(data) != 4 {
			return zero, fmt.Errorf("%w: bad int32 key length %d", ErrDeserialization, len(data))
		}
		return any(int32(binary.LittleEndian.Uint32(data))).(K), nil
	case int64:
		if len(data) != 8 {
			return zero, fmt.Errorf("%w: bad int64 key length %d", ErrDeserialization, len(data))
		}
		return any(int64(binary.LittleEndian.Uint64(data))).(K), nil
	case uint:
		if len(data) != 8 {
			return zero, fmt.Errorf("%w: bad uint key length %d", ErrDeserialization, len(data))
		}
		return any(uint(binary.LittleEndian.Uint64(data))).(K), nil
	case uint8:
		if len(data) != 1 {
			return zero, fmt.Errorf("%w: bad uint8 key length %d", ErrDeserialization, len(data))
		}
		return any(data[0]).(K), nil
	case uint16:
		if len(data) != 2 {
			return zero, fmt.Errorf("%w: bad uint16 key length %d", ErrDeserialization, len(data))
		}
		return any(binary.LittleEndian.Uint16(data)).(K), nil
	case uint32:
		if len(data) != 4 {
			return zero, fmt.Errorf("%w: bad uint32 key length %d", ErrDeserialization, len(data))
		}
		return any(binary.LittleEndian.Uint32(data)).(K), nil
	case uint64:
		if len(data) != 8 {
			return zero, fmt.Errorf("%w: bad uint64 key length %d", ErrDeserialization, len(data))
		}
		return any(binary.LittleEndian.Uint64(data)).(K), nil
	default:
		return zero, fmt.Errorf("%w: unsupported key type %T for BinaryContract framing", ErrDeserialization, zero)
	}
}

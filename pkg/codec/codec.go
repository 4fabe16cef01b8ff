// Package codec turns a (key, value) pair into the byte payload a slot
// holds, and back. It composes three independent stages -- serialize,
// compress, encrypt -- in that order on the way out and the reverse order
// on the way in, mirroring how the teacher's record codec layers framing
// around a caller-supplied value before the log writer ever sees it.
package codec

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ssargent/slotkv/pkg/blockcompress"
	"github.com/ssargent/slotkv/pkg/xcrypto"
)

// Serializer selects how a (key, value) pair is rendered to bytes before
// compression and encryption run.
type Serializer uint8

const (
	// BinaryContractless serializes via encoding/gob, using reflection to
	// walk whatever K and V happen to be. No method implementations are
	// required of either type.
	BinaryContractless Serializer = iota
	// BinaryContract requires V to implement encoding.BinaryMarshaler and,
	// on its pointer, encoding.BinaryUnmarshaler. The key is framed
	// separately behind a 4-byte length prefix.
	BinaryContract
	// JSONUTF8 serializes the pair as a UTF-8 JSON object with "K" and "V"
	// fields.
	JSONUTF8
)

func (s Serializer) String() string {
	switch s {
	case BinaryContractless:
		return "BinaryContractless"
	case BinaryContract:
		return "BinaryContract"
	case JSONUTF8:
		return "JsonUtf8"
	default:
		return fmt.Sprintf("Serializer(%d)", s)
	}
}

// ErrSerialization wraps any failure turning a (key, value) pair into
// bytes.
var ErrSerialization = errors.New("codec: serialization failed")

// ErrDeserialization wraps any failure turning bytes back into a (key,
// value) pair, including a failed decryption or decompression step.
var ErrDeserialization = errors.New("codec: deserialization failed")

// Options configures a Codec. Cipher is nil when the collection does not
// encrypt its payloads.
type Options struct {
	Serializer Serializer
	Compress   bool
	Cipher     *xcrypto.Cipher
}

// Codec encodes and decodes the (key, value) pairs a collection stores.
// A Codec holds no per-call state beyond Options, so the same instance is
// shared across every worker in a ParallelBuffered pipeline.
type Codec[K comparable, V any] struct {
	opts Options
}

// New builds a Codec from opts.
func New[K comparable, V any](opts Options) *Codec[K, V] {
	return &Codec[K, V]{opts: opts}
}

// binPair is the generic carrier gob and JSON serialize directly via
// reflection -- no per-type registration needed for either.
type binPair[K comparable, V any] struct {
	K K
	V V
}

// Encode renders (key, value) through serialize -> compress -> encrypt,
// in that order, returning the bytes a slot should hold.
func (c *Codec[K, V]) Encode(key K, value V) ([]byte, error) {
	payload, err := c.serialize(key, value)
	if err != nil {
		return nil, err
	}

	if c.opts.Compress {
		payload, err = blockcompress.Compress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: compress: %v", ErrSerialization, err)
		}
	}

	if c.opts.Cipher != nil {
		payload, err = c.opts.Cipher.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encrypt: %v", ErrSerialization, err)
		}
	}

	return payload, nil
}

// Decode reverses Encode: decrypt -> decompress -> deserialize.
func (c *Codec[K, V]) Decode(data []byte) (K, V, error) {
	var zeroK K
	var zeroV V

	payload := data
	var err error

	if c.opts.Cipher != nil {
		payload, err = c.opts.Cipher.Decrypt(payload)
		if err != nil {
			return zeroK, zeroV, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
	}

	if c.opts.Compress {
		payload, err = blockcompress.Decompress(payload)
		if err != nil {
			return zeroK, zeroV, fmt.Errorf("%w: decompress: %v", ErrDeserialization, err)
		}
	}

	return c.deserialize(payload)
}

func (c *Codec[K, V]) serialize(key K, value V) ([]byte, error) {
	switch c.opts.Serializer {
	case BinaryContract:
		return serializeBinaryContract(key, value)
	case JSONUTF8:
		buf, err := json.Marshal(binPair[K, V]{K: key, V: value})
		if err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrSerialization, err)
		}
		return buf, nil
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(binPair[K, V]{K: key, V: value}); err != nil {
			return nil, fmt.Errorf("%w: gob: %v", ErrSerialization, err)
		}
		return buf.Bytes(), nil
	}
}

func (c *Codec[K, V]) deserialize(data []byte) (K, V, error) {
	var zeroK K
	var zeroV V

	switch c.opts.Serializer {
	case BinaryContract:
		return deserializeBinaryContract[K, V](data)
	case JSONUTF8:
		var pair binPair[K, V]
		if err := json.Unmarshal(data, &pair); err != nil {
			return zeroK, zeroV, fmt.Errorf("%w: json: %v", ErrDeserialization, err)
		}
		return pair.K, pair.V, nil
	default:
		var pair binPair[K, V]
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&pair); err != nil {
			return zeroK, zeroV, fmt.Errorf("%w: gob: %v", ErrDeserialization, err)
		}
		return pair.K, pair.V, nil
	}
}

// serializeBinaryContract frames [keyLen uint32][key bytes][value bytes],
// where value bytes come from V's own encoding.BinaryMarshaler. V must be
// a type whose pointer implements encoding.BinaryMarshaler -- the same
// shape idiomatic Go code already uses for json.Marshaler-style contracts.
func serializeBinaryContract[K comparable, V any](key K, value V) ([]byte, error) {
	marshaler, ok := any(&value).(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("%w: BinaryContract requires *V to implement encoding.BinaryMarshaler, got %T", ErrSerialization, value)
	}
	valueBytes, err := marshaler.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: MarshalBinary: %v", ErrSerialization, err)
	}

	keyBytes, err := encodeOrderedKey(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 4+len(keyBytes)+len(valueBytes))
	binary.LittleEndian.PutUint32(out, uint32(len(keyBytes)))
	copy(out[4:], keyBytes)
	copy(out[4+len(keyBytes):], valueBytes)
	return out, nil
}

func deserializeBinaryContract[K comparable, V any](data []byte) (K, V, error) {
	var zeroK K
	var zeroV V

	if len(data) < 4 {
		return zeroK, zeroV, fmt.Errorf("%w: BinaryContract frame too small", ErrDeserialization)
	}
	keyLen := binary.LittleEndian.Uint32(data[:4])
	if uint32(len(data)) < 4+keyLen {
		return zeroK, zeroV, fmt.Errorf("%w: BinaryContract frame truncated", ErrDeserialization)
	}
	keyBytes := data[4 : 4+keyLen]
	valueBytes := data[4+keyLen:]

	key, err := decodeOrderedKey[K](keyBytes)
	if err != nil {
		return zeroK, zeroV, err
	}

	var value V
	unmarshaler, ok := any(&value).(encoding.BinaryUnmarshaler)
	if !ok {
		return zeroK, zeroV, fmt.Errorf("%w: BinaryContract requires *V to implement encoding.BinaryUnmarshaler, got %T", ErrDeserialization, value)
	}
	if err := unmarshaler.UnmarshalBinary(valueBytes); err != nil {
		return zeroK, zeroV, fmt.Errorf("%w: UnmarshalBinary: %v", ErrDeserialization, err)
	}
	return key, value, nil
}

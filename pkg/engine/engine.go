// Package engine implements the Record Engine: synchronous add, update,
// remove and load-scan over a single collection file, with a two-phase
// commit per record and free-slot reuse. One stream lock serializes every
// file mutation and every index mutation; the in-memory value map
// (owned by the collection facade) is read without taking this lock.
package engine

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssargent/slotkv/pkg/codec"
	"github.com/ssargent/slotkv/pkg/logging"
	"github.com/ssargent/slotkv/pkg/metrics"
	"github.com/ssargent/slotkv/pkg/slotindex"
)

// State is a slot's one-byte lifecycle tag.
type State uint8

const (
	StateUnallocated State = 0
	StateAllocated   State = 1
	StateDeleted     State = 2
	StatePending     State = 3
)

// KV is one pair in a BulkAdd call.
type KV[K any, V any] struct {
	Key   K
	Value V
}

// Engine owns a collection's file handle and both in-memory slot indices.
// All exported methods are safe for concurrent use; each takes the stream
// lock for its entire duration except where noted.
type Engine[K cmp.Ordered, V any] struct {
	mu sync.Mutex

	file   *os.File
	header Header
	codec  *codec.Codec[K, V]

	allocated *slotindex.Allocated[K]
	free      *slotindex.Free

	tail           uint32
	bufferedWrites bool
	readOnly       bool
	closed         bool

	logger      *logging.Logger
	metrics     *metrics.Collector
	metricsName string
}

// OpenOptions bundles Open's lifecycle and observability knobs. BufferedWrites,
// when true, skips the intermediate flush between a slot's payload write and
// its state-byte commit. Logger and Metrics may both be nil; MetricsName is
// the collection-name label used on any Metrics calls.
type OpenOptions struct {
	BufferedWrites bool
	ReadOnly       bool
	Logger         *slog.Logger
	Metrics        *metrics.Collector
	MetricsName    string
}

// Open opens or creates the collection file at path, creating its parent
// directory first unless opts.ReadOnly is set. header is the
// negotiated header (already reconciled against any on-disk header by the
// caller); Open writes it only if the file is new. cd is the codec this
// engine uses for every Encode/Decode call.
func Open[K cmp.Ordered, V any](path string, header Header, cd *codec.Codec[K, V], opts OpenOptions) (*Engine[K, V], error) {
	flags := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flags = os.O_RDONLY
	} else if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("%w: create directory for %s: %v", ErrStorageFailure, path, err)
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageFailure, path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrStorageFailure, path, err)
	}

	e := &Engine[K, V]{
		file:           f,
		header:         header,
		codec:          cd,
		allocated:      slotindex.NewAllocated[K](),
		free:           slotindex.NewFree(),
		bufferedWrites: opts.BufferedWrites,
		readOnly:       opts.ReadOnly,
		logger:         logging.From(opts.Logger),
		metrics:        opts.Metrics,
		metricsName:    opts.MetricsName,
	}

	if stat.Size() == 0 {
		if opts.ReadOnly {
			f.Close()
			return nil, fmt.Errorf("%w: collection %s does not exist", ErrStorageFailure, path)
		}
		buf, _ := header.MarshalBinary()
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: write header: %v", ErrStorageFailure, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: sync header: %v", ErrStorageFailure, err)
		}
		e.tail = HeaderSize
		return e, nil
	}

	e.tail = uint32(stat.Size())
	return e, nil
}

// ReadHeader peeks at an existing collection file's header without taking
// ownership of it, so a caller can reconcile configuration (serializer,
// encryption, compression) before deriving a cipher and calling Open. It
// reports false if the file does not yet exist.
func ReadHeader(path string) (Header, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Header{}, false, nil
		}
		return Header{}, false, fmt.Errorf("%w: open %s: %v", ErrStorageFailure, path, err)
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Header{}, false, fmt.Errorf("%w: read header: %v", ErrStorageFailure, err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return Header{}, false, err
	}
	return h, true, nil
}

// Header returns the engine's negotiated header.
func (e *Engine[K, V]) Header() Header {
	return e.header
}

// SizeBytes returns the collection file's current total size, header
// included.
func (e *Engine[K, V]) SizeBytes() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tail
}

// AllocatedCount returns the number of live slots.
func (e *Engine[K, V]) AllocatedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocated.Len()
}

// FreeCount returns the number of reclaimable slots.
func (e *Engine[K, V]) FreeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.free.Size()
}

// Load scans the file from just past the header to its current tail,
// deserializing Allocated slots and reporting each to onRecord, and
// indexing Deleted/Pending slots as free. raiseOnDecodeError selects
// whether a record that fails to deserialize aborts the scan
// (DeserializationFailure) or is skipped and treated as free space.
func (e *Engine[K, V]) Load(raiseOnDecodeError bool, onRecord func(K, V)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.file.Seek(HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek past header: %v", ErrStorageFailure, err)
	}
	r := bufio.NewReader(e.file)

	offset := uint32(HeaderSize)
	end := e.tail

	for offset < end {
		stateByte, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: read state at offset %d: %v", ErrStorageFailure, offset, err)
		}

		if State(stateByte) == StateUnallocated {
			offset++
			continue
		}

		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return fmt.Errorf("%w: read length at offset %d: %v", ErrStorageFailure, offset, err)
		}
		length := binary.LittleEndian.Uint32(lenBuf)

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("%w: read payload at offset %d: %v", ErrStorageFailure, offset, err)
		}

		slot := slotindex.Slot{Offset: offset, TotalLength: slotindex.FramingSize + length}

		switch State(stateByte) {
		case StateAllocated:
			key, value, err := e.codec.Decode(payload)
			if err != nil {
				if raiseOnDecodeError {
					return fmt.Errorf("%w: offset %d: %v", ErrDeserializationFailure, offset, err)
				}
				e.logger.LogDecodeSoftFail(offset, err)
				e.free.Insert(slot)
			} else {
				e.allocated.Put(key, slot)
				onRecord(key, value)
			}
		case StatePending:
			e.logger.LogReclaimedPending(offset, slot.TotalLength)
			e.free.Insert(slot)
		case StateDeleted:
			e.free.Insert(slot)
		default:
			return fmt.Errorf("%w: unknown state %d at offset %d", ErrCorruptSlot, stateByte, offset)
		}

		offset += slot.TotalLength
	}

	return nil
}

// Get returns the value stored under key, decoding it from its slot. The
// collection facade's in-memory value map carries the hot read path; this
// method exists for load verification and for callers with no facade.
func (e *Engine[K, V]) Get(key K) (V, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero V
	slot, ok := e.allocated.Get(key)
	if !ok {
		return zero, false, nil
	}

	// A reused slot can be wider than its payload, so the payload size comes
	// from the slot's length field rather than from TotalLength.
	lenBuf := make([]byte, 4)
	if _, err := e.file.ReadAt(lenBuf, int64(slot.Offset)+1); err != nil {
		return zero, false, fmt.Errorf("%w: read length at offset %d: %v", ErrStorageFailure, slot.Offset, err)
	}
	payload := make([]byte, binary.LittleEndian.Uint32(lenBuf))
	if _, err := e.file.ReadAt(payload, int64(slot.Offset)+slotindex.FramingSize); err != nil {
		return zero, false, fmt.Errorf("%w: read payload at offset %d: %v", ErrStorageFailure, slot.Offset, err)
	}

	_, value, err := e.codec.Decode(payload)
	if err != nil {
		return zero, false, fmt.Errorf("%w: offset %d: %v", ErrDeserializationFailure, slot.Offset, err)
	}
	return value, true, nil
}

// Encode runs the engine's codec over (key, value) without touching the
// file or either index, so the write pipeline's transform stage can
// encode off the stream lock and hand AddEncoded/UpdateEncoded the
// resulting bytes.
func (e *Engine[K, V]) Encode(key K, value V) ([]byte, error) {
	payload, err := e.codec.Encode(key, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailure, err)
	}
	return payload, nil
}

// Add writes a new key via the two-phase commit protocol: a Pending slot
// is written and flushed, then its state byte is overwritten with
// Allocated and flushed. The allocated index is updated only after the
// commit flip succeeds.
func (e *Engine[K, V]) Add(key K, value V) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.addLocked(key, value)
	e.logger.LogMutation("add", key, err)
	return err
}

func (e *Engine[K, V]) addLocked(key K, value V) error {
	if e.closed {
		return ErrEngineClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}

	payload, err := e.codec.Encode(key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailure, err)
	}

	return e.addEncodedLocked(key, payload)
}

// AddEncoded is Add for a caller that already ran the codec itself -- the
// write pipeline's transform stage, which encodes off the stream lock so
// many operations can be serialized concurrently before the file-system
// worker applies them in order.
func (e *Engine[K, V]) AddEncoded(key K, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}
	return e.addEncodedLocked(key, payload)
}

func (e *Engine[K, V]) addEncodedLocked(key K, payload []byte) error {
	required := slotindex.FramingSize + uint32(len(payload))

	offset := e.tail
	totalLength := required
	if slot, ok := e.free.TakeFit(required); ok {
		offset = slot.Offset
		totalLength = slot.TotalLength
		if e.metrics != nil {
			e.metrics.IncReclaimedSlot(e.metricsName)
		}
	}

	// The frame spans the whole slot, so any room a reused slot has beyond
	// the payload is written as zero (Unallocated) bytes the scanner skips.
	frame := make([]byte, totalLength)
	frame[0] = byte(StatePending)
	binary.LittleEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)

	if _, err := e.file.WriteAt(frame, int64(offset)); err != nil {
		return fmt.Errorf("%w: write pending slot at %d: %v", ErrStorageFailure, offset, err)
	}
	if !e.bufferedWrites {
		if err := e.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync pending slot: %v", ErrStorageFailure, err)
		}
	}

	if _, err := e.file.WriteAt([]byte{byte(StateAllocated)}, int64(offset)); err != nil {
		return fmt.Errorf("%w: commit slot at %d: %v", ErrStorageFailure, offset, err)
	}
	if !e.bufferedWrites {
		if err := e.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync commit: %v", ErrStorageFailure, err)
		}
	}

	e.allocated.Put(key, slotindex.Slot{Offset: offset, TotalLength: totalLength})
	if offset == e.tail {
		e.tail += totalLength
	}
	return nil
}

// Update removes key's current slot, if any, and adds it again with
// value. It does not attempt an in-place overwrite: the new placement may
// or may not coincide with the old one.
func (e *Engine[K, V]) Update(key K, value V) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.removeLocked(key); err != nil {
		e.logger.LogMutation("update", key, err)
		return err
	}
	err := e.addLocked(key, value)
	e.logger.LogMutation("update", key, err)
	return err
}

// UpdateEncoded is Update for a caller that already ran the codec itself.
func (e *Engine[K, V]) UpdateEncoded(key K, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}
	if _, err := e.removeLocked(key); err != nil {
		return err
	}
	return e.addEncodedLocked(key, payload)
}

// Remove marks key's slot Deleted and zeroes its payload bytes, reporting
// whether the key was present. Zeroing is deliberate: it lets the
// load-time scanner walk forward over reclaimed space one byte at a time,
// so an in-place shrink stays scannable without a side table.
func (e *Engine[K, V]) Remove(key K) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok, err := e.removeLocked(key)
	e.logger.LogMutation("remove", key, err)
	return ok, err
}

func (e *Engine[K, V]) removeLocked(key K) (bool, error) {
	if e.closed {
		return false, ErrEngineClosed
	}
	if e.readOnly {
		return false, ErrReadOnly
	}

	slot, ok := e.allocated.Get(key)
	if !ok {
		return false, nil
	}

	if _, err := e.file.WriteAt([]byte{byte(StateDeleted)}, int64(slot.Offset)); err != nil {
		return false, fmt.Errorf("%w: mark deleted at %d: %v", ErrStorageFailure, slot.Offset, err)
	}
	if !e.bufferedWrites {
		if err := e.file.Sync(); err != nil {
			return false, fmt.Errorf("%w: sync delete: %v", ErrStorageFailure, err)
		}
	}

	zeros := make([]byte, slot.TotalLength-slotindex.FramingSize)
	if _, err := e.file.WriteAt(zeros, int64(slot.Offset)+slotindex.FramingSize); err != nil {
		return false, fmt.Errorf("%w: zero payload at %d: %v", ErrStorageFailure, slot.Offset, err)
	}
	if !e.bufferedWrites {
		if err := e.file.Sync(); err != nil {
			return false, fmt.Errorf("%w: sync zero: %v", ErrStorageFailure, err)
		}
	}

	e.allocated.Delete(key)
	e.free.Insert(slot)
	return true, nil
}

// BulkAdd appends every pair in order, with no free-slot reuse, assuming
// none of the keys are already allocated. It is the caller's
// responsibility (the collection facade) to have ruled out duplicates.
func (e *Engine[K, V]) BulkAdd(pairs []KV[K, V]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}

	for _, kv := range pairs {
		payload, err := e.codec.Encode(kv.Key, kv.Value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSerializationFailure, err)
		}

		total := slotindex.FramingSize + uint32(len(payload))
		offset := e.tail

		frame := make([]byte, total)
		frame[0] = byte(StatePending)
		binary.LittleEndian.PutUint32(frame[1:5], uint32(len(payload)))
		copy(frame[5:], payload)

		if _, err := e.file.WriteAt(frame, int64(offset)); err != nil {
			return fmt.Errorf("%w: write pending slot at %d: %v", ErrStorageFailure, offset, err)
		}
		if !e.bufferedWrites {
			if err := e.file.Sync(); err != nil {
				return fmt.Errorf("%w: sync pending slot: %v", ErrStorageFailure, err)
			}
		}

		if _, err := e.file.WriteAt([]byte{byte(StateAllocated)}, int64(offset)); err != nil {
			return fmt.Errorf("%w: commit slot at %d: %v", ErrStorageFailure, offset, err)
		}
		if !e.bufferedWrites {
			if err := e.file.Sync(); err != nil {
				return fmt.Errorf("%w: sync commit: %v", ErrStorageFailure, err)
			}
		}

		e.allocated.Put(kv.Key, slotindex.Slot{Offset: offset, TotalLength: total})
		e.tail += total
	}

	return nil
}

// Clear truncates the file back to just the header, re-emits the header,
// and empties both indices.
func (e *Engine[K, V]) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.readOnly {
		return ErrReadOnly
	}

	if err := e.file.Truncate(HeaderSize); err != nil {
		return fmt.Errorf("%w: truncate: %v", ErrStorageFailure, err)
	}
	buf, _ := e.header.MarshalBinary()
	if _, err := e.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: rewrite header: %v", ErrStorageFailure, err)
	}
	if err := e.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync clear: %v", ErrStorageFailure, err)
	}

	e.allocated = slotindex.NewAllocated[K]()
	e.free.Clear()
	e.tail = HeaderSize
	return nil
}

// Flush syncs the underlying file to stable storage.
func (e *Engine[K, V]) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.file.Sync(); err != nil {
		err = fmt.Errorf("%w: flush: %v", ErrStorageFailure, err)
		e.logger.LogFlush(err)
		return err
	}
	e.logger.LogFlush(nil)
	return nil
}

// Close releases the file handle. It is idempotent.
func (e *Engine[K, V]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStorageFailure, err)
	}
	return nil
}

// DeleteFile removes a collection's file from disk. Call only after
// Close.
func DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete %s: %v", ErrStorageFailure, path, err)
	}
	return nil
}

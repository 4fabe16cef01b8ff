// Package collection implements the facade a caller actually opens: an
// in-memory value map backed by a Record Engine and a Write Pipeline, with
// the duplicate/missing-key policies, lifecycle guards and error-behavior
// switches a collection's configuration selects. The in-memory map is the
// hot read path; the engine and pipeline exist to make it durable.
package collection

import (
	"cmp"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ssargent/slotkv/pkg/codec"
	"github.com/ssargent/slotkv/pkg/config"
	"github.com/ssargent/slotkv/pkg/engine"
	"github.com/ssargent/slotkv/pkg/logging"
	"github.com/ssargent/slotkv/pkg/metrics"
	"github.com/ssargent/slotkv/pkg/pipeline"
	"github.com/ssargent/slotkv/pkg/xcrypto"
)

// Pair is one (key, value) reported by Pairs.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Collection is a single named, typed key-value collection. The zero value
// is not usable; build one with Open.
type Collection[K cmp.Ordered, V any] struct {
	opts config.CollectionOptions
	name string
	path string

	eng     *engine.Engine[K, V]
	pipe    *pipeline.Pipeline[K, V]
	cipher  *xcrypto.Cipher
	logger  *slog.Logger
	log     *logging.Logger
	metrics *metrics.Collector

	mu     sync.RWMutex
	values map[K]V

	loaded bool
	closed bool
}

// New validates opts and allocates a Collection, without touching disk.
// Call Load to open (or create) its backing file and populate it.
func New[K cmp.Ordered, V any](opts config.CollectionOptions, name string, logger *slog.Logger) (*Collection[K, V], error) {
	if err := opts.Validate(name); err != nil {
		return nil, err
	}
	if opts.IsEncryptionEnabled && opts.EncryptionPassword == "" {
		return nil, ErrEncryptionConfig
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Collection[K, V]{
		opts:    opts,
		name:    name,
		logger:  logger,
		log:     logging.From(logger).WithCollection(name),
		metrics: opts.Metrics,
		values:  make(map[K]V),
	}, nil
}

// Load opens (creating if necessary) the collection's backing file under
// opts.BaseDirectory/opts.DatabaseName, reconciles it against any existing
// on-disk header, and loads its contents into memory. Calling Load twice
// on the same Collection value returns ErrAlreadyOpen.
func (c *Collection[K, V]) Load() error {
	if c.loaded {
		return ErrAlreadyOpen
	}

	opts := c.opts
	name := c.name

	if opts.IsMemoryOnlyEnabled {
		c.loaded = true
		return nil
	}

	c.path = opts.FileName(name)

	existingHeader, existed, err := engine.ReadHeader(c.path)
	if err != nil {
		return err
	}

	header := engine.Header{Version: engine.CurrentVersion, Serializer: opts.Serializer}
	if existed {
		header = existingHeader
	} else {
		if opts.IsEncryptionEnabled {
			header.Flags |= engine.FlagEncrypted
		}
		if opts.IsCompressionEnabled {
			header.Flags |= engine.FlagCompressed
		}
	}

	if header.Encrypted() {
		salt := header.Salt
		if !existed {
			generated, err := xcrypto.GenerateSalt()
			if err != nil {
				return err
			}
			salt = generated
			header.Salt = salt
		}

		cipher, err := xcrypto.Derive(opts.EncryptionPassword, salt, opts.EncryptionAlgorithm)
		if err != nil {
			return err
		}
		c.cipher = cipher

		if existed {
			if !cipher.VerifyChecksum(salt, header.Checksum) {
				c.log.Error("decryption checksum mismatch", "error", ErrDecryptionFailure)
				return ErrDecryptionFailure
			}
		} else {
			header.Checksum = cipher.Checksum(salt)
		}
	}

	cd := codec.New[K, V](codec.Options{
		Serializer: header.Serializer,
		Compress:   header.Compressed(),
		Cipher:     c.cipher,
	})

	eng, err := engine.Open[K, V](c.path, header, cd, engine.OpenOptions{
		BufferedWrites: opts.IsBufferedWritesEnabled,
		ReadOnly:       opts.IsReadOnlyEnabled,
		Logger:         c.logger,
		Metrics:        opts.Metrics,
		MetricsName:    name,
	})
	if err != nil {
		return err
	}
	c.eng = eng

	if err := eng.Load(opts.DeserializationFailureBehavior == config.Raise, func(k K, v V) {
		c.values[k] = v
	}); err != nil {
		eng.Close()
		return err
	}

	c.pipe = pipeline.New[K, V](eng, pipeline.Options{
		Mode:                   opts.BufferMode,
		MaxDegreeOfParallelism: opts.MaxDegreeOfParallelism,
		Logger:                 c.logger,
		Metrics:                opts.Metrics,
		CollectionName:         name,
	})

	c.loaded = true
	return nil
}

// Open builds a Collection with New and immediately calls Load, the usual
// entry point for a caller with no need to split construction from loading.
func Open[K cmp.Ordered, V any](opts config.CollectionOptions, name string, logger *slog.Logger) (*Collection[K, V], error) {
	c, err := New[K, V](opts, name, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection[K, V]) checkOpen() error {
	if c.closed {
		return ErrCollectionClosed
	}
	if !c.loaded {
		return ErrNotLoaded
	}
	return nil
}

func (c *Collection[K, V]) checkWritable() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.opts.IsReadOnlyEnabled {
		return ErrCollectionReadOnly
	}
	return nil
}

func (c *Collection[K, V]) persist(kind pipeline.Op, key K, value V) error {
	if c.opts.IsMemoryOnlyEnabled {
		return nil
	}
	return <-c.pipe.Submit(kind, key, value)
}

// observe records operation outcome and latency if a metrics collector is
// attached.
func (c *Collection[K, V]) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	c.metrics.ObserveOperation(c.name, op, status, time.Since(start))
}

// Add inserts key with value. On a duplicate key it follows
// AddDuplicateKeyBehavior: FailWithError returns ErrDuplicateKey, Upsert
// overwrites and reports true, ReturnFalse reports false with a nil error.
func (c *Collection[K, V]) Add(key K, value V) (ok bool, err error) {
	start := time.Now()
	defer func() { c.observe("add", start, err) }()

	if err := c.checkWritable(); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.values[key]
	if exists {
		c.mu.Unlock()
		switch c.opts.AddDuplicateKeyBehavior {
		case config.Upsert:
			return true, c.Update(key, value)
		case config.ReturnFalse:
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrDuplicateKey, key)
		}
	}
	c.values[key] = value
	c.mu.Unlock()

	if err := c.persist(pipeline.OpAdd, key, value); err != nil {
		c.mu.Lock()
		delete(c.values, key)
		c.mu.Unlock()
		c.log.LogMutation("add", key, err)
		return false, err
	}
	c.log.LogMutation("add", key, nil)
	return true, nil
}

// Update replaces the value stored under key. On a missing key it follows
// UpdateKeyNotFoundBehavior: FailWithError returns ErrKeyNotFound,
// ReturnFalse reports false with a nil error.
func (c *Collection[K, V]) Update(key K, value V) error {
	ok, err := c.tryUpdate(key, value)
	if err != nil {
		return err
	}
	if !ok && c.opts.UpdateKeyNotFoundBehavior == config.MissingFailWithError {
		return fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}
	return nil
}

func (c *Collection[K, V]) tryUpdate(key K, value V) (ok bool, err error) {
	start := time.Now()
	defer func() { c.observe("update", start, err) }()

	if err := c.checkWritable(); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.values[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	c.values[key] = value
	c.mu.Unlock()

	if err := c.persist(pipeline.OpUpdate, key, value); err != nil {
		c.log.LogMutation("update", key, err)
		return false, err
	}
	c.log.LogMutation("update", key, nil)
	return true, nil
}

// AddOrUpdate unconditionally stores value under key, succeeding whenever
// the collection is writable.
func (c *Collection[K, V]) AddOrUpdate(key K, value V) (err error) {
	start := time.Now()
	defer func() { c.observe("addOrUpdate", start, err) }()

	if err := c.checkWritable(); err != nil {
		return err
	}

	c.mu.Lock()
	_, existed := c.values[key]
	c.values[key] = value
	c.mu.Unlock()

	kind := pipeline.OpAdd
	if existed {
		kind = pipeline.OpUpdate
	}
	err = c.persist(kind, key, value)
	c.log.LogMutation("addOrUpdate", key, err)
	return err
}

// Remove deletes key, reporting the removed value. On a missing key it
// follows RemoveKeyNotFoundBehavior: FailWithError returns ErrKeyNotFound,
// ReturnFalse reports false with a nil error and the zero value.
func (c *Collection[K, V]) Remove(key K) (ok bool, _ V, err error) {
	start := time.Now()
	defer func() { c.observe("remove", start, err) }()

	var zero V
	if err := c.checkWritable(); err != nil {
		return false, zero, err
	}

	c.mu.Lock()
	value, exists := c.values[key]
	if !exists {
		c.mu.Unlock()
		if c.opts.RemoveKeyNotFoundBehavior == config.MissingFailWithError {
			return false, zero, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
		}
		return false, zero, nil
	}
	delete(c.values, key)
	c.mu.Unlock()

	if c.opts.IsMemoryOnlyEnabled {
		c.log.LogMutation("remove", key, nil)
		return true, value, nil
	}
	if err := <-c.pipe.Submit(pipeline.OpRemove, key, zero); err != nil {
		c.log.LogMutation("remove", key, err)
		return false, zero, err
	}
	c.log.LogMutation("remove", key, nil)
	return true, value, nil
}

// BulkAdd applies pairs under BulkAddDuplicateKeyBehavior: FailWithError/
// ReturnFalse abort before any change if any key already exists; Upsert
// writes every pair to the in-memory map, then calls Update for existing
// keys and a single bulk engine append for the rest. The Upsert path is not
// atomic: a failure part-way leaves the changes made before it in place.
func (c *Collection[K, V]) BulkAdd(pairs map[K]V) (bool, error) {
	if err := c.checkWritable(); err != nil {
		return false, err
	}

	c.mu.Lock()
	var duplicates []K
	for k := range pairs {
		if _, exists := c.values[k]; exists {
			duplicates = append(duplicates, k)
		}
	}

	if len(duplicates) > 0 && c.opts.BulkAddDuplicateKeyBehavior != config.Upsert {
		c.mu.Unlock()
		if c.opts.BulkAddDuplicateKeyBehavior == config.ReturnFalse {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrDuplicateKey, duplicates)
	}

	fresh := make([]engine.KV[K, V], 0, len(pairs))
	existing := make(map[K]V, len(duplicates))
	for k, v := range pairs {
		if _, isDup := c.values[k]; isDup {
			existing[k] = v
		} else {
			fresh = append(fresh, engine.KV[K, V]{Key: k, Value: v})
		}
		c.values[k] = v
	}
	c.mu.Unlock()

	for k, v := range existing {
		if err := c.Update(k, v); err != nil {
			return false, err
		}
	}

	if c.opts.IsMemoryOnlyEnabled || len(fresh) == 0 {
		return true, nil
	}
	if err := c.pipe.Flush(); err != nil {
		return false, err
	}
	if err := c.eng.BulkAdd(fresh); err != nil {
		return false, err
	}
	return true, nil
}

// BulkRemove removes every key present, skipping missing keys, and returns
// the number actually removed.
func (c *Collection[K, V]) BulkRemove(keys []K) int {
	removed := 0
	for _, k := range keys {
		ok, _, err := c.Remove(k)
		if ok && err == nil {
			removed++
		}
	}
	return removed
}

// TryGet returns the value stored under key and whether it was present.
func (c *Collection[K, V]) TryGet(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Contains reports whether key is currently live.
func (c *Collection[K, V]) Contains(key K) bool {
	_, ok := c.TryGet(key)
	return ok
}

// Values streams a snapshot of every live value over a channel.
func (c *Collection[K, V]) Values() <-chan V {
	ch := make(chan V, 64)
	go func() {
		defer close(ch)
		c.mu.RLock()
		snapshot := make([]V, 0, len(c.values))
		for _, v := range c.values {
			snapshot = append(snapshot, v)
		}
		c.mu.RUnlock()
		for _, v := range snapshot {
			ch <- v
		}
	}()
	return ch
}

// Pairs streams a snapshot of every live (key, value) pair over a channel.
func (c *Collection[K, V]) Pairs() <-chan Pair[K, V] {
	ch := make(chan Pair[K, V], 64)
	go func() {
		defer close(ch)
		c.mu.RLock()
		snapshot := make([]Pair[K, V], 0, len(c.values))
		for k, v := range c.values {
			snapshot = append(snapshot, Pair[K, V]{Key: k, Value: v})
		}
		c.mu.RUnlock()
		for _, p := range snapshot {
			ch <- p
		}
	}()
	return ch
}

// Count returns the number of live keys.
func (c *Collection[K, V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// SizeBytes returns the backing file's current size, or 0 for a
// memory-only collection.
func (c *Collection[K, V]) SizeBytes() uint32 {
	if c.eng == nil {
		return 0
	}
	return c.eng.SizeBytes()
}

// Flush waits for every outstanding pipeline submission to reach the file,
// then syncs it.
func (c *Collection[K, V]) Flush() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.opts.IsMemoryOnlyEnabled {
		return nil
	}
	start := time.Now()
	err := c.pipe.Flush()
	c.log.LogFlush(err)
	if c.metrics != nil {
		c.metrics.ObserveFlush(c.name, time.Since(start))
	}
	return err
}

// Clear removes every key, truncating the backing file back to its header.
func (c *Collection[K, V]) Clear() error {
	if err := c.checkWritable(); err != nil {
		return err
	}

	c.mu.Lock()
	c.values = make(map[K]V)
	c.mu.Unlock()

	if c.opts.IsMemoryOnlyEnabled {
		return nil
	}
	return c.pipe.Clear()
}

// Defragment is a no-op: slot reuse already keeps the file from growing
// past its live-data high-water mark, and no layout change is implemented.
func (c *Collection[K, V]) Defragment() error {
	return c.checkOpen()
}

// Close stops the write pipeline and releases the file handle. It is
// idempotent.
func (c *Collection[K, V]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.opts.IsMemoryOnlyEnabled {
		return nil
	}
	if err := c.pipe.Close(); err != nil {
		return err
	}
	return c.eng.Close()
}

// Delete closes the collection and removes its backing file from disk.
func (c *Collection[K, V]) Delete() error {
	path := c.path
	if err := c.Close(); err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	return engine.DeleteFile(path)
}

// Package pipeline implements the three write-pipeline modes a collection
// can run its mutations through: a synchronous passthrough, a single
// ordered background worker, and a bounded-parallelism transform stage
// feeding an order-restoring sequencer ahead of a single file-system
// worker. Submission order is always the order operations reach the
// file, no matter how much transformation work ran concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/semaphore"

	"github.com/ssargent/slotkv/pkg/metrics"
)

// Mode selects which of the three pipeline strategies a collection uses.
type Mode uint8

const (
	// Disabled applies every operation synchronously and returns only
	// once the engine has returned.
	Disabled Mode = iota
	// Buffered places operations on a single ordered queue drained by one
	// background worker.
	Buffered
	// ParallelBuffered runs a bounded pool of transform workers ahead of
	// an order-restoring sequencer and a single file-system worker.
	ParallelBuffered
)

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "Disabled"
	case Buffered:
		return "Buffered"
	case ParallelBuffered:
		return "ParallelBuffered"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Op identifies which engine operation a submission represents.
type Op uint8

const (
	OpAdd Op = iota
	OpUpdate
	OpRemove
	// opBarrier carries no key or value; it exists only so Flush can wait
	// for every submission ahead of it to reach the file.
	opBarrier
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "Add"
	case OpUpdate:
		return "Update"
	case OpRemove:
		return "Remove"
	case opBarrier:
		return "Barrier"
	default:
		return fmt.Sprintf("Op(%d)", o)
	}
}

// Applier is the subset of the Record Engine the pipeline drives. It is
// satisfied structurally by *engine.Engine[K, V] without either package
// importing the other.
type Applier[K any, V any] interface {
	Add(K, V) error
	Update(K, V) error
	Remove(K) (bool, error)
	Encode(K, V) ([]byte, error)
	AddEncoded(K, []byte) error
	UpdateEncoded(K, []byte) error
	Flush() error
	Clear() error
}

type job[K any, V any] struct {
	kind    Op
	key     K
	value   V
	seq     uint64
	payload []byte
	encErr  error
	result  chan error
	corr    ksuid.KSUID
}

// Pipeline runs submissions through whichever Mode it was built with.
type Pipeline[K any, V any] struct {
	mode    Mode
	applier Applier[K, V]
	logger  *slog.Logger

	metrics        *metrics.Collector
	collectionName string

	closed atomic.Bool

	// Buffered mode.
	queue chan *job[K, V]
	wg    sync.WaitGroup

	// ParallelBuffered mode.
	sem      *semaphore.Weighted
	nextSeq  atomic.Uint64
	seqMu    sync.Mutex
	pending  map[uint64]*job[K, V]
	expected uint64
	fsQueue  chan *job[K, V]
	fsWg     sync.WaitGroup
}

// Options configures a Pipeline.
type Options struct {
	Mode                   Mode
	MaxDegreeOfParallelism int64 // ParallelBuffered only; default 8
	QueueDepth             int   // Buffered/ParallelBuffered queue capacity; default 4096
	Logger                 *slog.Logger
	Metrics                *metrics.Collector
	CollectionName         string
}

// New builds a Pipeline over applier per opts.
func New[K any, V any](applier Applier[K, V], opts Options) *Pipeline[K, V] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = 4096
	}

	p := &Pipeline[K, V]{
		mode:           opts.Mode,
		applier:        applier,
		logger:         logger,
		metrics:        opts.Metrics,
		collectionName: opts.CollectionName,
	}

	switch opts.Mode {
	case Buffered:
		p.queue = make(chan *job[K, V], depth)
		p.wg.Add(1)
		go p.bufferedWorker()
	case ParallelBuffered:
		maxPar := opts.MaxDegreeOfParallelism
		if maxPar <= 0 {
			maxPar = 8
		}
		p.sem = semaphore.NewWeighted(maxPar)
		p.pending = make(map[uint64]*job[K, V])
		p.expected = 1
		p.fsQueue = make(chan *job[K, V], depth)
		p.fsWg.Add(1)
		go p.fsWorker()
	}

	return p
}

// Submit enqueues (or, in Disabled mode, immediately runs) one operation.
// It returns a buffered channel that receives the operation's result once
// applied; a caller indifferent to completion may discard it.
func (p *Pipeline[K, V]) Submit(kind Op, key K, value V) <-chan error {
	result := make(chan error, 1)
	j := &job[K, V]{kind: kind, key: key, value: value, result: result, corr: ksuid.New()}

	switch p.mode {
	case Disabled:
		result <- p.applyDirect(j)
	case Buffered:
		p.queue <- j
		p.reportDepth()
	case ParallelBuffered:
		p.submitParallel(j)
	}
	return result
}

// reportDepth publishes the current queue depth for whichever channel backs
// this pipeline's mode, if a metrics collector is attached.
func (p *Pipeline[K, V]) reportDepth() {
	if p.metrics == nil {
		return
	}
	switch p.mode {
	case Buffered:
		p.metrics.SetPipelineDepth(p.collectionName, len(p.queue))
	case ParallelBuffered:
		p.metrics.SetPipelineDepth(p.collectionName, len(p.fsQueue))
	}
}

func (p *Pipeline[K, V]) applyDirect(j *job[K, V]) error {
	switch j.kind {
	case OpAdd:
		return p.applier.Add(j.key, j.value)
	case OpUpdate:
		return p.applier.Update(j.key, j.value)
	case OpRemove:
		_, err := p.applier.Remove(j.key)
		return err
	default:
		return nil
	}
}

func (p *Pipeline[K, V]) bufferedWorker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.reportDepth()
		err := p.applyDirect(j)
		if err != nil {
			p.logger.Error("pipeline: buffered apply failed", "corr_id", j.corr.String(), "op", j.kind, "error", err)
		} else {
			p.logger.Debug("pipeline: buffered apply completed", "corr_id", j.corr.String(), "op", j.kind)
		}
		j.result <- err
	}
}

// submitParallel assigns a monotonically increasing sequence id, then
// spawns a bounded transform task for Add/Update (Remove carries no
// payload to compute). The task deposits itself into the sparse pending
// buffer; whichever task happens to complete the currently expected
// sequence id drains the contiguous run into the file-system queue, which
// is the sequencer described in the design collapsed into the deposit
// step rather than run as its own polling goroutine.
func (p *Pipeline[K, V]) submitParallel(j *job[K, V]) {
	j.seq = p.nextSeq.Add(1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if j.kind == OpAdd || j.kind == OpUpdate {
			if err := p.sem.Acquire(context.Background(), 1); err != nil {
				j.encErr = err
				p.logger.Warn("pipeline: encode cancelled", "corr_id", j.corr.String(), "error", err)
			} else {
				payload, err := p.applier.Encode(j.key, j.value)
				p.sem.Release(1)
				if err != nil {
					j.encErr = err
				} else {
					j.payload = payload
				}
			}
		}

		p.depositSequenced(j)
	}()
}

func (p *Pipeline[K, V]) depositSequenced(j *job[K, V]) {
	p.seqMu.Lock()
	p.pending[j.seq] = j

	var ready []*job[K, V]
	for {
		next, ok := p.pending[p.expected]
		if !ok {
			break
		}
		delete(p.pending, p.expected)
		ready = append(ready, next)
		p.expected++
	}
	p.seqMu.Unlock()

	for _, r := range ready {
		p.fsQueue <- r
	}
	p.reportDepth()
}

func (p *Pipeline[K, V]) fsWorker() {
	defer p.fsWg.Done()
	for j := range p.fsQueue {
		p.reportDepth()
		var err error
		switch {
		case j.encErr != nil:
			err = j.encErr
		case j.kind == OpAdd:
			err = p.applier.AddEncoded(j.key, j.payload)
		case j.kind == OpUpdate:
			err = p.applier.UpdateEncoded(j.key, j.payload)
		case j.kind == OpRemove:
			_, err = p.applier.Remove(j.key)
		}
		if err != nil {
			p.logger.Error("pipeline: parallel apply failed", "corr_id", j.corr.String(), "op", j.kind, "error", err)
		} else {
			p.logger.Debug("pipeline: parallel apply completed", "corr_id", j.corr.String(), "op", j.kind)
		}
		if j.result != nil {
			j.result <- err
		}
	}
}

// Flush waits for every submission already accepted to reach the file, in
// stage order, then syncs the underlying file.
func (p *Pipeline[K, V]) Flush() error {
	switch p.mode {
	case Disabled:
		return p.applier.Flush()
	case Buffered:
		var zeroK K
		var zeroV V
		if err := <-p.Submit(opBarrier, zeroK, zeroV); err != nil {
			return err
		}
		return p.applier.Flush()
	case ParallelBuffered:
		var zeroK K
		var zeroV V
		if err := <-p.Submit(opBarrier, zeroK, zeroV); err != nil {
			return err
		}
		return p.applier.Flush()
	default:
		return nil
	}
}

// Clear drains every outstanding submission, then truncates the
// collection through the applier.
func (p *Pipeline[K, V]) Clear() error {
	if p.mode != Disabled {
		var zeroK K
		var zeroV V
		if err := <-p.Submit(opBarrier, zeroK, zeroV); err != nil {
			return err
		}
	}
	return p.applier.Clear()
}

// Close drains and stops any background workers. It is idempotent.
func (p *Pipeline[K, V]) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Debug("pipeline: closing", "mode", p.mode)
	switch p.mode {
	case Buffered:
		close(p.queue)
		p.wg.Wait()
	case ParallelBuffered:
		p.wg.Wait()
		close(p.fsQueue)
		p.fsWg.Wait()
	}
	return nil
}

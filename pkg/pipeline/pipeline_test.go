package pipeline

import (
	"fmt"
	"sync"
	"testing"
)

// fakeApplier is an in-memory stand-in for *engine.Engine[K, V], recording
// every applied operation in submission order so tests can assert on
// ordering guarantees without touching a real file.
type fakeApplier struct {
	mu      sync.Mutex
	applied []string
	values  map[int]string
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{values: make(map[int]string)}
}

func (f *fakeApplier) Add(key int, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.applied = append(f.applied, fmt.Sprintf("add:%d", key))
	return nil
}

func (f *fakeApplier) Update(key int, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.applied = append(f.applied, fmt.Sprintf("update:%d", key))
	return nil
}

func (f *fakeApplier) Remove(key int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	delete(f.values, key)
	f.applied = append(f.applied, fmt.Sprintf("remove:%d", key))
	return ok, nil
}

func (f *fakeApplier) Encode(key int, value string) ([]byte, error) {
	return []byte(value), nil
}

func (f *fakeApplier) AddEncoded(key int, payload []byte) error {
	return f.Add(key, string(payload))
}

func (f *fakeApplier) UpdateEncoded(key int, payload []byte) error {
	return f.Update(key, string(payload))
}

func (f *fakeApplier) Flush() error { return nil }

func (f *fakeApplier) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[int]string)
	f.applied = nil
	return nil
}

func TestPipelineDisabledAppliesSynchronously(t *testing.T) {
	applier := newFakeApplier()
	p := New[int, string](applier, Options{Mode: Disabled})

	if err := <-p.Submit(OpAdd, 1, "one"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if applier.values[1] != "one" {
		t.Fatalf("value = %q, want one", applier.values[1])
	}
}

func TestPipelineBufferedAppliesInOrder(t *testing.T) {
	applier := newFakeApplier()
	p := New[int, string](applier, Options{Mode: Buffered})
	defer p.Close()

	var results []<-chan error
	for i := 1; i <= 5; i++ {
		results = append(results, p.Submit(OpAdd, i, fmt.Sprintf("v%d", i)))
	}
	for _, r := range results {
		if err := <-r; err != nil {
			t.Fatalf("Submit result: %v", err)
		}
	}

	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	applier.mu.Lock()
	defer applier.mu.Unlock()
	for i, op := range applier.applied {
		want := fmt.Sprintf("add:%d", i+1)
		if op != want {
			t.Fatalf("applied[%d] = %q, want %q (FIFO order)", i, op, want)
		}
	}
}

func TestPipelineParallelBufferedPreservesOrderPerSubmitter(t *testing.T) {
	applier := newFakeApplier()
	p := New[int, string](applier, Options{Mode: ParallelBuffered, MaxDegreeOfParallelism: 4})
	defer p.Close()

	const n = 200
	var results []<-chan error
	for i := 1; i <= n; i++ {
		results = append(results, p.Submit(OpAdd, i, fmt.Sprintf("v%d", i)))
	}
	for _, r := range results {
		if err := <-r; err != nil {
			t.Fatalf("Submit result: %v", err)
		}
	}

	applier.mu.Lock()
	defer applier.mu.Unlock()
	if len(applier.applied) != n {
		t.Fatalf("applied %d operations, want %d", len(applier.applied), n)
	}
	for i, op := range applier.applied {
		want := fmt.Sprintf("add:%d", i+1)
		if op != want {
			t.Fatalf("applied[%d] = %q, want %q (submission order preserved despite parallel transform)", i, op, want)
		}
	}
}

func TestPipelineFlushDrainsBeforeReturning(t *testing.T) {
	applier := newFakeApplier()
	p := New[int, string](applier, Options{Mode: ParallelBuffered, MaxDegreeOfParallelism: 8})
	defer p.Close()

	for i := 1; i <= 50; i++ {
		p.Submit(OpAdd, i, fmt.Sprintf("v%d", i))
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	applier.mu.Lock()
	defer applier.mu.Unlock()
	if len(applier.values) != 50 {
		t.Fatalf("values has %d entries after Flush, want 50", len(applier.values))
	}
}

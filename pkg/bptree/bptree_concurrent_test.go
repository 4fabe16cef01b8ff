package bptree_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ssargent/slotkv/pkg/bptree"
)

func TestBPlusTree_ConcurrentInsertSearch(t *testing.T) {
	tree := bptree.New[string, int](3)
	var wg sync.WaitGroup
	numGoroutines := 10
	keysPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < keysPerGoroutine; j++ {
				key := fmt.Sprintf("key%d_%d", id, j)
				tree.Insert(key, id*1000+j)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < keysPerGoroutine; j++ {
				key := fmt.Sprintf("key%d_%d", id, j)
				if _, found := tree.Search(key); !found {
					t.Errorf("key %s not found", key)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := tree.Len(); got != numGoroutines*keysPerGoroutine {
		t.Errorf("Len() = %d, want %d", got, numGoroutines*keysPerGoroutine)
	}
}

func TestBPlusTree_ConcurrentInsertDelete(t *testing.T) {
	tree := bptree.New[string, int](3)
	var wg sync.WaitGroup
	numGoroutines := 10
	keysPerGoroutine := 5

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < keysPerGoroutine; j++ {
				key := fmt.Sprintf("key%d_%d", id, j)
				tree.Insert(key, id*1000+j)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < keysPerGoroutine; j++ {
				key := fmt.Sprintf("key%d_%d", id, j)
				if !tree.Delete(key) {
					t.Errorf("failed to delete key %s", key)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < keysPerGoroutine; j++ {
			key := fmt.Sprintf("key%d_%d", i, j)
			if _, found := tree.Search(key); found {
				t.Errorf("key %s should be deleted", key)
			}
		}
	}
}

func TestBPlusTree_ConcurrentReadWrite(t *testing.T) {
	tree := bptree.New[string, int](3)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		tree.Insert(fmt.Sprintf("pre%d", i), i)
	}

	numWriters := 2
	numReaders := 2
	operations := 5

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				tree.Insert(fmt.Sprintf("write%d_%d", id, j), id*1000+j)
			}
		}(i)
	}

	foundCount := int64(0)
	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			localFound := 0
			for j := 0; j < operations*2; j++ {
				if _, found := tree.Search(fmt.Sprintf("pre%d", j%10)); found {
					localFound++
				}
				if _, found := tree.Search(fmt.Sprintf("write%d_%d", id, j%operations)); found {
					localFound++
				}
			}
			atomic.AddInt64(&foundCount, int64(localFound))
		}(i)
	}

	wg.Wait()

	if foundCount == 0 {
		t.Error("no keys were found during concurrent read/write operations")
	}

	for i := 0; i < numWriters; i++ {
		for j := 0; j < operations; j++ {
			key := fmt.Sprintf("write%d_%d", i, j)
			if _, found := tree.Search(key); !found {
				t.Errorf("key %s not found after concurrent operations", key)
			}
		}
	}
}

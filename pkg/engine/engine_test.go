package engine

import (
	"path/filepath"
	"testing"

	"github.com/ssargent/slotkv/pkg/codec"
)

func newTestEngine(t *testing.T) *Engine[string, string] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "widgets.slotkv")
	cd := codec.New[string, string](codec.Options{Serializer: codec.JSONUTF8})
	header := Header{Version: CurrentVersion, Serializer: codec.JSONUTF8}
	e, err := Open[string, string](path, header, cd, OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineAddGet(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Add("a", "alpha"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	value, ok, err := e.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || value != "alpha" {
		t.Fatalf("Get returned (%q, %v), want (alpha, true)", value, ok)
	}

	if e.SizeBytes() <= HeaderSize {
		t.Fatalf("SizeBytes() = %d, want > %d", e.SizeBytes(), HeaderSize)
	}
}

func TestEngineRemoveReclaimsSlot(t *testing.T) {
	e := newTestEngine(t)

	for _, k := range []string{"a", "b", "c"} {
		if err := e.Add(k, "same-length-value"); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}
	peak := e.SizeBytes()

	for _, k := range []string{"a", "b", "c"} {
		ok, err := e.Remove(k)
		if err != nil {
			t.Fatalf("Remove(%s): %v", k, err)
		}
		if !ok {
			t.Fatalf("Remove(%s) = false, want true", k)
		}
	}
	if e.AllocatedCount() != 0 {
		t.Fatalf("AllocatedCount() = %d, want 0", e.AllocatedCount())
	}
	if e.FreeCount() != 3 {
		t.Fatalf("FreeCount() = %d, want 3", e.FreeCount())
	}

	for _, k := range []string{"d", "e", "f"} {
		if err := e.Add(k, "same-length-value"); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}

	if e.SizeBytes() != peak {
		t.Fatalf("SizeBytes() = %d after reuse, want %d (no growth beyond peak)", e.SizeBytes(), peak)
	}
}

func TestEngineUpdate(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Add("a", "alpha"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e.Update("a", "ALPHA"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	value, ok, err := e.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || value != "ALPHA" {
		t.Fatalf("Get returned (%q, %v), want (ALPHA, true)", value, ok)
	}
}

func TestEngineLoadScanAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.slotkv")
	cd := codec.New[string, string](codec.Options{Serializer: codec.JSONUTF8})
	header := Header{Version: CurrentVersion, Serializer: codec.JSONUTF8}

	e1, err := Open[string, string](path, header, cd, OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e1.Add("a", "alpha"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e1.Add("b", "beta"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := e1.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	existingHeader, existed, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !existed {
		t.Fatal("ReadHeader reported file did not exist")
	}
	if existingHeader.Serializer != codec.JSONUTF8 {
		t.Fatalf("header serializer = %v, want JsonUtf8", existingHeader.Serializer)
	}

	e2, err := Open[string, string](path, existingHeader, cd, OpenOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	got := map[string]string{}
	if err := e2.Load(true, func(k, v string) { got[k] = v }); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got) != 1 || got["b"] != "beta" {
		t.Fatalf("Load produced %v, want map[b:beta]", got)
	}
	if e2.FreeCount() != 1 {
		t.Fatalf("FreeCount() = %d, want 1 (the removed 'a' slot)", e2.FreeCount())
	}
}

func TestEngineClear(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Add("a", "alpha"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if e.SizeBytes() != HeaderSize {
		t.Fatalf("SizeBytes() = %d after Clear, want %d", e.SizeBytes(), HeaderSize)
	}
	if e.AllocatedCount() != 0 || e.FreeCount() != 0 {
		t.Fatalf("Clear left allocated=%d free=%d, want 0, 0", e.AllocatedCount(), e.FreeCount())
	}
}

func TestEngineReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.slotkv")
	cd := codec.New[string, string](codec.Options{Serializer: codec.JSONUTF8})
	header := Header{Version: CurrentVersion, Serializer: codec.JSONUTF8}

	e1, err := Open[string, string](path, header, cd, OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e1.Add("a", "alpha"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	roHeader, _, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	e2, err := Open[string, string](path, roHeader, cd, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("reopen read-only: %v", err)
	}
	defer e2.Close()

	if err := e2.Add("b", "beta"); err == nil {
		t.Fatal("Add on a read-only engine should fail")
	}
}

package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithIndexRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cat := Open(dir, 1024, 16)

	table, err := cat.Load("orders", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rid, err := table.Heap.Append(7, []byte("seven"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := table.Index.Insert(7, rid); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	cur, err := table.Index.Locate(7)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	key, gotRid, err := table.Index.ReadForward(&cur)
	if err != nil {
		t.Fatalf("ReadForward: %v", err)
	}
	if key != 7 || gotRid != rid {
		t.Fatalf("got (%d,%+v), want (7,%+v)", key, gotRid, rid)
	}

	if err := cat.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "orders.heap")); err != nil {
		t.Errorf("orders.heap not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orders.idx")); err != nil {
		t.Errorf("orders.idx not created: %v", err)
	}
}

func TestLoadWithoutIndexLeavesIndexNil(t *testing.T) {
	dir := t.TempDir()
	cat := Open(dir, 1024, 0)
	defer cat.Close()

	table, err := cat.Load("events", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Index != nil {
		t.Fatal("Index should be nil when loaded WITHOUT INDEX")
	}
	if _, err := table.Heap.Append(1, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestLoadIsIdempotentPerTable(t *testing.T) {
	dir := t.TempDir()
	cat := Open(dir, 1024, 0)
	defer cat.Close()

	t1, err := cat.Load("t", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t2, err := cat.Load("t", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if t1 != t2 {
		t.Fatal("second Load of the same table returned a different *Table")
	}
}

package heapstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/miniql/bptindex/internal/btreeidx"
	"github.com/miniql/bptindex/internal/pagestore"
)

func openPages(t *testing.T, pageSize int) *pagestore.Store {
	t.Helper()
	dir := t.TempDir()
	p, err := pagestore.Open(filepath.Join(dir, "t.heap"), pageSize, 0, pagestore.ModeReadWrite)
	if err != nil {
		t.Fatalf("pagestore.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestAppendAndRead(t *testing.T) {
	pages := openPages(t, 256)
	store := Open(pages)

	rid1, err := store.Append(1, []byte("alpha"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	rid2, err := store.Append(2, []byte("beta"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rid1 == rid2 {
		t.Fatal("two appends returned the same RecordID")
	}

	k, v, err := store.Read(rid1)
	if err != nil {
		t.Fatalf("Read rid1: %v", err)
	}
	if k != 1 || !bytes.Equal(v, []byte("alpha")) {
		t.Fatalf("rid1 = (%d,%q), want (1,alpha)", k, v)
	}

	k, v, err = store.Read(rid2)
	if err != nil {
		t.Fatalf("Read rid2: %v", err)
	}
	if k != 2 || !bytes.Equal(v, []byte("beta")) {
		t.Fatalf("rid2 = (%d,%q), want (2,beta)", k, v)
	}
}

func TestAppendSpillsAcrossPages(t *testing.T) {
	pages := openPages(t, 128)
	store := Open(pages)

	payload := []byte("value-payload-bytes")
	for i := int32(0); i < 20; i++ {
		if _, err := store.Append(i, payload); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if pages.EndPid() < 2 {
		t.Fatalf("EndPid = %d, want at least 2 (records should have spilled across pages)", pages.EndPid())
	}

	count := 0
	err := store.Scan(func(_ btreeidx.RecordID, key int32, value []byte) bool {
		if !bytes.Equal(value, payload) {
			t.Errorf("key %d: value = %q, want %q", key, value, payload)
		}
		count++
		return true
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if count != 20 {
		t.Fatalf("Scan visited %d records, want 20", count)
	}
}

func TestScanVisitsEveryRecordInOrder(t *testing.T) {
	pages := openPages(t, 128)
	store := Open(pages)

	const n = 15
	for i := int32(0); i < n; i++ {
		if _, err := store.Append(i, []byte{byte(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var keys []int32
	err := store.Scan(func(_ btreeidx.RecordID, key int32, value []byte) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != n {
		t.Fatalf("Scan visited %d records, want %d", len(keys), n)
	}
	for i, k := range keys {
		if k != int32(i) {
			t.Errorf("keys[%d] = %d, want %d (append order should match scan order)", i, k, i)
		}
	}
}

func TestScanStopsEarly(t *testing.T) {
	pages := openPages(t, 128)
	store := Open(pages)
	for i := int32(0); i < 10; i++ {
		store.Append(i, []byte{byte(i)})
	}
	count := 0
	err := store.Scan(func(_ btreeidx.RecordID, key int32, value []byte) bool {
		count++
		return key < 3
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if count != 4 {
		t.Fatalf("Scan visited %d records before stopping, want 4", count)
	}
}

func TestEndRidAdvancesWithAppends(t *testing.T) {
	pages := openPages(t, 256)
	store := Open(pages)
	if store.EndRid() != (btreeidx.RecordID{Pid: 0, Sid: 0}) {
		t.Fatalf("EndRid on empty store = %+v, want {0 0}", store.EndRid())
	}
	store.Append(1, []byte("a"))
	store.Append(2, []byte("b"))
	if store.EndRid() != (btreeidx.RecordID{Pid: 0, Sid: 2}) {
		t.Fatalf("EndRid = %+v, want {0 2}", store.EndRid())
	}
}

package btreeidx

import "testing"

const testPageSize = 1024

func newLeafBuf() []byte {
	return make([]byte, testPageSize)
}

func TestLeafInsertSortedOrder(t *testing.T) {
	leaf := InitLeafNode(newLeafBuf())
	keys := []int32{10, 7, 20, 1, 15}
	for _, k := range keys {
		if err := leaf.Insert(k, RecordID{Pid: k, Sid: 0}); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	if leaf.KeyCount() != len(keys) {
		t.Fatalf("keyCount = %d, want %d", leaf.KeyCount(), len(keys))
	}
	want := []int32{1, 7, 10, 15, 20}
	for i, w := range want {
		k, rid, err := leaf.ReadEntry(i)
		if err != nil {
			t.Fatalf("readEntry(%d): %v", i, err)
		}
		if k != w {
			t.Errorf("entry %d key = %d, want %d", i, k, w)
		}
		if rid.Pid != w {
			t.Errorf("entry %d rid.Pid = %d, want %d", i, rid.Pid, w)
		}
	}
}

func TestLeafInsertFullFails(t *testing.T) {
	leaf := InitLeafNode(newLeafBuf())
	L := LeafFanout(testPageSize)
	for i := 0; i < L; i++ {
		if err := leaf.Insert(int32(i), RecordID{Pid: int32(i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	err := leaf.Insert(int32(L), RecordID{Pid: int32(L)})
	if kind, ok := KindOf(err); !ok || kind != KindNodeFull {
		t.Fatalf("err = %v, want KindNodeFull", err)
	}
}

func TestLeafLocate(t *testing.T) {
	leaf := InitLeafNode(newLeafBuf())
	for _, k := range []int32{2, 4, 6, 8} {
		leaf.Insert(k, RecordID{Pid: k})
	}
	cases := []struct {
		search      int32
		wantEid     int
		wantFound   bool
	}{
		{2, 0, true},
		{5, 2, false},
		{8, 3, true},
		{9, 4, false},
		{0, 0, false},
	}
	for _, c := range cases {
		eid, found := leaf.Locate(c.search)
		if eid != c.wantEid || found != c.wantFound {
			t.Errorf("Locate(%d) = (%d,%v), want (%d,%v)", c.search, eid, found, c.wantEid, c.wantFound)
		}
	}
}

func fillLeaf(t *testing.T, leaf *LeafNode, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		k := int32(i * 2)
		if err := leaf.Insert(k, RecordID{Pid: k, Sid: k + 1}); err != nil {
			t.Fatalf("fill insert %d: %v", i, err)
		}
	}
}

func TestLeafInsertAndSplitLeftHeavy(t *testing.T) {
	leaf := InitLeafNode(newLeafBuf())
	L := LeafFanout(testPageSize)
	fillLeaf(t, leaf, L) // keys 0,2,4,...,2(L-1)

	sibling := InitLeafNode(newLeafBuf())
	// Insert a key landing in the left half (i <= L/2).
	newKey := int32(1) // sorts right after key 0, well within left half
	sepKey, err := leaf.InsertAndSplit(newKey, RecordID{Pid: newKey}, sibling)
	if err != nil {
		t.Fatalf("InsertAndSplit: %v", err)
	}

	wantPivot := L / 2
	if leaf.KeyCount() != wantPivot+1 {
		t.Errorf("left keyCount = %d, want %d", leaf.KeyCount(), wantPivot+1)
	}
	if sibling.KeyCount() != L-wantPivot {
		t.Errorf("right keyCount = %d, want %d", sibling.KeyCount(), L-wantPivot)
	}
	firstSiblingKey, _, _ := sibling.ReadEntry(0)
	if firstSiblingKey != sepKey {
		t.Errorf("sibling's first key = %d, separator = %d, want equal", firstSiblingKey, sepKey)
	}
	lastLeft, _, _ := leaf.ReadEntry(leaf.KeyCount() - 1)
	if lastLeft >= firstSiblingKey {
		t.Errorf("left max %d >= right min %d, split not ordered", lastLeft, firstSiblingKey)
	}
}

func TestLeafInsertAndSplitRightHeavy(t *testing.T) {
	leaf := InitLeafNode(newLeafBuf())
	L := LeafFanout(testPageSize)
	fillLeaf(t, leaf, L)

	sibling := InitLeafNode(newLeafBuf())
	newKey := int32(2*(L-1) + 1) // sorts after every existing key
	_, err := leaf.InsertAndSplit(newKey, RecordID{Pid: newKey}, sibling)
	if err != nil {
		t.Fatalf("InsertAndSplit: %v", err)
	}
	wantPivot := L/2 + 1
	if leaf.KeyCount() != wantPivot {
		t.Errorf("left keyCount = %d, want %d", leaf.KeyCount(), wantPivot)
	}
	if sibling.KeyCount() != L-wantPivot+1 {
		t.Errorf("right keyCount = %d, want %d", sibling.KeyCount(), L-wantPivot+1)
	}
}

func TestLeafNextPidChain(t *testing.T) {
	leaf := InitLeafNode(newLeafBuf())
	if leaf.NextPid() != NoNextLeaf {
		t.Fatalf("fresh leaf NextPid = %d, want NoNextLeaf", leaf.NextPid())
	}
	if err := leaf.SetNextPid(42); err != nil {
		t.Fatalf("SetNextPid: %v", err)
	}
	if leaf.NextPid() != 42 {
		t.Fatalf("NextPid = %d, want 42", leaf.NextPid())
	}
	if err := leaf.SetNextPid(-1); err == nil {
		t.Fatal("SetNextPid(-1) succeeded, want KindInvalidPid")
	} else if kind, _ := KindOf(err); kind != KindInvalidPid {
		t.Fatalf("err kind = %v, want KindInvalidPid", kind)
	}
}

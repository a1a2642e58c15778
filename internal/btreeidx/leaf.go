package btreeidx

import "encoding/binary"

// leafEntrySize is sizeof(key:i32, rid.pid:i32, rid.sid:i32).
const leafEntrySize = 4 + recordIDSize

// leafKeyCountOff, leafEntriesOff are the fixed header offsets of a leaf
// page: a 4-byte keyCount, then keyCount sorted (key, rid) entries, then a
// trailing 4-byte nextPid in the page's last 4 bytes.
const (
	leafKeyCountOff = 0
	leafEntriesOff  = 4
)

// LeafFanout returns L, the maximum number of entries a leaf page of the
// given size can hold: floor((P - 4 - 4) / sizeof(key+rid)).
func LeafFanout(pageSize int) int {
	return (pageSize - 4 - 4) / leafEntrySize
}

// LeafNode is an in-memory view over one leaf page's byte buffer. It owns
// no I/O; callers read a page into buf, mutate through this view, and
// write buf back.
type LeafNode struct {
	buf []byte
	cap int // L, computed from len(buf)
}

// WrapLeafNode views an existing, already-initialized leaf page buffer.
func WrapLeafNode(buf []byte) *LeafNode {
	return &LeafNode{buf: buf, cap: LeafFanout(len(buf))}
}

// InitLeafNode zero-fills buf and writes an empty leaf header (keyCount=0,
// nextPid=NoNextLeaf).
func InitLeafNode(buf []byte) *LeafNode {
	for i := range buf {
		buf[i] = 0
	}
	n := &LeafNode{buf: buf, cap: LeafFanout(len(buf))}
	n.setKeyCount(0)
	n.SetNextPid(NoNextLeaf)
	return n
}

func (n *LeafNode) Bytes() []byte { return n.buf }

func (n *LeafNode) KeyCount() int {
	return int(binary.LittleEndian.Uint32(n.buf[leafKeyCountOff:]))
}

func (n *LeafNode) setKeyCount(c int) {
	binary.LittleEndian.PutUint32(n.buf[leafKeyCountOff:], uint32(c))
}

func (n *LeafNode) entryOff(eid int) int {
	return leafEntriesOff + eid*leafEntrySize
}

func (n *LeafNode) keyAt(eid int) int32 {
	off := n.entryOff(eid)
	return int32(binary.LittleEndian.Uint32(n.buf[off:]))
}

func (n *LeafNode) ridAt(eid int) RecordID {
	off := n.entryOff(eid) + 4
	return getRecordID(n.buf[off:])
}

func (n *LeafNode) writeEntry(eid int, key int32, rid RecordID) {
	off := n.entryOff(eid)
	binary.LittleEndian.PutUint32(n.buf[off:], uint32(key))
	putRecordID(n.buf[off+4:], rid)
}

// Locate returns the smallest eid such that entries[eid].key == searchKey
// (found=true), or the smallest eid such that entries[eid].key > searchKey
// (found=false), or KeyCount() if searchKey exceeds every key.
func (n *LeafNode) Locate(searchKey int32) (eid int, found bool) {
	kc := n.KeyCount()
	lo, hi := 0, kc
	for lo < hi {
		mid := (lo + hi) / 2
		if n.keyAt(mid) < searchKey {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < kc && n.keyAt(lo) == searchKey {
		return lo, true
	}
	return lo, false
}

// ReadEntry returns the key and record id at eid, or KindInvalidCursor if
// eid is out of [0, KeyCount()).
func (n *LeafNode) ReadEntry(eid int) (int32, RecordID, error) {
	if eid < 0 || eid >= n.KeyCount() {
		return 0, RecordID{}, newErr(KindInvalidCursor, "leaf entry index out of range")
	}
	return n.keyAt(eid), n.ridAt(eid), nil
}

// Insert places (key, rid) at its sorted position, shifting later entries
// one slot right. Fails KindNodeFull if the leaf is already at capacity L.
func (n *LeafNode) Insert(key int32, rid RecordID) error {
	kc := n.KeyCount()
	if kc >= n.cap {
		return newErr(KindNodeFull, "leaf at capacity")
	}
	pos, _ := n.Locate(key)
	for i := kc; i > pos; i-- {
		n.writeEntry(i, n.keyAt(i-1), n.ridAt(i-1))
	}
	n.writeEntry(pos, key, rid)
	n.setKeyCount(kc + 1)
	return nil
}

// InsertAndSplit inserts (key, rid) into a full leaf (KeyCount()==L),
// spilling half the entries into the empty sibling node. It returns the
// sibling's first key (the copy-up separator). Preconditions: n is full
// and sibling is empty, else KindInvalidArgument.
//
// Pivot rule (stable, left-heavy): let i be the sorted insertion index of
// key among n's L existing entries. If i <= L/2, the new entry lands in
// the left node and the pivot is L/2; otherwise it lands in the right node
// and the pivot is L/2+1. Entries [pivot, L) move to sibling before the
// insertion is applied to whichever side the new entry belongs to.
func (n *LeafNode) InsertAndSplit(key int32, rid RecordID, sibling *LeafNode) (int32, error) {
	L := n.cap
	if n.KeyCount() != L {
		return 0, newErr(KindInvalidArgument, "insertAndSplit requires a full leaf")
	}
	if sibling.KeyCount() != 0 {
		return 0, newErr(KindInvalidArgument, "insertAndSplit requires an empty sibling")
	}

	i, _ := n.Locate(key)
	pivot := L / 2
	insertLeft := i <= pivot
	if !insertLeft {
		pivot = L/2 + 1
	}

	// Snapshot the entries that move to sibling before mutating n.
	type kv struct {
		key int32
		rid RecordID
	}
	moving := make([]kv, 0, L-pivot)
	for e := pivot; e < L; e++ {
		moving = append(moving, kv{n.keyAt(e), n.ridAt(e)})
	}

	n.setKeyCount(pivot)
	sibling.setKeyCount(0)
	for _, e := range moving {
		if err := sibling.Insert(e.key, e.rid); err != nil {
			return 0, err
		}
	}

	if insertLeft {
		if err := n.Insert(key, rid); err != nil {
			return 0, err
		}
	} else {
		if err := sibling.Insert(key, rid); err != nil {
			return 0, err
		}
	}

	sibling.SetNextPid(n.NextPid())
	siblingKey, _, err := sibling.ReadEntry(0)
	if err != nil {
		return 0, err
	}
	return siblingKey, nil
}

// NextPid returns the trailing sibling-chain pointer stored in the last 4
// bytes of the page.
func (n *LeafNode) NextPid() PageID {
	off := len(n.buf) - 4
	return PageID(int32(binary.LittleEndian.Uint32(n.buf[off:])))
}

// SetNextPid writes the trailing sibling-chain pointer. Negative values are
// rejected (KindInvalidPid); the NoNextLeaf sentinel (0) is accepted.
func (n *LeafNode) SetNextPid(pid PageID) error {
	if pid < 0 {
		return newErr(KindInvalidPid, "nextPid must be non-negative")
	}
	off := len(n.buf) - 4
	binary.LittleEndian.PutUint32(n.buf[off:], uint32(int32(pid)))
	return nil
}

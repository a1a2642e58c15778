package btreeidx

import (
	"encoding/binary"
	"math"
)

// metaRootPidOff, metaTreeHeightOff are the page-0 metadata layout offsets:
// rootPid then treeHeight, both i32, remainder zero.
const (
	metaRootPidOff     = 0
	metaTreeHeightOff  = 4
	metadataHeaderSize = 8
)

// Cursor positions a forward iterator over the leaf chain: (pid, eid)
// referencing the eid-th entry of the leaf at pid. Pid == NoNextLeaf (0)
// is the exhausted state.
type Cursor struct {
	Pid PageID
	Eid int
}

// BTreeIndex owns the on-disk metadata (root page id, height) of one
// B+Tree and drives recursive descent, insertion with bottom-up split
// propagation, root promotion, and cursor-based forward iteration. It
// exclusively owns its PageStore handle between Open and Close.
type BTreeIndex struct {
	store  PageStore
	root   PageID
	height int
}

// Open adopts the persisted (rootPid, treeHeight) from page 0 of store if
// they look sensible (rootPid > 0, treeHeight >= 0, store has pages beyond
// the empty state); otherwise it resets to the empty-index defaults
// (rootPid=-1, treeHeight=0) rather than surfacing the corrupt header as
// an error (FormatError is swallowed here by design, per spec).
//
// If store has never had anything written to it (EndPid()==0) and
// readOnly is true, Open fails: a read-only session cannot create the
// metadata page. In write mode the same situation simply starts an empty
// index.
func Open(store PageStore, readOnly bool) (*BTreeIndex, error) {
	if store.EndPid() == 0 {
		if readOnly {
			return nil, newErr(KindIoError, "open: empty index in read-only mode")
		}
		return &BTreeIndex{store: store, root: InvalidPageID, height: 0}, nil
	}

	buf := make([]byte, store.PageSize())
	if err := store.Read(0, buf); err != nil {
		return nil, wrapErr(KindIoError, "open: reading metadata page", err)
	}
	root := PageID(int32(binary.LittleEndian.Uint32(buf[metaRootPidOff:])))
	height := int(int32(binary.LittleEndian.Uint32(buf[metaTreeHeightOff:])))

	if root > 0 && height >= 0 && store.EndPid() > 0 {
		return &BTreeIndex{store: store, root: root, height: height}, nil
	}
	// Corrupt or never-written header — fall back to empty defaults.
	return &BTreeIndex{store: store, root: InvalidPageID, height: 0}, nil
}

// Close persists (rootPid, treeHeight) into page 0 and always closes the
// underlying store, even if the metadata write fails.
func (bt *BTreeIndex) Close() error {
	buf := make([]byte, bt.store.PageSize())
	binary.LittleEndian.PutUint32(buf[metaRootPidOff:], uint32(int32(bt.root)))
	binary.LittleEndian.PutUint32(buf[metaTreeHeightOff:], uint32(int32(bt.height)))
	writeErr := bt.store.Write(0, buf)
	closeErr := bt.store.Close()
	if writeErr != nil {
		return wrapErr(KindIoError, "close: writing metadata page", writeErr)
	}
	if closeErr != nil {
		return wrapErr(KindIoError, "close: closing page store", closeErr)
	}
	return nil
}

// RootPid and Height expose the current metadata, mainly for tests.
func (bt *BTreeIndex) RootPid() PageID { return bt.root }
func (bt *BTreeIndex) Height() int     { return bt.height }

func (bt *BTreeIndex) readLeaf(pid PageID) (*LeafNode, []byte, error) {
	buf := make([]byte, bt.store.PageSize())
	if err := bt.store.Read(pid, buf); err != nil {
		return nil, nil, wrapErr(KindIoError, "reading leaf page", err)
	}
	return WrapLeafNode(buf), buf, nil
}

func (bt *BTreeIndex) readInternal(pid PageID) (*InternalNode, []byte, error) {
	buf := make([]byte, bt.store.PageSize())
	if err := bt.store.Read(pid, buf); err != nil {
		return nil, nil, wrapErr(KindIoError, "reading internal page", err)
	}
	return WrapInternalNode(buf), buf, nil
}

// pathToLeaf walks root-to-leaf for key, returning every page id visited
// including the leaf itself (length == bt.height). This is the explicit
// "stack of frames" design from spec.md §9(a): split propagation walks
// this same slice back to front instead of relying on native recursion
// depth.
func (bt *BTreeIndex) pathToLeaf(key int32) ([]PageID, error) {
	path := make([]PageID, 0, bt.height)
	pid := bt.root
	for depth := 1; depth < bt.height; depth++ {
		path = append(path, pid)
		node, _, err := bt.readInternal(pid)
		if err != nil {
			return nil, err
		}
		pid = node.LocateChild(key)
	}
	path = append(path, pid)
	return path, nil
}

// splitOutcome is the bottom-up signal: either the insert at this level
// completed in place (Overflowed=false), or a split happened and
// (Key, Pid) must be inserted as a separator one level up.
type splitOutcome struct {
	Overflowed bool
	Key        int32
	Pid        PageID
}

// Insert adds (key, rid) to the tree, splitting and growing the root as
// needed. NodeFull never escapes this call — it is always converted into
// a split by the caller, per the propagation policy in spec.md §7.
func (bt *BTreeIndex) Insert(key int32, rid RecordID) error {
	if bt.height == 0 {
		pid := bt.store.EndPid()
		if pid < 1 {
			// Page 0 is reserved for metadata: claim it with a zeroed page
			// so the root leaf at pid 1 is written at EndPid().
			if err := bt.store.Write(0, make([]byte, bt.store.PageSize())); err != nil {
				return wrapErr(KindIoError, "reserving metadata page", err)
			}
			pid = 1
		}
		buf := make([]byte, bt.store.PageSize())
		leaf := InitLeafNode(buf)
		if err := leaf.Insert(key, rid); err != nil {
			return err
		}
		if err := bt.store.Write(pid, buf); err != nil {
			return wrapErr(KindIoError, "writing fresh root leaf", err)
		}
		bt.root = pid
		bt.height = 1
		return nil
	}

	path, err := bt.pathToLeaf(key)
	if err != nil {
		return err
	}

	leafID := path[len(path)-1]
	leaf, leafBuf, err := bt.readLeaf(leafID)
	if err != nil {
		return err
	}

	var outcome splitOutcome
	if err := leaf.Insert(key, rid); err == nil {
		if err := bt.store.Write(leafID, leafBuf); err != nil {
			return wrapErr(KindIoError, "writing leaf", err)
		}
		return nil
	} else if kind, ok := KindOf(err); !ok || kind != KindNodeFull {
		return err
	}

	// Leaf full — split.
	siblingPid := bt.store.EndPid()
	siblingBuf := make([]byte, bt.store.PageSize())
	sibling := InitLeafNode(siblingBuf)
	siblingKey, err := leaf.InsertAndSplit(key, rid, sibling)
	if err != nil {
		return err
	}
	if err := leaf.SetNextPid(siblingPid); err != nil {
		return err
	}
	if err := bt.store.Write(siblingPid, siblingBuf); err != nil {
		return wrapErr(KindIoError, "writing split sibling leaf", err)
	}
	if err := bt.store.Write(leafID, leafBuf); err != nil {
		return wrapErr(KindIoError, "writing split leaf", err)
	}
	outcome = splitOutcome{Overflowed: true, Key: siblingKey, Pid: siblingPid}

	// Propagate the overflow bottom-up through the ancestor path.
	for level := len(path) - 2; level >= 0 && outcome.Overflowed; level-- {
		nodePid := path[level]
		node, nodeBuf, err := bt.readInternal(nodePid)
		if err != nil {
			return err
		}
		if err := node.Insert(outcome.Key, outcome.Pid); err == nil {
			if err := bt.store.Write(nodePid, nodeBuf); err != nil {
				return wrapErr(KindIoError, "writing internal node", err)
			}
			outcome = splitOutcome{}
			break
		} else if kind, ok := KindOf(err); !ok || kind != KindNodeFull {
			return err
		}

		newSiblingPid := bt.store.EndPid()
		newSiblingBuf := make([]byte, bt.store.PageSize())
		newSibling := InitInternalNode(newSiblingBuf)
		midKey, err := node.InsertAndSplit(outcome.Key, outcome.Pid, newSibling)
		if err != nil {
			return err
		}
		if err := bt.store.Write(newSiblingPid, newSiblingBuf); err != nil {
			return wrapErr(KindIoError, "writing split sibling internal node", err)
		}
		if err := bt.store.Write(nodePid, nodeBuf); err != nil {
			return wrapErr(KindIoError, "writing split internal node", err)
		}
		outcome = splitOutcome{Overflowed: true, Key: midKey, Pid: newSiblingPid}
	}

	if outcome.Overflowed {
		// Bubbled all the way up past the root — grow the tree.
		newRootPid := bt.store.EndPid()
		newRootBuf := make([]byte, bt.store.PageSize())
		InitializeRoot(newRootBuf, bt.root, outcome.Key, outcome.Pid)
		if err := bt.store.Write(newRootPid, newRootBuf); err != nil {
			return wrapErr(KindIoError, "writing new root", err)
		}
		bt.root = newRootPid
		bt.height++
	}
	return nil
}

// Locate descends from the root to the leaf that would contain searchKey,
// returning a cursor positioned at the matching entry, or at the first
// entry greater than searchKey (KindNoSuchRecord) when absent. On an empty
// index it returns a cursor on the exhausted sentinel with KindNoSuchRecord.
func (bt *BTreeIndex) Locate(searchKey int32) (Cursor, error) {
	if bt.height == 0 {
		return Cursor{Pid: NoNextLeaf, Eid: 0}, newErr(KindNoSuchRecord, "index is empty")
	}

	pid := bt.root
	for depth := 1; depth < bt.height; depth++ {
		node, _, err := bt.readInternal(pid)
		if err != nil {
			return Cursor{}, err
		}
		pid = node.LocateChild(searchKey)
	}

	leaf, _, err := bt.readLeaf(pid)
	if err != nil {
		return Cursor{}, err
	}
	eid, found := leaf.Locate(searchKey)
	cur := Cursor{Pid: pid, Eid: eid}
	if !found {
		return cur, newErr(KindNoSuchRecord, "no entry with that key")
	}
	return cur, nil
}

// ReadForward emits the entry the cursor currently references, then
// advances it to the next entry in leaf-chain order. It fails
// KindInvalidCursor once the cursor has been advanced past the last entry
// of the rightmost leaf.
func (bt *BTreeIndex) ReadForward(cur *Cursor) (int32, RecordID, error) {
	if cur.Pid == NoNextLeaf {
		return 0, RecordID{}, newErr(KindInvalidCursor, "cursor is exhausted")
	}

	leaf, _, err := bt.readLeaf(cur.Pid)
	if err != nil {
		return 0, RecordID{}, err
	}

	// Locate() can return a one-past-end cursor on a leaf (searchKey
	// exceeded every key in that leaf); normalize onto the next leaf
	// before reading, as spec.md §4.3 calls out explicitly.
	if cur.Eid >= leaf.KeyCount() {
		cur.Pid = leaf.NextPid()
		cur.Eid = 0
		if cur.Pid == NoNextLeaf {
			return 0, RecordID{}, newErr(KindInvalidCursor, "cursor is exhausted")
		}
		leaf, _, err = bt.readLeaf(cur.Pid)
		if err != nil {
			return 0, RecordID{}, err
		}
	}

	key, rid, err := leaf.ReadEntry(cur.Eid)
	if err != nil {
		return 0, RecordID{}, err
	}

	cur.Eid++
	if cur.Eid == leaf.KeyCount() {
		cur.Pid = leaf.NextPid()
		cur.Eid = 0
	}
	return key, rid, nil
}

// CountKeys returns the total number of (key, rid) pairs in the tree via a
// top-down traversal carrying (pid, depthFromRoot) frames, summing each
// leaf's KeyCount(). Used by SelectRunner's predicate-free count(*) path.
func (bt *BTreeIndex) CountKeys() (int, error) {
	if bt.height == 0 {
		return 0, nil
	}
	type frame struct {
		pid   PageID
		depth int
	}
	queue := []frame{{bt.root, 1}}
	total := 0
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth == bt.height {
			leaf, _, err := bt.readLeaf(f.pid)
			if err != nil {
				return 0, err
			}
			total += leaf.KeyCount()
			continue
		}
		node, _, err := bt.readInternal(f.pid)
		if err != nil {
			return 0, err
		}
		for _, child := range node.Children() {
			queue = append(queue, frame{child, f.depth + 1})
		}
	}
	return total, nil
}

// MinKey and MaxKey bound the int32 key space, used by ScanPlanner as the
// default startKey/endKey.
const (
	MinKey = math.MinInt32
	MaxKey = math.MaxInt32
)

// Package heapstore is the disk-backed RecordStore used by cmd/bptidx. It
// lays records out as classic slotted pages — a growing slot directory at
// the front of the page and record bytes packed in from the back — the
// same shape the teacher's pager.SlottedPage uses, adapted here to the
// fixed (key int32, value []byte) tuple the secondary index indexes.
package heapstore

import (
	"encoding/binary"
	"fmt"

	"github.com/miniql/bptindex/internal/btreeidx"
)

// slot header: recordOffset(4), recordLength(4), key(4). length==deletedMark
// marks a tombstoned slot (never produced by this package today, but kept
// so a future delete operation has somewhere to write one).
const (
	slotSize    = 12
	deletedMark = -1
)

// Page header: slotCount(4), freeOff(4) — freeOff is the offset where the
// next record's bytes would be written, growing downward from PageSize.
const pageHeaderSize = 8

// PageStore is the page-addressed byte store heapstore lays its slotted
// pages over. It is the same shape as btreeidx.PageStore — heapstore and
// btreeidx are independent consumers of a PageStore, never of each other.
type PageStore = btreeidx.PageStore

// Store is a heap file of fixed-size slotted pages.
type Store struct {
	pages    PageStore
	pageSize int
	lastPid  btreeidx.PageID // page new Appends try first; -1 if none yet
}

// Open wraps an already-open PageStore as a record heap. The PageStore
// must not be shared with a btreeidx.BTreeIndex — the two packages expect
// disjoint page numbering.
func Open(pages PageStore) *Store {
	lastPid := btreeidx.PageID(-1)
	if pages.EndPid() > 0 {
		lastPid = pages.EndPid() - 1
	}
	return &Store{pages: pages, pageSize: pages.PageSize(), lastPid: lastPid}
}

func (s *Store) EndRid() btreeidx.RecordID {
	if s.lastPid < 0 {
		return btreeidx.RecordID{Pid: 0, Sid: 0}
	}
	buf := make([]byte, s.pageSize)
	if err := s.pages.Read(s.lastPid, buf); err != nil {
		return btreeidx.RecordID{Pid: int32(s.lastPid) + 1, Sid: 0}
	}
	sc := slotCount(buf)
	return btreeidx.RecordID{Pid: int32(s.lastPid), Sid: int32(sc)}
}

// Append writes (key, value) to the heap, allocating a new page if the
// current tail page has no room left.
func (s *Store) Append(key int32, value []byte) (btreeidx.RecordID, error) {
	need := len(value) + slotSize

	if s.lastPid >= 0 {
		buf := make([]byte, s.pageSize)
		if err := s.pages.Read(s.lastPid, buf); err != nil {
			return btreeidx.RecordID{}, fmt.Errorf("heapstore: read tail page %d: %w", s.lastPid, err)
		}
		if freeSpace(buf, s.pageSize) >= need {
			sid := putRecord(buf, s.pageSize, key, value)
			if err := s.pages.Write(s.lastPid, buf); err != nil {
				return btreeidx.RecordID{}, fmt.Errorf("heapstore: write page %d: %w", s.lastPid, err)
			}
			return btreeidx.RecordID{Pid: int32(s.lastPid), Sid: int32(sid)}, nil
		}
	}

	if need > s.pageSize-pageHeaderSize {
		return btreeidx.RecordID{}, fmt.Errorf("heapstore: value of %d bytes does not fit in a %d-byte page", len(value), s.pageSize)
	}

	newPid := s.pages.EndPid()
	buf := make([]byte, s.pageSize)
	initPage(buf)
	sid := putRecord(buf, s.pageSize, key, value)
	if err := s.pages.Write(newPid, buf); err != nil {
		return btreeidx.RecordID{}, fmt.Errorf("heapstore: write new page %d: %w", newPid, err)
	}
	s.lastPid = newPid
	return btreeidx.RecordID{Pid: int32(newPid), Sid: int32(sid)}, nil
}

// Read dereferences rid, returning the (key, value) stored there.
func (s *Store) Read(rid btreeidx.RecordID) (int32, []byte, error) {
	pid := btreeidx.PageID(rid.Pid)
	buf := make([]byte, s.pageSize)
	if err := s.pages.Read(pid, buf); err != nil {
		return 0, nil, fmt.Errorf("heapstore: read page %d: %w", pid, err)
	}
	sc := slotCount(buf)
	if rid.Sid < 0 || int(rid.Sid) >= sc {
		return 0, nil, fmt.Errorf("heapstore: slot %d out of range [0,%d) on page %d", rid.Sid, sc, pid)
	}
	off, length, key := readSlot(buf, int(rid.Sid))
	if length == deletedMark {
		return 0, nil, fmt.Errorf("heapstore: record %v was deleted", rid)
	}
	value := make([]byte, length)
	copy(value, buf[off:off+length])
	return key, value, nil
}

// Scan visits every live record in (Pid, Sid) order across the whole heap
// file, stopping early if fn returns false.
func (s *Store) Scan(fn func(rid btreeidx.RecordID, key int32, value []byte) bool) error {
	end := s.pages.EndPid()
	buf := make([]byte, s.pageSize)
	for pid := btreeidx.PageID(0); pid < end; pid++ {
		if err := s.pages.Read(pid, buf); err != nil {
			return fmt.Errorf("heapstore: scan page %d: %w", pid, err)
		}
		sc := slotCount(buf)
		for sid := 0; sid < sc; sid++ {
			off, length, key := readSlot(buf, sid)
			if length == deletedMark {
				continue
			}
			value := make([]byte, length)
			copy(value, buf[off:off+length])
			rid := btreeidx.RecordID{Pid: int32(pid), Sid: int32(sid)}
			if !fn(rid, key, value) {
				return nil
			}
		}
	}
	return nil
}

func initPage(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	setSlotCount(buf, 0)
	setFreeOff(buf, len(buf))
}

func slotCount(buf []byte) int {
	return int(binary.LittleEndian.Uint32(buf[0:4]))
}

func setSlotCount(buf []byte, c int) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(c))
}

func freeOff(buf []byte) int {
	return int(binary.LittleEndian.Uint32(buf[4:8]))
}

func setFreeOff(buf []byte, off int) {
	binary.LittleEndian.PutUint32(buf[4:8], uint32(off))
}

func slotEntryOff(sid int) int {
	return pageHeaderSize + sid*slotSize
}

func readSlot(buf []byte, sid int) (off, length int, key int32) {
	base := slotEntryOff(sid)
	off = int(binary.LittleEndian.Uint32(buf[base:]))
	length = int(int32(binary.LittleEndian.Uint32(buf[base+4:])))
	key = int32(binary.LittleEndian.Uint32(buf[base+8:]))
	return off, length, key
}

func writeSlot(buf []byte, sid, off, length int, key int32) {
	base := slotEntryOff(sid)
	binary.LittleEndian.PutUint32(buf[base:], uint32(off))
	binary.LittleEndian.PutUint32(buf[base+4:], uint32(int32(length)))
	binary.LittleEndian.PutUint32(buf[base+8:], uint32(key))
}

// freeSpace reports how many bytes are available between the end of the
// slot directory and the start of the packed record bytes. Callers compare
// this against len(value)+slotSize to see whether one more record fits.
func freeSpace(buf []byte, pageSize int) int {
	sc := slotCount(buf)
	dirEnd := pageHeaderSize + sc*slotSize
	return freeOff(buf) - dirEnd
}

// putRecord appends one more slot and writes value just below the current
// free offset, returning the new slot's id.
func putRecord(buf []byte, pageSize int, key int32, value []byte) int {
	sc := slotCount(buf)
	newFreeOff := freeOff(buf) - len(value)
	copy(buf[newFreeOff:], value)
	writeSlot(buf, sc, newFreeOff, len(value), key)
	setFreeOff(buf, newFreeOff)
	setSlotCount(buf, sc+1)
	return sc
}

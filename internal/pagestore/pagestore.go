// Package pagestore is the disk-backed PageStore used by cmd/bptidx and by
// btreeidx's own tests. It is the out-of-scope external collaborator
// spec.md §6 describes: fixed-size page reads/writes keyed by page id,
// with no WAL, no transactions, and no buffer pool beyond a small
// read-through cache local to this package.
//
// Every page is checksummed with CRC32-C: the checksum of the page's
// logical content is stored in a 4-byte prefix ahead of it on disk, so a
// torn or corrupted page surfaces as an error when it is read from disk
// rather than silently handing garbage to the index.
package pagestore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/miniql/bptindex/internal/btreeidx"
)

// DefaultPageSize matches spec.md's reference layout (L=84, N=127).
const DefaultPageSize = 1024

// pageHeaderSize is the per-page overhead reserved for the CRC, kept
// separate from the logical page content the btreeidx codecs see.
const pageHeaderSize = 4

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Store is a fixed-size paged file. Page ids are contiguous from 0;
// EndPid reports one past the highest page ever written. Writing to
// pid == EndPid() extends the file, matching the allocation contract
// btreeidx.BTreeIndex.Insert relies on.
type Store struct {
	f         *os.File
	pageSize  int // logical page size handed to btreeidx (content only)
	diskPage  int // physical on-disk page size (content + CRC header)
	endPid    btreeidx.PageID
	readOnly  bool
	cache     map[btreeidx.PageID][]byte
	cacheCap  int
	cacheKeys []btreeidx.PageID // simple FIFO eviction order
}

// Mode selects how Open treats a missing file.
type Mode int

const (
	// ModeReadWrite creates the file if absent.
	ModeReadWrite Mode = iota
	// ModeReadOnly fails if the file is absent or empty.
	ModeReadOnly
)

// Open opens (or creates, in ModeReadWrite) the page file at path with the
// given logical page size. cacheCap bounds the read-through cache; 0
// disables caching.
func Open(path string, pageSize, cacheCap int, mode Mode) (*Store, error) {
	flag := os.O_RDWR | os.O_CREATE
	if mode == ModeReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open %s: %w", path, err)
	}

	s := &Store{
		f:        f,
		pageSize: pageSize,
		diskPage: pageSize + pageHeaderSize,
		readOnly: mode == ModeReadOnly,
		cacheCap: cacheCap,
	}
	if cacheCap > 0 {
		s.cache = make(map[btreeidx.PageID][]byte, cacheCap)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagestore: stat %s: %w", path, err)
	}
	if info.Size()%int64(s.diskPage) != 0 {
		f.Close()
		return nil, fmt.Errorf("pagestore: %s size %d is not a multiple of page size %d", path, info.Size(), s.diskPage)
	}
	s.endPid = btreeidx.PageID(info.Size() / int64(s.diskPage))

	if mode == ModeReadOnly && s.endPid == 0 {
		f.Close()
		return nil, fmt.Errorf("pagestore: %s is empty and cannot be opened read-only", path)
	}
	return s, nil
}

func (s *Store) PageSize() int { return s.pageSize }

func (s *Store) EndPid() btreeidx.PageID { return s.endPid }

// Read fills buf (len(buf) == PageSize()) with the logical content of page
// pid, verifying its CRC32-C.
func (s *Store) Read(pid btreeidx.PageID, buf []byte) error {
	if len(buf) != s.pageSize {
		return fmt.Errorf("pagestore: read buffer must be %d bytes, got %d", s.pageSize, len(buf))
	}
	if pid < 0 || pid >= s.endPid {
		return fmt.Errorf("pagestore: page %d out of range [0,%d)", pid, s.endPid)
	}
	if cached, ok := s.cacheGet(pid); ok {
		copy(buf, cached)
		return nil
	}

	disk := make([]byte, s.diskPage)
	off := int64(pid) * int64(s.diskPage)
	if _, err := s.f.ReadAt(disk, off); err != nil {
		return fmt.Errorf("pagestore: read page %d: %w", pid, err)
	}
	stored := binary.LittleEndian.Uint32(disk[:4])
	content := disk[4:]
	if crc32.Checksum(content, crcTable) != stored {
		return fmt.Errorf("pagestore: page %d failed CRC check (corrupt)", pid)
	}
	copy(buf, content)
	s.cachePut(pid, content)
	return nil
}

// Write persists buf as the logical content of page pid, computing its
// CRC32-C. Writing to pid == EndPid() extends the file by one page.
func (s *Store) Write(pid btreeidx.PageID, buf []byte) error {
	if s.readOnly {
		return fmt.Errorf("pagestore: write to read-only store")
	}
	if len(buf) != s.pageSize {
		return fmt.Errorf("pagestore: write buffer must be %d bytes, got %d", s.pageSize, len(buf))
	}
	if pid < 0 || pid > s.endPid {
		return fmt.Errorf("pagestore: write to page %d skips unallocated pages (endPid=%d)", pid, s.endPid)
	}

	disk := make([]byte, s.diskPage)
	copy(disk[4:], buf)
	binary.LittleEndian.PutUint32(disk[:4], crc32.Checksum(disk[4:], crcTable))

	off := int64(pid) * int64(s.diskPage)
	if _, err := s.f.WriteAt(disk, off); err != nil {
		return fmt.Errorf("pagestore: write page %d: %w", pid, err)
	}
	if pid == s.endPid {
		s.endPid++
	}
	s.cachePut(pid, disk[4:])
	return nil
}

func (s *Store) cacheGet(pid btreeidx.PageID) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache[pid]
	return v, ok
}

func (s *Store) cachePut(pid btreeidx.PageID, content []byte) {
	if s.cache == nil {
		return
	}
	if _, exists := s.cache[pid]; !exists {
		if len(s.cacheKeys) >= s.cacheCap {
			oldest := s.cacheKeys[0]
			s.cacheKeys = s.cacheKeys[1:]
			delete(s.cache, oldest)
		}
		s.cacheKeys = append(s.cacheKeys, pid)
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	s.cache[pid] = cp
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	if !s.readOnly {
		if err := s.f.Sync(); err != nil {
			s.f.Close()
			return fmt.Errorf("pagestore: sync: %w", err)
		}
	}
	return s.f.Close()
}

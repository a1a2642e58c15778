// Package catalog maps a table name to its backing `.heap` and `.idx`
// files and owns their open/close lifecycle, the thin table-registry
// analogue of the teacher's pager.Catalog.
package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/miniql/bptindex/internal/btreeidx"
	"github.com/miniql/bptindex/internal/heapstore"
	"github.com/miniql/bptindex/internal/pagestore"
)

// Table is one loaded table's open resources. Index is nil when the
// table was loaded WITHOUT INDEX.
type Table struct {
	Name  string
	Heap  *heapstore.Store
	Index *btreeidx.BTreeIndex

	heapPages *pagestore.Store
}

// Catalog opens table files rooted at a single data directory, named
// "<table>.heap" and "<table>.idx".
type Catalog struct {
	dataDir  string
	pageSize int
	cacheCap int
	tables   map[string]*Table
}

// Open creates a Catalog rooted at dataDir. pageSize and cacheCap are
// forwarded to every pagestore.Store this Catalog opens.
func Open(dataDir string, pageSize, cacheCap int) *Catalog {
	return &Catalog{
		dataDir:  dataDir,
		pageSize: pageSize,
		cacheCap: cacheCap,
		tables:   make(map[string]*Table),
	}
}

func (c *Catalog) heapPath(table string) string { return filepath.Join(c.dataDir, table+".heap") }
func (c *Catalog) idxPath(table string) string  { return filepath.Join(c.dataDir, table+".idx") }

// Load opens (creating if absent) the heap file for table, and its index
// file too when withIndex is true. Calling Load twice for the same table
// returns the already-open Table.
func (c *Catalog) Load(table string, withIndex bool) (*Table, error) {
	if t, ok := c.tables[table]; ok {
		return t, nil
	}

	heapPages, err := pagestore.Open(c.heapPath(table), c.pageSize, c.cacheCap, pagestore.ModeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening heap for %q: %w", table, err)
	}
	heap := heapstore.Open(heapPages)

	t := &Table{Name: table, Heap: heap, heapPages: heapPages}

	if withIndex {
		idxPages, err := pagestore.Open(c.idxPath(table), c.pageSize, c.cacheCap, pagestore.ModeReadWrite)
		if err != nil {
			heapPages.Close()
			return nil, fmt.Errorf("catalog: opening index for %q: %w", table, err)
		}
		idx, err := btreeidx.Open(idxPages, false)
		if err != nil {
			idxPages.Close()
			heapPages.Close()
			return nil, fmt.Errorf("catalog: initializing index for %q: %w", table, err)
		}
		t.Index = idx
	}

	c.tables[table] = t
	return t, nil
}

// Get returns an already-loaded table, or false if none is open under
// that name.
func (c *Catalog) Get(table string) (*Table, bool) {
	t, ok := c.tables[table]
	return t, ok
}

// Close closes every table's open resources, collecting (not stopping at)
// the first error.
func (c *Catalog) Close() error {
	var firstErr error
	for name, t := range c.tables {
		if t.Index != nil {
			if err := t.Index.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("catalog: closing index for %q: %w", name, err)
			}
		}
		if err := t.heapPages.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("catalog: closing heap for %q: %w", name, err)
		}
	}
	return firstErr
}

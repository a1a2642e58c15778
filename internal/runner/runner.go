// Package runner drives a planned scan — either through the BTreeIndex's
// cursor or a full RecordStore scan — and applies residual predicates and
// the requested projection.
package runner

import (
	"github.com/miniql/bptindex/internal/btreeidx"
	"github.com/miniql/bptindex/internal/planner"
)

// RecordStore is the heap-table abstraction this runner dereferences
// record ids through. It is an external collaborator (spec.md §6): append
// issues RecordIds, read dereferences one, EndRid supports a full
// sequential scan.
type RecordStore interface {
	Append(key int32, value []byte) (btreeidx.RecordID, error)
	Read(rid btreeidx.RecordID) (int32, []byte, error)
	EndRid() btreeidx.RecordID
	// Scan visits every live record in RecordId order, stopping early if
	// fn returns false. It underlies the full-table-scan fallback path.
	Scan(fn func(rid btreeidx.RecordID, key int32, value []byte) bool) error
}

// Index is the subset of BTreeIndex the runner needs; declared here so
// tests can supply a fake without pulling in a real PageStore.
type Index interface {
	Locate(searchKey int32) (btreeidx.Cursor, error)
	ReadForward(cur *btreeidx.Cursor) (int32, btreeidx.RecordID, error)
	CountKeys() (int, error)
}

// Projection selects what a SELECT emits per matching row.
type Projection string

const (
	ProjKey   Projection = "key"
	ProjValue Projection = "value"
	ProjBoth  Projection = "both"
	ProjCount Projection = "count"
)

// Row is one projected result. Count-only queries only ever populate
// Count on a single final Row.
type Row struct {
	Key   int32
	Value []byte
	Count int
}

// Run executes plan against store/index (index may be nil when no index
// is open for the table) and returns the projected rows. When proj is
// ProjCount, exactly one Row is returned with Count set and Key/Value
// zero.
func Run(proj Projection, preds []planner.Predicate, plan planner.Plan, store RecordStore, index Index) ([]Row, error) {
	if plan.Empty {
		if proj == ProjCount {
			return []Row{{Count: 0}}, nil
		}
		return nil, nil
	}

	// An empty predicate list folds to an unbounded plan (UseTree is false
	// with no key predicate at all), but a predicate-free count(*) against
	// an open index still has an exact answer without touching the heap or
	// reading entries one at a time through the cursor: CountKeys() sums
	// each leaf's KeyCount. Must be checked ahead of the UseTree gate below, since
	// UseTree is never true for an empty predicate list.
	if len(preds) == 0 && proj == ProjCount && index != nil {
		total, err := index.CountKeys()
		if err != nil {
			return nil, err
		}
		return []Row{{Count: total}}, nil
	}

	valuePreds := planner.ValuePredicates(preds)

	if index == nil || !plan.UseTree {
		if proj != ProjCount {
			return fullScan(proj, preds, plan, store)
		}
		// No usable index and proj==count still needs a scan — the
		// index isn't available to shortcut it.
		rows, err := fullScan(ProjKey, preds, plan, store)
		if err != nil {
			return nil, err
		}
		return []Row{{Count: len(rows)}}, nil
	}

	cur, err := index.Locate(plan.StartKey)
	if err != nil {
		if kind, ok := btreeidx.KindOf(err); !ok || kind != btreeidx.KindNoSuchRecord {
			return nil, err
		}
	}

	var out []Row
	count := 0
	for {
		key, rid, err := index.ReadForward(&cur)
		if err != nil {
			if kind, ok := btreeidx.KindOf(err); ok && kind == btreeidx.KindInvalidCursor {
				break
			}
			return nil, err
		}
		if key > plan.EndKey {
			break
		}
		if _, excluded := plan.NeKeys[key]; excluded {
			continue
		}

		var (
			value    []byte
			fetched  bool
			rejected bool
		)
		if len(valuePreds) > 0 {
			_, v, err := store.Read(rid)
			if err != nil {
				return nil, err
			}
			value = v
			fetched = true
			for _, vp := range valuePreds {
				if !matchValue(v, vp) {
					rejected = true
					break
				}
			}
		}
		if rejected {
			continue
		}

		if (proj == ProjValue || proj == ProjBoth) && !fetched {
			_, v, err := store.Read(rid)
			if err != nil {
				return nil, err
			}
			value = v
		}

		count++
		switch proj {
		case ProjKey:
			out = append(out, Row{Key: key})
		case ProjValue:
			out = append(out, Row{Value: value})
		case ProjBoth:
			out = append(out, Row{Key: key, Value: value})
		case ProjCount:
			// accumulate only; emitted once below
		}
	}

	if proj == ProjCount {
		return []Row{{Count: count}}, nil
	}
	return out, nil
}

// fullScan walks every record in RecordStore order, for the
// no-usable-index path.
func fullScan(proj Projection, preds []planner.Predicate, plan planner.Plan, store RecordStore) ([]Row, error) {
	var out []Row
	err := store.Scan(func(_ btreeidx.RecordID, key int32, value []byte) bool {
		if !matchesAll(key, value, preds, plan) {
			return true
		}
		switch proj {
		case ProjKey:
			out = append(out, Row{Key: key})
		case ProjValue:
			out = append(out, Row{Value: value})
		case ProjBoth:
			out = append(out, Row{Key: key, Value: value})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchesAll(key int32, value []byte, preds []planner.Predicate, plan planner.Plan) bool {
	if key < plan.StartKey || key > plan.EndKey {
		return false
	}
	if _, excluded := plan.NeKeys[key]; excluded {
		return false
	}
	for _, p := range planner.ValuePredicates(preds) {
		if !matchValue(value, p) {
			return false
		}
	}
	return true
}

func matchValue(value []byte, p planner.Predicate) bool {
	v := decodeInt32(value)
	switch p.Cmp {
	case planner.CmpEQ:
		return v == p.Val
	case planner.CmpNE:
		return v != p.Val
	case planner.CmpLT:
		return v < p.Val
	case planner.CmpLE:
		return v <= p.Val
	case planner.CmpGT:
		return v > p.Val
	case planner.CmpGE:
		return v >= p.Val
	default:
		return false
	}
}

func decodeInt32(b []byte) int32 {
	var v int32
	for i := 0; i < len(b) && i < 4; i++ {
		v |= int32(b[i]) << (8 * uint(i))
	}
	return v
}

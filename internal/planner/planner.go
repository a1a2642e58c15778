// Package planner reduces a conjunction of key/value predicates into a
// bounded index scan plus a residual filter, deciding whether the
// BTreeIndex is worth using at all.
package planner

import (
	"github.com/miniql/bptindex/internal/btreeidx"
)

// Attr names the column a Predicate constrains. This shim only ever sees
// the two columns the secondary index cares about.
type Attr string

const (
	AttrKey   Attr = "key"
	AttrValue Attr = "value"
)

// Cmp is one of the six comparison operators a Predicate can use.
type Cmp string

const (
	CmpEQ Cmp = "="
	CmpNE Cmp = "!="
	CmpLT Cmp = "<"
	CmpLE Cmp = "<="
	CmpGT Cmp = ">"
	CmpGE Cmp = ">="
)

// Predicate is one conjunct of a WHERE clause: attr cmp val.
type Predicate struct {
	Attr Attr
	Cmp  Cmp
	Val  int32
}

// Plan is the output of folding a predicate conjunction on key. StartKey
// and EndKey bound an inclusive index scan; EqKey, when set, is the single
// equality constraint folded in; NeKeys excludes specific keys from the
// scan results; UseTree says whether an index scan is worth attempting at
// all, and Empty says the conjunction can never match any row.
type Plan struct {
	StartKey int32
	EndKey   int32
	EqKey    *int32
	NeKeys   map[int32]struct{}
	UseTree  bool
	Empty    bool
}

// ValuePredicates returns the subset of predicates on the value column,
// which SelectRunner applies as a residual filter after dereferencing the
// row through RecordStore.
func ValuePredicates(preds []Predicate) []Predicate {
	var out []Predicate
	for _, p := range preds {
		if p.Attr == AttrValue {
			out = append(out, p)
		}
	}
	return out
}

// BuildPlan folds a predicate conjunction on the key attribute into a
// bounded scan range, per spec.md §4.4's folding rules:
//
//	EQ k  sets startKey=endKey=k and registers eqKey=k (a second distinct
//	      EQ makes the plan unsatisfiable)
//	LT k  tightens endKey   := min(endKey, k-1)
//	LE k  tightens endKey   := min(endKey, k)
//	GT k  tightens startKey := max(startKey, k+1)
//	GE k  tightens startKey := max(startKey, k)
//	NE k  adds k to neKeys
//
// UseTree is true iff any key predicate is present other than NE-only.
func BuildPlan(preds []Predicate) Plan {
	p := Plan{
		StartKey: btreeidx.MinKey,
		EndKey:   btreeidx.MaxKey,
		NeKeys:   make(map[int32]struct{}),
	}

	hasKeyPred := false
	hasNonNEKeyPred := false
	var eqVal int32
	haveEq := false

	// Range predicates tighten [StartKey, EndKey] first; EQ is folded in
	// afterward so a narrower range from LT/LE/GT/GE isn't silently
	// widened back out by an EQ that arrived earlier in the conjunction —
	// predicate order in a WHERE clause must not change the plan.
	for _, pred := range preds {
		if pred.Attr != AttrKey {
			continue
		}
		hasKeyPred = true
		switch pred.Cmp {
		case CmpEQ:
			hasNonNEKeyPred = true
			if haveEq && eqVal != pred.Val {
				p.Empty = true
			}
			haveEq = true
			eqVal = pred.Val
		case CmpLT:
			hasNonNEKeyPred = true
			if pred.Val-1 < p.EndKey {
				p.EndKey = pred.Val - 1
			}
		case CmpLE:
			hasNonNEKeyPred = true
			if pred.Val < p.EndKey {
				p.EndKey = pred.Val
			}
		case CmpGT:
			hasNonNEKeyPred = true
			if pred.Val+1 > p.StartKey {
				p.StartKey = pred.Val + 1
			}
		case CmpGE:
			hasNonNEKeyPred = true
			if pred.Val > p.StartKey {
				p.StartKey = pred.Val
			}
		case CmpNE:
			p.NeKeys[pred.Val] = struct{}{}
		}
	}

	p.UseTree = hasKeyPred && hasNonNEKeyPred

	if p.StartKey > p.EndKey {
		p.Empty = true
	}
	if haveEq {
		if eqVal < p.StartKey || eqVal > p.EndKey {
			p.Empty = true
		}
		if _, excluded := p.NeKeys[eqVal]; excluded {
			p.Empty = true
		}
		v := eqVal
		p.EqKey = &v
		p.StartKey = v
		p.EndKey = v
	}

	return p
}

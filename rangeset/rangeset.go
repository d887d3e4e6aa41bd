// Package rangeset assigns globally unique, contiguous identifiers to the
// entities of a partitioned mesh and provides the gather/scatter/sync
// operations that keep the compact (owned, linear-algebra) view of a value
// array coherent with the scattered (overlapping, stencil) view.
//
// Global id ranges are assigned per rank by a parallel scan counting
// entities on parallel interfaces only once: every entity falls inside
// exactly one rank's range [Lo, Hi) and outside the range of all others,
// and ranges are contiguous across ranks. Entities and their periodic
// matches share or do not share an id depending on the TrIgnore option.
package rangeset

import (
	"errors"
	"fmt"

	"github.com/notargets/parmesh/comm"
	"github.com/notargets/parmesh/halo"
	"github.com/notargets/parmesh/ifset"
)

var (
	// ErrPrecondition reports invalid construction input: both an
	// interface set and a halo, a negative entity count, a size mismatch,
	// or an out-of-domain option value. Nothing is mutated.
	ErrPrecondition = errors.New("range set precondition violated")

	// ErrUnsupportedPeriodicity reports a TrIgnore setting that cannot be
	// honored for the given input's periodic transforms.
	ErrUnsupportedPeriodicity = errors.New("unsupported periodicity")
)

// Options configures the numbering produced by Define.
type Options struct {
	// Balance splits ownership of the entities shared across each
	// interface between its two endpoint ranks instead of assigning all
	// of them to the lower rank.
	Balance bool

	// TrIgnore selects how periodic matches map to global ids:
	// 0 periodic matches share an id, 1 only rotational matches are kept
	// distinct, 2 all periodic matches are kept distinct.
	TrIgnore int

	// Base is the first id of the global id space, 0 or 1 (1 generates an
	// I/O-style numbering).
	Base uint64
}

func (o Options) validate() error {
	if o.TrIgnore < 0 || o.TrIgnore > 2 {
		return fmt.Errorf("%w: TrIgnore %d outside {0, 1, 2}", ErrPrecondition, o.TrIgnore)
	}
	if o.Base > 1 {
		return fmt.Errorf("%w: Base %d outside {0, 1}", ErrPrecondition, o.Base)
	}
	return nil
}

// Set is the numbering handle: the local id range, the per-entity global
// ids, and a reference to the input structure the numbering was built
// from. It is immutable after construction and safe for concurrent reads;
// it must be discarded and rebuilt when the mesh topology changes. All
// operations on a nil *Set are no-ops, as a single-rank convenience.
type Set struct {
	lo, hi   uint64
	nElts    int // scattered-view size, ghost entities included
	nCompact int // leading entities for which gid[i] == lo+i
	gid      []uint64
	owned    bool // gid allocated by this set rather than borrowed

	ifs  *ifset.Set
	halo *halo.Halo
}

// New builds a numbering for n scattered-view entities from an interface
// set or a halo (at most one non-nil; both nil is the no-sharing case) and
// returns the owning handle. The communicator c is only consulted when
// neither input is given; it may be nil in the single-rank case. The input
// structure is referenced, not copied, and must outlive the set.
func New(c *comm.Comm, ifs *ifset.Set, h *halo.Halo, n int, o Options) (*Set, error) {
	gid := make([]uint64, n)
	lo, hi, err := Define(c, ifs, h, n, o, gid)
	if err != nil {
		return nil, err
	}
	rs := NewFromShared(ifs, h, n, lo, hi, gid)
	rs.owned = true
	return rs, nil
}

// NewFromShared wraps an existing numbering without copying it: the caller
// keeps ownership of gid and of the optional input structure, both of
// which must outlive the set.
func NewFromShared(ifs *ifset.Set, h *halo.Halo, n int, lo, hi uint64, gid []uint64) *Set {
	rs := &Set{
		lo:    lo,
		hi:    hi,
		nElts: n,
		gid:   gid,
		ifs:   ifs,
		halo:  h,
	}
	rs.nCompact = n
	for i := 0; i < n; i++ {
		if gid[i] != lo+uint64(i) {
			rs.nCompact = i
			break
		}
	}
	return rs
}

// Lo returns the first global id owned by the local rank.
func (rs *Set) Lo() uint64 { return rs.lo }

// Hi returns one past the last global id owned by the local rank.
func (rs *Set) Hi() uint64 { return rs.hi }

// NOwned returns the number of entities owned by the local rank.
func (rs *Set) NOwned() int { return int(rs.hi - rs.lo) }

// N returns the scattered-view size, ghost entities included.
func (rs *Set) N() int { return rs.nElts }

// GlobalIDs returns the per-entity global ids. The slice is shared, not
// copied; callers must treat it as read-only.
func (rs *Set) GlobalIDs() []uint64 { return rs.gid }

// Contains reports whether global id g is owned by the local rank.
func (rs *Set) Contains(g uint64) bool { return g >= rs.lo && g < rs.hi }

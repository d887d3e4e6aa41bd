package rangeset

import (
	"fmt"

	"github.com/notargets/parmesh/comm"
	"github.com/notargets/parmesh/halo"
	"github.com/notargets/parmesh/ifset"
)

// Work-array marks used while gid doubles as election scratch: 0 is
// "unmarked" (purely local), 1 is "reverse periodic image of a local
// entity on the same rank", and rank+2 is "mirrored on rank". Assigned ids
// start at lo+2 so they never collide with the marks, and the whole array
// is shifted onto the requested base at the end.
const localPerioMark = 1

// Define computes the numbering into the caller's gid slice and returns
// the local id range. n is the scattered-view entity count: with a halo it
// must equal NLocal plus NGhosts; with an interface set it is the local
// entity count. At most one of ifs and h may be non-nil; the communicator
// c is consulted only when both are nil (it may itself be nil in the
// single-rank case). This is a collective operation.
func Define(c *comm.Comm, ifs *ifset.Set, h *halo.Halo, n int, o Options, gid []uint64) (lo, hi uint64, err error) {
	if err := o.validate(); err != nil {
		return 0, 0, err
	}
	if ifs != nil && h != nil {
		return 0, 0, fmt.Errorf("%w: both interface set and halo provided", ErrPrecondition)
	}
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: negative entity count %d", ErrPrecondition, n)
	}
	if len(gid) < n {
		return 0, 0, fmt.Errorf("%w: gid has %d entries for %d entities", ErrPrecondition, len(gid), n)
	}

	if ifs != nil {
		return defineFromSet(ifs, n, o, gid)
	}
	return defineFromHalo(c, h, n, o, gid)
}

// defineFromSet elects an owner for every shared entity, scans the owned
// counts into a contiguous range, and propagates the assigned ids from
// owners to the other copies.
func defineFromSet(ifs *ifset.Set, n int, o Options, gid []uint64) (lo, hi uint64, err error) {
	trIgnore := o.TrIgnore
	p := ifs.Periodicity()
	if p == nil {
		trIgnore = 0
	} else if trIgnore == 1 {
		if p.HasRotation() {
			return 0, 0, fmt.Errorf(
				"%w: ignoring only rotational periodicity with an interface set (TrIgnore=1)",
				ErrUnsupportedPeriodicity)
		}
		trIgnore = 0
	}

	for i := 0; i < n; i++ {
		gid[i] = 0
	}

	c := ifs.Comm()
	lRank := c.Rank()

	// Mark entities that are not only local with the winning rank + 2;
	// an unmarked entity has no parallel or periodic copy.
	for i := 0; i < ifs.Size(); i++ {
		itf := ifs.At(i)
		elts := itf.Elts()

		start, end := 0, itf.Size()
		if trIgnore > 1 {
			if ti := itf.TrIndex(); ti != nil {
				end = ti[1] // untransformed entries only
			}
		}

		minMark := uint64(minInt(lRank, itf.Rank())) + 2

		// With balancing, the first half of the shared list goes to the
		// lower-rank endpoint and the second half to the higher one;
		// otherwise the lower rank takes the whole list.
		if o.Balance {
			maxMark := uint64(maxInt(lRank, itf.Rank())) + 2
			mid := (start + end) / 2
			for j := start; j < mid; j++ {
				k := elts[j]
				if gid[k] == 0 || minMark < gid[k] {
					gid[k] = minMark
				}
			}
			for j := mid; j < end; j++ {
				k := elts[j]
				if maxMark > gid[k] {
					gid[k] = maxMark
				}
			}
		} else {
			for j := start; j < end; j++ {
				k := elts[j]
				if gid[k] == 0 || minMark < gid[k] {
					gid[k] = minMark
				}
			}
		}

		// Same-rank periodicity: all copies of a local orbit except the
		// first are marked as non-owned. Periodicity across ranks needs
		// no special case.
		if itf.Rank() == lRank {
			ifs.TagLocalMatches(itf, trIgnore, localPerioMark, gid)
		}
	}

	// With balancing, an entity shared with two ranks has a settled mark,
	// but one touching three or more may disagree between ranks; a
	// max-reduction settles those (at the price of a slight imbalance).
	if o.Balance {
		if err := ifs.MaxTr(gid, 1, trIgnore); err != nil {
			return 0, 0, err
		}
	}

	// Count owned entities and scan the counts into a contiguous range.
	lMark := uint64(lRank) + 2
	var count uint64
	for i := 0; i < n; i++ {
		if gid[i] == 0 || gid[i] == lMark {
			count++
		}
	}

	scan, err := c.ScanSum(count)
	if err != nil {
		return 0, 0, err
	}
	hi = scan
	lo = hi - count

	// Assign ids to owned entities in local index order, shifted by 2 to
	// stay clear of the marks; non-owned entities wait for the owner's id
	// to arrive through the max-reduction below.
	next := lo + 2
	for i := 0; i < n; i++ {
		if gid[i] == 0 || gid[i] == lMark {
			gid[i] = next
			next++
		} else {
			gid[i] = localPerioMark
		}
	}

	if err := ifs.MaxTr(gid, 1, trIgnore); err != nil {
		return 0, 0, err
	}

	// Land on the requested base.
	for i := 0; i < n; i++ {
		gid[i] = gid[i] - 2 + o.Base
	}
	return lo + o.Base, hi + o.Base, nil
}

// defineFromHalo numbers uniquely-owned entities by a plain scan of the
// local counts and fills the ghost block from the owning ranks.
func defineFromHalo(c *comm.Comm, h *halo.Halo, n int, o Options, gid []uint64) (lo, hi uint64, err error) {
	nOwn := n
	if h != nil {
		if p := h.Periodicity(); p != nil && o.TrIgnore > 0 {
			// Keeping rotational matches distinct is a no-op when every
			// transform is rotational; any other combination would need
			// the merge information a halo does not carry.
			handled := o.TrIgnore == 1 && !p.HasTranslation()
			if !handled {
				return 0, 0, fmt.Errorf(
					"%w: merging periodic entities with a halo input (TrIgnore=%d)",
					ErrUnsupportedPeriodicity, o.TrIgnore)
			}
		}
		if n != h.NLocal()+h.NGhosts() {
			return 0, 0, fmt.Errorf("%w: %d entities, halo expects %d local + %d ghosts",
				ErrPrecondition, n, h.NLocal(), h.NGhosts())
		}
		nOwn = h.NLocal()
		c = h.Comm()
	}

	lo = o.Base
	hi = o.Base + uint64(nOwn)
	if c != nil && c.Size() > 1 {
		scan, err := c.ScanSum(uint64(nOwn))
		if err != nil {
			return 0, 0, err
		}
		hi = o.Base + scan
		lo = hi - uint64(nOwn)
	}

	for i := 0; i < nOwn; i++ {
		gid[i] = lo + uint64(i)
	}

	if h != nil {
		if err := h.Sync(halo.Extended, gid[:n], 1); err != nil {
			return 0, 0, err
		}
	}
	return lo, hi, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

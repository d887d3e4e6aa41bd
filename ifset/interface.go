// Package ifset implements the interface set: the description of how local
// mesh entities on one rank are mirrored on other ranks, together with the
// element-wise collective operations defined on it (copy, sum, max, and
// their transform-filtered variants). An interface set is one of the two
// inputs accepted by the range-set numbering engine.
package ifset

import (
	"fmt"
	"sort"

	"github.com/notargets/parmesh/perio"
)

// Interface binds one remote rank and lists the matched entity pairs shared
// with it. Entry j pairs local entity Elts()[j] with entity Match()[j] on
// the remote rank. When the owning set carries periodicity, the entries are
// segmented by transform through the transform index: section 0 holds
// untransformed matches, section t+1 holds matches related by transform t.
type Interface struct {
	rank    int
	elts    []int
	match   []int
	trIndex []int // len NumTransforms+2 when present; trIndex[0] == 0

	// sendOrder[k] is the entry whose value is packed at position k of an
	// outgoing exchange buffer, so that the stream arrives in the
	// receiver's own entry order.
	sendOrder []int
}

// Definition is the caller-provided description of one interface, consumed
// by NewSet. Elts and Match are parallel slices; TrIndex is optional and,
// when set, must have length periodicity.NumTransforms()+2 with TrIndex[0]
// equal to 0 and final entry equal to len(Elts).
type Definition struct {
	Rank    int
	Elts    []int
	Match   []int
	TrIndex []int
}

// Rank returns the remote rank this interface communicates with.
func (itf *Interface) Rank() int { return itf.rank }

// Size returns the number of matched pairs on this interface.
func (itf *Interface) Size() int { return len(itf.elts) }

// Elts returns the ordered local entity indices. The slice is shared, not
// copied; callers must treat it as read-only.
func (itf *Interface) Elts() []int { return itf.elts }

// Match returns the matching entity indices on the remote rank, parallel
// to Elts.
func (itf *Interface) Match() []int { return itf.match }

// TrIndex returns the transform index, or nil when the interface carries
// no periodic segmentation.
func (itf *Interface) TrIndex() []int { return itf.trIndex }

// Section returns the half-open entry range of transform section s, where
// section 0 is the untransformed part and section t+1 belongs to transform
// t. An interface without a transform index has all entries in section 0.
func (itf *Interface) Section(s int) (start, end int) {
	if itf.trIndex == nil {
		if s == 0 {
			return 0, len(itf.elts)
		}
		return 0, 0
	}
	return itf.trIndex[s], itf.trIndex[s+1]
}

// NumSections returns the number of transform sections.
func (itf *Interface) NumSections() int {
	if itf.trIndex == nil {
		return 1
	}
	return len(itf.trIndex) - 1
}

// normalize sorts every transform section by local entity id (carrying the
// match ids along) and then builds the send order: within each section the
// outgoing stream is ordered by match id, and the stream destined for the
// receiver's section of transform t is fed from the local section of the
// reverse transform, so that sends line up with the receiver's own
// entry enumeration.
func (itf *Interface) normalize(p *perio.Periodicity) error {
	n := len(itf.elts)
	if len(itf.match) != n {
		return fmt.Errorf("interface to rank %d: %d local vs %d matched entities",
			itf.rank, n, len(itf.match))
	}
	if itf.trIndex != nil {
		want := p.NumTransforms() + 2
		if len(itf.trIndex) != want {
			return fmt.Errorf("interface to rank %d: transform index length %d, want %d",
				itf.rank, len(itf.trIndex), want)
		}
		if itf.trIndex[0] != 0 || itf.trIndex[len(itf.trIndex)-1] != n {
			return fmt.Errorf("interface to rank %d: transform index does not span entries",
				itf.rank)
		}
		for s := 1; s < len(itf.trIndex); s++ {
			if itf.trIndex[s] < itf.trIndex[s-1] {
				return fmt.Errorf("interface to rank %d: transform index not monotone",
					itf.rank)
			}
		}
	}

	// Sort each section by local entity id.
	for s := 0; s < itf.NumSections(); s++ {
		start, end := itf.Section(s)
		sec := entrySorter{elts: itf.elts[start:end], match: itf.match[start:end]}
		sort.Sort(sec)
	}

	// Per-section ordering of entries by match id.
	order := make([]int, n)
	for s := 0; s < itf.NumSections(); s++ {
		start, end := itf.Section(s)
		for j := start; j < end; j++ {
			order[j] = j
		}
		sub := order[start:end]
		sort.SliceStable(sub, func(a, b int) bool {
			return itf.match[sub[a]] < itf.match[sub[b]]
		})
	}

	itf.sendOrder = make([]int, n)
	s0, e0 := itf.Section(0)
	copy(itf.sendOrder[s0:e0], order[s0:e0])
	if itf.trIndex != nil {
		k := e0
		for t := 0; t < p.NumTransforms(); t++ {
			start, end := itf.Section(perio.ReverseID(t) + 1)
			for j := start; j < end; j++ {
				itf.sendOrder[k] = order[j]
				k++
			}
		}
	}
	return nil
}

type entrySorter struct {
	elts  []int
	match []int
}

func (e entrySorter) Len() int { return len(e.elts) }
func (e entrySorter) Less(i, j int) bool {
	if e.elts[i] != e.elts[j] {
		return e.elts[i] < e.elts[j]
	}
	return e.match[i] < e.match[j]
}
func (e entrySorter) Swap(i, j int) {
	e.elts[i], e.elts[j] = e.elts[j], e.elts[i]
	e.match[i], e.match[j] = e.match[j], e.match[i]
}

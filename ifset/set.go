package ifset

import (
	"fmt"

	"github.com/notargets/parmesh/comm"
	"github.com/notargets/parmesh/perio"
)

// Set is the ordered collection of all interfaces touching the local rank.
// It is immutable after construction; the element-wise operations defined
// on it never modify the topology, only the caller's value buffers.
type Set struct {
	c     *comm.Comm
	perio *perio.Periodicity
	itfs  []*Interface
	nElts int // total entries over all interfaces
}

// NewSet assembles an interface set from caller-provided matched pair
// lists. Within each transform section, entries are reordered by local
// entity id; for periodic matches on a single rank, each pair must be
// listed under both its direct and its reverse transform (once in each
// direction), as produced by the mesh preprocessing.
func NewSet(c *comm.Comm, p *perio.Periodicity, defs []Definition) (*Set, error) {
	s := &Set{c: c, perio: p}
	seen := make(map[int]bool, len(defs))
	for _, d := range defs {
		if d.Rank < 0 || d.Rank >= c.Size() {
			return nil, fmt.Errorf("ifset: rank %d outside group of size %d",
				d.Rank, c.Size())
		}
		if seen[d.Rank] {
			return nil, fmt.Errorf("ifset: duplicate interface to rank %d", d.Rank)
		}
		seen[d.Rank] = true

		itf := &Interface{
			rank:    d.Rank,
			elts:    append([]int(nil), d.Elts...),
			match:   append([]int(nil), d.Match...),
			trIndex: append([]int(nil), d.TrIndex...),
		}
		if len(d.TrIndex) == 0 {
			itf.trIndex = nil
		}
		if err := itf.normalize(p); err != nil {
			return nil, fmt.Errorf("ifset: %w", err)
		}
		s.itfs = append(s.itfs, itf)
		s.nElts += itf.Size()
	}
	return s, nil
}

// Comm returns the communicator the set is bound to.
func (s *Set) Comm() *comm.Comm { return s.c }

// Size returns the number of interfaces in the set.
func (s *Set) Size() int { return len(s.itfs) }

// At returns the i-th interface of the set.
func (s *Set) At(i int) *Interface { return s.itfs[i] }

// Periodicity returns the periodicity descriptor, or nil when the mesh has
// no periodic transforms.
func (s *Set) Periodicity() *perio.Periodicity {
	if s.perio == nil || s.perio.NumTransforms() == 0 {
		return nil
	}
	return s.perio
}

// NElts returns the total number of entries over all interfaces; exchange
// buffers are dimensioned by this count times the stride.
func (s *Set) NElts() int { return s.nElts }

// LocalInterface returns the self-interface (remote rank equal to the
// local rank), or nil when the rank has no single-rank periodic matches.
func (s *Set) LocalInterface() *Interface {
	for _, itf := range s.itfs {
		if itf.rank == s.c.Rank() {
			return itf
		}
	}
	return nil
}

// trSections returns the number of leading transform sections that
// participate in a transform-filtered reduction, or 0 when the reduction
// should span all entries unfiltered.
func (s *Set) trSections(trIgnore int) int {
	if trIgnore <= 0 || s.Periodicity() == nil {
		return 0
	}
	n := 0
	if trIgnore < 2 {
		for t := 0; t < s.perio.NumTransforms(); t++ {
			if s.perio.KindOf(t) == perio.Translation {
				n = t + 1
			}
		}
	}
	return n + 1
}

// sectionAdmitted reports whether transform section sec (0 being the
// untransformed part) takes part in a filtered reduction.
func (s *Set) sectionAdmitted(sec int) bool {
	if sec == 0 {
		return true
	}
	return s.perio.KindOf(sec-1) == perio.Translation
}

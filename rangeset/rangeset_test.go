package rangeset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/parmesh/comm"
	"github.com/notargets/parmesh/halo"
	"github.com/notargets/parmesh/ifset"
	"github.com/notargets/parmesh/perio"
)

// Two ranks with 4 vertices each; rank 0's vertices 2, 3 are copies of
// rank 1's vertices 0, 1.
func twoRankEdgeSet(c *comm.Comm) (*ifset.Set, error) {
	if c.Rank() == 0 {
		return ifset.NewSet(c, nil, []ifset.Definition{
			{Rank: 1, Elts: []int{2, 3}, Match: []int{0, 1}},
		})
	}
	return ifset.NewSet(c, nil, []ifset.Definition{
		{Rank: 0, Elts: []int{0, 1}, Match: []int{2, 3}},
	})
}

// One rank with 4 vertices where 0 and 3 (resp. 1 and 2) are periodic
// images under one translation; each pair is listed under both the direct
// and the reverse transform.
func selfPeriodicSet(c *comm.Comm) (*ifset.Set, error) {
	p := perio.New()
	p.AddTranslation()
	return ifset.NewSet(c, p, []ifset.Definition{{
		Rank:    0,
		Elts:    []int{0, 2, 1, 3},
		Match:   []int{3, 1, 2, 0},
		TrIndex: []int{0, 0, 2, 4},
	}})
}

type rankResult struct {
	lo, hi uint64
	gid    []uint64
}

// checkPartition verifies that the per-rank ranges tile [base, base+total)
// contiguously and that every owned id is claimed by exactly one rank.
func checkPartition(t *testing.T, res []rankResult, base, total uint64) {
	t.Helper()
	var owned uint64
	for r, rr := range res {
		if r == 0 {
			assert.Equal(t, base, rr.lo, "rank 0 range start")
		} else {
			assert.Equal(t, res[r-1].hi, rr.lo, "rank %d range start", r)
		}
		owned += rr.hi - rr.lo
	}
	assert.Equal(t, total, owned, "sum of owned counts")

	claimed := make(map[uint64]int)
	for _, rr := range res {
		for g := rr.lo; g < rr.hi; g++ {
			claimed[g]++
		}
	}
	for g := base; g < base+total; g++ {
		assert.Equal(t, 1, claimed[g], "id %d claim count", g)
	}
}

func TestSingleRankNoSharing(t *testing.T) {
	rs, err := New(nil, nil, nil, 5, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rs.Lo())
	assert.Equal(t, uint64(5), rs.Hi())
	assert.Equal(t, 5, rs.NOwned())
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, rs.GlobalIDs())

	rs, err = New(nil, nil, nil, 3, Options{Base: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rs.Lo())
	assert.Equal(t, uint64(4), rs.Hi())
	assert.Equal(t, []uint64{1, 2, 3}, rs.GlobalIDs())
	assert.False(t, rs.Contains(0))
	assert.True(t, rs.Contains(1))
}

func TestTwoRankShared(t *testing.T) {
	g := comm.NewGroup(2, comm.WithLogger(zaptest.NewLogger(t)))
	res := make([]rankResult, 2)

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := twoRankEdgeSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}
		res[c.Rank()] = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(0), res[0].lo)
	assert.Equal(t, uint64(4), res[0].hi)
	assert.Equal(t, uint64(4), res[1].lo)
	assert.Equal(t, uint64(6), res[1].hi)

	assert.Equal(t, []uint64{0, 1, 2, 3}, res[0].gid)
	assert.Equal(t, []uint64{2, 3, 4, 5}, res[1].gid)

	checkPartition(t, res, 0, 6)
}

func TestTwoRankBalanced(t *testing.T) {
	g := comm.NewGroup(2)
	res := make([]rankResult, 2)

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := twoRankEdgeSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{Balance: true})
		if err != nil {
			return err
		}
		res[c.Rank()] = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	// Ownership of the two shared vertices is split between the ranks.
	assert.Equal(t, 3, int(res[0].hi-res[0].lo))
	assert.Equal(t, 3, int(res[1].hi-res[1].lo))
	checkPartition(t, res, 0, 6)

	// The shared pairs still agree on their ids.
	assert.Equal(t, res[0].gid[2], res[1].gid[0])
	assert.Equal(t, res[0].gid[3], res[1].gid[1])
}

func TestLocalPeriodicityMerged(t *testing.T) {
	g := comm.NewGroup(1)
	var res rankResult

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := selfPeriodicSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}
		res = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	// The two periodic orbits collapse onto two global ids.
	assert.Equal(t, uint64(0), res.lo)
	assert.Equal(t, uint64(2), res.hi)
	assert.Equal(t, []uint64{0, 1, 1, 0}, res.gid)
}

func TestLocalPeriodicitySplit(t *testing.T) {
	g := comm.NewGroup(1)
	var res rankResult

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := selfPeriodicSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{TrIgnore: 2})
		if err != nil {
			return err
		}
		res = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	// Periodic matches are kept distinct.
	assert.Equal(t, uint64(0), res.lo)
	assert.Equal(t, uint64(4), res.hi)
	assert.Equal(t, []uint64{0, 1, 2, 3}, res.gid)
}

func TestHaloScan(t *testing.T) {
	const size = 4
	const nLocal = 100
	g := comm.NewGroup(size)
	res := make([]rankResult, size)

	err := g.Run(func(c *comm.Comm) error {
		h, err := halo.New(c, nil, nLocal, nil)
		if err != nil {
			return err
		}
		rs, err := New(nil, nil, h, nLocal, Options{})
		if err != nil {
			return err
		}
		res[c.Rank()] = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	for r := 0; r < size; r++ {
		assert.Equal(t, uint64(nLocal*r), res[r].lo, "rank %d lo", r)
		assert.Equal(t, uint64(nLocal*(r+1)), res[r].hi, "rank %d hi", r)
		for i, gv := range res[r].gid {
			if gv != res[r].lo+uint64(i) {
				t.Fatalf("rank %d: gid[%d] = %d", r, i, gv)
			}
		}
	}
	checkPartition(t, res, 0, size*nLocal)
}

func TestHaloWithGhosts(t *testing.T) {
	g := comm.NewGroup(2)
	res := make([]rankResult, 2)

	err := g.Run(func(c *comm.Comm) error {
		var h *halo.Halo
		var err error
		var n int
		if c.Rank() == 0 {
			h, err = halo.New(c, nil, 3, []halo.Block{
				{Rank: 1, Send: []int{2}, NRecv: 1},
			})
			n = 4
		} else {
			h, err = halo.New(c, nil, 2, []halo.Block{
				{Rank: 0, Send: []int{0}, NRecv: 1},
			})
			n = 3
		}
		if err != nil {
			return err
		}
		rs, err := New(nil, nil, h, n, Options{})
		if err != nil {
			return err
		}
		res[c.Rank()] = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 1, 2, 3}, res[0].gid)
	assert.Equal(t, []uint64{3, 4, 2}, res[1].gid)

	// Ghost entities carry ids outside the local range.
	for r, rr := range res {
		nLocal := len(rr.gid) - 1
		for i := nLocal; i < len(rr.gid); i++ {
			if rr.gid[i] >= rr.lo && rr.gid[i] < rr.hi {
				t.Errorf("rank %d: ghost gid[%d] = %d inside [%d, %d)",
					r, i, rr.gid[i], rr.lo, rr.hi)
			}
		}
	}
}

func TestGatherScatterRoundTrip(t *testing.T) {
	g := comm.NewGroup(2)

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := twoRankEdgeSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}

		// Single-valued field derived from the global id.
		a := make([]float64, 4)
		for i, gv := range rs.GlobalIDs() {
			a[i] = float64(gv) * 10
		}
		orig := append([]float64(nil), a...)

		b := make([]float64, rs.NOwned())
		if err := rs.Gather(a, b, 1); err != nil {
			return err
		}
		for j := range b {
			want := float64(rs.Lo()+uint64(j)) * 10
			if b[j] != want {
				return fmt.Errorf("rank %d: gathered b[%d] = %v, want %v",
					c.Rank(), j, b[j], want)
			}
		}

		back := make([]float64, 4)
		if err := rs.Scatter(b, back, 1); err != nil {
			return err
		}
		if !floats.Equal(back, orig) {
			return fmt.Errorf("rank %d: scatter returned %v, want %v", c.Rank(), back, orig)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGatherScatterInPlace(t *testing.T) {
	g := comm.NewGroup(2)

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := twoRankEdgeSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}

		a := make([]float64, 4)
		for i, gv := range rs.GlobalIDs() {
			a[i] = float64(gv) * 10
		}
		orig := append([]float64(nil), a...)

		if err := rs.Gather(a, a, 1); err != nil {
			return err
		}
		for j := 0; j < rs.NOwned(); j++ {
			want := float64(rs.Lo()+uint64(j)) * 10
			if a[j] != want {
				return fmt.Errorf("rank %d: in-place gather a[%d] = %v, want %v",
					c.Rank(), j, a[j], want)
			}
		}

		if err := rs.Scatter(a, a, 1); err != nil {
			return err
		}
		if !floats.Equal(a, orig) {
			return fmt.Errorf("rank %d: in-place scatter returned %v, want %v", c.Rank(), a, orig)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSyncBroadcastsOwnerValues(t *testing.T) {
	g := comm.NewGroup(2)
	vals := [][]float64{
		{1, 2, 3, 4},
		{99, 98, 5, 6}, // garbage in the non-owned copies
	}

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := twoRankEdgeSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}
		if err := rs.Sync(vals[c.Rank()], 1); err != nil {
			return err
		}
		// Idempotence: a second sync must not change anything.
		return rs.Sync(vals[c.Rank()], 1)
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 3, 4}, vals[0])
	assert.Equal(t, []float64{3, 4, 5, 6}, vals[1])
}

func TestSyncLocalPeriodicity(t *testing.T) {
	g := comm.NewGroup(1)
	v := []float64{7, 8, 8, 7} // single-valued on each periodic orbit

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := selfPeriodicSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}
		return rs.Sync(v, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 8, 7}, v)
}

func TestZeroOutOfRange(t *testing.T) {
	g := comm.NewGroup(2)
	vals := [][]int64{
		{1, 2, 3, 4},
		{10, 20, 30, 40},
	}

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := twoRankEdgeSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}
		if err := rs.ZeroOutOfRange(vals[c.Rank()], 1); err != nil {
			return err
		}
		return rs.ZeroOutOfRange(vals[c.Rank()], 1)
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, vals[0])
	assert.Equal(t, []int64{0, 0, 30, 40}, vals[1])
}

func TestZeroLocalPeriodicity(t *testing.T) {
	g := comm.NewGroup(1)
	v := []float64{5, 6, 7, 8}

	err := g.Run(func(c *comm.Comm) error {
		ifs, err := selfPeriodicSet(c)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 4, Options{})
		if err != nil {
			return err
		}
		return rs.ZeroLocalPeriodicity(v, 1)
	})
	require.NoError(t, err)

	// The reverse-transform images (entities 1 and 3) are zeroed.
	assert.Equal(t, []float64{5, 0, 7, 0}, v)
}

func TestThreeRankCorner(t *testing.T) {
	// Entity 0 of every rank is one corner shared by all three ranks.
	const size = 3
	g := comm.NewGroup(size)
	res := make([]rankResult, size)

	err := g.Run(func(c *comm.Comm) error {
		var defs []ifset.Definition
		for s := 0; s < size; s++ {
			if s != c.Rank() {
				defs = append(defs, ifset.Definition{
					Rank: s, Elts: []int{0}, Match: []int{0},
				})
			}
		}
		ifs, err := ifset.NewSet(c, nil, defs)
		if err != nil {
			return err
		}
		rs, err := New(nil, ifs, nil, 3, Options{})
		if err != nil {
			return err
		}
		res[c.Rank()] = rankResult{rs.Lo(), rs.Hi(), rs.GlobalIDs()}
		return nil
	})
	require.NoError(t, err)

	checkPartition(t, res, 0, 7)

	// All ranks agree on the corner's id, owned by rank 0.
	corner := res[0].gid[0]
	assert.True(t, corner >= res[0].lo && corner < res[0].hi)
	for r := 1; r < size; r++ {
		assert.Equal(t, corner, res[r].gid[0], "rank %d corner id", r)
	}
}

func TestDefineErrors(t *testing.T) {
	gid := make([]uint64, 8)

	_, _, err := Define(nil, nil, nil, 4, Options{TrIgnore: 3}, gid)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, _, err = Define(nil, nil, nil, 4, Options{Base: 2}, gid)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, _, err = Define(nil, nil, nil, -1, Options{}, gid)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, _, err = Define(nil, nil, nil, 9, Options{}, gid)
	assert.ErrorIs(t, err, ErrPrecondition)

	g := comm.NewGroup(1)
	err = g.Run(func(c *comm.Comm) error {
		ifs, err := ifset.NewSet(c, nil, nil)
		if err != nil {
			return err
		}
		h, err := halo.New(c, nil, 4, nil)
		if err != nil {
			return err
		}
		if _, _, err := Define(nil, ifs, h, 4, Options{}, gid); !assert.ErrorIs(t, err, ErrPrecondition) {
			return fmt.Errorf("both inputs accepted: %v", err)
		}
		if _, _, err := Define(nil, nil, h, 7, Options{}, gid); !assert.ErrorIs(t, err, ErrPrecondition) {
			return fmt.Errorf("halo size mismatch accepted: %v", err)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestUnsupportedPeriodicity(t *testing.T) {
	g := comm.NewGroup(1)

	err := g.Run(func(c *comm.Comm) error {
		p := perio.New()
		p.AddRotation()
		ifs, err := ifset.NewSet(c, p, []ifset.Definition{{
			Rank:    0,
			Elts:    []int{0, 2, 1, 3},
			Match:   []int{3, 1, 2, 0},
			TrIndex: []int{0, 0, 2, 4},
		}})
		if err != nil {
			return err
		}
		if _, err := New(nil, ifs, nil, 4, Options{TrIgnore: 1}); !assert.ErrorIs(t, err, ErrUnsupportedPeriodicity) {
			return fmt.Errorf("rotational TrIgnore=1 accepted: %v", err)
		}

		// Halo with a translation: periodic merge control is unavailable.
		pt := perio.New()
		pt.AddTranslation()
		h, err := halo.New(c, pt, 2, nil)
		if err != nil {
			return err
		}
		if _, err := New(nil, nil, h, 2, Options{TrIgnore: 2}); !assert.ErrorIs(t, err, ErrUnsupportedPeriodicity) {
			return fmt.Errorf("periodic halo TrIgnore=2 accepted: %v", err)
		}
		if _, err := New(nil, nil, h, 2, Options{TrIgnore: 1}); !assert.ErrorIs(t, err, ErrUnsupportedPeriodicity) {
			return fmt.Errorf("periodic halo TrIgnore=1 with a translation accepted: %v", err)
		}

		// All transforms rotational: TrIgnore=1 reduces to a plain scan.
		pr := perio.New()
		pr.AddRotation()
		hr, err := halo.New(c, pr, 2, nil)
		if err != nil {
			return err
		}
		rs, err := New(nil, nil, hr, 2, Options{TrIgnore: 1})
		if err != nil {
			return err
		}
		if rs.Lo() != 0 || rs.Hi() != 2 {
			return fmt.Errorf("rotational halo range [%d, %d)", rs.Lo(), rs.Hi())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNilSetOps(t *testing.T) {
	var rs *Set
	v := []float64{1, 2, 3}

	assert.NoError(t, rs.ZeroOutOfRange(v, 1))
	assert.NoError(t, rs.ZeroLocalPeriodicity(v, 1))
	assert.NoError(t, rs.Sync(v, 1))
	assert.NoError(t, rs.Gather(v, v, 1))
	assert.NoError(t, rs.Scatter(v, v, 1))
	assert.Equal(t, []float64{1, 2, 3}, v)
}

func TestUnsupportedDatatype(t *testing.T) {
	rs, err := New(nil, nil, nil, 2, Options{})
	require.NoError(t, err)

	assert.Error(t, rs.ZeroOutOfRange([]string{"a", "b"}, 1))
	assert.Error(t, rs.Gather([]float64{0, 0}, []float32{0, 0}, 1))
	assert.Error(t, rs.Scatter([]float64{0, 0}, []float32{0, 0}, 1))
}

func TestNewFromShared(t *testing.T) {
	gid := []uint64{5, 6, 9, 7}
	rs := NewFromShared(nil, nil, 4, 5, 8, gid)

	assert.Equal(t, uint64(5), rs.Lo())
	assert.Equal(t, uint64(8), rs.Hi())
	assert.Equal(t, 3, rs.NOwned())
	assert.Equal(t, 4, rs.N())

	// Only the leading identity-numbered entities form the compact prefix.
	assert.Equal(t, 2, rs.nCompact)

	v := []int32{50, 60, 90, 70}
	require.NoError(t, rs.ZeroOutOfRange(v, 1))
	assert.Equal(t, []int32{50, 60, 0, 70}, v)
}

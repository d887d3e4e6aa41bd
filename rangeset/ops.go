package rangeset

import (
	"fmt"

	"github.com/notargets/parmesh/dtype"
	"github.com/notargets/parmesh/halo"
)

// sameSlice reports whether a and b share the same backing array start,
// meaning an operation on them runs in place.
func sameSlice[T any](a, b []T) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// ZeroOutOfRange zeroes the entries of v whose global ids fall outside the
// local range. With an interface set only interface elements are checked,
// since all other elements are owned locally; with a halo only the ghost
// section is, and without either the call walks every element.
func (rs *Set) ZeroOutOfRange(v any, stride int) error {
	if rs == nil {
		return nil
	}
	switch x := v.(type) {
	case []int8:
		zeroOutVals(rs, x, stride)
	case []int32:
		zeroOutVals(rs, x, stride)
	case []int64:
		zeroOutVals(rs, x, stride)
	case []uint32:
		zeroOutVals(rs, x, stride)
	case []uint64:
		zeroOutVals(rs, x, stride)
	case []float32:
		zeroOutVals(rs, x, stride)
	case []float64:
		zeroOutVals(rs, x, stride)
	case dtype.Raw:
		zeroOutVals(rs, x.Data, x.ElemSize*stride)
	default:
		return fmt.Errorf("rangeset: zero out of range %T: %w", v, dtype.ErrUnsupported)
	}
	return nil
}

func zeroOutVals[T any](rs *Set, v []T, stride int) {
	if rs.ifs != nil {
		for i := 0; i < rs.ifs.Size(); i++ {
			for _, k := range rs.ifs.At(i).Elts() {
				if g := rs.gid[k]; g < rs.lo || g >= rs.hi {
					clear(v[k*stride : (k+1)*stride])
				}
			}
		}
		return
	}
	start := 0
	if rs.halo != nil {
		start = rs.halo.NLocal()
	}
	for i := start; i < rs.nElts; i++ {
		if g := rs.gid[i]; g < rs.lo || g >= rs.hi {
			clear(v[i*stride : (i+1)*stride])
		}
	}
}

// ZeroLocalPeriodicity zeroes the reverse-transform sections of the local
// (self-rank) interface, so that values arriving through periodicity are not
// counted twice when the interface set sums contributions. It is a no-op
// without a local interface or without periodicity.
func (rs *Set) ZeroLocalPeriodicity(v any, stride int) error {
	if rs == nil || rs.ifs == nil {
		return nil
	}
	switch x := v.(type) {
	case []int8:
		zeroLocalPerio(rs, x, stride)
	case []int32:
		zeroLocalPerio(rs, x, stride)
	case []int64:
		zeroLocalPerio(rs, x, stride)
	case []uint32:
		zeroLocalPerio(rs, x, stride)
	case []uint64:
		zeroLocalPerio(rs, x, stride)
	case []float32:
		zeroLocalPerio(rs, x, stride)
	case []float64:
		zeroLocalPerio(rs, x, stride)
	case dtype.Raw:
		zeroLocalPerio(rs, x.Data, x.ElemSize*stride)
	default:
		return fmt.Errorf("rangeset: zero local periodicity %T: %w", v, dtype.ErrUnsupported)
	}
	return nil
}

func zeroLocalPerio[T any](rs *Set, v []T, stride int) {
	itf := rs.ifs.LocalInterface()
	p := rs.ifs.Periodicity()
	if itf == nil || p == nil {
		return
	}
	elts := itf.Elts()
	for t := 1; t < p.NumTransforms(); t += 2 {
		start, end := itf.Section(t + 1)
		for k := start; k < end; k++ {
			clear(v[elts[k]*stride : (elts[k]+1)*stride])
		}
	}
}

// Sync makes shared element values consistent across ranks. With an
// interface set, out-of-range and local periodic copies are zeroed first,
// then contributions are summed so that every copy ends up with the owner
// value. With a halo, ghost values are refreshed from their owners.
func (rs *Set) Sync(v any, stride int) error {
	if rs == nil {
		return nil
	}
	if rs.ifs != nil {
		if err := rs.ZeroOutOfRange(v, stride); err != nil {
			return err
		}
		if rs.ifs.Periodicity() != nil {
			if err := rs.ZeroLocalPeriodicity(v, stride); err != nil {
				return err
			}
		}
		return rs.ifs.Sum(v, stride)
	}
	if rs.halo != nil {
		return rs.halo.Sync(halo.Standard, v, stride)
	}
	return nil
}

// Gather copies values from the scattered (local element) view in src to the
// compact (owned range) view in dst. src and dst may be the same slice, in
// which case the copy runs in place; the owned prefix is already positioned
// and only trailing entries may move down. With a halo the two views
// coincide and the call is a no-op.
func (rs *Set) Gather(src, dst any, stride int) error {
	if rs == nil || rs.halo != nil {
		return nil
	}
	switch s := src.(type) {
	case []int8:
		d, err := dstSlice[int8](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case []int32:
		d, err := dstSlice[int32](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case []int64:
		d, err := dstSlice[int64](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case []uint32:
		d, err := dstSlice[uint32](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case []uint64:
		d, err := dstSlice[uint64](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case []float32:
		d, err := dstSlice[float32](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case []float64:
		d, err := dstSlice[float64](src, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s, d, stride)
	case dtype.Raw:
		d, err := dstRaw(s, dst)
		if err != nil {
			return err
		}
		gatherVals(rs, s.Data, d.Data, s.ElemSize*stride)
	default:
		return fmt.Errorf("rangeset: gather %T: %w", src, dtype.ErrUnsupported)
	}
	return nil
}

// Scatter copies values from the compact view in src to the scattered view
// in dst, then synchronizes dst so that duplicated elements carry the owner
// value. src and dst may be the same slice; the in-place pass runs backward
// so that no source entry is overwritten before it is read. With a halo the
// views coincide and only the synchronization runs.
func (rs *Set) Scatter(src, dst any, stride int) error {
	if rs == nil {
		return nil
	}
	if rs.halo != nil {
		return rs.Sync(dst, stride)
	}
	switch s := src.(type) {
	case []int8:
		d, err := dstSlice[int8](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case []int32:
		d, err := dstSlice[int32](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case []int64:
		d, err := dstSlice[int64](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case []uint32:
		d, err := dstSlice[uint32](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case []uint64:
		d, err := dstSlice[uint64](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case []float32:
		d, err := dstSlice[float32](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case []float64:
		d, err := dstSlice[float64](src, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s, d, stride)
	case dtype.Raw:
		d, err := dstRaw(s, dst)
		if err != nil {
			return err
		}
		scatterVals(rs, s.Data, d.Data, s.ElemSize*stride)
	default:
		return fmt.Errorf("rangeset: scatter %T: %w", src, dtype.ErrUnsupported)
	}
	return rs.Sync(dst, stride)
}

func dstSlice[T any](src, dst any) ([]T, error) {
	d, ok := dst.([]T)
	if !ok {
		return nil, fmt.Errorf("rangeset: src %T dst %T: %w", src, dst, dtype.ErrUnsupported)
	}
	return d, nil
}

func dstRaw(src dtype.Raw, dst any) (dtype.Raw, error) {
	d, ok := dst.(dtype.Raw)
	if !ok || d.ElemSize != src.ElemSize {
		return dtype.Raw{}, fmt.Errorf("rangeset: raw src elem size %d dst %T: %w",
			src.ElemSize, dst, dtype.ErrUnsupported)
	}
	return d, nil
}

func gatherVals[T any](rs *Set, src, dst []T, stride int) {
	if sameSlice(src, dst) {
		if rs.ifs == nil {
			return
		}
		for i := rs.nCompact; i < rs.nElts; i++ {
			g := rs.gid[i]
			if g < rs.lo || g >= rs.hi {
				continue
			}
			if j := int(g - rs.lo); i >= j {
				copy(dst[j*stride:(j+1)*stride], src[i*stride:(i+1)*stride])
			}
		}
		return
	}
	for i := 0; i < rs.nElts; i++ {
		g := rs.gid[i]
		if g < rs.lo || g >= rs.hi {
			continue
		}
		j := int(g - rs.lo)
		copy(dst[j*stride:(j+1)*stride], src[i*stride:(i+1)*stride])
	}
}

func scatterVals[T any](rs *Set, src, dst []T, stride int) {
	if sameSlice(src, dst) {
		if rs.ifs == nil {
			return
		}
		for i := rs.nElts - 1; i >= rs.nCompact; i-- {
			g := rs.gid[i]
			if g < rs.lo || g >= rs.hi {
				continue
			}
			if j := int(g - rs.lo); i >= j {
				copy(dst[i*stride:(i+1)*stride], src[j*stride:(j+1)*stride])
			}
		}
		return
	}
	for i := 0; i < rs.nElts; i++ {
		g := rs.gid[i]
		if g < rs.lo || g >= rs.hi {
			continue
		}
		j := int(g - rs.lo)
		copy(dst[i*stride:(i+1)*stride], src[j*stride:(j+1)*stride])
	}
}

package ifset

import (
	"fmt"

	"github.com/notargets/parmesh/dtype"
	"github.com/notargets/parmesh/perio"
)

// Message tag for interface-set exchanges. Every rank of the group drives
// the same sequence of operations, so a single tag is sufficient; the tag
// check catches sequence skew between ranks.
const tagExchange = 21

type number interface {
	~int8 | ~uint8 | ~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// exchange transmits the current values of all interface entries and
// returns the received buffer: entry k of each interface holds the value
// carried by its matching entity on the remote rank. The buffer is laid
// out as the concatenation of the set's interfaces in order.
func exchange[T any](s *Set, src []T, stride int) ([]T, error) {
	sendBuf := make([]T, s.nElts*stride)
	off := 0
	for _, itf := range s.itfs {
		for k, j := range itf.sendOrder {
			e := itf.elts[j]
			copy(sendBuf[(off+k)*stride:(off+k+1)*stride], src[e*stride:(e+1)*stride])
		}
		off += itf.Size()
	}

	local := s.c.Rank()
	off = 0
	for _, itf := range s.itfs {
		if itf.rank != local {
			if err := s.c.Send(itf.rank, tagExchange,
				sendBuf[off*stride:(off+itf.Size())*stride]); err != nil {
				return nil, err
			}
		}
		off += itf.Size()
	}

	buf := make([]T, s.nElts*stride)
	off = 0
	for _, itf := range s.itfs {
		n := itf.Size() * stride
		if itf.rank == local {
			copy(buf[off:off+n], sendBuf[off:off+n])
		} else {
			data, err := s.c.Recv(itf.rank, tagExchange)
			if err != nil {
				return nil, err
			}
			recv, ok := data.([]T)
			if !ok || len(recv) != n {
				return nil, fmt.Errorf("ifset: rank %d sent %d values of type %T, want %d of %T",
					itf.rank, lenOf(data), data, n, buf)
			}
			copy(buf[off:off+n], recv)
		}
		off += n
	}
	return buf, nil
}

func lenOf(data any) int {
	switch d := data.(type) {
	case []int8:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []uint32:
		return len(d)
	case []uint64:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []byte:
		return len(d)
	}
	return -1
}

// Copy exchanges the entry values across the set and returns the received
// buffer with the same dynamic type as v: entry k of each interface holds
// the value of its match on the remote rank.
func (s *Set) Copy(v any, stride int) (any, error) {
	switch x := v.(type) {
	case []int8:
		return exchange(s, x, stride)
	case []int32:
		return exchange(s, x, stride)
	case []int64:
		return exchange(s, x, stride)
	case []uint32:
		return exchange(s, x, stride)
	case []uint64:
		return exchange(s, x, stride)
	case []float32:
		return exchange(s, x, stride)
	case []float64:
		return exchange(s, x, stride)
	case dtype.Raw:
		buf, err := exchange(s, x.Data, x.ElemSize*stride)
		if err != nil {
			return nil, err
		}
		return dtype.Raw{Data: buf, ElemSize: x.ElemSize}, nil
	}
	return nil, fmt.Errorf("ifset: copy of %T: %w", v, dtype.ErrUnsupported)
}

// Sum adds, for every interface entry, the value of the matching entity on
// the remote rank into v. When exactly one copy of each shared entity is
// non-zero beforehand, the sum acts as a broadcast from the owner to all
// copies. This is a collective operation.
func (s *Set) Sum(v any, stride int) error {
	return s.reduce(v, stride, 0, false)
}

// SumTr is Sum restricted by transform sections: trIgnore 0 sums over all
// entries, 1 skips matches related by a rotation, 2 skips all periodic
// matches.
func (s *Set) SumTr(v any, stride, trIgnore int) error {
	return s.reduce(v, stride, trIgnore, false)
}

// Max replaces, for every interface entry, the local value by the maximum
// of itself and the matching remote value. This is a collective operation.
func (s *Set) Max(v any, stride int) error {
	return s.reduce(v, stride, 0, true)
}

// MaxTr is Max restricted by transform sections, with trIgnore as in SumTr.
func (s *Set) MaxTr(v any, stride, trIgnore int) error {
	return s.reduce(v, stride, trIgnore, true)
}

func (s *Set) reduce(v any, stride, trIgnore int, max bool) error {
	nTr := s.trSections(trIgnore)
	switch x := v.(type) {
	case []int8:
		return reduceVals(s, x, stride, nTr, max)
	case []int32:
		return reduceVals(s, x, stride, nTr, max)
	case []int64:
		return reduceVals(s, x, stride, nTr, max)
	case []uint32:
		return reduceVals(s, x, stride, nTr, max)
	case []uint64:
		return reduceVals(s, x, stride, nTr, max)
	case []float32:
		return reduceVals(s, x, stride, nTr, max)
	case []float64:
		return reduceVals(s, x, stride, nTr, max)
	case dtype.Raw:
		// Byte-wise merge, matching the behavior of the untyped path.
		return reduceVals(s, x.Data, x.ElemSize*stride, nTr, max)
	}
	return fmt.Errorf("ifset: reduction on %T: %w", v, dtype.ErrUnsupported)
}

func reduceVals[T number](s *Set, v []T, stride, nTr int, max bool) error {
	buf, err := exchange(s, v, stride)
	if err != nil {
		return err
	}
	off := 0
	for _, itf := range s.itfs {
		nSec := itf.NumSections()
		if nTr > 0 && nTr < nSec {
			nSec = nTr
		}
		for sec := 0; sec < nSec; sec++ {
			if nTr > 0 && !s.sectionAdmitted(sec) {
				continue
			}
			start, end := itf.Section(sec)
			for k := start; k < end; k++ {
				e := itf.elts[k]
				for l := 0; l < stride; l++ {
					p := buf[(off+k)*stride+l]
					if max {
						if p > v[e*stride+l] {
							v[e*stride+l] = p
						}
					} else {
						v[e*stride+l] += p
					}
				}
			}
		}
		off += itf.Size()
	}
	return nil
}

// TagLocalMatches writes tag into out for periodic entities that are local
// copies of another local entity. It is effective only on a self-interface
// (remote rank equal to the local rank): within every transform section
// admitted by trIgnore, the larger-indexed member of each matched pair is
// tagged, so exactly one copy per local periodic orbit stays untagged.
func (s *Set) TagLocalMatches(itf *Interface, trIgnore int, tag uint64, out []uint64) {
	if itf.rank != s.c.Rank() || trIgnore >= 2 {
		return
	}
	p := s.Periodicity()
	if p == nil || itf.trIndex == nil {
		return
	}
	for t := 0; t < p.NumTransforms(); t++ {
		if trIgnore == 1 && p.KindOf(t) != perio.Translation {
			continue
		}
		start, end := itf.Section(t + 1)
		for j := start; j < end; j++ {
			k := itf.elts[j]
			if itf.match[j] > k {
				k = itf.match[j]
			}
			out[k] = tag
		}
	}
}

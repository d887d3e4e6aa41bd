// Package halo implements the ghost-entity exchange structure: contiguous
// blocks of foreign entities appended after the local entities, grouped by
// source rank and by standard/extended reach. A halo is one of the two
// inputs accepted by the range-set numbering engine.
package halo

import (
	"fmt"

	"github.com/notargets/parmesh/comm"
	"github.com/notargets/parmesh/dtype"
	"github.com/notargets/parmesh/perio"
)

// Reach selects one of the two nested ghost layers.
type Reach int

const (
	Standard Reach = iota
	Extended
)

const tagHalo = 22

// Block describes the exchange with one neighbor rank, as assembled by the
// mesh preprocessing. Send holds the local entity ids whose values feed the
// neighbor's standard ghost layer; SendExt the additional ids for its
// extended layer. NRecv and NRecvExt size the ghost entities received from
// the neighbor, in the order they appear in the ghost block.
type Block struct {
	Rank     int
	Send     []int
	SendExt  []int
	NRecv    int
	NRecvExt int

	// RecvTrIndex optionally partitions the received standard ghosts by
	// periodic transform id (0 meaning no transform). It is carried for
	// callers that enumerate periodic ghost copies; the synchronization
	// itself does not consult it.
	RecvTrIndex []int
}

// Halo describes the ghost entities of the local rank. Ghosts occupy
// indices [NLocal, NLocal+NGhosts) of every value buffer, grouped by source
// rank with the standard-reach part of each group first.
type Halo struct {
	c      *comm.Comm
	p      *perio.Periodicity
	nLocal int
	blocks []Block

	sendIndex []int // 2 entries per block into sendList, plus terminator
	sendList  []int
	recvIndex []int // 2 entries per block into the ghost region, plus terminator
}

// New assembles a halo from per-neighbor blocks. Block order fixes the
// layout of the ghost region.
func New(c *comm.Comm, p *perio.Periodicity, nLocal int, blocks []Block) (*Halo, error) {
	h := &Halo{
		c:         c,
		p:         p,
		nLocal:    nLocal,
		blocks:    append([]Block(nil), blocks...),
		sendIndex: make([]int, 2*len(blocks)+1),
		recvIndex: make([]int, 2*len(blocks)+1),
	}
	seen := make(map[int]bool, len(blocks))
	for i, b := range h.blocks {
		if b.Rank < 0 || b.Rank >= c.Size() {
			return nil, fmt.Errorf("halo: rank %d outside group of size %d", b.Rank, c.Size())
		}
		if seen[b.Rank] {
			return nil, fmt.Errorf("halo: duplicate block for rank %d", b.Rank)
		}
		seen[b.Rank] = true
		h.sendIndex[2*i+1] = h.sendIndex[2*i] + len(b.Send)
		h.sendIndex[2*i+2] = h.sendIndex[2*i+1] + len(b.SendExt)
		h.recvIndex[2*i+1] = h.recvIndex[2*i] + b.NRecv
		h.recvIndex[2*i+2] = h.recvIndex[2*i+1] + b.NRecvExt
		h.sendList = append(h.sendList, b.Send...)
		h.sendList = append(h.sendList, b.SendExt...)
	}
	return h, nil
}

// Comm returns the communicator the halo is bound to.
func (h *Halo) Comm() *comm.Comm { return h.c }

// Periodicity returns the periodicity descriptor, or nil when the mesh has
// no periodic transforms.
func (h *Halo) Periodicity() *perio.Periodicity {
	if h.p == nil || h.p.NumTransforms() == 0 {
		return nil
	}
	return h.p
}

// NLocal returns the number of local entities; ghosts start at this index.
func (h *Halo) NLocal() int { return h.nLocal }

// NGhosts returns the total number of ghost entities, both reaches included.
func (h *Halo) NGhosts() int { return h.recvIndex[len(h.recvIndex)-1] }

// RecvRange returns the half-open ghost-region index range [start, end)
// filled from block i up to the given reach, relative to NLocal.
func (h *Halo) RecvRange(i int, reach Reach) (start, end int) {
	if reach == Standard {
		return h.recvIndex[2*i], h.recvIndex[2*i+1]
	}
	return h.recvIndex[2*i], h.recvIndex[2*i+2]
}

func (h *Halo) sendRange(i int, reach Reach) (start, end int) {
	if reach == Standard {
		return h.sendIndex[2*i], h.sendIndex[2*i+1]
	}
	return h.sendIndex[2*i], h.sendIndex[2*i+2]
}

// Sync copies values from owning entities into the ghost region: for every
// neighbor block, the values of the neighbor's send list overwrite the
// ghosts received from it, up to the requested reach. This is a collective
// operation over the halo's communicator.
func (h *Halo) Sync(reach Reach, v any, stride int) error {
	switch x := v.(type) {
	case []int8:
		return syncVals(h, reach, x, stride)
	case []int32:
		return syncVals(h, reach, x, stride)
	case []int64:
		return syncVals(h, reach, x, stride)
	case []uint32:
		return syncVals(h, reach, x, stride)
	case []uint64:
		return syncVals(h, reach, x, stride)
	case []float32:
		return syncVals(h, reach, x, stride)
	case []float64:
		return syncVals(h, reach, x, stride)
	case dtype.Raw:
		return syncVals(h, reach, x.Data, x.ElemSize*stride)
	}
	return fmt.Errorf("halo: sync of %T: %w", v, dtype.ErrUnsupported)
}

func syncVals[T any](h *Halo, reach Reach, v []T, stride int) error {
	local := h.c.Rank()
	var selfBuf []T

	for i, b := range h.blocks {
		s, e := h.sendRange(i, reach)
		buf := make([]T, (e-s)*stride)
		for k, id := range h.sendList[s:e] {
			copy(buf[k*stride:(k+1)*stride], v[id*stride:(id+1)*stride])
		}
		if b.Rank == local {
			selfBuf = buf
			continue
		}
		if err := h.c.Send(b.Rank, tagHalo, buf); err != nil {
			return err
		}
	}

	for i, b := range h.blocks {
		rs, re := h.RecvRange(i, reach)
		dst := v[(h.nLocal+rs)*stride : (h.nLocal+re)*stride]
		var buf []T
		if b.Rank == local {
			buf = selfBuf
		} else {
			data, err := h.c.Recv(b.Rank, tagHalo)
			if err != nil {
				return err
			}
			recv, ok := data.([]T)
			if !ok {
				return fmt.Errorf("halo: rank %d sent %T, want %T", b.Rank, data, buf)
			}
			buf = recv
		}
		if len(buf) != len(dst) {
			return fmt.Errorf("halo: rank %d sent %d values, want %d",
				b.Rank, len(buf), len(dst))
		}
		copy(dst, buf)
	}
	return nil
}

// Package comm provides the in-process message-passing group used by the
// distributed mesh numbering and synchronization operations. A Group holds
// a fixed number of ranks; each rank runs in its own goroutine and talks to
// its peers through per-pair mailboxes. Collective operations (barrier,
// prefix scan) are suspension points: every rank of the group must enter
// them, and a failure on any rank aborts the whole group so that blocked
// peers unwind instead of deadlocking.
package comm

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAborted is reported by communication calls on a group whose run was
// aborted by a failure on some rank.
var ErrAborted = errors.New("communicator aborted")

// mailboxCap bounds in-flight messages per (sender, receiver) pair. Each
// exchange round sends at most one message per pair, so a small buffer is
// enough to decouple send and receive order within a round.
const mailboxCap = 4

type packet struct {
	src  int
	tag  int
	data any
}

// Group is a set of ranks with point-to-point and collective communication.
type Group struct {
	size int
	mail [][]chan packet // mail[src][dst]
	bar  *barrier
	scan []uint64
	log  *zap.Logger

	abortOnce sync.Once
	aborted   chan struct{}
	cause     error
}

// Option configures a Group.
type Option func(*Group)

// WithLogger attaches a logger to the group. Collectives and aborts are
// traced at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(g *Group) { g.log = log }
}

// NewGroup creates a communication group of the given size.
func NewGroup(size int, opts ...Option) *Group {
	if size < 1 {
		panic(fmt.Sprintf("comm: group size %d < 1", size))
	}
	g := &Group{
		size:    size,
		mail:    make([][]chan packet, size),
		scan:    make([]uint64, size),
		log:     zap.NewNop(),
		aborted: make(chan struct{}),
	}
	for src := range g.mail {
		g.mail[src] = make([]chan packet, size)
		for dst := range g.mail[src] {
			g.mail[src][dst] = make(chan packet, mailboxCap)
		}
	}
	g.bar = newBarrier(size)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.size }

// Comm returns the communication handle for one rank.
func (g *Group) Comm(rank int) *Comm {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("comm: rank %d outside group of size %d", rank, g.size))
	}
	return &Comm{g: g, rank: rank}
}

// Abort marks the group as failed. All pending and future communication
// calls return an error wrapping ErrAborted. The first cause wins.
func (g *Group) Abort(cause error) {
	g.abortOnce.Do(func() {
		g.cause = cause
		g.log.Debug("communicator group aborted", zap.Error(cause))
		close(g.aborted)
		g.bar.abort(g.abortErr())
	})
}

func (g *Group) abortErr() error {
	return fmt.Errorf("%w: %v", ErrAborted, g.cause)
}

// Run executes fn once per rank, each on its own goroutine, and waits for
// all of them. The first error aborts the group and is returned.
func (g *Group) Run(fn func(c *Comm) error) error {
	var eg errgroup.Group
	for rank := 0; rank < g.size; rank++ {
		c := g.Comm(rank)
		eg.Go(func() error {
			if err := fn(c); err != nil {
				g.Abort(fmt.Errorf("rank %d: %w", c.rank, err))
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// Comm is one rank's handle on a Group. A Comm may be used from a single
// goroutine at a time; distinct ranks run concurrently.
type Comm struct {
	g    *Group
	rank int
}

// Rank returns this rank's id within the group.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the group.
func (c *Comm) Size() int { return c.g.size }

// Send delivers data to the destination rank under the given tag. The
// payload is handed over by reference; the sender must not mutate it until
// the matching receive completes.
func (c *Comm) Send(dst, tag int, data any) error {
	select {
	case c.g.mail[c.rank][dst] <- packet{src: c.rank, tag: tag, data: data}:
		return nil
	case <-c.g.aborted:
		return c.g.abortErr()
	}
}

// Recv blocks until a message from src arrives. Receiving a message whose
// tag differs from the expected one means the ranks disagree on the
// sequence of exchanges, which is a programming error.
func (c *Comm) Recv(src, tag int) (any, error) {
	select {
	case p := <-c.g.mail[src][c.rank]:
		if p.tag != tag {
			err := fmt.Errorf("comm: rank %d expected tag %d from rank %d, got %d",
				c.rank, tag, src, p.tag)
			c.g.Abort(err)
			return nil, err
		}
		return p.data, nil
	case <-c.g.aborted:
		return nil, c.g.abortErr()
	}
}

// Barrier blocks until every rank of the group has entered it.
func (c *Comm) Barrier() error {
	return c.g.bar.wait()
}

// ScanSum performs an inclusive prefix sum over the ranks: the result on
// rank r is the sum of v over ranks 0..r. The exclusive prefix is the
// result minus this rank's own contribution.
func (c *Comm) ScanSum(v uint64) (uint64, error) {
	g := c.g
	g.scan[c.rank] = v
	if err := c.Barrier(); err != nil {
		return 0, err
	}
	var sum uint64
	for r := 0; r <= c.rank; r++ {
		sum += g.scan[r]
	}
	// Second barrier so the scratch slice may be reused by the next scan.
	if err := c.Barrier(); err != nil {
		return 0, err
	}
	g.log.Debug("scan complete",
		zap.Int("rank", c.rank), zap.Uint64("in", v), zap.Uint64("out", sum))
	return sum, nil
}

package inference

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
)

// DefaultPoolSize is used when a non-positive pool size is requested.
const DefaultPoolSize = 1

// SessionFactory creates one session for a Pool.
type SessionFactory func() (Session, error)

// PoolMetrics is a snapshot of pool usage.
type PoolMetrics struct {
	Size          int     `json:"size"`
	InUse         int     `json:"in_use"`
	TotalAcquired int64   `json:"total_acquired"`
	TotalReleased int64   `json:"total_released"`
	WaitTimeMs    float64 `json:"wait_time_ms"`
}

// Pool holds several sessions behind a channel so that up to Size inferences
// can run in parallel over sessions that are not re-entrant. Run blocks while
// every session is busy.
type Pool struct {
	sessions   chan Session
	all        []Session
	inputShape []int64

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	metrics  PoolMetrics
}

// NewPool creates size sessions with factory. All sessions must expect the same
// input shape.
//
// Arguments:
//   - factory: Creates one session.
//   - size: The number of sessions; non-positive selects DefaultPoolSize.
//
// Returns:
//   - *Pool: The pool.
//   - error: The first factory error, after closing the sessions created so far.
func NewPool(factory SessionFactory, size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &Pool{
		sessions: make(chan Session, size),
		all:      make([]Session, 0, size),
	}
	pool.metrics.Size = size

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, "failed to initialize session %d", i)
		}
		if i == 0 {
			pool.inputShape = session.InputShape()
		} else if err := CheckShape(session.InputShape(), pool.inputShape); err != nil {
			session.Close()
			pool.Close()
			return nil, errors.Wrapf(err, "session %d", i)
		}
		pool.all = append(pool.all, session)
		pool.sessions <- session
	}

	return pool, nil
}

// Run acquires a free session, runs input through it and releases it.
func (p *Pool) Run(input *InputTensor) (*RawOutput, error) {
	session, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer p.release(session)

	return session.Run(input)
}

func (p *Pool) acquire() (Session, error) {
	start := time.Now()
	session, ok := <-p.sessions
	if !ok {
		return nil, common.Errorf(common.ErrInferenceFailed, "session pool is closed")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, common.Errorf(common.ErrInferenceFailed, "session pool is closed")
	}
	p.inflight.Add(1)
	p.metrics.InUse++
	p.metrics.TotalAcquired++
	p.metrics.WaitTimeMs += float64(time.Since(start).Nanoseconds()) / 1e6
	p.mu.Unlock()

	return session, nil
}

func (p *Pool) release(session Session) {
	p.mu.Lock()
	p.metrics.InUse--
	p.metrics.TotalReleased++
	if !p.closed {
		p.sessions <- session
	}
	p.mu.Unlock()
	p.inflight.Done()
}

// InputShape implements Session.
func (p *Pool) InputShape() []int64 {
	return append([]int64(nil), p.inputShape...)
}

// Size returns the number of sessions in the pool.
func (p *Pool) Size() int {
	return cap(p.sessions)
}

// Metrics returns the current usage counters.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Close waits for runs in flight to finish and then closes every session.
// Later runs fail with ErrInferenceFailed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sessions)
	p.mu.Unlock()

	p.inflight.Wait()

	var first error
	for _, s := range p.all {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

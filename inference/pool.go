package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrPoolClosed is returned when a closed pool is asked to run.
var ErrPoolClosed = errors.New("session pool is closed")

// Pool hands out a fixed set of runners so that requests run concurrently up to the pool size.
type Pool struct {
	runners chan Runner
	size    int
	closed  chan struct{}
	once    sync.Once
	metrics *Metrics
}

// NewPool creates a pool over the given runners.
//
// Arguments:
//   - runners: At least one runner; the pool takes ownership.
//
// Returns:
//   - *Pool: The pool.
//   - error: An error if no runners are given.
func NewPool(runners ...Runner) (*Pool, error) {
	if len(runners) == 0 {
		return nil, errors.New("session pool needs at least one runner")
	}

	p := &Pool{
		runners: make(chan Runner, len(runners)),
		size:    len(runners),
		closed:  make(chan struct{}),
	}
	for _, r := range runners {
		p.runners <- r
	}
	return p, nil
}

// Size returns the number of runners.
func (p *Pool) Size() int {
	return p.size
}

// Available returns the number of idle runners.
func (p *Pool) Available() int {
	return len(p.runners)
}

func (p *Pool) acquire(ctx context.Context) (Runner, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case r := <-p.runners:
		p.metrics.setInUse(p.size - len(p.runners))
		return r, nil
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(r Runner) {
	p.runners <- r
	p.metrics.setInUse(p.size - len(p.runners))
}

// Run waits for an idle runner and executes the input on it.
//
// Arguments:
//   - ctx: Cancels the wait for a runner.
//   - input: The flattened input tensor.
//
// Returns:
//   - []float32: The output tensor.
//   - error: ErrPoolClosed, the context error, or the runner's error.
func (p *Pool) Run(ctx context.Context, input []float32) ([]float32, error) {
	r, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(r)

	return r.Run(ctx, input)
}

// Close waits for in-flight runs and closes every runner.
func (p *Pool) Close() error {
	var firstErr error
	p.once.Do(func() {
		close(p.closed)
		for i := 0; i < p.size; i++ {
			r := <-p.runners
			if err := r.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

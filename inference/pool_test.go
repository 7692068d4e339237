package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds every run until released.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	closed  bool
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	b.started <- struct{}{}
	<-b.release
	return input, nil
}

func (b *blockingRunner) Close() error {
	b.closed = true
	return nil
}

// TestNewPoolRequiresRunner rejects an empty pool.
func TestNewPoolRequiresRunner(t *testing.T) {
	_, err := NewPool()
	assert.Error(t, err)
}

// TestPoolConcurrentRuns runs more requests than runners and checks every one completes.
func TestPoolConcurrentRuns(t *testing.T) {
	a := &fakeRunner{output: []float32{1}}
	b := &fakeRunner{output: []float32{1}}
	pool, err := NewPool(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Size())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := pool.Run(context.Background(), []float32{0})
			assert.NoError(t, err)
			assert.Equal(t, []float32{1}, out)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, a.runs+b.runs)
	assert.Equal(t, 2, pool.Available())
}

// TestPoolWaitHonorsContext ensures a caller waiting for a busy runner can give up.
func TestPoolWaitHonorsContext(t *testing.T) {
	runner := newBlockingRunner()
	pool, err := NewPool(runner)
	require.NoError(t, err)

	go pool.Run(context.Background(), []float32{1})
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Run(ctx, []float32{2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(runner.release)
}

// TestPoolClose waits for in-flight runs, closes runners and rejects new work.
func TestPoolClose(t *testing.T) {
	runner := newBlockingRunner()
	pool, err := NewPool(runner)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := pool.Run(context.Background(), []float32{1})
		assert.NoError(t, err)
	}()
	<-runner.started

	closed := make(chan error)
	go func() { closed <- pool.Close() }()

	close(runner.release)
	<-done
	require.NoError(t, <-closed)
	assert.True(t, runner.closed)

	_, err = pool.Run(context.Background(), []float32{1})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, pool.Close())
}

// TestPoolInUseGauge tracks busy sessions while a run is in flight.
func TestPoolInUseGauge(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	runner := newBlockingRunner()
	pool, err := NewPool(runner)
	require.NoError(t, err)
	pool.metrics = metrics

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(context.Background(), []float32{1})
	}()

	<-runner.started
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.inUse))

	close(runner.release)
	<-done
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.inUse))
}

package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/payment-bridge/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowGateway struct {
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func (g *slowGateway) CreatePayout(ctx context.Context, req gateway.Request) gateway.Result {
	return g.call(req)
}

func (g *slowGateway) CreatePayin(ctx context.Context, req gateway.Request) gateway.Result {
	return g.call(req)
}

func (g *slowGateway) call(req gateway.Request) gateway.Result {
	n := g.running.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(g.delay)
	g.running.Add(-1)
	return gateway.Result{Acknowledged: true, ExternalID: "ext-" + req.TransactionID}
}

func TestGatewayPoolBoundsConcurrency(t *testing.T) {
	gw := &slowGateway{delay: 20 * time.Millisecond}
	pool, err := NewGatewayPool(gw, 2, zap.NewNop())
	require.NoError(t, err)
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i))
			res := pool.CreatePayout(context.Background(), gateway.Request{TransactionID: id})
			assert.True(t, res.Acknowledged)
			assert.Equal(t, "ext-"+id, res.ExternalID)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, gw.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, gw.peak.Load(), int32(1))
}

func TestGatewayPoolReturnsTransportFailureOnCancel(t *testing.T) {
	pool, err := NewGatewayPool(&slowGateway{delay: 200 * time.Millisecond}, 1, zap.NewNop())
	require.NoError(t, err)
	defer pool.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := pool.CreatePayin(ctx, gateway.Request{TransactionID: "PAYIN_1"})
	assert.False(t, res.Acknowledged)
	assert.True(t, res.Transport)
	assert.Equal(t, gateway.ErrTimeout.Error(), res.Message)
}

// stuckGateway ignores its context and holds the only worker until released.
type stuckGateway struct {
	release chan struct{}
}

func (g *stuckGateway) CreatePayout(ctx context.Context, req gateway.Request) gateway.Result {
	<-g.release
	return gateway.Result{Acknowledged: true, ExternalID: "late-" + req.TransactionID}
}

func (g *stuckGateway) CreatePayin(ctx context.Context, req gateway.Request) gateway.Result {
	return g.CreatePayout(ctx, req)
}

func TestGatewayPoolQueuedCallsHonorDeadline(t *testing.T) {
	gw := &stuckGateway{release: make(chan struct{})}
	pool, err := NewGatewayPool(gw, 1, zap.NewNop())
	require.NoError(t, err)
	defer pool.Release()
	defer close(gw.release)

	const bound = 100 * time.Millisecond
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// The service detaches from the request and then applies its own deadline.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), bound)
			defer cancel()

			start := time.Now()
			res := pool.CreatePayout(ctx, gateway.Request{TransactionID: string(rune('A' + i))})
			elapsed := time.Since(start)

			assert.False(t, res.Acknowledged)
			assert.True(t, res.Transport)
			assert.Equal(t, gateway.ErrTimeout.Error(), res.Message)
			assert.Less(t, elapsed, 5*bound)
		}(i)
	}
	wg.Wait()
}

func TestGatewayPoolAfterRelease(t *testing.T) {
	pool, err := NewGatewayPool(&slowGateway{}, 1, zap.NewNop())
	require.NoError(t, err)
	pool.Release()

	res := pool.CreatePayout(context.Background(), gateway.Request{TransactionID: "PAYOUT_1"})
	assert.True(t, res.Transport)
	assert.Contains(t, res.Message, "gateway pool")
}

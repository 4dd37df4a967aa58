package worker

import (
	"context"
	"fmt"

	"github.com/ayo6706/payment-bridge/internal/gateway"
	"github.com/ayo6706/payment-bridge/internal/observability"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// queuedPerWorker caps how many callers may wait for a slot, per worker.
const queuedPerWorker = 64

// GatewayPool bounds how many gateway calls run at once. It wraps another
// gateway.Client and is one itself. Waiting for a slot counts against the
// caller's deadline.
type GatewayPool struct {
	next   gateway.Client
	pool   *ants.Pool
	logger *zap.Logger
}

func NewGatewayPool(next gateway.Client, size int, logger *zap.Logger) (*GatewayPool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(size,
		ants.WithLogger(zapAntsLogger{logger}),
		ants.WithMaxBlockingTasks(size*queuedPerWorker),
	)
	if err != nil {
		return nil, fmt.Errorf("create gateway pool: %w", err)
	}
	return &GatewayPool{next: next, pool: pool, logger: logger}, nil
}

func (p *GatewayPool) CreatePayout(ctx context.Context, req gateway.Request) gateway.Result {
	return p.run(ctx, req, p.next.CreatePayout)
}

func (p *GatewayPool) CreatePayin(ctx context.Context, req gateway.Request) gateway.Result {
	return p.run(ctx, req, p.next.CreatePayin)
}

func (p *GatewayPool) run(ctx context.Context, req gateway.Request, call func(context.Context, gateway.Request) gateway.Result) gateway.Result {
	out := make(chan gateway.Result, 1)
	submitted := make(chan error, 1)
	// Submit blocks while every worker is busy, so it runs apart from the caller.
	go func() {
		submitted <- p.pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				out <- gateway.TransportFailure(err)
				return
			}
			observability.SetGatewayPoolRunning(p.pool.Running())
			out <- call(ctx, req)
		})
	}()

	for {
		select {
		case res := <-out:
			return res
		case err := <-submitted:
			if err != nil {
				p.logger.Error("gateway pool rejected call", zap.String("txn_id", req.TransactionID), zap.Error(err))
				return gateway.TransportFailure(fmt.Errorf("gateway pool: %w", err))
			}
			submitted = nil
		case <-ctx.Done():
			p.logger.Warn("gateway call abandoned", zap.String("txn_id", req.TransactionID), zap.Error(ctx.Err()))
			return gateway.TransportFailure(ctx.Err())
		}
	}
}

// Running reports calls currently in flight.
func (p *GatewayPool) Running() int {
	return p.pool.Running()
}

// Release stops accepting calls. In-flight calls finish on their own.
func (p *GatewayPool) Release() {
	p.pool.Release()
}

type zapAntsLogger struct {
	logger *zap.Logger
}

func (l zapAntsLogger) Printf(format string, args ...any) {
	l.logger.Sugar().Warnf(format, args...)
}

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
)

// MockClient simulates the gateway partner for local development.
// It waits a random delay, then acknowledges or rejects based on FailureRate.
type MockClient struct {
	// FailureRate is the probability of a business rejection (0.0 to 1.0).
	FailureRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

func NewMockClient() *MockClient {
	return &MockClient{
		FailureRate: 0.1,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    800 * time.Millisecond,
	}
}

func (g *MockClient) CreatePayout(ctx context.Context, req Request) Result {
	return g.respond(ctx, req, nil)
}

func (g *MockClient) CreatePayin(ctx context.Context, req Request) Result {
	return g.respond(ctx, req, map[string]any{
		"intent_link": fmt.Sprintf("upi://pay?pa=mock@upi&am=%s&tr=%s", req.Amount.StringFixed(2), req.TransactionID),
	})
}

func (g *MockClient) respond(ctx context.Context, req Request, extra map[string]any) Result {
	select {
	case <-time.After(g.delay()):
	case <-ctx.Done():
		return TransportFailure(fmt.Errorf("gateway call canceled: %w", ctx.Err()))
	}

	if rand.Float64() < g.FailureRate {
		payload, _ := json.Marshal(map[string]any{
			"status": "false",
			"msg":    "mock gateway declined the order",
		})
		return Result{Payload: payload, Error: payload, Message: "mock gateway declined the order"}
	}

	// Format: MOCK-YYYYMMDD-HHMMSS-XXXXX
	tid := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	body := map[string]any{
		"status":        "true",
		"msg":           "order accepted",
		"order_details": map[string]any{"tid": tid, "txn_id": req.TransactionID},
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, _ := json.Marshal(body)
	return Result{Acknowledged: true, ExternalID: tid, Payload: payload, Message: "order accepted"}
}

func (g *MockClient) delay() time.Duration {
	if g.MaxDelay <= g.MinDelay {
		return g.MinDelay
	}
	return g.MinDelay + time.Duration(rand.Int63n(int64(g.MaxDelay-g.MinDelay)))
}

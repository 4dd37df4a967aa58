package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/events"
	"github.com/ayo6706/payment-bridge/internal/gateway"
	"github.com/ayo6706/payment-bridge/internal/repository"
	"go.uber.org/zap"
)

// stubGateway returns a fixed result and records every request.
type stubGateway struct {
	mu     sync.Mutex
	result gateway.Result
	calls  []gateway.Request
	// during runs inside the call, before the result is returned.
	during func(req gateway.Request)
}

func (g *stubGateway) CreatePayout(ctx context.Context, req gateway.Request) gateway.Result {
	return g.respond(req)
}

func (g *stubGateway) CreatePayin(ctx context.Context, req gateway.Request) gateway.Result {
	return g.respond(req)
}

func (g *stubGateway) respond(req gateway.Request) gateway.Result {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	during := g.during
	g.mu.Unlock()
	if during != nil {
		during(req)
	}
	return g.result
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func ackResult(tid string) gateway.Result {
	payload := json.RawMessage(fmt.Sprintf(`{"status":"true","msg":"Payout initiated","order_details":{"tid":%q}}`, tid))
	return gateway.Result{Acknowledged: true, ExternalID: tid, Payload: payload}
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) New(kind domain.Kind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%sTEST%d", kind.Prefix(), s.n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(eventType string) []events.TransactionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.TransactionEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *repository.MemoryRepository
	gateway   *stubGateway
	publisher *recordingPublisher
	svc       *TransactionService
	webhooks  *WebhookService
}

func newFixture(t *testing.T, policy TerminalPolicy) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository(zap.NewNop())
	gw := &stubGateway{result: ackResult("T1")}
	pub := &recordingPublisher{}
	clock := func() time.Time { return testNow }

	svc := NewTransactionService(repo, gw, &sequenceIDs{}, pub, zap.NewNop(),
		WithClock(clock), WithTerminalPolicy(policy))
	webhooks := NewWebhookService(repo, pub, policy, "", zap.NewNop())
	webhooks.now = clock

	return &fixture{repo: repo, gateway: gw, publisher: pub, svc: svc, webhooks: webhooks}
}
